package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

//go:generate mockgen -source=store.go -destination=../mocks/mockstore/store_mock.gen.go -package mockstore

var logger = xlog.NewPackageLogger("github.com/effective-security/supportagent", "store")

// ErrNotFound is returned when the customer record does not exist.
var ErrNotFound = errors.New("not found")

// Card statuses
const (
	CardStatusActive      = "active"
	CardStatusDeactivated = "deactivated"
)

// Issue priorities
var IssuePriorities = []string{"low", "medium", "high"}

// Amount is a currency value, serialized with two decimals.
type Amount float64

// MarshalJSON implements json.Marshaler
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(float64(a), 'f', 2, 64)), nil
}

// String returns the amount with two decimals.
func (a Amount) String() string {
	return strconv.FormatFloat(float64(a), 'f', 2, 64)
}

// Customer is the account record of a customer.
type Customer struct {
	UserID     string `json:"user_id" yaml:"user_id"`
	Name       string `json:"name" yaml:"name"`
	Email      string `json:"email" yaml:"email"`
	Password   string `json:"password" yaml:"password"`
	Address    string `json:"address" yaml:"address"`
	Balance    Amount `json:"account_balance" yaml:"account_balance"`
	CardStatus string `json:"card_status" yaml:"card_status"`
	CardNumber string `json:"card_number" yaml:"card_number"`
	Phone      string `json:"phone" yaml:"phone"`
}

// Clone returns a copy of the record.
func (c *Customer) Clone() *Customer {
	cp := *c
	return &cp
}

// Transaction is an account transaction.
type Transaction struct {
	ID          string    `json:"id" yaml:"id"`
	Date        time.Time `json:"date" yaml:"date"`
	Description string    `json:"description" yaml:"description"`
	Amount      Amount    `json:"amount" yaml:"amount"`
	Balance     Amount    `json:"balance" yaml:"balance"`
}

// Issue is a customer support ticket.
type Issue struct {
	IssueID     string    `json:"issue_id" yaml:"issue_id"`
	UserID      string    `json:"user_id" yaml:"user_id"`
	Description string    `json:"description" yaml:"description"`
	Status      string    `json:"status" yaml:"status"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	Priority    string    `json:"priority" yaml:"priority"`
}

// AccountStore is the customer record store operated by the support tools.
type AccountStore interface {
	// GetCustomer returns the customer record, or ErrNotFound.
	GetCustomer(ctx context.Context, userID string) (*Customer, error)
	// ListUserIDs returns the IDs of all customers, sorted.
	ListUserIDs(ctx context.Context) ([]string, error)
	// ChangePassword stores the password as `hashed_<value>`.
	ChangePassword(ctx context.Context, userID, newPassword string) error
	// UpdateAddress replaces the customer address.
	UpdateAddress(ctx context.Context, userID, newAddress string) error
	// DeactivateCard sets the card status to deactivated.
	DeactivateCard(ctx context.Context, userID string) error
	// RecentTransactions returns up to limit transactions, most recent first.
	// Unknown users have no transactions.
	RecentTransactions(ctx context.Context, userID string, limit int) ([]*Transaction, error)
	// ReportIssue creates an open ticket with a sequential `issue_NNN` ID.
	ReportIssue(ctx context.Context, userID, description string) (*Issue, error)
	// ListIssues returns the tickets of the user, or all tickets if userID is empty.
	ListIssues(ctx context.Context, userID string) ([]*Issue, error)
}

// HashPassword returns the stored form of the password.
func HashPassword(password string) string {
	return "hashed_" + password
}

// IssueID returns the ticket ID for the sequence number.
func IssueID(seq int) string {
	return fmt.Sprintf("issue_%03d", seq)
}
