package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Snapshot is the full content of an account store.
type Snapshot struct {
	Users        map[string]*Customer      `json:"users" yaml:"users"`
	Transactions map[string][]*Transaction `json:"transactions" yaml:"transactions"`
	Issues       []*Issue                  `json:"issues" yaml:"issues"`
}

// SeedSnapshot returns the demo accounts,
// transaction dates are relative to now.
func SeedSnapshot(now time.Time) *Snapshot {
	day := 24 * time.Hour
	return &Snapshot{
		Users: map[string]*Customer{
			"user_001": {
				UserID:     "user_001",
				Name:       "John Doe",
				Email:      "john.doe@example.com",
				Password:   "hashed_password_123",
				Address:    "123 Main St, Springfield, IL 62701",
				Balance:    5420.50,
				CardStatus: CardStatusActive,
				CardNumber: "**** **** **** 1234",
				Phone:      "+1-555-0123",
			},
			"user_002": {
				UserID:     "user_002",
				Name:       "Jane Smith",
				Email:      "jane.smith@example.com",
				Password:   "hashed_password_456",
				Address:    "456 Oak Ave, Portland, OR 97201",
				Balance:    12750.25,
				CardStatus: CardStatusActive,
				CardNumber: "**** **** **** 5678",
				Phone:      "+1-555-0456",
			},
		},
		Transactions: map[string][]*Transaction{
			"user_001": {
				{ID: "txn_001", Date: now.Add(-1 * day), Description: "Amazon Purchase", Amount: -89.99, Balance: 5420.50},
				{ID: "txn_002", Date: now.Add(-3 * day), Description: "Salary Deposit", Amount: 3500.00, Balance: 5510.49},
				{ID: "txn_003", Date: now.Add(-5 * day), Description: "Electric Bill", Amount: -125.50, Balance: 2010.49},
			},
			"user_002": {
				{ID: "txn_004", Date: now.Add(-2 * day), Description: "Grocery Store", Amount: -156.32, Balance: 12750.25},
			},
		},
		Issues: []*Issue{},
	}
}

// LoadSnapshot loads a snapshot from a JSON or YAML file.
func LoadSnapshot(file string) (*Snapshot, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	s := new(Snapshot)
	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, s)
	default:
		err = json.Unmarshal(b, s)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse snapshot: %s", file)
	}
	s.normalize()
	return s, nil
}

// SaveSnapshot writes the snapshot as indented JSON.
func SaveSnapshot(file string, s *Snapshot) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	tmp := file + ".tmp"
	if err = os.WriteFile(tmp, b, 0o600); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Rename(tmp, file))
}

func (s *Snapshot) normalize() {
	if s.Users == nil {
		s.Users = make(map[string]*Customer)
	}
	if s.Transactions == nil {
		s.Transactions = make(map[string][]*Transaction)
	}
	for id, u := range s.Users {
		if u.UserID == "" {
			u.UserID = id
		}
	}
}
