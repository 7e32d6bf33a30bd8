package support

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/store"
	"github.com/effective-security/supportagent/tools"
)

// Tool names
const (
	ToolChangePassword        = "change_password"
	ToolGetAccountBalance     = "get_account_balance"
	ToolUpdateAddress         = "update_address"
	ToolGetRecentTransactions = "get_recent_transactions"
	ToolDeactivateCard        = "deactivate_card"
	ToolReportIssue           = "report_issue"
	ToolGetAccountDetails     = "get_account_details"
	ToolSwitchUser            = "switch_user"
)

// DefaultTransactionsLimit is used when the limit is not provided
const DefaultTransactionsLimit = 10

const msgUserNotFound = "User not found"

// UserRequest is the input of tools that only need the user identity.
type UserRequest struct {
	UserID string `json:"user_id" jsonschema:"description=The unique identifier for the user"`
}

// ChangePasswordRequest is the input of change_password.
type ChangePasswordRequest struct {
	UserID      string `json:"user_id" jsonschema:"description=The unique identifier for the user"`
	NewPassword string `json:"new_password" jsonschema:"description=The new password to set"`
}

// UpdateAddressRequest is the input of update_address.
type UpdateAddressRequest struct {
	UserID     string `json:"user_id" jsonschema:"description=The unique identifier for the user"`
	NewAddress string `json:"new_address" jsonschema:"description=The new address to set"`
}

// RecentTransactionsRequest is the input of get_recent_transactions.
type RecentTransactionsRequest struct {
	UserID string `json:"user_id" jsonschema:"description=The unique identifier for the user"`
	Limit  int    `json:"limit,omitempty" jsonschema:"description=Maximum number of transactions to return" validate:"gte=0"`
}

// ReportIssueRequest is the input of report_issue.
type ReportIssueRequest struct {
	UserID           string `json:"user_id" jsonschema:"description=The unique identifier for the user"`
	IssueDescription string `json:"issue_description" jsonschema:"description=Description of the issue"`
}

// SwitchUserRequest is the input of switch_user.
type SwitchUserRequest struct {
	NewUserID string `json:"new_user_id" jsonschema:"description=The user ID to switch to"`
}

// Result is the payload of tools that report a status only.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (r *Result) Succeeded() bool    { return r.Success }
func (r *Result) GetMessage() string { return r.Message }

// BalanceResult is the payload of get_account_balance.
type BalanceResult struct {
	Success bool          `json:"success"`
	Balance *store.Amount `json:"balance"`
	Message string        `json:"message"`
}

func (r *BalanceResult) Succeeded() bool    { return r.Success }
func (r *BalanceResult) GetMessage() string { return r.Message }

// TransactionsResult is the payload of get_recent_transactions.
type TransactionsResult struct {
	Success      bool                 `json:"success"`
	Transactions []*store.Transaction `json:"transactions"`
	Count        int                  `json:"count"`
}

// IssueResult is the payload of report_issue.
type IssueResult struct {
	Success bool   `json:"success"`
	IssueID string `json:"issue_id"`
	Message string `json:"message"`
}

// AccountDetails is the customer record without credentials.
type AccountDetails struct {
	Name       string       `json:"name"`
	Email      string       `json:"email"`
	Address    string       `json:"address"`
	Phone      string       `json:"phone"`
	Balance    store.Amount `json:"account_balance"`
	CardStatus string       `json:"card_status"`
	CardNumber string       `json:"card_number"`
}

// DetailsResult is the payload of get_account_details.
type DetailsResult struct {
	Success bool            `json:"success"`
	Details *AccountDetails `json:"details"`
	Message string          `json:"message"`
}

func (r *DetailsResult) Succeeded() bool    { return r.Success }
func (r *DetailsResult) GetMessage() string { return r.Message }

// SwitchUserResult is the payload of switch_user.
type SwitchUserResult struct {
	Success  bool   `json:"success"`
	UserID   string `json:"user_id,omitempty"`
	UserName string `json:"user_name,omitempty"`
	Message  string `json:"message"`
}

func (r *SwitchUserResult) Succeeded() bool    { return r.Success }
func (r *SwitchUserResult) GetMessage() string { return r.Message }

// Tools returns the customer support tools bound to the store.
func Tools(st store.AccountStore) []tools.ITool {
	h := &handlers{st: st}
	return []tools.ITool{
		tools.MustFunction(ToolChangePassword, "Change a user's password. Returns success status.", h.changePassword),
		tools.MustFunction(ToolGetAccountBalance, "Retrieve the current account balance for a user.", h.getAccountBalance),
		tools.MustFunction(ToolUpdateAddress, "Update a user's address in the system.", h.updateAddress),
		tools.MustFunction(ToolGetRecentTransactions, "Retrieve recent transactions for a user's account.", h.getRecentTransactions),
		tools.MustFunction(ToolDeactivateCard, "Deactivate a user's card for security purposes.", h.deactivateCard),
		tools.MustFunction(ToolReportIssue, "Report a customer support issue and create a ticket.", h.reportIssue),
		tools.MustFunction(ToolGetAccountDetails, "Retrieve comprehensive account details for a user.", h.getAccountDetails),
		tools.MustFunction(ToolSwitchUser, "Look up another user account to switch to. Returns the account name if it exists.", h.switchUser),
	}
}

// NewRegistry returns a registry with the customer support tools.
func NewRegistry(st store.AccountStore) *tools.Registry {
	return tools.NewRegistry(Tools(st)...)
}

type handlers struct {
	st store.AccountStore
}

// mutationResult maps the store error of a mutation to the tool result.
func mutationResult(err error, okMessage string) (any, error) {
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &Result{Success: false, Message: msgUserNotFound}, nil
		}
		return nil, err
	}
	return &Result{Success: true, Message: okMessage}, nil
}

func (h *handlers) changePassword(ctx context.Context, req *ChangePasswordRequest) (any, error) {
	err := h.st.ChangePassword(ctx, req.UserID, req.NewPassword)
	return mutationResult(err, "Password changed successfully")
}

func (h *handlers) updateAddress(ctx context.Context, req *UpdateAddressRequest) (any, error) {
	err := h.st.UpdateAddress(ctx, req.UserID, req.NewAddress)
	return mutationResult(err, "Address updated successfully")
}

func (h *handlers) deactivateCard(ctx context.Context, req *UserRequest) (any, error) {
	err := h.st.DeactivateCard(ctx, req.UserID)
	return mutationResult(err, "Card deactivated successfully")
}

func (h *handlers) getAccountBalance(ctx context.Context, req *UserRequest) (any, error) {
	u, err := h.st.GetCustomer(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &BalanceResult{Success: false, Message: msgUserNotFound}, nil
		}
		return nil, err
	}
	balance := u.Balance
	return &BalanceResult{
		Success: true,
		Balance: &balance,
		Message: fmt.Sprintf("Current balance: $%s", balance),
	}, nil
}

func (h *handlers) getRecentTransactions(ctx context.Context, req *RecentTransactionsRequest) (any, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultTransactionsLimit
	}
	list, err := h.st.RecentTransactions(ctx, req.UserID, limit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*store.Transaction{}
	}
	return &TransactionsResult{
		Success:      true,
		Transactions: list,
		Count:        len(list),
	}, nil
}

func (h *handlers) reportIssue(ctx context.Context, req *ReportIssueRequest) (any, error) {
	issue, err := h.st.ReportIssue(ctx, req.UserID, req.IssueDescription)
	if err != nil {
		return nil, err
	}
	return &IssueResult{
		Success: true,
		IssueID: issue.IssueID,
		Message: fmt.Sprintf("Issue reported successfully. Ticket ID: %s", issue.IssueID),
	}, nil
}

func (h *handlers) getAccountDetails(ctx context.Context, req *UserRequest) (any, error) {
	u, err := h.st.GetCustomer(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &DetailsResult{Success: false, Message: msgUserNotFound}, nil
		}
		return nil, err
	}
	return &DetailsResult{
		Success: true,
		Details: &AccountDetails{
			Name:       u.Name,
			Email:      u.Email,
			Address:    u.Address,
			Phone:      u.Phone,
			Balance:    u.Balance,
			CardStatus: u.CardStatus,
			CardNumber: u.CardNumber,
		},
		Message: "Account details retrieved",
	}, nil
}

func (h *handlers) switchUser(ctx context.Context, req *SwitchUserRequest) (any, error) {
	u, err := h.st.GetCustomer(ctx, req.NewUserID)
	if err == nil {
		return &SwitchUserResult{
			Success:  true,
			UserID:   u.UserID,
			UserName: u.Name,
			Message:  fmt.Sprintf("Switched to user: %s (%s)", u.Name, u.UserID),
		}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	ids, err := h.st.ListUserIDs(ctx)
	if err != nil {
		return nil, err
	}
	return &SwitchUserResult{
		Success: false,
		Message: fmt.Sprintf("User %s not found. Available users: %s", req.NewUserID, strings.Join(ids, ", ")),
	}, nil
}
