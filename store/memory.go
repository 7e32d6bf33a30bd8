package store

import (
	"context"
	"os"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

// MemoryOption configures the memory store.
type MemoryOption func(*inMemory)

// WithFile persists the store to a JSON file after every mutation.
// If the file exists, the store is loaded from it,
// otherwise it is created from the initial snapshot.
func WithFile(file string) MemoryOption {
	return func(m *inMemory) {
		m.file = file
	}
}

// WithSnapshot sets the initial content of the store,
// by default the store is seeded with the demo accounts.
func WithSnapshot(s *Snapshot) MemoryOption {
	return func(m *inMemory) {
		m.data = s
	}
}

type inMemory struct {
	mu   sync.RWMutex
	data *Snapshot
	file string
}

// NewMemoryStore returns an AccountStore kept in memory.
func NewMemoryStore(opts ...MemoryOption) (AccountStore, error) {
	m := &inMemory{}
	for _, opt := range opts {
		opt(m)
	}

	if m.file != "" {
		if _, err := os.Stat(m.file); err == nil {
			s, err := LoadSnapshot(m.file)
			if err != nil {
				return nil, err
			}
			m.data = s
			logger.KV(xlog.INFO, "status", "loaded", "file", m.file, "users", len(s.Users), "issues", len(s.Issues))
			return m, nil
		}
	}

	if m.data == nil {
		m.data = SeedSnapshot(time.Now())
	}
	m.data.normalize()

	if m.file != "" {
		if err := SaveSnapshot(m.file, m.data); err != nil {
			return nil, err
		}
		logger.KV(xlog.INFO, "status", "seeded", "file", m.file)
	}
	return m, nil
}

// save must be called with the write lock held
func (m *inMemory) save() error {
	if m.file == "" {
		return nil
	}
	if err := SaveSnapshot(m.file, m.data); err != nil {
		return errors.Wrap(err, "failed to persist store")
	}
	return nil
}

func (m *inMemory) GetCustomer(_ context.Context, userID string) (*Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.data.Users[userID]
	if !ok {
		return nil, errors.WithStack(ErrNotFound)
	}
	return u.Clone(), nil
}

func (m *inMemory) ListUserIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.data.Users))
	for id := range m.data.Users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *inMemory) update(ctx context.Context, userID string, fn func(*Customer)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.data.Users[userID]
	if !ok {
		return errors.WithStack(ErrNotFound)
	}
	updated := u.Clone()
	fn(updated)

	m.data.Users[userID] = updated
	if err := m.save(); err != nil {
		m.data.Users[userID] = u
		return err
	}
	return nil
}

func (m *inMemory) ChangePassword(ctx context.Context, userID, newPassword string) error {
	err := m.update(ctx, userID, func(u *Customer) {
		u.Password = HashPassword(newPassword)
	})
	if err == nil {
		logger.ContextKV(ctx, xlog.NOTICE, "status", "password_changed", "user_id", userID)
	}
	return err
}

func (m *inMemory) UpdateAddress(ctx context.Context, userID, newAddress string) error {
	var old string
	err := m.update(ctx, userID, func(u *Customer) {
		old = u.Address
		u.Address = newAddress
	})
	if err == nil {
		logger.ContextKV(ctx, xlog.NOTICE, "status", "address_changed", "user_id", userID, "old", old, "new", newAddress)
	}
	return err
}

func (m *inMemory) DeactivateCard(ctx context.Context, userID string) error {
	var old string
	err := m.update(ctx, userID, func(u *Customer) {
		old = u.CardStatus
		u.CardStatus = CardStatusDeactivated
	})
	if err == nil {
		logger.ContextKV(ctx, xlog.NOTICE, "status", "card_status_changed", "user_id", userID, "old", old, "new", CardStatusDeactivated)
	}
	return err
}

func (m *inMemory) RecentTransactions(_ context.Context, userID string, limit int) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.data.Transactions[userID]
	if limit >= 0 && limit < len(list) {
		list = list[:limit]
	}
	res := make([]*Transaction, len(list))
	for i, t := range list {
		cp := *t
		res[i] = &cp
	}
	return res, nil
}

func (m *inMemory) ReportIssue(ctx context.Context, userID, description string) (*Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	issue := &Issue{
		IssueID:     IssueID(len(m.data.Issues) + 1),
		UserID:      userID,
		Description: description,
		Status:      "open",
		CreatedAt:   time.Now().UTC(),
		Priority:    gofakeit.RandomString(IssuePriorities),
	}
	m.data.Issues = append(m.data.Issues, issue)
	if err := m.save(); err != nil {
		m.data.Issues = m.data.Issues[:len(m.data.Issues)-1]
		return nil, err
	}

	logger.ContextKV(ctx, xlog.NOTICE, "status", "issue_created", "issue_id", issue.IssueID, "user_id", userID)
	cp := *issue
	return &cp, nil
}

func (m *inMemory) ListIssues(_ context.Context, userID string) ([]*Issue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var res []*Issue
	for _, i := range m.data.Issues {
		if userID == "" || i.UserID == userID {
			cp := *i
			res = append(res, &cp)
		}
	}
	return slices.Clip(res), nil
}
