package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/effective-security/supportagent/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_MemoryStore(t *testing.T) {
	t.Parallel()

	st, err := store.NewMemoryStore()
	require.NoError(t, err)
	testAccountStore(t, st)
}

func Test_MemoryStore_Snapshot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var users = map[string]*store.Customer{}
	for range 5 {
		c := &store.Customer{
			UserID:     gofakeit.UUID(),
			Name:       gofakeit.Name(),
			Email:      gofakeit.Email(),
			Phone:      gofakeit.Phone(),
			Address:    gofakeit.Address().Address,
			Balance:    store.Amount(gofakeit.Price(0, 10000)),
			CardStatus: store.CardStatusActive,
		}
		users[c.UserID] = c
	}

	st, err := store.NewMemoryStore(store.WithSnapshot(&store.Snapshot{Users: users}))
	require.NoError(t, err)

	ids, err := st.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 5)

	for id, exp := range users {
		got, err := st.GetCustomer(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, exp, got)
		assert.NotSame(t, exp, got)
	}

	txs, err := st.RecentTransactions(ctx, ids[0], 10)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func Test_MemoryStore_File(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	file := filepath.Join(t.TempDir(), "database.json")

	st, err := store.NewMemoryStore(store.WithFile(file))
	require.NoError(t, err)
	_, err = os.Stat(file)
	require.NoError(t, err, "seeded store must be saved")

	require.NoError(t, st.UpdateAddress(ctx, "user_002", "1 Market St, San Francisco, CA 94105"))
	_, err = st.ReportIssue(ctx, "user_002", "cannot login")
	require.NoError(t, err)

	// reopen
	st2, err := store.NewMemoryStore(store.WithFile(file))
	require.NoError(t, err)
	u, err := st2.GetCustomer(ctx, "user_002")
	require.NoError(t, err)
	assert.Equal(t, "1 Market St, San Francisco, CA 94105", u.Address)

	issues, err := st2.ListIssues(ctx, "")
	require.NoError(t, err)
	require.Len(t, issues, 1)

	issue, err := st2.ReportIssue(ctx, "user_001", "second")
	require.NoError(t, err)
	assert.Equal(t, "issue_002", issue.IssueID)

	// bad file
	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))
	_, err = store.NewMemoryStore(store.WithFile(bad))
	assert.Error(t, err)
}

func Test_MemoryStore_SaveFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	file := filepath.Join(t.TempDir(), "database.json")

	st, err := store.NewMemoryStore(store.WithFile(file))
	require.NoError(t, err)
	before, err := st.GetCustomer(ctx, "user_001")
	require.NoError(t, err)

	// the temp file can not be written
	require.NoError(t, os.Mkdir(file+".tmp", 0o700))

	assert.ErrorContains(t, st.UpdateAddress(ctx, "user_001", "1 Market St"), "failed to persist store")
	assert.Error(t, st.ChangePassword(ctx, "user_001", "new-secret"))
	assert.Error(t, st.DeactivateCard(ctx, "user_001"))
	_, err = st.ReportIssue(ctx, "user_001", "cannot login")
	assert.Error(t, err)

	after, err := st.GetCustomer(ctx, "user_001")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	issues, err := st.ListIssues(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, issues)

	require.NoError(t, os.Remove(file+".tmp"))
	require.NoError(t, st.UpdateAddress(ctx, "user_001", "1 Market St"))
	after, err = st.GetCustomer(ctx, "user_001")
	require.NoError(t, err)
	assert.Equal(t, "1 Market St", after.Address)
}

func Test_LoadSnapshot_YAML(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
users:
  user_100:
    name: Test User
    account_balance: 10.5
    card_status: active
transactions:
  user_100:
    - id: txn_100
      description: Coffee
      amount: -3.25
      balance: 10.5
`), 0o600))

	s, err := store.LoadSnapshot(file)
	require.NoError(t, err)
	require.Contains(t, s.Users, "user_100")
	assert.Equal(t, "user_100", s.Users["user_100"].UserID)
	assert.Equal(t, store.Amount(10.5), s.Users["user_100"].Balance)
	require.Len(t, s.Transactions["user_100"], 1)
	assert.Equal(t, "Coffee", s.Transactions["user_100"][0].Description)

	_, err = store.LoadSnapshot(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestSeedSnapshot(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := store.SeedSnapshot(now)
	require.Len(t, s.Users, 2)
	assert.Equal(t, "Jane Smith", s.Users["user_002"].Name)
	assert.Equal(t, store.Amount(12750.25), s.Users["user_002"].Balance)
	require.Len(t, s.Transactions["user_001"], 3)
	assert.True(t, s.Transactions["user_001"][0].Date.Before(now))
	assert.Equal(t, "txn_004", s.Transactions["user_002"][0].ID)
	assert.Empty(t, s.Issues)
}
