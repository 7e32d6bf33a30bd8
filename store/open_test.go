package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/effective-security/supportagent/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st, closer, err := store.Open(ctx, store.Options{})
	require.NoError(t, err)
	u, err := st.GetCustomer(ctx, "user_001")
	require.NoError(t, err)
	assert.Equal(t, "John Doe", u.Name)
	assert.NoError(t, closer.Close())

	file := filepath.Join(t.TempDir(), "database.json")
	st, closer, err = store.Open(ctx, store.Options{Backend: store.BackendMemory, File: file})
	require.NoError(t, err)
	defer closer.Close()
	require.NoError(t, st.UpdateAddress(ctx, "user_002", "1 Infinite Loop"))
	_, err = os.Stat(file)
	require.NoError(t, err)

	_, _, err = store.Open(ctx, store.Options{Backend: "mongo"})
	assert.EqualError(t, err, "unsupported store backend: mongo")

	_, _, err = store.Open(ctx, store.Options{Backend: store.BackendRedis, RedisURL: "ftp://localhost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid Redis URL")
}
