package mcp_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/effective-security/supportagent/chatmodel"
	"github.com/effective-security/supportagent/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spawnToolHost(t *testing.T, mode string, opts ...mcp.PipeOption) (*mcp.PipeBridge, error) {
	t.Helper()

	exe, err := os.Executable()
	require.NoError(t, err)

	opts = append([]mcp.PipeOption{
		mcp.WithEnv(envToolHost + "=" + mode),
		mcp.WithShutdownGrace(5 * time.Second),
	}, opts...)
	return mcp.NewPipeBridge(context.Background(), exe, []string{"-test.run=^$"}, opts...)
}

func TestPipeBridge(t *testing.T) {
	t.Parallel()

	b, err := spawnToolHost(t, "serve")
	require.NoError(t, err)
	assert.NotZero(t, b.Pid())
	require.NotNil(t, b.ServerInfo())
	assert.Equal(t, mcp.DefaultServerName, b.ServerInfo().ServerInfo.Name)

	testBridge(t, b)

	t.Run("call timeout", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		started := time.Now()
		res := b.Invoke(ctx, "sleep", json.RawMessage(`{"ms":10000}`))
		assert.False(t, res.Success)
		assert.Contains(t, res.ErrorDetail, "context deadline exceeded")
		assert.Less(t, time.Since(started), 5*time.Second)

		// the bridge is usable after a timeout
		res = b.Invoke(context.Background(), "sleep", json.RawMessage(`{"ms":1}`))
		assert.True(t, res.Success, res.ErrorDetail)
	})

	require.NoError(t, b.Close())
	select {
	case <-b.Exited():
	default:
		t.Fatal("child process is still running")
	}
	assert.NoError(t, b.Close())

	res := b.Invoke(context.Background(), "get_account_balance", json.RawMessage(`{"user_id":"user_001"}`))
	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorDetail, "connection closed")

	_, err = b.ListTools(context.Background())
	assert.True(t, chatmodel.IsTransport(err))
}

func TestPipeBridge_KilledAfterGrace(t *testing.T) {
	t.Parallel()

	grace := 500 * time.Millisecond
	b, err := spawnToolHost(t, "linger", mcp.WithShutdownGrace(grace))
	require.NoError(t, err)

	res := b.Invoke(context.Background(), "get_account_balance", json.RawMessage(`{"user_id":"user_001"}`))
	require.True(t, res.Success, res.ErrorDetail)

	started := time.Now()
	require.NoError(t, b.Close())
	elapsed := time.Since(started)
	assert.GreaterOrEqual(t, elapsed, grace)
	assert.Less(t, elapsed, grace+3*time.Second)

	select {
	case <-b.Exited():
	default:
		t.Fatal("child process is still running")
	}
	assert.NoError(t, b.Close())
}

func TestPipeBridge_ToolTimeout(t *testing.T) {
	t.Parallel()

	b, err := spawnToolHost(t, "serve", mcp.WithToolTimeout(10*time.Second))
	require.NoError(t, err)
	defer b.Close()

	// WithToolTimeout bounds every call, even without a context deadline
	b2, err := spawnToolHost(t, "serve", mcp.WithToolTimeout(3*time.Second))
	require.NoError(t, err)
	defer b2.Close()

	res := b2.Invoke(context.Background(), "sleep", json.RawMessage(`{"ms":20000}`))
	assert.False(t, res.Success)
	assert.Regexp(t, "deadline exceeded|request timeout", res.ErrorDetail)

	res = b.Invoke(context.Background(), "sleep", json.RawMessage(`{"ms":10}`))
	assert.True(t, res.Success, res.ErrorDetail)
}

func TestPipeBridge_HandshakeFailure(t *testing.T) {
	t.Parallel()

	t.Run("no answer", func(t *testing.T) {
		t.Parallel()
		started := time.Now()
		_, err := spawnToolHost(t, "hang", mcp.WithToolTimeout(time.Second))
		require.Error(t, err)
		assert.True(t, chatmodel.IsTransport(err))
		assert.Contains(t, err.Error(), "handshake")
		assert.Less(t, time.Since(started), 10*time.Second)
	})

	t.Run("child exits", func(t *testing.T) {
		t.Parallel()
		_, err := spawnToolHost(t, "crash", mcp.WithToolTimeout(5*time.Second))
		require.Error(t, err)
		assert.True(t, chatmodel.IsTransport(err))
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		_, err := mcp.NewPipeBridge(context.Background(), "/nonexistent/toolhost", nil)
		require.Error(t, err)
		assert.True(t, chatmodel.IsTransport(err))
	})
}
