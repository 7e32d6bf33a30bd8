package mcp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/effective-security/supportagent/chatmodel"
	"github.com/effective-security/supportagent/mcp"
	"github.com/effective-security/supportagent/mcp/transport/httptransport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPBridge(t *testing.T) {
	t.Parallel()

	r, err := newHostRegistry()
	require.NoError(t, err)

	srv := httptest.NewServer(httptransport.New(r).Handler())
	defer srv.Close()

	b := mcp.NewHTTPBridge(srv.URL+"/", mcp.WithHTTPClient(srv.Client()), mcp.WithHTTPTimeout(5*time.Second))
	require.NoError(t, b.Health(context.Background()))

	testBridge(t, b)

	t.Run("timeout", func(t *testing.T) {
		short := mcp.NewHTTPBridge(srv.URL, mcp.WithHTTPTimeout(100*time.Millisecond))
		res := short.Invoke(context.Background(), "sleep", json.RawMessage(`{"ms":3000}`))
		assert.False(t, res.Success)
		assert.Contains(t, res.ErrorDetail, "deadline exceeded")
	})

	assert.NoError(t, b.Close())
}

func TestHTTPBridge_Unavailable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	b := mcp.NewHTTPBridge(url)
	_, err := b.ListTools(context.Background())
	require.Error(t, err)
	assert.True(t, chatmodel.IsTransport(err))
	assert.Contains(t, err.Error(), "cannot connect to tool host")

	res := b.Invoke(context.Background(), "get_account_balance", json.RawMessage(`{"user_id":"user_001"}`))
	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorDetail, "cannot connect to tool host")
}

func TestHTTPBridge_StatusMapping(t *testing.T) {
	t.Parallel()

	var healthCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		healthCalls.Add(1)
		_, _ = w.Write([]byte(`{"status":"healthy","server":"MCP HTTP"}`))
	})
	mux.HandleFunc("GET /tools", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})
	mux.HandleFunc("POST /tools/execute", func(w http.ResponseWriter, r *http.Request) {
		var req httptransport.ExecuteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch req.Name {
		case "broken":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"detail":"database is down"}`))
		case "garbage":
			_, _ = w.Write([]byte(`<html>`))
		default:
			assert.JSONEq(t, `{}`, string(req.Arguments))
			assert.NotEmpty(t, r.Header.Get(httptransport.HeaderRequestID))
			_ = json.NewEncoder(w).Encode(httptransport.ExecuteResponse{
				Success: false,
				Result:  `{"success": false, "message": "User not found"}`,
			})
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	b := mcp.NewHTTPBridge(srv.URL)

	_, err := b.ListTools(ctx)
	require.Error(t, err)
	assert.True(t, chatmodel.IsTransport(err))
	assert.Contains(t, err.Error(), "HTTP 503: overloaded")

	res := b.Invoke(ctx, "broken", json.RawMessage(`{}`))
	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorDetail, "HTTP 500: database is down")

	res = b.Invoke(ctx, "garbage", json.RawMessage(`{}`))
	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorDetail, "failed to decode")

	res = b.Invoke(ctx, "get_account_balance", nil)
	assert.False(t, res.Success)
	assert.Equal(t, "User not found", res.ErrorDetail)
	assert.Equal(t, `{"success": false, "message": "User not found"}`, res.Text())

	// probed once
	assert.Equal(t, int32(1), healthCalls.Load())
}

func TestHTTPBridge_Unhealthy(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"starting","server":"MCP HTTP"}`))
	}))
	defer srv.Close()

	err := mcp.NewHTTPBridge(srv.URL).Health(context.Background())
	require.Error(t, err)
	assert.True(t, chatmodel.IsTransport(err))
	assert.Contains(t, err.Error(), `"starting"`)
}
