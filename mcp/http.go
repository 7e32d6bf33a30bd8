package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/chatmodel"
	"github.com/effective-security/supportagent/mcp/transport/httptransport"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

// DefaultHealthTimeout is the timeout of the health probe
const DefaultHealthTimeout = 2 * time.Second

// HTTPOption configures the HTTPBridge
type HTTPOption func(*HTTPBridge)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(b *HTTPBridge) {
		b.client = client
	}
}

// WithHTTPTimeout sets the timeout of each call.
func WithHTTPTimeout(timeout time.Duration) HTTPOption {
	return func(b *HTTPBridge) {
		b.timeout = timeout
	}
}

// HTTPBridge calls a tool host over HTTP.
// The host is probed with GET /health before first use.
type HTTPBridge struct {
	baseURL string
	client  *http.Client
	timeout time.Duration

	lock    sync.Mutex
	healthy bool
}

var _ Bridge = (*HTTPBridge)(nil)

// NewHTTPBridge returns a bridge to the host at baseURL, for example http://localhost:8765
func NewHTTPBridge(baseURL string, opts ...HTTPOption) *HTTPBridge {
	b := &HTTPBridge{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  http.DefaultClient,
		timeout: DefaultToolTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Health probes the host.
func (b *HTTPBridge) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultHealthTimeout)
	defer cancel()

	var res httptransport.HealthResponse
	if err := b.do(ctx, http.MethodGet, httptransport.PathHealth, nil, &res); err != nil {
		return MarkTransport(errors.WithMessagef(err, "cannot connect to tool host at %s", b.baseURL))
	}
	if res.Status != "healthy" {
		return MarkTransport(errors.Newf("tool host at %s is %q", b.baseURL, res.Status))
	}
	return nil
}

func (b *HTTPBridge) ensureHealthy(ctx context.Context) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.healthy {
		return nil
	}
	if err := b.Health(ctx); err != nil {
		return err
	}
	logger.ContextKV(ctx, xlog.INFO, "status", "connected", "url", b.baseURL)
	b.healthy = true
	return nil
}

// ListTools implements Bridge.ListTools
func (b *HTTPBridge) ListTools(ctx context.Context) ([]chatmodel.ToolDefinition, error) {
	defer measureCall(TransportHTTP, time.Now())

	if err := b.ensureHealthy(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var res httptransport.ToolsResponse
	if err := b.do(ctx, http.MethodGet, httptransport.PathTools, nil, &res); err != nil {
		return nil, MarkTransport(errors.WithMessage(err, "failed to list tools"))
	}
	return res.Tools, nil
}

// Invoke implements Bridge.Invoke
func (b *HTTPBridge) Invoke(ctx context.Context, name string, args json.RawMessage) chatmodel.ToolResult {
	defer measureCall(TransportHTTP, time.Now())

	if err := b.ensureHealthy(ctx); err != nil {
		return TransportFailure(ctx, TransportHTTP, name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage("{}")
	}
	var res httptransport.ExecuteResponse
	err := b.do(ctx, http.MethodPost, httptransport.PathExecute, &httptransport.ExecuteRequest{
		Name:      name,
		Arguments: args,
	}, &res)
	if err != nil {
		return TransportFailure(ctx, TransportHTTP, name, err)
	}

	out := chatmodel.ToolResult{
		Success: res.Success,
		Payload: textPayload(res.Result),
	}
	if !res.Success {
		out.ErrorDetail = errorDetail(res.Result)
	}
	return out
}

// Close implements Bridge.Close
func (b *HTTPBridge) Close() error {
	b.client.CloseIdleConnections()
	return nil
}

func (b *HTTPBridge) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		js, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(js)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(httptransport.HeaderRequestID, uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, httptransport.MaxBodySize))
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := strings.TrimSpace(string(data))
		var er httptransport.ErrorResponse
		if json.Unmarshal(data, &er) == nil && er.Detail != "" {
			detail = er.Detail
		}
		return errors.Newf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, detail)
	}
	if err = json.Unmarshal(data, result); err != nil {
		return errors.Wrapf(err, "failed to decode %s response", path)
	}
	return nil
}
