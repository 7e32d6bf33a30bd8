package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/mcp/internal/protocol"
	"github.com/effective-security/supportagent/mcp/transport"
	"github.com/effective-security/xlog"
)

// DefaultClientName is the name reported in clientInfo.
const DefaultClientName = "supportagent"

// ClientOption configures the Client
type ClientOption func(*Client)

// WithClientInfo sets the name and version reported on initialize.
func WithClientInfo(name, version string) ClientOption {
	return func(c *Client) {
		c.info = Implementation{Name: name, Version: version}
	}
}

// WithRequestTimeout sets the timeout of each request.
func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// Client is the requesting side of the tool protocol.
type Client struct {
	info     Implementation
	timeout  time.Duration
	protocol *protocol.Protocol
	server   *InitializeResult
}

// NewClient returns a client, call Connect before use.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		info:    Implementation{Name: DefaultClientName, Version: Version},
		timeout: DefaultToolTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.protocol = protocol.NewProtocol(&protocol.ProtocolOptions{Name: c.info.Name})
	return c
}

// Connect starts the transport and performs the initialize handshake.
func (c *Client) Connect(ctx context.Context, tr transport.Transport) (*InitializeResult, error) {
	if err := c.protocol.Connect(tr); err != nil {
		return nil, errors.WithMessage(err, "failed to start transport")
	}

	var res InitializeResult
	err := c.request(ctx, MethodInitialize, &InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      c.info,
	}, &res)
	if err != nil {
		return nil, errors.WithMessage(err, "initialize failed")
	}

	if err = c.protocol.Notification(protocol.MethodInitialized, map[string]any{}); err != nil {
		return nil, errors.WithMessage(err, "failed to send initialized notification")
	}

	logger.ContextKV(ctx, xlog.INFO,
		"status", "initialized",
		"server", res.ServerInfo.Name,
		"server_version", res.ServerInfo.Version,
		"protocol_version", res.ProtocolVersion,
	)
	c.server = &res
	return &res, nil
}

// ServerInfo returns the result of the handshake, or nil before Connect.
func (c *Client) ServerInfo() *InitializeResult {
	return c.server
}

// Ping checks the server is responsive.
func (c *Client) Ping(ctx context.Context) error {
	return c.request(ctx, MethodPing, map[string]any{}, nil)
}

// ListTools returns the tool catalog of the server.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	var res ListToolsResult
	if err := c.request(ctx, MethodToolsList, map[string]any{}, &res); err != nil {
		return nil, err
	}
	return res.Tools, nil
}

// CallTool invokes the named tool.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (*CallToolResult, error) {
	var res CallToolResult
	err := c.request(ctx, MethodToolsCall, &CallToolParams{
		Name:      name,
		Arguments: args,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Close closes the transport.
func (c *Client) Close() error {
	return c.protocol.Close()
}

func (c *Client) request(ctx context.Context, method string, params, result any) error {
	raw, err := c.protocol.Request(ctx, method, params, &protocol.RequestOptions{
		Timeout: c.timeout,
	})
	if err != nil {
		return err
	}
	if result == nil || len(raw) == 0 {
		return nil
	}
	if err = json.Unmarshal(raw, result); err != nil {
		return errors.Wrapf(err, "failed to decode %s result", method)
	}
	return nil
}
