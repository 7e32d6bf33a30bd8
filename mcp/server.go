package mcp

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/mcp/internal/protocol"
	"github.com/effective-security/supportagent/mcp/transport"
	"github.com/effective-security/supportagent/tools"
	"github.com/effective-security/xlog"
)

// DefaultServerName is the name reported in serverInfo.
const DefaultServerName = "customer-service-tools"

// Version is reported in serverInfo and clientInfo.
const Version = "1.0.0"

// ServerOption configures the Server
type ServerOption func(*Server)

// WithServerInfo sets the name and version reported on initialize.
func WithServerInfo(name, version string) ServerOption {
	return func(s *Server) {
		s.info = Implementation{Name: name, Version: version}
	}
}

// WithInstructions sets the instructions returned on initialize.
func WithInstructions(instructions string) ServerOption {
	return func(s *Server) {
		s.instructions = instructions
	}
}

// Server publishes the tools of a registry over a transport.
type Server struct {
	registry     *tools.Registry
	info         Implementation
	instructions string
	protocol     *protocol.Protocol

	closeOnce sync.Once
	done      chan struct{}
}

// NewServer returns a server for the registry.
func NewServer(registry *tools.Registry, opts ...ServerOption) *Server {
	s := &Server{
		registry: registry,
		info:     Implementation{Name: DefaultServerName, Version: Version},
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.protocol = protocol.NewProtocol(&protocol.ProtocolOptions{Name: s.info.Name})
	s.protocol.OnClose = func() {
		s.closeOnce.Do(func() { close(s.done) })
	}
	s.protocol.SetRequestHandler(MethodInitialize, s.handleInitialize)
	s.protocol.SetRequestHandler(MethodPing, s.handlePing)
	s.protocol.SetRequestHandler(MethodToolsList, s.handleListTools)
	s.protocol.SetRequestHandler(MethodToolsCall, s.handleCallTool)
	return s
}

// Serve starts serving requests from the transport, it does not block:
// use Done to wait for the peer to disconnect.
func (s *Server) Serve(tr transport.Transport) error {
	logger.KV(xlog.INFO, "status", "serving", "server", s.info.Name, "tools", len(s.registry.Names()))
	return s.protocol.Connect(tr)
}

// Done is closed when the transport is closed.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Close closes the transport.
func (s *Server) Close() error {
	return s.protocol.Close()
}

func (s *Server) handleInitialize(ctx context.Context, req *transport.BaseJSONRPCRequest, _ protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, invalidParams(err)
		}
	}
	logger.ContextKV(ctx, xlog.INFO,
		"status", "initialize",
		"client", params.ClientInfo.Name,
		"client_version", params.ClientInfo.Version,
		"protocol_version", params.ProtocolVersion,
	)

	return &InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: ServerCapabilities{
			Tools: &ToolsCapability{},
		},
		ServerInfo:   s.info,
		Instructions: s.instructions,
	}, nil
}

func (s *Server) handlePing(_ context.Context, _ *transport.BaseJSONRPCRequest, _ protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
	return map[string]any{}, nil
}

func (s *Server) handleListTools(_ context.Context, _ *transport.BaseJSONRPCRequest, _ protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
	defs := s.registry.Define()
	res := &ListToolsResult{
		Tools: make([]ToolInfo, 0, len(defs)),
	}
	for _, def := range defs {
		res.Tools = append(res.Tools, ToolInfo{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		})
	}
	return res, nil
}

func (s *Server) handleCallTool(ctx context.Context, req *transport.BaseJSONRPCRequest, _ protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
	var params CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, invalidParams(err)
	}
	if params.Name == "" {
		return nil, invalidParams(errors.New("tool name is required"))
	}

	res := s.registry.Execute(ctx, params.Name, params.Arguments)
	return &CallToolResult{
		Content: []Content{
			{Type: ContentTypeText, Text: res.Text()},
		},
		IsError: !res.Success,
	}, nil
}

func invalidParams(err error) error {
	return &protocol.RPCError{
		Code:    transport.ErrorCodeInvalidParams,
		Message: "invalid params: " + err.Error(),
	}
}
