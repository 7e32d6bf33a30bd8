package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/effective-security/supportagent/chatmodel"
	"github.com/effective-security/supportagent/tools"
)

// LocalBridge calls the registry directly, without a serialization boundary.
type LocalBridge struct {
	registry *tools.Registry
}

var _ Bridge = (*LocalBridge)(nil)

// NewLocalBridge returns a bridge to an in-process registry.
func NewLocalBridge(registry *tools.Registry) *LocalBridge {
	return &LocalBridge{registry: registry}
}

// ListTools implements Bridge.ListTools
func (b *LocalBridge) ListTools(_ context.Context) ([]chatmodel.ToolDefinition, error) {
	return b.registry.Define(), nil
}

// Invoke implements Bridge.Invoke
func (b *LocalBridge) Invoke(ctx context.Context, name string, args json.RawMessage) chatmodel.ToolResult {
	defer measureCall(TransportLocal, time.Now())
	return b.registry.Execute(ctx, name, args)
}

// Close implements Bridge.Close
func (b *LocalBridge) Close() error {
	return nil
}
