package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/chatmodel"
	"github.com/effective-security/supportagent/pkg/metricskey"
	"github.com/effective-security/supportagent/tools"
	"github.com/effective-security/xlog"
)

//go:generate mockgen -source=bridge.go -destination=../mocks/mockmcp/bridge_mock.gen.go -package mockmcp

var logger = xlog.NewPackageLogger("github.com/effective-security/supportagent", "mcp")

const (
	// DefaultToolTimeout is the timeout of a single tool call
	DefaultToolTimeout = 30 * time.Second
	// DefaultShutdownGrace is the time a child process is given to exit
	DefaultShutdownGrace = 5 * time.Second
)

// Transport names, used in metrics and logs
const (
	TransportLocal = "local"
	TransportPipe  = "pipe"
	TransportHTTP  = "http"
)

// Bridge discovers and invokes tools over a transport.
type Bridge interface {
	// ListTools returns the tool catalog.
	ListTools(ctx context.Context) ([]chatmodel.ToolDefinition, error)
	// Invoke calls the named tool, it never returns an error:
	// failures are reported as a failed result.
	Invoke(ctx context.Context, name string, args json.RawMessage) chatmodel.ToolResult
	// Close releases the transport.
	Close() error
}

// TransportFailure returns the failed result for a transport error
func TransportFailure(ctx context.Context, transportName, toolName string, err error) chatmodel.ToolResult {
	err = MarkTransport(err)
	metricskey.StatsBridgeErrors.IncrCounter(1, transportName)
	logger.ContextKV(ctx, xlog.ERROR,
		"transport", transportName,
		"tool", toolName,
		"err", err.Error(),
	)
	return tools.FailedResult(toolName, err)
}

// MarkTransport classifies err as chatmodel.ErrTransport
func MarkTransport(err error) error {
	if err == nil || errors.Is(err, chatmodel.ErrTransport) {
		return err
	}
	return errors.Mark(err, chatmodel.ErrTransport)
}

func measureCall(transportName string, started time.Time) {
	metricskey.PerfBridgeCall.MeasureSince(started, transportName)
}
