package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/chatmodel"
	"github.com/effective-security/supportagent/pkg/metricskey"
	"github.com/effective-security/supportagent/pkg/schema"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/supportagent", "tools")

// Outcome is implemented by tool payloads that report
// a domain level success, for example a lookup of an unknown user.
type Outcome interface {
	Succeeded() bool
}

// FailurePayload is the payload of a tool that failed to execute.
type FailurePayload struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
}

// Registry is the set of tools published to the model.
// It is safe for concurrent use.
type Registry struct {
	lock  sync.RWMutex
	tools map[string]ITool
	order []string
}

// NewRegistry returns a registry with the given tools,
// it panics on duplicate names.
func NewRegistry(list ...ITool) *Registry {
	r := &Registry{
		tools: make(map[string]ITool),
	}
	for _, t := range list {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds the tool to the registry.
func (r *Registry) Register(t ITool) error {
	if t == nil || t.Name() == "" {
		return errors.New("tool name is required")
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	name := t.Name()
	if _, ok := r.tools[name]; ok {
		return errors.Newf("tool already registered: %s", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return slices.Clone(r.order)
}

// Get returns the tool by name.
func (r *Registry) Get(name string) (ITool, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Define returns the tool definitions in registration order.
func (r *Registry) Define() []chatmodel.ToolDefinition {
	r.lock.RLock()
	defer r.lock.RUnlock()

	defs := make([]chatmodel.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, Definition(r.tools[name]))
	}
	return defs
}

// Execute invokes the named tool, it never returns an error:
// unknown tools, invalid arguments, handler errors and panics
// are reported as a failed result.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (res chatmodel.ToolResult) {
	started := time.Now()

	t, ok := r.Get(name)
	if !ok {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, name)
		logger.ContextKV(ctx, xlog.WARNING, "reason", "not_found", "tool", name)
		return UnknownToolResult(name, r.Names())
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.ContextKV(ctx, xlog.ERROR, "reason", "panic", "tool", name, "panic", rec)
			res = FailedResult(name, errors.Newf("tool panic: %v", rec))
		}
		metricskey.PerfToolCall.MeasureSince(started, name)
		if res.Success {
			metricskey.StatsToolCallsSucceeded.IncrCounter(1, name)
		} else {
			metricskey.StatsToolCallsFailed.IncrCounter(1, name)
		}
	}()

	var argMap map[string]any
	if err := json.Unmarshal(normalizeArgs(args), &argMap); err != nil {
		err = errors.Mark(errors.Wrap(err, "arguments must be a JSON object"), chatmodel.ErrValidation)
		logger.ContextKV(ctx, xlog.DEBUG, "reason", "invalid_args", "tool", name, "err", err.Error())
		return FailedResult(name, err)
	}
	if err := schema.Validate(t.InputSchema(), argMap); err != nil {
		err = errors.Mark(err, chatmodel.ErrValidation)
		logger.ContextKV(ctx, xlog.DEBUG, "reason", "invalid_args", "tool", name, "err", err.Error())
		return FailedResult(name, err)
	}

	logger.ContextKV(ctx, xlog.DEBUG, "status", "calling", "tool", name)

	payload, err := t.Call(ctx, normalizeArgs(args))
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "call", "tool", name, "err", err.Error())
		return FailedResult(name, err)
	}

	res = chatmodel.ToolResult{
		Success: true,
		Payload: payload,
	}
	if o, ok := payload.(Outcome); ok && !o.Succeeded() {
		res.Success = false
		res.ErrorDetail = payloadMessage(payload)
	}
	return res
}

// FailedResult returns the normalized result of a failed tool execution.
func FailedResult(name string, err error) chatmodel.ToolResult {
	return chatmodel.ToolResult{
		Success: false,
		Payload: FailurePayload{
			Success: false,
			Error:   err.Error(),
			Message: fmt.Sprintf("Failed to execute %s", name),
		},
		ErrorDetail: err.Error(),
	}
}

// UnknownToolResult returns the result for a tool that is not in the catalog.
func UnknownToolResult(name string, available []string) chatmodel.ToolResult {
	err := errors.Mark(
		errors.Newf("Unknown tool: %s. Available tools: %s", name, strings.Join(available, ", ")),
		chatmodel.ErrUnknownTool)
	return chatmodel.ToolResult{
		Success: false,
		Payload: FailurePayload{
			Success: false,
			Message: err.Error(),
		},
		ErrorDetail: err.Error(),
	}
}

func normalizeArgs(args json.RawMessage) json.RawMessage {
	s := strings.TrimSpace(string(args))
	if s == "" || s == "null" {
		return json.RawMessage("{}")
	}
	return args
}

func payloadMessage(payload any) string {
	if m, ok := payload.(interface{ GetMessage() string }); ok {
		return m.GetMessage()
	}
	return "tool reported failure"
}
