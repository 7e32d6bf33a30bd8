package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/effective-security/supportagent/assistants"
	"github.com/effective-security/supportagent/chatmodel"
	"github.com/effective-security/supportagent/pkg/llms"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

// ensure that the callbacks implement the correct interfaces
var (
	_ assistants.Callback = (*Noop)(nil)
	_ assistants.Callback = (*Printer)(nil)
	_ assistants.Callback = (*PackageLogger)(nil)
	_ assistants.Callback = (*Fanout)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose is the verbose mode for callback printing
	ModeVerbose
)

// Fanout is a callback handler that forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []assistants.Callback
}

func NewFanout(callbacks ...assistants.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

// Add must be called before the Fanout is passed to an agent
func (l *Fanout) Add(callback assistants.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnTurnStart(ctx context.Context, s *assistants.Session, input string) {
	for _, callback := range l.callbacks {
		callback.OnTurnStart(ctx, s, input)
	}
}

func (l *Fanout) OnTurnEnd(ctx context.Context, s *assistants.Session, input string, output string) {
	for _, callback := range l.callbacks {
		callback.OnTurnEnd(ctx, s, input, output)
	}
}

func (l *Fanout) OnTurnError(ctx context.Context, s *assistants.Session, input string, err error) {
	for _, callback := range l.callbacks {
		callback.OnTurnError(ctx, s, input, err)
	}
}

func (l *Fanout) OnModelCallStart(ctx context.Context, s *assistants.Session, model llms.Model, req *llms.Request) {
	for _, callback := range l.callbacks {
		callback.OnModelCallStart(ctx, s, model, req)
	}
}

func (l *Fanout) OnModelCallEnd(ctx context.Context, s *assistants.Session, model llms.Model, resp *llms.Response) {
	for _, callback := range l.callbacks {
		callback.OnModelCallEnd(ctx, s, model, resp)
	}
}

func (l *Fanout) OnToolStart(ctx context.Context, s *assistants.Session, call chatmodel.ToolUseBlock) {
	for _, callback := range l.callbacks {
		callback.OnToolStart(ctx, s, call)
	}
}

func (l *Fanout) OnToolEnd(ctx context.Context, s *assistants.Session, call chatmodel.ToolUseBlock, result chatmodel.ToolResult) {
	for _, callback := range l.callbacks {
		callback.OnToolEnd(ctx, s, call, result)
	}
}

func (l *Fanout) OnToolNotFound(ctx context.Context, s *assistants.Session, call chatmodel.ToolUseBlock) {
	for _, callback := range l.callbacks {
		callback.OnToolNotFound(ctx, s, call)
	}
}

// Noop does nothing.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (l *Noop) OnTurnStart(ctx context.Context, s *assistants.Session, input string) {}
func (l *Noop) OnTurnEnd(ctx context.Context, s *assistants.Session, input string, output string) {
}
func (l *Noop) OnTurnError(ctx context.Context, s *assistants.Session, input string, err error) {}
func (l *Noop) OnModelCallStart(ctx context.Context, s *assistants.Session, model llms.Model, req *llms.Request) {
}
func (l *Noop) OnModelCallEnd(ctx context.Context, s *assistants.Session, model llms.Model, resp *llms.Response) {
}
func (l *Noop) OnToolStart(ctx context.Context, s *assistants.Session, call chatmodel.ToolUseBlock) {
}
func (l *Noop) OnToolEnd(ctx context.Context, s *assistants.Session, call chatmodel.ToolUseBlock, result chatmodel.ToolResult) {
}
func (l *Noop) OnToolNotFound(ctx context.Context, s *assistants.Session, call chatmodel.ToolUseBlock) {
}

// Printer is a callback handler that prints to the Writer.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) OnTurnStart(ctx context.Context, s *assistants.Session, input string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Turn Start: %s (%s)\n", s.AgentName(), s.UserID())
	fmt.Fprintf(l.Out, "Input: %s\n", input)
}

func (l *Printer) OnTurnEnd(ctx context.Context, s *assistants.Session, input string, output string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Turn End: %s\n", s.AgentName())
	if l.Mode == ModeVerbose {
		fmt.Fprintln(l.Out, output)
	}
}

func (l *Printer) OnTurnError(ctx context.Context, s *assistants.Session, input string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Turn Error: %s: %s\n", s.AgentName(), err.Error())
}

func (l *Printer) OnModelCallStart(ctx context.Context, s *assistants.Session, model llms.Model, req *llms.Request) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Model Call: %s: %s model, %d messages, %d tools\n", s.AgentName(), model.GetName(), len(req.Messages), len(req.Tools))
}

func (l *Printer) OnModelCallEnd(ctx context.Context, s *assistants.Session, model llms.Model, resp *llms.Response) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Model Call End: %s: %s model, %s, %d tool calls\n", s.AgentName(), model.GetName(), resp.StopReason, len(resp.ToolUses()))
}

func (l *Printer) OnToolStart(ctx context.Context, s *assistants.Session, call chatmodel.ToolUseBlock) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Start: %s (%s)\n", call.Name, s.AgentName())
	fmt.Fprintf(l.Out, "Input: %s\n", string(call.Input))
}

func (l *Printer) OnToolEnd(ctx context.Context, s *assistants.Session, call chatmodel.ToolUseBlock, result chatmodel.ToolResult) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if !result.Success {
		fmt.Fprintf(l.Out, "Tool Error: %s (%s): %s\n", call.Name, s.AgentName(), result.ErrorDetail)
		return
	}
	fmt.Fprintf(l.Out, "Tool End: %s (%s)\n", call.Name, s.AgentName())
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Output: %s\n", result.Text())
	}
}

func (l *Printer) OnToolNotFound(ctx context.Context, s *assistants.Session, call chatmodel.ToolUseBlock) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Not Found: %s\n", call.Name)
}

// PackageLogger is a callback handler that prints to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnTurnStart(ctx context.Context, s *assistants.Session, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "turn_start",
		"agent", s.AgentName(),
		"session_id", s.ID(),
		"user_id", s.UserID(),
		"input", slices.StringUpto(input, 256),
	)
}

func (l *PackageLogger) OnTurnEnd(ctx context.Context, s *assistants.Session, input string, output string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "turn_end",
		"agent", s.AgentName(),
		"session_id", s.ID(),
		"output", slices.StringUpto(output, 256),
	)
}

func (l *PackageLogger) OnTurnError(ctx context.Context, s *assistants.Session, input string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "turn_error",
		"agent", s.AgentName(),
		"session_id", s.ID(),
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnModelCallStart(ctx context.Context, s *assistants.Session, model llms.Model, req *llms.Request) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "model_call_start",
		"agent", s.AgentName(),
		"model", model.GetName(),
		"messages", len(req.Messages),
		"tools", len(req.Tools),
	)
}

func (l *PackageLogger) OnModelCallEnd(ctx context.Context, s *assistants.Session, model llms.Model, resp *llms.Response) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "model_call_end",
		"agent", s.AgentName(),
		"model", model.GetName(),
		"stop_reason", resp.StopReason,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
}

func (l *PackageLogger) OnToolStart(ctx context.Context, s *assistants.Session, call chatmodel.ToolUseBlock) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"agent", s.AgentName(),
		"tool", call.Name,
		"tool_use_id", call.ID,
		"input", string(call.Input),
	)
}

func (l *PackageLogger) OnToolEnd(ctx context.Context, s *assistants.Session, call chatmodel.ToolUseBlock, result chatmodel.ToolResult) {
	if !result.Success {
		l.logger.ContextKV(ctx, xlog.WARNING,
			"event", "tool_error",
			"agent", s.AgentName(),
			"tool", call.Name,
			"tool_use_id", call.ID,
			"err", result.ErrorDetail,
		)
		return
	}
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"agent", s.AgentName(),
		"tool", call.Name,
		"tool_use_id", call.ID,
		"output", slices.StringUpto(result.Text(), 256),
	)
}

func (l *PackageLogger) OnToolNotFound(ctx context.Context, s *assistants.Session, call chatmodel.ToolUseBlock) {
	l.logger.ContextKV(ctx, xlog.WARNING,
		"event", "tool_not_found",
		"agent", s.AgentName(),
		"tool", call.Name,
	)
}
