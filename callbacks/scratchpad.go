package callbacks

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/effective-security/supportagent/assistants"
	"github.com/effective-security/supportagent/chatmodel"
	"github.com/effective-security/supportagent/pkg/llms"
)

// ensure Scratchpad implements assistants.Callback
var _ assistants.Callback = (*Scratchpad)(nil)

var TimeNowFn = time.Now

// TurnStats is the summary of one user turn
type TurnStats struct {
	SessionID string
	UserID    string
	Failed    bool

	Duration            time.Duration
	TotalMessages       uint32
	ModelBytesOut       uint64
	ModelBytesIn        uint64
	ModelInputTokens    uint64
	ModelOutputTokens   uint64
	ModelCalls          uint32
	ToolsCalls          uint32
	ToolsCallsSucceeded uint32
	ToolsCallsFailed    uint32
	ToolNotFound        uint32
}

// Scratchpad records a transcript and the stats of each turn,
// keyed by session ID. A finished turn is kept until Take is called.
type Scratchpad struct {
	runs     map[string]*run
	finished map[string]*run
	mode     Mode
	lock     sync.Mutex
}

func NewScratchpad(mode Mode) *Scratchpad {
	return &Scratchpad{
		runs:     make(map[string]*run),
		finished: make(map[string]*run),
		mode:     mode,
	}
}

// Take returns the stats and the transcript of the last finished turn
// of the session, and removes it from the scratchpad.
func (l *Scratchpad) Take(sessionID string) (*TurnStats, []byte) {
	l.lock.Lock()
	defer l.lock.Unlock()

	r := l.finished[sessionID]
	if r == nil {
		return nil, nil
	}
	delete(l.finished, sessionID)

	stats := r.stats
	return &stats, r.w.Bytes()
}

func (l *Scratchpad) getRun(s *assistants.Session) *run {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.runs[s.ID()]
}

func (l *Scratchpad) OnTurnStart(ctx context.Context, s *assistants.Session, input string) {
	r := &run{
		sessionID: s.ID(),
		started:   TimeNowFn(),
		stats: TurnStats{
			SessionID: s.ID(),
			UserID:    s.UserID(),
		},
	}

	l.lock.Lock()
	l.runs[s.ID()] = r
	l.lock.Unlock()

	r.print("*** Turn Started ***", s.AgentName())
	r.print("Input:", input)
}

func (l *Scratchpad) OnTurnEnd(ctx context.Context, s *assistants.Session, input string, output string) {
	r := l.getRun(s)
	if r == nil {
		return
	}
	if l.mode == ModeVerbose {
		r.print("Output:", output)
	}
	l.finish(r)
}

func (l *Scratchpad) OnTurnError(ctx context.Context, s *assistants.Session, input string, err error) {
	r := l.getRun(s)
	if r == nil {
		return
	}
	r.stats.Failed = true
	r.print("*** Error ***", err.Error())
	l.finish(r)
}

func (l *Scratchpad) finish(r *run) {
	stats := &r.stats
	stats.Duration = TimeNowFn().Sub(r.started)

	r.print(fmt.Sprintf("Tool calls: %d, Failed: %d, Not Found: %d",
		atomic.LoadUint32(&stats.ToolsCalls),
		atomic.LoadUint32(&stats.ToolsCallsFailed),
		atomic.LoadUint32(&stats.ToolNotFound),
	))
	r.print(fmt.Sprintf("Model calls: %d, Messages: %d, Bytes Out: %d, Bytes In: %d, Input Tokens: %d, Output Tokens: %d",
		stats.ModelCalls,
		stats.TotalMessages,
		stats.ModelBytesOut,
		stats.ModelBytesIn,
		stats.ModelInputTokens,
		stats.ModelOutputTokens,
	))
	r.print(fmt.Sprintf("*** Turn Ended. Duration: %s ***", stats.Duration))

	l.lock.Lock()
	delete(l.runs, r.sessionID)
	l.finished[r.sessionID] = r
	l.lock.Unlock()
}

func (l *Scratchpad) printMessages(messages []chatmodel.Message) string {
	var buf strings.Builder
	buf.WriteString("Messages:\n")
	for idx, msg := range messages {
		fmt.Fprintf(&buf, "[%d] %s:\n", idx, msg.Role)
		textParts := 0
		toolParts := 0
		toolResultParts := 0
		for _, block := range msg.Content {
			switch typ := block.(type) {
			case chatmodel.TextBlock:
				textParts++
			case chatmodel.ToolUseBlock:
				toolParts++
				fmt.Fprintf(&buf, "  - tool_use %s %s %s\n", typ.ID, typ.Name, string(typ.Input))
			case chatmodel.ToolResultBlock:
				toolResultParts++
				fmt.Fprintf(&buf, "  - tool_result %s error=%t\n", typ.ToolUseID, typ.IsError)
			}
		}

		fmt.Fprintf(&buf, "  - %d texts, %d tool calls, %d tool results\n", textParts, toolParts, toolResultParts)
	}
	return buf.String()
}

func (l *Scratchpad) OnModelCallStart(ctx context.Context, s *assistants.Session, model llms.Model, req *llms.Request) {
	r := l.getRun(s)
	if r == nil {
		return
	}

	count := uint32(len(req.Messages))
	atomic.AddUint64(&r.stats.ModelBytesOut, chatmodel.CountContentSize(req.Messages))
	atomic.AddUint32(&r.stats.ModelCalls, 1)
	atomic.AddUint32(&r.stats.TotalMessages, count)

	r.print("*** Model Call ***", fmt.Sprintf("%s model, %d messages", model.GetName(), count))
	if l.mode == ModeVerbose {
		r.print(l.printMessages(req.Messages))
	}
}

func (l *Scratchpad) OnModelCallEnd(ctx context.Context, s *assistants.Session, model llms.Model, resp *llms.Response) {
	r := l.getRun(s)
	if r == nil {
		return
	}

	tokensIn := uint64(max(resp.Usage.InputTokens, 0))
	tokensOut := uint64(max(resp.Usage.OutputTokens, 0))
	atomic.AddUint64(&r.stats.ModelBytesIn, chatmodel.CountContentSize([]chatmodel.Message{resp.Message()}))
	atomic.AddUint64(&r.stats.ModelInputTokens, tokensIn)
	atomic.AddUint64(&r.stats.ModelOutputTokens, tokensOut)

	r.print("*** Model Call End ***", fmt.Sprintf("%s model, %s, %d input tokens, %d output tokens",
		model.GetName(), resp.StopReason, tokensIn, tokensOut))
}

func (l *Scratchpad) OnToolStart(ctx context.Context, s *assistants.Session, call chatmodel.ToolUseBlock) {
	r := l.getRun(s)
	if r == nil {
		return
	}
	r.print(call.Name, "*** Tool Start ***")
	r.print(call.Name, "Input:", string(call.Input))
}

func (l *Scratchpad) OnToolEnd(ctx context.Context, s *assistants.Session, call chatmodel.ToolUseBlock, result chatmodel.ToolResult) {
	r := l.getRun(s)
	if r == nil {
		return
	}
	atomic.AddUint32(&r.stats.ToolsCalls, 1)
	if !result.Success {
		atomic.AddUint32(&r.stats.ToolsCallsFailed, 1)
		r.print(call.Name, "*** Tool Error ***", result.ErrorDetail)
		return
	}
	atomic.AddUint32(&r.stats.ToolsCallsSucceeded, 1)
	if l.mode == ModeVerbose {
		r.print(call.Name, "Output:", result.Text())
	}
	r.print(call.Name, "*** Tool End ***")
}

func (l *Scratchpad) OnToolNotFound(ctx context.Context, s *assistants.Session, call chatmodel.ToolUseBlock) {
	r := l.getRun(s)
	if r == nil {
		return
	}
	atomic.AddUint32(&r.stats.ToolNotFound, 1)
	r.print("*** Tool Not Found ***", call.Name)
}

type run struct {
	sessionID string
	w         bytes.Buffer
	started   time.Time
	lock      sync.Mutex
	stats     TurnStats
}

// print writes the entries to the run's output.
// The entries are written in the following format:
// [timestamp sessionID] entry entry\n
func (r *run) print(entries ...string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	ts := TimeNowFn().Format("2006-01-02 15:04:05")

	_, _ = r.w.WriteString(ts)
	_, _ = r.w.WriteString(" ")
	_, _ = r.w.WriteString(r.sessionID)
	_, _ = r.w.WriteString(" ")

	for i, entry := range entries {
		if i > 0 {
			_, _ = r.w.WriteString(" ")
		}
		_, _ = r.w.WriteString(entry)
	}
	_, _ = r.w.WriteString("\n")
}
