package assistants

import (
	"context"

	"github.com/effective-security/supportagent/chatmodel"
	"github.com/effective-security/supportagent/pkg/llms"
)

// Callback receives the events of a session turn.
// With parallel tool calls enabled, the tool events are
// delivered concurrently.
type Callback interface {
	OnTurnStart(ctx context.Context, s *Session, input string)
	OnTurnEnd(ctx context.Context, s *Session, input string, output string)
	OnTurnError(ctx context.Context, s *Session, input string, err error)

	OnModelCallStart(ctx context.Context, s *Session, model llms.Model, req *llms.Request)
	OnModelCallEnd(ctx context.Context, s *Session, model llms.Model, resp *llms.Response)

	OnToolStart(ctx context.Context, s *Session, call chatmodel.ToolUseBlock)
	OnToolEnd(ctx context.Context, s *Session, call chatmodel.ToolUseBlock, result chatmodel.ToolResult)
	OnToolNotFound(ctx context.Context, s *Session, call chatmodel.ToolUseBlock)
}
