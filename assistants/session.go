package assistants

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/chatmodel"
	"github.com/effective-security/supportagent/mcp"
	"github.com/effective-security/supportagent/pkg/llms"
	"github.com/effective-security/supportagent/pkg/metricskey"
	"github.com/effective-security/supportagent/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

// Session is one user's conversation: the history, the bound identity
// and the tool catalog. Send calls are serialized.
type Session struct {
	agent *Agent
	id    string

	// turn serializes Send and Reset
	turn sync.Mutex

	lock    sync.RWMutex
	userID  string
	history []chatmodel.Message
	state   State
	catalog []chatmodel.ToolDefinition
	names   map[string]struct{}
}

// ID returns the session ID
func (s *Session) ID() string {
	return s.id
}

// AgentName returns the name of the agent that started the session
func (s *Session) AgentName() string {
	return s.agent.Name()
}

// UserID returns the identity injected into the tool calls
func (s *Session) UserID() string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.userID
}

// State returns the state of the current turn
func (s *Session) State() State {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.state
}

// History returns a copy of the conversation history
func (s *Session) History() []chatmodel.Message {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return chatmodel.CloneMessages(s.history)
}

// Reset clears the history, the tool bridge is not affected.
// Reset waits for the turn in progress.
func (s *Session) Reset() {
	s.turn.Lock()
	defer s.turn.Unlock()

	s.lock.Lock()
	count := len(s.history)
	s.history = nil
	s.state = StateAwaitingUserInput
	s.lock.Unlock()

	logger.KV(xlog.INFO,
		"status", "session_reset",
		"session_id", s.id,
		"messages", count,
	)
}

// SwitchUser changes the identity of the next tool calls,
// the history is not changed.
func (s *Session) SwitchUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return validationError("user ID is required")
	}

	s.lock.Lock()
	old := s.userID
	s.userID = userID
	s.lock.Unlock()

	logger.KV(xlog.INFO,
		"status", "user_switched",
		"session_id", s.id,
		"from", old,
		"to", userID,
	)
	return nil
}

// Send runs one user turn and returns the text reply of the model.
// Tool failures are reported to the model, model failures are returned
// as chatmodel.ErrModelInvocation, and the session remains usable.
func (s *Session) Send(ctx context.Context, input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", validationError("input is required")
	}

	s.turn.Lock()
	defer s.turn.Unlock()

	agentName := s.agent.Name()
	started := time.Now()
	defer metricskey.PerfSessionTurn.MeasureSince(started, agentName)

	ctx = chatmodel.WithChatContext(ctx, chatmodel.NewChatContext(s.id, s.UserID()))

	cb := s.agent.cfg.Callback
	if cb != nil {
		cb.OnTurnStart(ctx, s, input)
	}

	output, err := s.run(ctx, input)
	s.setState(StateAwaitingUserInput)

	if err != nil {
		if errors.Is(err, ErrMaxTurnsExceeded) {
			metricskey.StatsTurnsExceeded.IncrCounter(1, agentName)
		}
		metricskey.StatsTurnsFailed.IncrCounter(1, agentName)
		logger.ContextKV(ctx, xlog.ERROR,
			"agent", agentName,
			"session_id", s.id,
			"input", slices.StringUpto(input, 64),
			"err", err.Error(),
		)
		if cb != nil {
			cb.OnTurnError(ctx, s, input, err)
		}
		return "", err
	}

	metricskey.StatsTurnsSucceeded.IncrCounter(1, agentName)
	if cb != nil {
		cb.OnTurnEnd(ctx, s, input, output)
	}
	return output, nil
}

// run executes the state machine of the turn
func (s *Session) run(ctx context.Context, input string) (string, error) {
	catalog, err := s.toolCatalog(ctx)
	if err != nil {
		return "", err
	}

	s.append(chatmodel.NewTextMessage(chatmodel.RoleUser, input))

	a := s.agent
	cb := a.cfg.Callback
	agentName := a.Name()
	modelName := a.model.GetName()

	for calls := 0; ; calls++ {
		if calls >= a.cfg.MaxTurns {
			return "", errors.Wrapf(ErrMaxTurnsExceeded, "agent %s: %d model calls", agentName, calls)
		}

		s.setState(StateModelPending)

		history := s.History()
		req := &llms.Request{
			SystemPrompt: a.systemPrompt,
			Messages:     history,
			Tools:        catalog,
			MaxTokens:    a.cfg.MaxTokens,
			Temperature:  a.cfg.Temperature,
			StopWords:    a.cfg.StopWords,
		}

		metricskey.StatsSessionBytesSent.IncrCounter(float64(chatmodel.CountContentSize(history)), agentName, modelName)
		if cb != nil {
			cb.OnModelCallStart(ctx, s, a.model, req)
		}

		resp, err := a.model.GenerateContent(ctx, req)
		if err != nil {
			if !chatmodel.IsModelInvocation(err) {
				err = errors.Mark(err, chatmodel.ErrModelInvocation)
			}
			return "", errors.WithMessagef(err, "agent %s: failed to generate content", agentName)
		}
		if resp == nil {
			return "", errors.Mark(errors.Newf("agent %s: empty model response", agentName), chatmodel.ErrModelInvocation)
		}

		if cb != nil {
			cb.OnModelCallEnd(ctx, s, a.model, resp)
		}

		if !resp.HasToolUse() {
			text := resp.Text()
			if strings.TrimSpace(text) == "" {
				text = DefaultApology
			}
			s.append(chatmodel.NewTextMessage(chatmodel.RoleAssistant, text))
			s.setState(StateResponseReady)

			logger.ContextKV(ctx, xlog.DEBUG,
				"agent", agentName,
				"session_id", s.id,
				"status", "response_ready",
				"model_calls", calls+1,
				"stop_reason", resp.StopReason,
			)
			return text, nil
		}

		s.setState(StateToolsPending)
		results := s.callTools(ctx, resp.Content)
		s.append(chatmodel.NewToolResultsMessage(results...))
	}
}

// toolCatalog returns the catalog, fetched on the first call
func (s *Session) toolCatalog(ctx context.Context) ([]chatmodel.ToolDefinition, error) {
	s.lock.RLock()
	catalog := s.catalog
	s.lock.RUnlock()
	if catalog != nil {
		return catalog, nil
	}

	list, err := s.agent.bridge.ListTools(ctx)
	if err != nil {
		return nil, errors.WithMessagef(mcp.MarkTransport(err), "agent %s: failed to list tools", s.agent.Name())
	}
	if list == nil {
		list = []chatmodel.ToolDefinition{}
	}

	names := make(map[string]struct{}, len(list))
	for _, def := range list {
		names[def.Name] = struct{}{}
	}

	s.lock.Lock()
	s.catalog = list
	s.names = names
	s.lock.Unlock()

	logger.ContextKV(ctx, xlog.DEBUG,
		"agent", s.agent.Name(),
		"session_id", s.id,
		"status", "catalog_loaded",
		"tools", len(list),
	)
	return list, nil
}

// toolCall is a requested tool with the arguments to send
type toolCall struct {
	use chatmodel.ToolUseBlock
	// failed is set when the call is not dispatched
	failed *chatmodel.ToolResult
}

// callTools records the assistant reply with the identity injected
// into every tool use, then invokes the tools.
// One result is returned per tool use, in the order requested.
func (s *Session) callTools(ctx context.Context, content []chatmodel.ContentBlock) []chatmodel.ToolResultBlock {
	userID := s.UserID()
	key := s.agent.cfg.IdentityKey

	recorded := make([]chatmodel.ContentBlock, len(content))
	var calls []toolCall
	for i, block := range content {
		recorded[i] = block
		use, ok := block.(chatmodel.ToolUseBlock)
		if !ok {
			continue
		}

		call := toolCall{use: use}
		args, err := InjectIdentity(use.Input, key, userID)
		if err != nil {
			res := tools.FailedResult(use.Name, err)
			call.failed = &res
			// history only holds object inputs
			args, _ = InjectIdentity(nil, key, userID)
		}
		call.use.Input = args
		recorded[i] = call.use
		calls = append(calls, call)
	}

	s.append(chatmodel.Message{
		Role:    chatmodel.RoleAssistant,
		Content: recorded,
	})

	results := make([]chatmodel.ToolResultBlock, len(calls))
	if s.agent.cfg.ParallelToolCalls && len(calls) > 1 {
		var wg sync.WaitGroup
		wg.Add(len(calls))
		for i, call := range calls {
			go func(index int, tc toolCall) {
				defer wg.Done()
				results[index] = s.invoke(ctx, tc)
			}(i, call)
		}
		wg.Wait()
	} else {
		for i, call := range calls {
			results[i] = s.invoke(ctx, call)
		}
	}
	return results
}

func (s *Session) invoke(ctx context.Context, call toolCall) chatmodel.ToolResultBlock {
	use := call.use
	cb := s.agent.cfg.Callback

	if call.failed != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"agent", s.agent.Name(),
			"status", "invalid_tool_arguments",
			"tool", use.Name,
			"err", call.failed.ErrorDetail,
		)
		if cb != nil {
			cb.OnToolEnd(ctx, s, use, *call.failed)
		}
		return call.failed.ToBlock(use.ID)
	}

	s.lock.RLock()
	_, known := s.names[use.Name]
	s.lock.RUnlock()

	if !known {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, use.Name)
		if cb != nil {
			cb.OnToolNotFound(ctx, s, use)
		}
		res := tools.UnknownToolResult(use.Name, s.toolNames())
		logger.ContextKV(ctx, xlog.WARNING,
			"agent", s.agent.Name(),
			"status", "tool_not_found",
			"tool", use.Name,
		)
		return res.ToBlock(use.ID)
	}

	if cb != nil {
		cb.OnToolStart(ctx, s, use)
	}

	res := s.agent.bridge.Invoke(ctx, use.Name, use.Input)

	logger.ContextKV(ctx, xlog.DEBUG,
		"agent", s.agent.Name(),
		"status", "tool_called",
		"tool", use.Name,
		"tool_use_id", use.ID,
		"success", res.Success,
	)
	if cb != nil {
		cb.OnToolEnd(ctx, s, use, res)
	}
	return res.ToBlock(use.ID)
}

func (s *Session) toolNames() []string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	names := make([]string, len(s.catalog))
	for i, def := range s.catalog {
		names[i] = def.Name
	}
	return names
}

func (s *Session) append(msg chatmodel.Message) {
	s.lock.Lock()
	s.history = append(s.history, msg)
	s.lock.Unlock()
}

func (s *Session) setState(state State) {
	s.lock.Lock()
	s.state = state
	s.lock.Unlock()
}
