package assistants_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/assistants"
	"github.com/effective-security/supportagent/chatmodel"
	"github.com/effective-security/supportagent/mcp"
	"github.com/effective-security/supportagent/mocks/mockllms"
	"github.com/effective-security/supportagent/mocks/mockmcp"
	"github.com/effective-security/supportagent/pkg/llms"
	"github.com/effective-security/supportagent/store"
	"github.com/effective-security/supportagent/tools/support"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var catalog = []chatmodel.ToolDefinition{
	{Name: support.ToolGetAccountBalance, Description: "balance"},
	{Name: support.ToolGetRecentTransactions, Description: "transactions"},
	{Name: support.ToolGetAccountDetails, Description: "details"},
}

func newModel(ctrl *gomock.Controller) *mockllms.MockModel {
	m := mockllms.NewMockModel(ctrl)
	m.EXPECT().GetName().Return("claude-test").AnyTimes()
	m.EXPECT().GetProviderType().Return(llms.ProviderAnthropic).AnyTimes()
	return m
}

// requests is the list of requests received by a scripted model
type requests struct {
	lock sync.Mutex
	list []*llms.Request
}

func (r *requests) add(req *llms.Request) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.list = append(r.list, req)
}

func (r *requests) get() []*llms.Request {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]*llms.Request(nil), r.list...)
}

// script expects one model call per response, in order
func script(m *mockllms.MockModel, responses ...*llms.Response) *requests {
	reqs := &requests{}
	for _, resp := range responses {
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req *llms.Request) (*llms.Response, error) {
				reqs.add(req)
				return resp, nil
			}).Times(1)
	}
	return reqs
}

func textReply(text ...string) *llms.Response {
	content := make([]chatmodel.ContentBlock, len(text))
	for i, s := range text {
		content[i] = chatmodel.TextBlock{Text: s}
	}
	return &llms.Response{
		ID:         "msg_" + uuid.NewString(),
		Content:    content,
		StopReason: llms.StopReasonEndTurn,
	}
}

func toolReply(uses ...chatmodel.ToolUseBlock) *llms.Response {
	content := []chatmodel.ContentBlock{chatmodel.TextBlock{Text: "Let me check."}}
	for _, u := range uses {
		content = append(content, u)
	}
	return &llms.Response{
		ID:         "msg_" + uuid.NewString(),
		Content:    content,
		StopReason: llms.StopReasonToolUse,
	}
}

func toolUse(name, input string) chatmodel.ToolUseBlock {
	return chatmodel.ToolUseBlock{
		ID:    "toolu_" + uuid.NewString(),
		Name:  name,
		Input: json.RawMessage(input),
	}
}

func mockBridge(ctrl *gomock.Controller) *mockmcp.MockBridge {
	b := mockmcp.NewMockBridge(ctrl)
	b.EXPECT().ListTools(gomock.Any()).Return(catalog, nil).Times(1)
	return b
}

func localBridge(t *testing.T) mcp.Bridge {
	st, err := store.NewMemoryStore()
	require.NoError(t, err)
	return mcp.NewLocalBridge(support.NewRegistry(st))
}

func startSession(t *testing.T, model llms.Model, bridge mcp.Bridge, opts ...assistants.Option) (*assistants.Agent, *assistants.Session) {
	agent, err := assistants.NewAgent(model, bridge, opts...)
	require.NoError(t, err)
	s, err := agent.Start(context.Background(), "user_001")
	require.NoError(t, err)
	return agent, s
}

func resultBlocks(t *testing.T, msg chatmodel.Message) []chatmodel.ToolResultBlock {
	assert.Equal(t, chatmodel.RoleUser, msg.Role)
	var list []chatmodel.ToolResultBlock
	for _, block := range msg.Content {
		rb, ok := block.(chatmodel.ToolResultBlock)
		require.True(t, ok, "unexpected block %T", block)
		list = append(list, rb)
	}
	return list
}

func TestNewAgent(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	model := newModel(ctrl)
	bridge := mockmcp.NewMockBridge(ctrl)

	_, err := assistants.NewAgent(nil, bridge)
	assert.EqualError(t, err, "model is required")
	_, err = assistants.NewAgent(model, nil)
	assert.EqualError(t, err, "tool bridge is required")
	_, err = assistants.NewAgent(model, bridge, assistants.WithMaxTurns(0))
	assert.EqualError(t, err, "invalid max turns: 0")
	_, err = assistants.NewAgent(model, bridge, assistants.WithIdentityKey(""))
	assert.EqualError(t, err, "identity key is required")
	_, err = assistants.NewAgent(model, bridge, assistants.WithSystemPrompt("{{ .Role "))
	assert.Error(t, err)

	agent, err := assistants.NewAgent(model, bridge)
	require.NoError(t, err)
	assert.Equal(t, assistants.DefaultName, agent.Name())
	assert.Same(t, model, agent.Model())
	assert.Contains(t, agent.SystemPrompt(), "user_id is automatically provided to all tools")
	assert.Equal(t, assistants.DefaultMaxTurns, agent.Config().MaxTurns)

	agent, err = assistants.NewAgent(model, bridge,
		assistants.WithName("bank"),
		assistants.WithIdentityKey("customer_id"),
	)
	require.NoError(t, err)
	assert.Equal(t, "bank", agent.Name())
	assert.Contains(t, agent.SystemPrompt(), "customer_id is automatically provided")

	agent, err = assistants.NewAgent(model, bridge, assistants.WithSystemPrompt("  Be brief, {{ .Role }}.  "))
	require.NoError(t, err)
	assert.Equal(t, "Be brief, .", agent.SystemPrompt())

	bridge.EXPECT().Close().Return(nil).Times(1)
	assert.NoError(t, agent.Close())
}

func TestStart(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	agent, err := assistants.NewAgent(newModel(ctrl), mockmcp.NewMockBridge(ctrl))
	require.NoError(t, err)

	_, err = agent.Start(context.Background(), " ")
	require.Error(t, err)
	assert.True(t, chatmodel.IsValidation(err))

	s1, err := agent.Start(context.Background(), "user_001")
	require.NoError(t, err)
	s2, err := agent.Start(context.Background(), "user_002")
	require.NoError(t, err)

	assert.NotEmpty(t, s1.ID())
	assert.NotEqual(t, s1.ID(), s2.ID())
	assert.Equal(t, assistants.DefaultName, s1.AgentName())
	assert.Equal(t, "user_001", s1.UserID())
	assert.Equal(t, "user_002", s2.UserID())
	assert.Equal(t, assistants.StateAwaitingUserInput, s1.State())
	assert.Empty(t, s1.History())
}

func TestSend_TextOnly(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	model := newModel(ctrl)
	reqs := script(model, textReply("Hello!", "How can I help?"))
	_, s := startSession(t, model, mockBridge(ctrl),
		assistants.WithMaxTokens(512),
		assistants.WithTemperature(0.3),
		assistants.WithStopWords([]string{"STOP"}),
	)

	out, err := s.Send(context.Background(), "Hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello!\nHow can I help?", out)

	exp := []chatmodel.Message{
		chatmodel.NewTextMessage(chatmodel.RoleUser, "Hi"),
		chatmodel.NewTextMessage(chatmodel.RoleAssistant, "Hello!\nHow can I help?"),
	}
	if diff := cmp.Diff(exp, s.History()); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, assistants.StateAwaitingUserInput, s.State())

	list := reqs.get()
	require.Len(t, list, 1)
	req := list[0]
	assert.NotEmpty(t, req.SystemPrompt)
	assert.Equal(t, catalog, req.Tools)
	assert.Equal(t, 512, req.MaxTokens)
	assert.Equal(t, 0.3, req.Temperature)
	assert.Equal(t, []string{"STOP"}, req.StopWords)
	if diff := cmp.Diff(exp[:1], req.Messages); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestSend_EmptyReply(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	model := newModel(ctrl)
	script(model, textReply(), textReply("  "))
	_, s := startSession(t, model, mockBridge(ctrl))

	for range 2 {
		out, err := s.Send(context.Background(), "Hi")
		require.NoError(t, err)
		assert.Equal(t, assistants.DefaultApology, out)
	}
	history := s.History()
	require.Len(t, history, 4)
	assert.Equal(t, assistants.DefaultApology, history[3].Text())
}

func TestSend_Validation(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	_, s := startSession(t, newModel(ctrl), mockmcp.NewMockBridge(ctrl))

	_, err := s.Send(context.Background(), "")
	require.Error(t, err)
	assert.True(t, chatmodel.IsValidation(err))

	_, err = s.Send(context.Background(), " \n ")
	require.Error(t, err)
	assert.True(t, chatmodel.IsValidation(err))

	err = s.SwitchUser("")
	require.Error(t, err)
	assert.True(t, chatmodel.IsValidation(err))
	assert.Equal(t, "user_001", s.UserID())
	assert.Empty(t, s.History())
}

func TestSend_ToolRoundTrip(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	model := newModel(ctrl)

	use := toolUse(support.ToolGetAccountBalance, `{}`)
	reqs := script(model, toolReply(use), textReply("Your current balance is $5420.50."))
	agent, s := startSession(t, model, localBridge(t))

	out, err := s.Send(context.Background(), "What's my balance?")
	require.NoError(t, err)
	assert.Equal(t, "Your current balance is $5420.50.", out)

	list := reqs.get()
	require.Len(t, list, 2)
	assert.Equal(t, agent.SystemPrompt(), list[0].SystemPrompt)
	assert.Len(t, list[0].Tools, 8)
	assert.Len(t, list[0].Messages, 1)

	second := list[1].Messages
	require.Len(t, second, 3)
	results := resultBlocks(t, second[2])
	require.Len(t, results, 1)
	assert.Equal(t, use.ID, results[0].ToolUseID)
	assert.False(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "5420.50")

	history := s.History()
	require.Len(t, history, 4)
	assert.Equal(t, chatmodel.RoleAssistant, history[1].Role)
	assert.Equal(t, "Let me check.", history[1].Text())
	recorded := history[1].ToolUses()
	require.Len(t, recorded, 1)
	assert.Equal(t, use.ID, recorded[0].ID)
	assert.JSONEq(t, `{"user_id":"user_001"}`, string(recorded[0].Input))
	if diff := cmp.Diff(second, history[:3]); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Your current balance is $5420.50.", history[3].Text())
	assert.Equal(t, assistants.StateAwaitingUserInput, s.State())
}

func TestSend_ChatContext(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	model := newModel(ctrl)
	bridge := mockBridge(ctrl)
	_, s := startSession(t, model, bridge)

	use := toolUse(support.ToolGetAccountBalance, `{}`)
	model.EXPECT().GenerateContent(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ *llms.Request) (*llms.Response, error) {
			sessionID, userID, err := chatmodel.GetSessionAndUserID(ctx)
			require.NoError(t, err)
			assert.Equal(t, s.ID(), sessionID)
			assert.Equal(t, "user_001", userID)
			return toolReply(use), nil
		})
	bridge.EXPECT().Invoke(gomock.Any(), support.ToolGetAccountBalance, gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ string, _ json.RawMessage) chatmodel.ToolResult {
			assert.Equal(t, s.ID(), chatmodel.GetSessionID(ctx))
			return chatmodel.ToolResult{Success: true, Payload: "ok"}
		})
	model.EXPECT().GenerateContent(gomock.Any(), gomock.Any()).Return(textReply("done"), nil)

	out, err := s.Send(context.Background(), "balance")
	require.NoError(t, err)
	assert.Equal(t, "done", out)
}

func TestSend_SwitchUser(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	model := newModel(ctrl)
	bridge := mockBridge(ctrl)

	script(model,
		toolReply(toolUse(support.ToolGetAccountBalance, `{"user_id":"user_999"}`)),
		textReply("Your balance is $5420.50."),
		toolReply(toolUse(support.ToolGetAccountBalance, `{}`)),
		textReply("Your balance is $12750.25."),
	)

	var lock sync.Mutex
	var users []string
	bridge.EXPECT().Invoke(gomock.Any(), support.ToolGetAccountBalance, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, args json.RawMessage) chatmodel.ToolResult {
			var req support.UserRequest
			require.NoError(t, json.Unmarshal(args, &req))
			lock.Lock()
			users = append(users, req.UserID)
			lock.Unlock()
			return chatmodel.ToolResult{Success: true, Payload: "ok"}
		}).Times(2)

	_, s := startSession(t, model, bridge)
	ctx := context.Background()

	_, err := s.Send(ctx, "What's my balance?")
	require.NoError(t, err)
	before := s.History()
	require.Len(t, before, 4)

	require.NoError(t, s.SwitchUser("user_002"))
	assert.Equal(t, "user_002", s.UserID())
	if diff := cmp.Diff(before, s.History()); diff != "" {
		t.Errorf("history changed by SwitchUser (-want +got):\n%s", diff)
	}

	out, err := s.Send(ctx, "And now?")
	require.NoError(t, err)
	assert.Equal(t, "Your balance is $12750.25.", out)
	assert.Equal(t, []string{"user_001", "user_002"}, users)

	after := s.History()
	require.Len(t, after, 8)
	if diff := cmp.Diff(before, after[:4]); diff != "" {
		t.Errorf("prior history changed (-want +got):\n%s", diff)
	}
	assert.JSONEq(t, `{"user_id":"user_001"}`, string(after[1].ToolUses()[0].Input))
	assert.JSONEq(t, `{"user_id":"user_002"}`, string(after[5].ToolUses()[0].Input))
}

func TestSend_MultipleTools(t *testing.T) {
	t.Parallel()

	for _, parallel := range []bool{false, true} {
		t.Run(map[bool]string{false: "sequential", true: "parallel"}[parallel], func(t *testing.T) {
			ctrl := gomock.NewController(t)
			model := newModel(ctrl)
			bridge := mockBridge(ctrl)

			uses := []chatmodel.ToolUseBlock{
				toolUse(support.ToolGetAccountBalance, `{}`),
				toolUse(support.ToolGetRecentTransactions, `{"limit":2}`),
				toolUse(support.ToolGetAccountDetails, `{}`),
			}
			delays := map[string]time.Duration{
				support.ToolGetAccountBalance:     30 * time.Millisecond,
				support.ToolGetRecentTransactions: 15 * time.Millisecond,
				support.ToolGetAccountDetails:     0,
			}

			var lock sync.Mutex
			var invoked []string
			bridge.EXPECT().Invoke(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, name string, args json.RawMessage) chatmodel.ToolResult {
					time.Sleep(delays[name])
					lock.Lock()
					invoked = append(invoked, name)
					lock.Unlock()
					return chatmodel.ToolResult{Success: true, Payload: "result of " + name}
				}).Times(3)

			reqs := script(model, toolReply(uses...), textReply("Here is everything."))
			_, s := startSession(t, model, bridge, assistants.WithParallelToolCalls(parallel))

			_, err := s.Send(context.Background(), "Show my account")
			require.NoError(t, err)

			list := reqs.get()
			require.Len(t, list, 2)
			results := resultBlocks(t, list[1].Messages[2])
			require.Len(t, results, 3)
			for i, use := range uses {
				assert.Equal(t, use.ID, results[i].ToolUseID)
				assert.Equal(t, "result of "+use.Name, results[i].Content)
			}

			recorded := s.History()[1].ToolUses()
			require.Len(t, recorded, 3)
			assert.JSONEq(t, `{"limit":2,"user_id":"user_001"}`, string(recorded[1].Input))

			if !parallel {
				assert.Equal(t, []string{
					support.ToolGetAccountBalance,
					support.ToolGetRecentTransactions,
					support.ToolGetAccountDetails,
				}, invoked)
			} else {
				assert.ElementsMatch(t, []string{
					support.ToolGetAccountBalance,
					support.ToolGetRecentTransactions,
					support.ToolGetAccountDetails,
				}, invoked)
			}
		})
	}
}

func TestSend_UnknownTool(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	model := newModel(ctrl)
	cb := &recorder{}

	use := toolUse("transfer_funds", `{"amount":100}`)
	reqs := script(model, toolReply(use), textReply("I can't do that."))
	_, s := startSession(t, model, mockBridge(ctrl), assistants.WithCallback(cb))

	out, err := s.Send(context.Background(), "Transfer $100")
	require.NoError(t, err)
	assert.Equal(t, "I can't do that.", out)

	results := resultBlocks(t, reqs.get()[1].Messages[2])
	require.Len(t, results, 1)
	assert.Equal(t, use.ID, results[0].ToolUseID)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "Unknown tool: transfer_funds")
	assert.Contains(t, results[0].Content, support.ToolGetAccountBalance)
	assert.Contains(t, cb.Events(), "tool_not_found:transfer_funds")
}

func TestSend_InvalidToolArguments(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	model := newModel(ctrl)

	bad := toolUse(support.ToolGetAccountBalance, `[1,2]`)
	good := toolUse(support.ToolGetAccountDetails, `{}`)
	reqs := script(model, toolReply(bad, good), textReply("ok"))

	bridge := mockBridge(ctrl)
	bridge.EXPECT().Invoke(gomock.Any(), support.ToolGetAccountDetails, gomock.Any()).
		Return(chatmodel.ToolResult{Success: true, Payload: "details"}).Times(1)
	_, s := startSession(t, model, bridge)

	_, err := s.Send(context.Background(), "details")
	require.NoError(t, err)

	results := resultBlocks(t, reqs.get()[1].Messages[2])
	require.Len(t, results, 2)
	assert.Equal(t, bad.ID, results[0].ToolUseID)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "arguments must be a JSON object")
	assert.Equal(t, good.ID, results[1].ToolUseID)
	assert.False(t, results[1].IsError)

	recorded := s.History()[1].ToolUses()
	require.Len(t, recorded, 2)
	// the rejected input is replaced with an object
	assert.JSONEq(t, `{"user_id":"user_001"}`, string(recorded[0].Input))
	assert.JSONEq(t, `{"user_id":"user_001"}`, string(recorded[1].Input))

	// the history is sent back as is
	sent := reqs.get()[1].Messages[1].ToolUses()
	require.Len(t, sent, 2)
	assert.JSONEq(t, `{"user_id":"user_001"}`, string(sent[0].Input))
}

func TestSend_MaxTurns(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	model := newModel(ctrl)
	bridge := mockBridge(ctrl)

	model.EXPECT().GenerateContent(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ *llms.Request) (*llms.Response, error) {
			return toolReply(toolUse(support.ToolGetAccountBalance, `{}`)), nil
		}).Times(2)
	bridge.EXPECT().Invoke(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(chatmodel.ToolResult{Success: true, Payload: "ok"}).Times(2)

	cb := &recorder{}
	_, s := startSession(t, model, bridge, assistants.WithMaxTurns(2), assistants.WithCallback(cb))

	_, err := s.Send(context.Background(), "loop")
	require.Error(t, err)
	assert.True(t, errors.Is(err, assistants.ErrMaxTurnsExceeded))
	assert.True(t, chatmodel.IsModelInvocation(err))
	assert.Equal(t, assistants.StateAwaitingUserInput, s.State())
	assert.Len(t, s.History(), 5)

	events := cb.Events()
	assert.Equal(t, "turn_error", events[len(events)-1])
}

func TestSend_ModelError(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	model := newModel(ctrl)
	bridge := mockBridge(ctrl)

	model.EXPECT().GenerateContent(gomock.Any(), gomock.Any()).Return(nil, errors.New("service unavailable")).Times(1)
	model.EXPECT().GenerateContent(gomock.Any(), gomock.Any()).Return(nil, nil).Times(1)
	reqs := script(model, textReply("Back online."))

	_, s := startSession(t, model, bridge)
	ctx := context.Background()

	_, err := s.Send(ctx, "Hello")
	require.Error(t, err)
	assert.True(t, chatmodel.IsModelInvocation(err))
	assert.Contains(t, err.Error(), "service unavailable")
	assert.Equal(t, assistants.StateAwaitingUserInput, s.State())
	assert.Len(t, s.History(), 1)

	_, err = s.Send(ctx, "Hello?")
	require.Error(t, err)
	assert.True(t, chatmodel.IsModelInvocation(err))
	assert.Len(t, s.History(), 2)

	out, err := s.Send(ctx, "Are you there?")
	require.NoError(t, err)
	assert.Equal(t, "Back online.", out)
	assert.Len(t, reqs.get()[0].Messages, 3)
	assert.Len(t, s.History(), 4)
}

func TestSend_CatalogError(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	model := newModel(ctrl)
	bridge := mockmcp.NewMockBridge(ctrl)

	bridge.EXPECT().ListTools(gomock.Any()).Return(nil, errors.New("connection refused")).Times(1)
	bridge.EXPECT().ListTools(gomock.Any()).Return(catalog, nil).Times(1)
	script(model, textReply("Hi"))

	_, s := startSession(t, model, bridge)
	ctx := context.Background()

	_, err := s.Send(ctx, "Hello")
	require.Error(t, err)
	assert.True(t, chatmodel.IsTransport(err))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Empty(t, s.History())

	out, err := s.Send(ctx, "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi", out)
}

func TestSend_CatalogShared(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	model := newModel(ctrl)
	script(model, textReply("one"), textReply("two"), textReply("three"))

	agent, s1 := startSession(t, model, mockBridge(ctrl))
	s2, err := agent.Start(context.Background(), "user_002")
	require.NoError(t, err)

	ctx := context.Background()
	_, err = s1.Send(ctx, "a")
	require.NoError(t, err)
	_, err = s1.Send(ctx, "b")
	require.NoError(t, err)
	_, err = s2.Send(ctx, "c")
	require.NoError(t, err)

	assert.Len(t, s1.History(), 4)
	assert.Len(t, s2.History(), 2)
}

func TestReset(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	model := newModel(ctrl)
	reqs := script(model, textReply("first"), textReply("second"))

	_, s := startSession(t, model, mockBridge(ctrl))
	ctx := context.Background()

	_, err := s.Send(ctx, "one")
	require.NoError(t, err)
	require.Len(t, s.History(), 2)

	id := s.ID()
	s.Reset()
	assert.Empty(t, s.History())
	assert.Equal(t, assistants.StateAwaitingUserInput, s.State())
	assert.Equal(t, id, s.ID())
	assert.Equal(t, "user_001", s.UserID())

	_, err = s.Send(ctx, "two")
	require.NoError(t, err)
	list := reqs.get()
	require.Len(t, list, 2)
	if diff := cmp.Diff([]chatmodel.Message{chatmodel.NewTextMessage(chatmodel.RoleUser, "two")}, list[1].Messages); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestSend_Serialized(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	model := newModel(ctrl)

	var inflight, peak atomic.Int32
	model.EXPECT().GenerateContent(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ *llms.Request) (*llms.Response, error) {
			n := inflight.Add(1)
			defer inflight.Add(-1)
			if n > peak.Load() {
				peak.Store(n)
			}
			time.Sleep(5 * time.Millisecond)
			return textReply("ok"), nil
		}).Times(4)

	_, s := startSession(t, model, mockBridge(ctrl))

	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Send(context.Background(), strings.Repeat("q", i+1))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	history := s.History()
	require.Len(t, history, 8)
	for i := 0; i < len(history); i += 2 {
		assert.Equal(t, chatmodel.RoleUser, history[i].Role)
		assert.Equal(t, chatmodel.RoleAssistant, history[i+1].Role)
	}
}

func TestCallbackEvents(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	model := newModel(ctrl)
	cb := &recorder{}

	script(model, toolReply(toolUse(support.ToolGetAccountBalance, `{}`)), textReply("$5420.50"))
	_, s := startSession(t, model, localBridge(t), assistants.WithCallback(cb))

	_, err := s.Send(context.Background(), "balance")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"turn_start",
		"model_start",
		"model_end",
		"tool_start:get_account_balance",
		"tool_end:get_account_balance:true",
		"model_start",
		"model_end",
		"turn_end",
	}, cb.Events())
	assert.Equal(t, []string{"user_001"}, cb.Users())
}

// recorder is a Callback that records the event names
type recorder struct {
	lock   sync.Mutex
	events []string
	users  []string
}

var _ assistants.Callback = (*recorder)(nil)

func (r *recorder) add(event string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) Events() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) Users() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.users...)
}

func (r *recorder) OnTurnStart(_ context.Context, s *assistants.Session, _ string) {
	r.add("turn_start")
	r.lock.Lock()
	r.users = append(r.users, s.UserID())
	r.lock.Unlock()
}

func (r *recorder) OnTurnEnd(_ context.Context, _ *assistants.Session, _ string, _ string) {
	r.add("turn_end")
}

func (r *recorder) OnTurnError(_ context.Context, _ *assistants.Session, _ string, _ error) {
	r.add("turn_error")
}

func (r *recorder) OnModelCallStart(_ context.Context, s *assistants.Session, _ llms.Model, _ *llms.Request) {
	r.add("model_start")
	_ = s.State()
}

func (r *recorder) OnModelCallEnd(_ context.Context, _ *assistants.Session, _ llms.Model, _ *llms.Response) {
	r.add("model_end")
}

func (r *recorder) OnToolStart(_ context.Context, _ *assistants.Session, call chatmodel.ToolUseBlock) {
	r.add("tool_start:" + call.Name)
}

func (r *recorder) OnToolEnd(_ context.Context, _ *assistants.Session, call chatmodel.ToolUseBlock, result chatmodel.ToolResult) {
	if result.Success {
		r.add("tool_end:" + call.Name + ":true")
	} else {
		r.add("tool_end:" + call.Name + ":false")
	}
}

func (r *recorder) OnToolNotFound(_ context.Context, _ *assistants.Session, call chatmodel.ToolUseBlock) {
	r.add("tool_not_found:" + call.Name)
}
