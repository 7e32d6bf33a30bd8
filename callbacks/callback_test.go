package callbacks_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/assistants"
	"github.com/effective-security/supportagent/callbacks"
	"github.com/effective-security/supportagent/chatmodel"
	"github.com/effective-security/supportagent/mcp"
	"github.com/effective-security/supportagent/mocks/mockllms"
	"github.com/effective-security/supportagent/pkg/llms"
	"github.com/effective-security/supportagent/store"
	"github.com/effective-security/supportagent/tools/support"
	"github.com/effective-security/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func toolReply(uses ...chatmodel.ToolUseBlock) *llms.Response {
	content := make([]chatmodel.ContentBlock, len(uses))
	for i, u := range uses {
		content[i] = u
	}
	return &llms.Response{
		Content:    content,
		StopReason: llms.StopReasonToolUse,
		Usage:      llms.Usage{InputTokens: 100, OutputTokens: 20},
	}
}

func textReply(text string) *llms.Response {
	return &llms.Response{
		Content:    []chatmodel.ContentBlock{chatmodel.TextBlock{Text: text}},
		StopReason: llms.StopReasonEndTurn,
		Usage:      llms.Usage{InputTokens: 150, OutputTokens: 10},
	}
}

// newSession returns a session over the support tools,
// the model replies with the responses in order.
func newSession(t *testing.T, cb assistants.Callback, responses ...*llms.Response) *assistants.Session {
	ctrl := gomock.NewController(t)
	model := mockllms.NewMockModel(ctrl)
	model.EXPECT().GetName().Return("claude-test").AnyTimes()
	model.EXPECT().GetProviderType().Return(llms.ProviderAnthropic).AnyTimes()
	for _, resp := range responses {
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any()).Return(resp, nil).Times(1)
	}

	st, err := store.NewMemoryStore()
	require.NoError(t, err)

	agent, err := assistants.NewAgent(model, mcp.NewLocalBridge(support.NewRegistry(st)), assistants.WithCallback(cb))
	require.NoError(t, err)
	s, err := agent.Start(context.Background(), "user_001")
	require.NoError(t, err)
	return s
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	cb := callbacks.NewPrinter(&buf, callbacks.ModeVerbose)

	s := newSession(t, cb,
		toolReply(
			chatmodel.ToolUseBlock{ID: "toolu_1", Name: support.ToolGetAccountBalance, Input: json.RawMessage(`{}`)},
			chatmodel.ToolUseBlock{ID: "toolu_2", Name: "transfer_funds", Input: json.RawMessage(`{}`)},
			chatmodel.ToolUseBlock{ID: "toolu_3", Name: support.ToolGetAccountDetails, Input: json.RawMessage(`"bad"`)},
		),
		textReply("Your balance is $5420.50."),
	)

	out, err := s.Send(context.Background(), "What's my balance?")
	require.NoError(t, err)
	assert.Equal(t, "Your balance is $5420.50.", out)

	res := buf.String()
	assert.Contains(t, res, "Turn Start: customer_support (user_001)")
	assert.Contains(t, res, "Input: What's my balance?")
	assert.Contains(t, res, "Model Call: customer_support: claude-test model, 1 messages, 8 tools")
	assert.Contains(t, res, "Model Call End: customer_support: claude-test model, tool_use, 3 tool calls")
	assert.Contains(t, res, "Tool Start: get_account_balance (customer_support)")
	assert.Contains(t, res, `Input: {"user_id":"user_001"}`)
	assert.Contains(t, res, "Tool End: get_account_balance (customer_support)")
	assert.Contains(t, res, "Output: ")
	assert.Contains(t, res, "5420.50")
	assert.Contains(t, res, "Tool Not Found: transfer_funds")
	assert.Contains(t, res, "Tool Error: get_account_details (customer_support): arguments must be a JSON object")
	assert.Contains(t, res, "Turn End: customer_support")
	assert.Contains(t, res, "Your balance is $5420.50.\n")
}

func TestPrinter_Error(t *testing.T) {
	var buf bytes.Buffer
	cb := callbacks.NewPrinter(&buf, callbacks.ModeDefault)

	ctrl := gomock.NewController(t)
	model := mockllms.NewMockModel(ctrl)
	model.EXPECT().GetName().Return("claude-test").AnyTimes()
	model.EXPECT().GenerateContent(gomock.Any(), gomock.Any()).Return(nil, errors.New("overloaded"))

	st, err := store.NewMemoryStore()
	require.NoError(t, err)
	agent, err := assistants.NewAgent(model, mcp.NewLocalBridge(support.NewRegistry(st)),
		assistants.WithName("bank"),
		assistants.WithCallback(cb))
	require.NoError(t, err)
	s, err := agent.Start(context.Background(), "user_002")
	require.NoError(t, err)

	_, err = s.Send(context.Background(), "hello")
	require.Error(t, err)

	res := buf.String()
	assert.Contains(t, res, "Turn Start: bank (user_002)")
	assert.Contains(t, res, "Turn Error: bank: ")
	assert.Contains(t, res, "overloaded")
	assert.NotContains(t, res, "Turn End")
}

func TestFanout(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	fanout := callbacks.NewFanout(
		callbacks.NewPrinter(&buf1, callbacks.ModeDefault),
		callbacks.NewNoop(),
		callbacks.NewPackageLogger(xlog.NewPackageLogger("github.com/effective-security/supportagent", "callbacks_test")),
	)
	fanout.Add(callbacks.NewPrinter(&buf2, callbacks.ModeVerbose))

	s := newSession(t, fanout,
		toolReply(chatmodel.ToolUseBlock{ID: "toolu_1", Name: support.ToolGetRecentTransactions, Input: json.RawMessage(`{"limit":1}`)}),
		textReply("Your last transaction was an Amazon purchase."),
	)

	_, err := s.Send(context.Background(), "Show my last transaction")
	require.NoError(t, err)

	for _, res := range []string{buf1.String(), buf2.String()} {
		assert.Contains(t, res, "Turn Start: customer_support (user_001)")
		assert.Contains(t, res, "Tool Start: get_recent_transactions (customer_support)")
		assert.Contains(t, res, "Tool End: get_recent_transactions (customer_support)")
		assert.Contains(t, res, "Turn End: customer_support")
	}
	assert.NotContains(t, buf1.String(), "Output: ")
	assert.Contains(t, buf2.String(), "Output: ")
	assert.Contains(t, buf2.String(), "Amazon Purchase")
}
