package chatmodel_test

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/chatmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_Text(t *testing.T) {
	t.Parallel()

	tcases := []struct {
		name string
		msg  chatmodel.Message
		exp  string
	}{
		{
			name: "single",
			msg:  chatmodel.NewTextMessage(chatmodel.RoleAssistant, "hello"),
			exp:  "hello",
		},
		{
			name: "joined in block order",
			msg: chatmodel.Message{
				Role: chatmodel.RoleAssistant,
				Content: []chatmodel.ContentBlock{
					chatmodel.TextBlock{Text: "one"},
					chatmodel.ToolUseBlock{ID: "t1", Name: "x"},
					chatmodel.TextBlock{Text: "two"},
				},
			},
			exp: "one\ntwo",
		},
		{
			name: "no text",
			msg: chatmodel.Message{
				Role:    chatmodel.RoleAssistant,
				Content: []chatmodel.ContentBlock{chatmodel.ToolUseBlock{ID: "t1", Name: "x"}},
			},
			exp: "",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.exp, tc.msg.Text())
		})
	}
}

func TestMessage_ToolUses(t *testing.T) {
	t.Parallel()

	msg := chatmodel.Message{
		Role: chatmodel.RoleAssistant,
		Content: []chatmodel.ContentBlock{
			chatmodel.TextBlock{Text: "checking"},
			chatmodel.ToolUseBlock{ID: "a", Name: "get_account_balance"},
			chatmodel.ToolUseBlock{ID: "b", Name: "get_recent_transactions"},
		},
	}
	uses := msg.ToolUses()
	require.Len(t, uses, 2)
	assert.Equal(t, "a", uses[0].ID)
	assert.Equal(t, "b", uses[1].ID)

	for _, b := range msg.Content {
		switch b.Type() {
		case chatmodel.BlockTypeText, chatmodel.BlockTypeToolUse:
		default:
			t.Fatalf("unexpected block type %s", b.Type())
		}
	}
}

func TestToolUseBlock_Arguments(t *testing.T) {
	t.Parallel()

	args, err := chatmodel.ToolUseBlock{}.Arguments()
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = chatmodel.ToolUseBlock{Input: json.RawMessage(`null`)}.Arguments()
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = chatmodel.ToolUseBlock{Input: json.RawMessage(`{"limit":5}`)}.Arguments()
	require.NoError(t, err)
	assert.Equal(t, float64(5), args["limit"])

	_, err = chatmodel.ToolUseBlock{Input: json.RawMessage(`[1]`)}.Arguments()
	assert.Error(t, err)
}

func TestMessage_Clone(t *testing.T) {
	t.Parallel()

	orig := chatmodel.Message{
		Role: chatmodel.RoleAssistant,
		Content: []chatmodel.ContentBlock{
			chatmodel.ToolUseBlock{ID: "a", Name: "x", Input: json.RawMessage(`{"user_id":"user_001"}`)},
		},
	}
	cp := orig.Clone()
	tu := cp.Content[0].(chatmodel.ToolUseBlock)
	tu.Input[2] = 'X'
	assert.Equal(t, `{"user_id":"user_001"}`, string(orig.Content[0].(chatmodel.ToolUseBlock).Input))

	assert.Nil(t, chatmodel.CloneMessages(nil))
	assert.Len(t, chatmodel.CloneMessages([]chatmodel.Message{orig}), 1)
}

func TestMessage_JSON(t *testing.T) {
	t.Parallel()

	history := []chatmodel.Message{
		chatmodel.NewTextMessage(chatmodel.RoleUser, "What's my balance?"),
		{
			Role: chatmodel.RoleAssistant,
			Content: []chatmodel.ContentBlock{
				chatmodel.ToolUseBlock{ID: "toolu_1", Name: "get_account_balance", Input: json.RawMessage(`{"user_id":"user_001"}`)},
			},
		},
		chatmodel.NewToolResultsMessage(chatmodel.ToolResultBlock{ToolUseID: "toolu_1", Content: "{}"}),
	}

	js, err := json.Marshal(history)
	require.NoError(t, err)
	assert.Contains(t, string(js), `"type":"tool_use"`)
	assert.Contains(t, string(js), `"tool_use_id":"toolu_1"`)

	var decoded []chatmodel.Message
	require.NoError(t, json.Unmarshal(js, &decoded))
	require.Len(t, decoded, 3)
	assert.Equal(t, history[0], decoded[0])
	assert.Equal(t, history[2], decoded[2])

	var bad chatmodel.Message
	err = json.Unmarshal([]byte(`{"role":"user","content":[{"type":"image"}]}`), &bad)
	assert.EqualError(t, err, `unsupported content block type: "image"`)
}

func TestCountContentSize(t *testing.T) {
	t.Parallel()
	size := chatmodel.CountContentSize([]chatmodel.Message{
		chatmodel.NewTextMessage(chatmodel.RoleUser, "1234"),
		chatmodel.NewToolResultsMessage(chatmodel.ToolResultBlock{ToolUseID: "x", Content: "12"}),
	})
	assert.Equal(t, uint64(6), size)
}

func TestToolResult_Text(t *testing.T) {
	t.Parallel()

	tcases := []struct {
		name string
		res  chatmodel.ToolResult
		exp  string
	}{
		{"string", chatmodel.ToolResult{Success: true, Payload: "ok"}, "ok"},
		{"bytes", chatmodel.ToolResult{Success: true, Payload: []byte("ok")}, "ok"},
		{"raw", chatmodel.ToolResult{Success: true, Payload: json.RawMessage(`{"a":1}`)}, `{"a":1}`},
		{"struct", chatmodel.ToolResult{Success: true, Payload: map[string]any{"a": 1}}, "{\n  \"a\": 1\n}"},
		{"failed", chatmodel.NewFailedResult("boom %d", 1), "boom 1"},
		{"empty", chatmodel.ToolResult{Success: true}, ""},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.exp, tc.res.Text())
		})
	}

	b := chatmodel.NewFailedResult("nope").ToBlock("id1")
	assert.Equal(t, "id1", b.ToolUseID)
	assert.True(t, b.IsError)
	assert.Equal(t, "nope", b.Content)
}

func TestErrorTaxonomy(t *testing.T) {
	t.Parallel()

	err := errors.Mark(errors.New("connection refused"), chatmodel.ErrTransport)
	wrapped := errors.Wrap(err, "invoke")
	assert.True(t, chatmodel.IsTransport(wrapped))
	assert.False(t, chatmodel.IsValidation(wrapped))
	assert.False(t, chatmodel.IsModelInvocation(wrapped))

	merr := errors.Mark(errors.New("rate limited"), chatmodel.ErrModelInvocation)
	assert.True(t, chatmodel.IsModelInvocation(errors.WithStack(merr)))
	assert.True(t, chatmodel.IsValidation(errors.Mark(errors.New("x"), chatmodel.ErrValidation)))
}
