package chatmodel

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

type blockEnvelope struct {
	Type      BlockType       `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type messageEnvelope struct {
	Role    Role            `json:"role"`
	Content []blockEnvelope `json:"content"`
}

// MarshalJSON encodes the message with a `type` tag on every block,
// the same shape the model service uses.
func (m Message) MarshalJSON() ([]byte, error) {
	env := messageEnvelope{
		Role:    m.Role,
		Content: make([]blockEnvelope, 0, len(m.Content)),
	}
	for _, block := range m.Content {
		switch b := block.(type) {
		case TextBlock:
			env.Content = append(env.Content, blockEnvelope{Type: BlockTypeText, Text: b.Text})
		case ToolUseBlock:
			input := b.Input
			if isEmptyJSON(input) {
				input = json.RawMessage(`{}`)
			}
			env.Content = append(env.Content, blockEnvelope{Type: BlockTypeToolUse, ID: b.ID, Name: b.Name, Input: input})
		case ToolResultBlock:
			env.Content = append(env.Content, blockEnvelope{Type: BlockTypeToolResult, ToolUseID: b.ToolUseID, Content: b.Content, IsError: b.IsError})
		default:
			return nil, errors.Newf("unsupported content block: %T", block)
		}
	}
	return json.Marshal(env)
}

// UnmarshalJSON decodes the tagged block representation.
func (m *Message) UnmarshalJSON(data []byte) error {
	var env messageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return errors.WithStack(err)
	}

	content := make([]ContentBlock, 0, len(env.Content))
	for _, b := range env.Content {
		switch b.Type {
		case BlockTypeText:
			content = append(content, TextBlock{Text: b.Text})
		case BlockTypeToolUse:
			content = append(content, ToolUseBlock{ID: b.ID, Name: b.Name, Input: b.Input})
		case BlockTypeToolResult:
			content = append(content, ToolResultBlock{ToolUseID: b.ToolUseID, Content: b.Content, IsError: b.IsError})
		default:
			return errors.Newf("unsupported content block type: %q", b.Type)
		}
	}

	m.Role = env.Role
	m.Content = content
	return nil
}
