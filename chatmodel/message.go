package chatmodel

import (
	"encoding/json"
	"slices"
	"strings"
)

// Role is the author of a message.
type Role string

const (
	// RoleUser is used for user input and for tool results.
	RoleUser Role = "user"
	// RoleAssistant is used for model output.
	RoleAssistant Role = "assistant"
)

// BlockType is the discriminator of a ContentBlock.
type BlockType string

const (
	BlockTypeText       BlockType = "text"
	BlockTypeToolUse    BlockType = "tool_use"
	BlockTypeToolResult BlockType = "tool_result"
)

// ContentBlock is a closed set of message content elements:
// TextBlock, ToolUseBlock and ToolResultBlock.
type ContentBlock interface {
	// Type returns the block discriminator.
	Type() BlockType

	contentBlock()
}

// TextBlock is plain text content.
type TextBlock struct {
	Text string `json:"text"`
}

// ToolUseBlock is a model request to invoke a tool.
// ID is opaque and generated by the model service.
type ToolUseBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResultBlock carries the outcome of a tool invocation,
// ToolUseID echoes the ID of the originating ToolUseBlock.
type ToolResultBlock struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

func (TextBlock) Type() BlockType       { return BlockTypeText }
func (ToolUseBlock) Type() BlockType    { return BlockTypeToolUse }
func (ToolResultBlock) Type() BlockType { return BlockTypeToolResult }

func (TextBlock) contentBlock()       {}
func (ToolUseBlock) contentBlock()    {}
func (ToolResultBlock) contentBlock() {}

// Arguments decodes the tool input into a map.
// Empty or null input yields an empty map.
func (b ToolUseBlock) Arguments() (map[string]any, error) {
	args := map[string]any{}
	if isEmptyJSON(b.Input) {
		return args, nil
	}
	if err := json.Unmarshal(b.Input, &args); err != nil {
		return nil, err
	}
	return args, nil
}

func isEmptyJSON(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

// Message is one entry of the conversation history.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// NewTextMessage returns a message with a single text block.
func NewTextMessage(role Role, text string) Message {
	return Message{
		Role:    role,
		Content: []ContentBlock{TextBlock{Text: text}},
	}
}

// NewToolResultsMessage returns a user message with the tool results,
// in the given order.
func NewToolResultsMessage(results ...ToolResultBlock) Message {
	content := make([]ContentBlock, 0, len(results))
	for _, r := range results {
		content = append(content, r)
	}
	return Message{
		Role:    RoleUser,
		Content: content,
	}
}

// Text returns the text blocks of the message joined by a new line.
func (m Message) Text() string {
	var parts []string
	for _, block := range m.Content {
		if tb, ok := block.(TextBlock); ok && tb.Text != "" {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ToolUses returns the tool use blocks of the message in order.
func (m Message) ToolUses() []ToolUseBlock {
	return ToolUses(m.Content)
}

// ToolUses returns the tool use blocks in order.
func ToolUses(blocks []ContentBlock) []ToolUseBlock {
	var res []ToolUseBlock
	for _, block := range blocks {
		if tu, ok := block.(ToolUseBlock); ok {
			res = append(res, tu)
		}
	}
	return res
}

// Clone returns a copy of the message that does not share content
// with the original.
func (m Message) Clone() Message {
	content := make([]ContentBlock, len(m.Content))
	for i, block := range m.Content {
		if tu, ok := block.(ToolUseBlock); ok {
			tu.Input = slices.Clone(tu.Input)
			block = tu
		}
		content[i] = block
	}
	return Message{
		Role:    m.Role,
		Content: content,
	}
}

// CloneMessages returns a deep copy of the history.
func CloneMessages(list []Message) []Message {
	if list == nil {
		return nil
	}
	res := make([]Message, len(list))
	for i, m := range list {
		res[i] = m.Clone()
	}
	return res
}

// CountContentSize returns the number of bytes of text and tool payloads
// in the history.
func CountContentSize(list []Message) uint64 {
	var size uint64
	for _, m := range list {
		for _, block := range m.Content {
			switch b := block.(type) {
			case TextBlock:
				size += uint64(len(b.Text))
			case ToolUseBlock:
				size += uint64(len(b.Name) + len(b.Input))
			case ToolResultBlock:
				size += uint64(len(b.Content))
			}
		}
	}
	return size
}
