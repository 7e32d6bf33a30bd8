package chatmodel

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// ToolDefinition describes a tool published to the model.
type ToolDefinition struct {
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description" yaml:"description"`
	InputSchema *jsonschema.Schema `json:"input_schema" yaml:"input_schema"`
}

// PropertiesMap returns the top level schema properties as a plain map.
func (d ToolDefinition) PropertiesMap() map[string]any {
	if d.InputSchema == nil || d.InputSchema.Properties == nil {
		return nil
	}
	props := make(map[string]any, d.InputSchema.Properties.Len())
	for pair := d.InputSchema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		props[pair.Key] = pair.Value
	}
	return props
}

// RequiredFields returns the required argument names.
func (d ToolDefinition) RequiredFields() []string {
	if d.InputSchema == nil {
		return nil
	}
	return d.InputSchema.Required
}

// ToolResult is the normalized outcome of a tool invocation,
// produced by every transport, including on failure.
type ToolResult struct {
	Success bool `json:"success"`
	// Payload is text or structured data.
	Payload any `json:"result,omitempty"`
	// ErrorDetail describes the failure when Success is false.
	ErrorDetail string `json:"error,omitempty"`
}

// NewFailedResult returns a failed result with the error detail.
func NewFailedResult(format string, args ...any) ToolResult {
	return ToolResult{
		Success:     false,
		ErrorDetail: fmt.Sprintf(format, args...),
	}
}

// Text reduces the result to the single string that is sent to the model.
func (r ToolResult) Text() string {
	if r.Payload == nil {
		if !r.Success {
			return r.ErrorDetail
		}
		return ""
	}
	switch v := r.Payload.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case json.RawMessage:
		return string(v)
	case fmt.Stringer:
		return v.String()
	}
	js, err := json.MarshalIndent(r.Payload, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", r.Payload)
	}
	return string(js)
}

// ToBlock returns the tool result block for the given tool use ID.
func (r ToolResult) ToBlock(toolUseID string) ToolResultBlock {
	return ToolResultBlock{
		ToolUseID: toolUseID,
		Content:   r.Text(),
		IsError:   !r.Success,
	}
}
