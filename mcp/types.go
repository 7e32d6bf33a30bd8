package mcp

import (
	"encoding/json"
	"slices"

	"github.com/effective-security/supportagent/chatmodel"
	"github.com/invopop/jsonschema"
)

// ProtocolVersion is the protocol revision negotiated on initialize.
const ProtocolVersion = "2024-11-05"

// Protocol methods
const (
	MethodInitialize = "initialize"
	MethodPing       = "ping"
	MethodToolsList  = "tools/list"
	MethodToolsCall  = "tools/call"
)

// ContentTypeText is the type of a text content part.
const ContentTypeText = "text"

// Implementation describes the name and version of a peer.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams is sent by the client to start the session.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      Implementation `json:"clientInfo"`
}

// ToolsCapability is present if the server offers tools.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ServerCapabilities lists the capabilities of the server.
type ServerCapabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

// InitializeResult is the response of the server to initialize.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// ToolInfo is a tool entry of the catalog.
type ToolInfo struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	InputSchema *jsonschema.Schema `json:"inputSchema"`
}

// Definition converts the catalog entry to a tool definition.
func (t ToolInfo) Definition() chatmodel.ToolDefinition {
	return chatmodel.ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: t.InputSchema,
	}
}

// ListToolsResult is the response to tools/list.
type ListToolsResult struct {
	Tools []ToolInfo `json:"tools"`
}

// CallToolParams is the request of tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Content is a part of the tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// CallToolResult is the response to tools/call.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// FirstText returns the text of the first text part,
// multi-part results are reduced to the first part.
func (r *CallToolResult) FirstText() string {
	if r == nil {
		return ""
	}
	idx := slices.IndexFunc(r.Content, func(c Content) bool {
		return c.Type == ContentTypeText
	})
	if idx < 0 {
		return ""
	}
	return r.Content[idx].Text
}

// ToolResult converts the protocol result to the normalized tool result.
func (r *CallToolResult) ToolResult() chatmodel.ToolResult {
	text := r.FirstText()
	res := chatmodel.ToolResult{
		Success: !r.IsError,
		Payload: textPayload(text),
	}
	if r.IsError {
		res.ErrorDetail = errorDetail(text)
	}
	return res
}

// textPayload keeps JSON text as raw JSON, so it is not quoted
// again when the result is serialized.
func textPayload(text string) any {
	if text == "" {
		return nil
	}
	if json.Valid([]byte(text)) {
		return json.RawMessage(text)
	}
	return text
}

// errorDetail extracts the failure reason from a tool payload,
// falling back to the whole text.
func errorDetail(text string) string {
	var p struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(text), &p); err == nil {
		if p.Error != "" {
			return p.Error
		}
		if p.Message != "" {
			return p.Message
		}
	}
	if text == "" {
		return "tool reported failure"
	}
	return text
}
