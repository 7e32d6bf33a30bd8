package bedrockclient

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/chatmodel"
	"github.com/effective-security/supportagent/pkg/llms"
	"github.com/effective-security/x/values"
)

// Ref: https://docs.aws.amazon.com/bedrock/latest/userguide/model-parameters-anthropic-claude-messages.html

// anthropicContent is a single content block of a message.
type anthropicContent struct {
	// One of: "text", "tool_use", "tool_result"
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	// Tool use fields
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
	// Tool result fields
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type anthropicMessage struct {
	// One of: ["user", "assistant"]
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicTool struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	InputSchema anthropicInputSchema `json:"input_schema"`
}

type anthropicInputSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Required   []string       `json:"required,omitempty"`
}

type anthropicInput struct {
	AnthropicVersion string              `json:"anthropic_version"`
	MaxTokens        int                 `json:"max_tokens"`
	System           string              `json:"system,omitempty"`
	Messages         []*anthropicMessage `json:"messages"`
	Temperature      float64             `json:"temperature,omitempty"`
	StopSequences    []string            `json:"stop_sequences,omitempty"`
	Tools            []anthropicTool     `json:"tools,omitempty"`
}

type anthropicOutput struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Role string `json:"role"`
	// "text" or "tool_use" blocks
	Content []anthropicContent `json:"content"`
	// One of: ["end_turn", "max_tokens", "stop_sequence", "tool_use"]
	StopReason   string `json:"stop_reason"`
	StopSequence string `json:"stop_sequence"`
	Usage        struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

// The latest version of the model.
const (
	AnthropicLatestVersion = "bedrock-2023-05-31"
	AnthropicMaxTokens     = 2048
)

func createAnthropicCompletion(ctx context.Context, client API, modelID string, req *llms.Request) (*llms.Response, error) {
	msgs, err := toAnthropicMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	input := anthropicInput{
		AnthropicVersion: AnthropicLatestVersion,
		MaxTokens:        values.NumbersCoalesce(req.MaxTokens, AnthropicMaxTokens),
		System:           req.SystemPrompt,
		Messages:         msgs,
		Temperature:      req.Temperature,
		StopSequences:    req.StopWords,
		Tools:            toAnthropicTools(req.Tools),
	}

	body, err := json.Marshal(input)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	resp, err := client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		Accept:      aws.String("*/*"),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var output anthropicOutput
	if err = json.Unmarshal(resp.Body, &output); err != nil {
		return nil, errors.Wrap(err, "failed to decode response")
	}
	return fromAnthropicOutput(&output), nil
}

func toAnthropicTools(defs []chatmodel.ToolDefinition) []anthropicTool {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]anthropicTool, len(defs))
	for i, def := range defs {
		tools[i] = anthropicTool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: anthropicInputSchema{
				Type:       "object",
				Properties: def.PropertiesMap(),
				Required:   def.RequiredFields(),
			},
		}
	}
	return tools
}

func toAnthropicMessages(messages []chatmodel.Message) ([]*anthropicMessage, error) {
	res := make([]*anthropicMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.Role != chatmodel.RoleUser && msg.Role != chatmodel.RoleAssistant {
			return nil, errors.Newf("role not supported: %q", msg.Role)
		}

		content := make([]anthropicContent, 0, len(msg.Content))
		for _, block := range msg.Content {
			switch b := block.(type) {
			case chatmodel.TextBlock:
				if b.Text == "" {
					continue
				}
				content = append(content, anthropicContent{Type: string(chatmodel.BlockTypeText), Text: b.Text})
			case chatmodel.ToolUseBlock:
				input := b.Input
				if len(input) == 0 {
					input = json.RawMessage("{}")
				}
				content = append(content, anthropicContent{
					Type:  string(chatmodel.BlockTypeToolUse),
					ID:    b.ID,
					Name:  b.Name,
					Input: input,
				})
			case chatmodel.ToolResultBlock:
				content = append(content, anthropicContent{
					Type:      string(chatmodel.BlockTypeToolResult),
					ToolUseID: b.ToolUseID,
					Content:   b.Content,
					IsError:   b.IsError,
				})
			default:
				return nil, errors.Newf("content not supported: %T", block)
			}
		}
		if len(content) == 0 {
			continue
		}

		res = append(res, &anthropicMessage{
			Role:    string(msg.Role),
			Content: content,
		})
	}
	return res, nil
}

func fromAnthropicOutput(output *anthropicOutput) *llms.Response {
	resp := &llms.Response{
		ID:         output.ID,
		StopReason: llms.StopReason(output.StopReason),
		Usage: llms.Usage{
			InputTokens:  output.Usage.InputTokens,
			OutputTokens: output.Usage.OutputTokens,
		},
	}
	for _, c := range output.Content {
		switch chatmodel.BlockType(c.Type) {
		case chatmodel.BlockTypeText:
			resp.Content = append(resp.Content, chatmodel.TextBlock{Text: c.Text})
		case chatmodel.BlockTypeToolUse:
			resp.Content = append(resp.Content, chatmodel.ToolUseBlock{
				ID:    c.ID,
				Name:  c.Name,
				Input: c.Input,
			})
		}
	}
	return resp
}
