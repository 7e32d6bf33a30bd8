// Package openai implements the OpenAI Chat Completions API model with function tools.
package openai

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/chatmodel"
	"github.com/effective-security/supportagent/pkg/llms"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/supportagent/pkg/llms", "openai")

var (
	ErrMissingToken           = errors.New("openai: missing API key, set it in the OPENAI_API_KEY environment variable")
	ErrEmptyResponse          = errors.New("openai: empty response")
	ErrUnsupportedMessageType = errors.New("openai: unsupported message type")
	ErrUnsupportedContentType = errors.New("openai: unsupported content type")
)

const (
	DefaultModel          = "gpt-5-mini"
	DefaultMaxTokens      = 4096
	DefaultRequestTimeout = 5 * time.Minute
)

// finish reasons of a choice
const (
	finishStop         = "stop"
	finishLength       = "length"
	finishToolCalls    = "tool_calls"
	finishFunctionCall = "function_call"
)

// LLM is the OpenAI model
type LLM struct {
	client  openai.Client
	Options *Options
}

var _ llms.Model = (*LLM)(nil)

// New creates a new OpenAI model client.
// If no token is provided via options, the API key is read
// from the OPENAI_API_KEY environment variable.
func New(opts ...Option) (*LLM, error) {
	options := &Options{
		Token:          os.Getenv(TokenEnvVarName),
		BaseURL:        os.Getenv(BaseURLEnvVarName),
		Organization:   os.Getenv(OrganizationEnvVarName),
		Model:          DefaultModel,
		RequestTimeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(options)
	}

	if options.Token == "" {
		return nil, ErrMissingToken
	}
	options.Model = values.StringsCoalesce(options.Model, DefaultModel)

	sdkOpts := []option.RequestOption{
		option.WithAPIKey(options.Token),
		option.WithMaxRetries(options.MaxRetries),
	}
	if options.RequestTimeout > 0 {
		sdkOpts = append(sdkOpts, option.WithRequestTimeout(options.RequestTimeout))
	}
	if options.BaseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(options.BaseURL))
	}
	if options.Organization != "" {
		sdkOpts = append(sdkOpts, option.WithOrganization(options.Organization))
	}
	if options.HTTPClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(options.HTTPClient))
	}

	return &LLM{
		client:  openai.NewClient(sdkOpts...),
		Options: options,
	}, nil
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return o.Options.Model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderOpenAI
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, req *llms.Request) (resp *llms.Response, err error) {
	defer llms.Observe(ctx, o, time.Now(), &resp, &err)

	params, err := NewParams(o.Options.Model, req)
	if err != nil {
		return nil, llms.InvocationError(err, "openai: invalid request")
	}

	result, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, llms.InvocationError(err, "openai: failed to create chat completion")
	}

	resp, err = FromCompletion(result)
	if err != nil {
		return nil, llms.InvocationError(err, "openai: invalid response")
	}
	return resp, nil
}

// NewParams returns the Chat Completions parameters for the request.
func NewParams(model string, req *llms.Request) (openai.ChatCompletionNewParams, error) {
	msgs, err := ToMessages(req.SystemPrompt, req.Messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}

	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(model),
		Messages:            msgs,
		MaxCompletionTokens: openai.Int(int64(values.NumbersCoalesce(req.MaxTokens, DefaultMaxTokens))),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if len(req.StopWords) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: req.StopWords}
	}
	if tools := ToTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}
	return params, nil
}

// FromCompletion converts the first choice of the completion to a model response.
func FromCompletion(result *openai.ChatCompletion) (*llms.Response, error) {
	if result == nil || len(result.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	choice := result.Choices[0]

	resp := &llms.Response{
		ID: result.ID,
		Usage: llms.Usage{
			InputTokens:  result.Usage.PromptTokens,
			OutputTokens: result.Usage.CompletionTokens,
		},
	}
	if choice.Message.Content != "" {
		resp.Content = append(resp.Content, chatmodel.TextBlock{Text: choice.Message.Content})
	}
	for _, call := range choice.Message.ToolCalls {
		resp.Content = append(resp.Content, chatmodel.ToolUseBlock{
			ID:    call.ID,
			Name:  call.Function.Name,
			Input: toInput(call.Function.Arguments),
		})
	}
	resp.StopReason = toStopReason(string(choice.FinishReason), resp.HasToolUse())
	return resp, nil
}

// toInput returns the arguments as JSON,
// malformed arguments are kept as a JSON string for the caller to reject.
func toInput(arguments string) json.RawMessage {
	arguments = strings.TrimSpace(arguments)
	if arguments == "" {
		return json.RawMessage("{}")
	}
	if json.Valid([]byte(arguments)) {
		return json.RawMessage(arguments)
	}
	logger.KV(xlog.DEBUG, "reason", "invalid_arguments", "arguments", arguments)
	js, _ := json.Marshal(arguments)
	return js
}

func toStopReason(reason string, hasToolUse bool) llms.StopReason {
	switch reason {
	case finishToolCalls, finishFunctionCall:
		return llms.StopReasonToolUse
	case finishLength:
		return llms.StopReasonMaxTokens
	case finishStop:
		if hasToolUse {
			return llms.StopReasonToolUse
		}
	}
	return llms.StopReasonEndTurn
}

// ToTools converts tool definitions to function tools.
func ToTools(defs []chatmodel.ToolDefinition) []openai.ChatCompletionToolUnionParam {
	if len(defs) == 0 {
		return nil
	}

	tools := make([]openai.ChatCompletionToolUnionParam, len(defs))
	for i, def := range defs {
		props := def.PropertiesMap()
		if props == nil {
			props = map[string]any{}
		}
		parameters := openai.FunctionParameters{
			"type":       "object",
			"properties": props,
		}
		if required := def.RequiredFields(); len(required) > 0 {
			parameters["required"] = required
		}

		tools[i] = openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        def.Name,
			Description: openai.String(def.Description),
			Parameters:  parameters,
		})
	}
	return tools
}

// ToMessages converts the conversation history to chat messages.
// Tool results become tool messages that follow the assistant message with the calls,
// messages with no content are skipped.
func ToMessages(systemPrompt string, messages []chatmodel.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	var res []openai.ChatCompletionMessageParamUnion
	if systemPrompt != "" {
		res = append(res, openai.SystemMessage(systemPrompt))
	}

	for i, msg := range messages {
		switch msg.Role {
		case chatmodel.RoleUser:
			var texts []string
			for _, block := range msg.Content {
				switch b := block.(type) {
				case chatmodel.TextBlock:
					if b.Text != "" {
						texts = append(texts, b.Text)
					}
				case chatmodel.ToolResultBlock:
					res = append(res, openai.ToolMessage(b.Content, b.ToolUseID))
				default:
					return nil, errors.WithMessagef(ErrUnsupportedContentType, "message %d: %s in user message", i, block.Type())
				}
			}
			if len(texts) > 0 {
				res = append(res, openai.UserMessage(strings.Join(texts, "\n")))
			}

		case chatmodel.RoleAssistant:
			m, err := toAssistantMessage(msg)
			if err != nil {
				return nil, errors.WithMessagef(err, "message %d", i)
			}
			if m != nil {
				res = append(res, m.ToParam())
			}

		default:
			return nil, errors.WithMessagef(ErrUnsupportedMessageType, "role %q", msg.Role)
		}
	}
	return res, nil
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireAssistantMessage struct {
	Role      string         `json:"role"`
	Content   *string        `json:"content"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
}

// toAssistantMessage decodes the assistant turn the way the API returned it,
// so it can be sent back as a parameter.
func toAssistantMessage(msg chatmodel.Message) (*openai.ChatCompletionMessage, error) {
	wire := wireAssistantMessage{Role: string(chatmodel.RoleAssistant)}
	var texts []string
	for _, block := range msg.Content {
		switch b := block.(type) {
		case chatmodel.TextBlock:
			if b.Text != "" {
				texts = append(texts, b.Text)
			}
		case chatmodel.ToolUseBlock:
			args := "{}"
			if len(b.Input) > 0 {
				args = string(b.Input)
			}
			wire.ToolCalls = append(wire.ToolCalls, wireToolCall{
				ID:       b.ID,
				Type:     "function",
				Function: wireFunction{Name: b.Name, Arguments: args},
			})
		default:
			return nil, errors.WithMessagef(ErrUnsupportedContentType, "%s in assistant message", block.Type())
		}
	}
	if len(texts) == 0 && len(wire.ToolCalls) == 0 {
		return nil, nil
	}
	if len(texts) > 0 {
		text := strings.Join(texts, "\n")
		wire.Content = &text
	}

	js, err := json.Marshal(wire)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	m := new(openai.ChatCompletionMessage)
	if err = json.Unmarshal(js, m); err != nil {
		return nil, errors.Wrap(err, "failed to decode assistant message")
	}
	return m, nil
}
