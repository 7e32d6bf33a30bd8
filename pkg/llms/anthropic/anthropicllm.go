package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/chatmodel"
	"github.com/effective-security/supportagent/pkg/llms"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/supportagent/pkg/llms", "anthropic")

var (
	ErrMissingToken           = errors.New("anthropic: missing API key, set it in the ANTHROPIC_API_KEY environment variable")
	ErrUnsupportedMessageType = errors.New("anthropic: unsupported message type")
	ErrUnsupportedContentType = errors.New("anthropic: unsupported content type")
)

const (
	DefaultMaxTokens = 4096
	DefaultBaseURL   = "https://api.anthropic.com"
)

type LLM struct {
	Client  *anthropic.Client
	Options *Options
}

var _ llms.Model = (*LLM)(nil)

// New creates a new Anthropic model client.
// If no token is provided via options, the API key is read
// from the ANTHROPIC_API_KEY environment variable.
func New(opts ...Option) (*LLM, error) {
	options := &Options{
		Token:          os.Getenv(TokenEnvVarName),
		BaseURL:        DefaultBaseURL,
		HTTPClient:     http.DefaultClient,
		RequestTimeout: DefaultRequestTimeout,
	}

	for _, opt := range opts {
		opt(options)
	}

	if len(options.Token) == 0 {
		return nil, ErrMissingToken
	}
	if options.Model == "" {
		return nil, errors.New("anthropic: model is required")
	}

	return &LLM{
		Client:  newClient(options),
		Options: options,
	}, nil
}

func newClient(options *Options) *anthropic.Client {
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
	if options.HTTPClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(options.HTTPClient))
	}
	for key, vals := range options.Headers {
		sdkOpts = append(sdkOpts, option.WithHeader(key, strings.Join(vals, ",")))
	}

	client := anthropic.NewClient(sdkOpts...)
	return &client
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return o.Options.Model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderAnthropic
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, req *llms.Request) (resp *llms.Response, err error) {
	defer llms.Observe(ctx, o, time.Now(), &resp, &err)

	params, err := NewParams(o.Options.Model, req)
	if err != nil {
		return nil, llms.InvocationError(err, "anthropic: invalid request")
	}

	result, err := o.Client.Messages.New(ctx, params)
	if err != nil {
		return nil, llms.InvocationError(err, "anthropic: failed to create message")
	}

	resp, err = FromMessage(result)
	if err != nil {
		return nil, llms.InvocationError(err, "anthropic: invalid response")
	}
	return resp, nil
}

// NewParams returns the Messages API parameters for the request.
func NewParams(model string, req *llms.Request) (anthropic.MessageNewParams, error) {
	msgs, err := ToMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  msgs,
		MaxTokens: values.NumbersCoalesce(int64(req.MaxTokens), DefaultMaxTokens),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: req.SystemPrompt,
			},
		}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if len(req.StopWords) > 0 {
		params.StopSequences = req.StopWords
	}
	if tools := ToTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}
	return params, nil
}

// FromMessage converts the API reply to a model response.
func FromMessage(result *anthropic.Message) (*llms.Response, error) {
	if result == nil {
		return nil, errors.New("anthropic: no response")
	}

	resp := &llms.Response{
		ID:         result.ID,
		StopReason: llms.StopReason(result.StopReason),
		Usage: llms.Usage{
			InputTokens:  result.Usage.InputTokens,
			OutputTokens: result.Usage.OutputTokens,
		},
	}

	for _, block := range result.Content {
		switch content := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Content = append(resp.Content, chatmodel.TextBlock{Text: content.Text})
		case anthropic.ToolUseBlock:
			input, err := json.Marshal(content.Input)
			if err != nil {
				return nil, errors.Wrap(err, "anthropic: failed to marshal tool use arguments")
			}
			resp.Content = append(resp.Content, chatmodel.ToolUseBlock{
				ID:    content.ID,
				Name:  content.Name,
				Input: input,
			})
		case anthropic.ThinkingBlock, anthropic.RedactedThinkingBlock:
			logger.KV(xlog.DEBUG, "reason", "skip_block", "type", block.Type)
		default:
			return nil, errors.WithMessagef(ErrUnsupportedContentType, "%T", content)
		}
	}
	return resp, nil
}

// ToTools converts tool definitions to the Anthropic tool parameters.
func ToTools(defs []chatmodel.ToolDefinition) []anthropic.ToolUnionParam {
	if len(defs) == 0 {
		return nil
	}

	sdkTools := make([]anthropic.ToolUnionParam, len(defs))
	for i, def := range defs {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type:       "object",
			Properties: def.PropertiesMap(),
		}
		if required := def.RequiredFields(); len(required) > 0 {
			inputSchema.Required = required
		}

		sdkTools[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: inputSchema,
			},
		}
	}
	return sdkTools
}

// ToMessages converts the conversation history to the Anthropic message parameters.
// Messages with no content are skipped.
func ToMessages(messages []chatmodel.Message) ([]anthropic.MessageParam, error) {
	res := make([]anthropic.MessageParam, 0, len(messages))
	for i, msg := range messages {
		blocks, err := toBlocks(msg)
		if err != nil {
			return nil, errors.WithMessagef(err, "message %d", i)
		}
		if len(blocks) == 0 {
			continue
		}

		switch msg.Role {
		case chatmodel.RoleUser:
			res = append(res, anthropic.NewUserMessage(blocks...))
		case chatmodel.RoleAssistant:
			res = append(res, anthropic.NewAssistantMessage(blocks...))
		default:
			return nil, errors.WithMessagef(ErrUnsupportedMessageType, "role %q", msg.Role)
		}
	}
	return res, nil
}

func toBlocks(msg chatmodel.Message) ([]anthropic.ContentBlockParamUnion, error) {
	var blocks []anthropic.ContentBlockParamUnion
	for _, block := range msg.Content {
		switch b := block.(type) {
		case chatmodel.TextBlock:
			// the API rejects empty text blocks
			if b.Text == "" {
				continue
			}
			blocks = append(blocks, anthropic.NewTextBlock(b.Text))
		case chatmodel.ToolUseBlock:
			if msg.Role != chatmodel.RoleAssistant {
				return nil, errors.WithMessagef(ErrUnsupportedContentType, "tool_use in %s message", msg.Role)
			}
			input := b.Input
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(b.ID, input, b.Name))
		case chatmodel.ToolResultBlock:
			if msg.Role != chatmodel.RoleUser {
				return nil, errors.WithMessagef(ErrUnsupportedContentType, "tool_result in %s message", msg.Role)
			}
			blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError))
		default:
			return nil, errors.WithMessagef(ErrUnsupportedContentType, "%T", block)
		}
	}
	return blocks, nil
}
