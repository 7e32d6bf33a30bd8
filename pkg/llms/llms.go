package llms

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/chatmodel"
	"github.com/effective-security/supportagent/pkg/metricskey"
	"github.com/effective-security/xlog"
)

//go:generate mockgen -source=llms.go -destination=../../mocks/mockllms/llm_mock.gen.go -package mockllms

var logger = xlog.NewPackageLogger("github.com/effective-security/supportagent/pkg", "llms")

// ProviderType is the type of provider.
type ProviderType string

const (
	// ProviderAnthropic is the Anthropic Messages API.
	ProviderAnthropic ProviderType = "ANTHROPIC"
	// ProviderBedrock is Anthropic models on AWS Bedrock.
	ProviderBedrock ProviderType = "BEDROCK"
	// ProviderGoogleAI is the Gemini API.
	ProviderGoogleAI ProviderType = "GOOGLEAI"
	// ProviderOpenAI is the OpenAI Chat Completions API.
	ProviderOpenAI ProviderType = "OPENAI"
)

// StopReason is the reason the model stopped generating.
type StopReason string

const (
	StopReasonEndTurn      StopReason = "end_turn"
	StopReasonToolUse      StopReason = "tool_use"
	StopReasonMaxTokens    StopReason = "max_tokens"
	StopReasonStopSequence StopReason = "stop_sequence"
)

// Model is a language model service.
type Model interface {
	// GetProviderType returns the type of provider.
	GetProviderType() ProviderType
	// GetName returns the model name.
	GetName() string
	// GenerateContent performs exactly one round trip to the model service.
	// Failures are classified as chatmodel.ErrModelInvocation.
	GenerateContent(ctx context.Context, req *Request) (*Response, error)
}

// Request is the input of a model call.
type Request struct {
	// SystemPrompt is sent separately from the history.
	SystemPrompt string
	// Messages is the conversation history.
	Messages []chatmodel.Message
	// Tools is the tool catalog the model may request.
	Tools []chatmodel.ToolDefinition
	// MaxTokens is the maximum number of tokens to generate,
	// the provider default is used if zero.
	MaxTokens int
	// Temperature is the sampling temperature, the provider default is used if zero.
	Temperature float64
	// StopWords is a list of sequences to stop on.
	StopWords []string
}

// Usage reports the token usage of a call.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Response is the reply of the model.
type Response struct {
	ID string
	// Content is the ordered text and tool use blocks.
	Content    []chatmodel.ContentBlock
	StopReason StopReason
	Usage      Usage
}

// ToolUses returns the tool use blocks in order.
func (r *Response) ToolUses() []chatmodel.ToolUseBlock {
	return chatmodel.ToolUses(r.Content)
}

// HasToolUse returns true if the reply requests at least one tool.
func (r *Response) HasToolUse() bool {
	return len(r.ToolUses()) > 0
}

// Text returns the text blocks joined by a new line.
func (r *Response) Text() string {
	return r.Message().Text()
}

// Message returns the reply as an assistant message.
func (r *Response) Message() chatmodel.Message {
	return chatmodel.Message{
		Role:    chatmodel.RoleAssistant,
		Content: r.Content,
	}
}

// InvocationError classifies err as chatmodel.ErrModelInvocation.
func InvocationError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), chatmodel.ErrModelInvocation)
}

// Observe records the metrics of a model call, use with defer.
func Observe(ctx context.Context, m Model, started time.Time, resp **Response, err *error) {
	provider := string(m.GetProviderType())
	model := m.GetName()

	metricskey.PerfModelCall.MeasureSince(started, provider, model)
	metricskey.StatsModelRequests.IncrCounter(1, provider, model)
	if err != nil && *err != nil {
		metricskey.StatsModelFailures.IncrCounter(1, provider, model)
		logger.ContextKV(ctx, xlog.ERROR,
			"provider", provider,
			"model", model,
			"err", (*err).Error(),
		)
		return
	}
	if resp != nil && *resp != nil {
		r := *resp
		metricskey.StatsModelInputTokens.IncrCounter(float64(r.Usage.InputTokens), provider, model)
		metricskey.StatsModelOutputTokens.IncrCounter(float64(r.Usage.OutputTokens), provider, model)
		logger.ContextKV(ctx, xlog.DEBUG,
			"provider", provider,
			"model", model,
			"stop_reason", r.StopReason,
			"blocks", len(r.Content),
			"input_tokens", r.Usage.InputTokens,
			"output_tokens", r.Usage.OutputTokens,
			"elapsed", time.Since(started).String(),
		)
	}
}
