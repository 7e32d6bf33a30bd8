package assistants

import (
	"github.com/effective-security/supportagent/pkg/prompts"
)

// Option is a function that can be used to modify the behavior of the Agent Config.
type Option func(*Config)

// Config of the Agent
type Config struct {
	// Name of the agent, used in metrics and logs
	Name string

	// MaxTurns is the number of model calls allowed per user turn.
	MaxTurns int

	// ParallelToolCalls enables concurrent dispatch of the tools
	// requested in one model reply.
	ParallelToolCalls bool

	// IdentityKey is the tool argument that carries the session user ID.
	IdentityKey string

	// SystemPrompt is the system prompt template,
	// prompts.SystemPromptTemplate is used if empty.
	SystemPrompt string

	// PromptData is the input of the system prompt template.
	PromptData prompts.SystemPromptData

	// MaxTokens is the maximum number of tokens to generate in a model call.
	MaxTokens int

	// Temperature is the temperature for sampling in a model call.
	Temperature float64

	// StopWords is a list of words to stop on in a model call.
	StopWords []string

	// Callback receives the events of the turns
	Callback Callback
}

// NewConfig returns the Agent config with defaults
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		Name:        DefaultName,
		MaxTurns:    DefaultMaxTurns,
		IdentityKey: prompts.DefaultIdentityKey,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithName sets the name of the agent
func WithName(name string) Option {
	return func(o *Config) {
		o.Name = name
	}
}

// WithMaxTurns sets the number of model calls allowed per user turn
func WithMaxTurns(maxTurns int) Option {
	return func(o *Config) {
		o.MaxTurns = maxTurns
	}
}

// WithParallelToolCalls enables concurrent tool dispatch
func WithParallelToolCalls(parallel bool) Option {
	return func(o *Config) {
		o.ParallelToolCalls = parallel
	}
}

// WithIdentityKey sets the tool argument that carries the session user ID
func WithIdentityKey(key string) Option {
	return func(o *Config) {
		o.IdentityKey = key
	}
}

// WithSystemPrompt sets the system prompt template
func WithSystemPrompt(text string) Option {
	return func(o *Config) {
		o.SystemPrompt = text
	}
}

// WithPromptData sets the input of the system prompt template
func WithPromptData(data prompts.SystemPromptData) Option {
	return func(o *Config) {
		o.PromptData = data
	}
}

// WithMaxTokens is an option for the model call.
func WithMaxTokens(maxTokens int) Option {
	return func(o *Config) {
		o.MaxTokens = maxTokens
	}
}

// WithTemperature is an option for the model call.
func WithTemperature(temperature float64) Option {
	return func(o *Config) {
		o.Temperature = temperature
	}
}

// WithStopWords is an option for setting the stop words for the model call.
func WithStopWords(stopWords []string) Option {
	return func(o *Config) {
		o.StopWords = stopWords
	}
}

// WithCallback allows setting a custom Callback Handler.
func WithCallback(callbackHandler Callback) Option {
	return func(o *Config) {
		o.Callback = callbackHandler
	}
}
