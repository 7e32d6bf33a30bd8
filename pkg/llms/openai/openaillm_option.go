package openai

import (
	"net/http"
	"time"
)

const (
	// TokenEnvVarName is the environment variable with the API key
	TokenEnvVarName = "OPENAI_API_KEY" //nolint:gosec
	// BaseURLEnvVarName is the environment variable with the API endpoint
	BaseURLEnvVarName = "OPENAI_BASE_URL"
	// OrganizationEnvVarName is the environment variable with the organization
	OrganizationEnvVarName = "OPENAI_ORG_ID"
)

// Options of the OpenAI client
type Options struct {
	Token          string
	Model          string
	BaseURL        string
	Organization   string
	HTTPClient     *http.Client
	MaxRetries     int
	RequestTimeout time.Duration
}

// Option configures the client
type Option func(*Options)

// WithToken sets the API key, OPENAI_API_KEY is used by default.
func WithToken(token string) Option {
	return func(opts *Options) {
		opts.Token = token
	}
}

// WithModel sets the chat model, DefaultModel if not set.
func WithModel(model string) Option {
	return func(opts *Options) {
		opts.Model = model
	}
}

// WithBaseURL overrides the API endpoint, e.g. for a compatible gateway.
func WithBaseURL(baseURL string) Option {
	return func(opts *Options) {
		opts.BaseURL = baseURL
	}
}

// WithOrganization sets the OpenAI-Organization header.
func WithOrganization(organization string) Option {
	return func(opts *Options) {
		opts.Organization = organization
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(opts *Options) {
		opts.HTTPClient = client
	}
}

// WithMaxRetries sets the number of retries of a failed request.
func WithMaxRetries(n int) Option {
	return func(opts *Options) {
		opts.MaxRetries = n
	}
}

// WithRequestTimeout sets the timeout of a model call.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(opts *Options) {
		opts.RequestTimeout = timeout
	}
}
