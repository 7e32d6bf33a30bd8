package anthropic

import (
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
)

// TokenEnvVarName is the environment variable with the API key
const TokenEnvVarName = "ANTHROPIC_API_KEY" //nolint:gosec

// DefaultRequestTimeout limits a single Messages API call, retries included
const DefaultRequestTimeout = 5 * time.Minute

// Options of the Anthropic client
type Options struct {
	Token          string
	Model          string
	BaseURL        string
	HTTPClient     option.HTTPClient
	MaxRetries     int
	RequestTimeout time.Duration
	// Headers are added to every request, e.g. anthropic-beta
	Headers http.Header
}

// Option configures the client
type Option func(*Options)

// WithToken sets the API key, ANTHROPIC_API_KEY is used by default.
func WithToken(token string) Option {
	return func(opts *Options) {
		opts.Token = token
	}
}

// WithModel sets the model name, required.
func WithModel(model string) Option {
	return func(opts *Options) {
		opts.Model = model
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(opts *Options) {
		opts.BaseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client, http.DefaultClient by default.
func WithHTTPClient(client option.HTTPClient) Option {
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

// WithHeader adds the header to every request.
func WithHeader(key, value string) Option {
	return func(opts *Options) {
		if opts.Headers == nil {
			opts.Headers = make(http.Header)
		}
		opts.Headers.Add(key, value)
	}
}
