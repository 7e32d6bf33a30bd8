package googleai

import (
	"net/http"
	"os"

	"google.golang.org/genai"
)

// APIKeyEnvVarName is read when no API key is set.
const APIKeyEnvVarName = "GOOGLE_API_KEY" //nolint:gosec

// Options is a set of options for the Gemini API client.
type Options struct {
	DefaultModel       string
	DefaultMaxTokens   int
	DefaultTemperature float64
	HarmThreshold      genai.HarmBlockThreshold
	APIKey             string
	BaseURL            string
	HTTPClient         *http.Client
}

func DefaultOptions() Options {
	return Options{
		DefaultModel:       "gemini-2.5-pro",
		DefaultMaxTokens:   4096,
		DefaultTemperature: 0.5,
		HarmThreshold:      genai.HarmBlockThresholdBlockOnlyHigh,
	}
}

// EnsureAuthPresent uses the GOOGLE_API_KEY environment variable
// if no API key is set.
func (o *Options) EnsureAuthPresent() {
	if o.APIKey == "" {
		o.APIKey = os.Getenv(APIKeyEnvVarName)
	}
}

type Option func(*Options)

// WithAPIKey passes the API KEY (token) to the client.
func WithAPIKey(apiKey string) Option {
	return func(opts *Options) {
		opts.APIKey = apiKey
	}
}

// WithBaseURL overrides the Gemini API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(opts *Options) {
		opts.BaseURL = baseURL
	}
}

// WithHTTPClient uses the provided HTTP client to make requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(opts *Options) {
		opts.HTTPClient = httpClient
	}
}

// WithDefaultModel passes a default content model name to the client.
func WithDefaultModel(defaultModel string) Option {
	return func(opts *Options) {
		opts.DefaultModel = defaultModel
	}
}

// WithDefaultMaxTokens sets the maximum token count for the model,
// used when the request does not set one.
func WithDefaultMaxTokens(maxTokens int) Option {
	return func(opts *Options) {
		opts.DefaultMaxTokens = maxTokens
	}
}

// WithDefaultTemperature sets the temperature for the model,
// used when the request does not set one.
func WithDefaultTemperature(defaultTemperature float64) Option {
	return func(opts *Options) {
		opts.DefaultTemperature = defaultTemperature
	}
}

// WithHarmThreshold sets the safety/harm setting for the model, potentially
// limiting any harmful content it may generate.
func WithHarmThreshold(ht genai.HarmBlockThreshold) Option {
	return func(opts *Options) {
		opts.HarmThreshold = ht
	}
}
