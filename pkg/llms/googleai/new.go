// Package googleai implements a Gemini API model with function calling.
// See https://ai.google.dev/ for more details.
package googleai

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/pkg/llms"
	"google.golang.org/genai"
)

// GoogleAI is a type that represents a Google AI API client.
type GoogleAI struct {
	client *genai.Client
	opts   Options
}

var _ llms.Model = (*GoogleAI)(nil)

// New creates a new GoogleAI client.
func New(ctx context.Context, opts ...Option) (*GoogleAI, error) {
	clientOptions := DefaultOptions()
	for _, opt := range opts {
		opt(&clientOptions)
	}
	clientOptions.EnsureAuthPresent()

	if clientOptions.APIKey == "" {
		return nil, errors.New("googleai: missing API key, set it in the GOOGLE_API_KEY environment variable")
	}

	cfg := &genai.ClientConfig{
		APIKey:     clientOptions.APIKey,
		HTTPClient: clientOptions.HTTPClient,
		Backend:    genai.BackendGeminiAPI,
	}
	if clientOptions.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: clientOptions.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "googleai: failed to create client")
	}

	return &GoogleAI{
		client: client,
		opts:   clientOptions,
	}, nil
}
