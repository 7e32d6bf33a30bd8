package bedrockclient

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/pkg/llms"
)

// API is the subset of the Bedrock runtime client used by the adapter.
type API interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

var _ API = (*bedrockruntime.Client)(nil)

// Client is a Bedrock client.
type Client struct {
	client API
}

// NewClient creates a new Bedrock client.
func NewClient(client API) *Client {
	return &Client{
		client: client,
	}
}

// ErrUnsupportedProvider is returned for model families without tool use support.
var ErrUnsupportedProvider = errors.New("bedrock: unsupported provider")

func getProvider(modelID string) string {
	// Handle Inference Profiles (e.g., "us.anthropic.claude-3-5-sonnet-20241022-v2:0")
	// and direct model IDs (e.g., "anthropic.claude-3-sonnet-20240229-v1:0")
	parts := strings.Split(modelID, ".")
	if len(parts) >= 2 {
		// region prefix, use the second part as provider
		if len(parts[0]) == 2 && strings.ToLower(parts[0]) == parts[0] {
			return parts[1]
		}
		return parts[0]
	}
	return parts[0]
}

// CreateCompletion sends the request to the model and returns its reply.
func (c *Client) CreateCompletion(ctx context.Context, modelID string, req *llms.Request) (*llms.Response, error) {
	switch provider := getProvider(modelID); provider {
	case "anthropic":
		return createAnthropicCompletion(ctx, c.client, modelID, req)
	default:
		return nil, errors.WithMessagef(ErrUnsupportedProvider, "%q", provider)
	}
}
