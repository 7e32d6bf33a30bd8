package bedrock

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// API is the Bedrock runtime client used by the model.
type API interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type options struct {
	modelID string
	region  string

	accessKeyID     string
	secretAccessKey string
	sessionToken    string

	client API
}

// Option is an option for the Bedrock model.
type Option func(*options)

// WithModel sets the model ID or inference profile to use.
func WithModel(modelID string) Option {
	return func(o *options) {
		o.modelID = modelID
	}
}

// WithRegion overrides the AWS region of the default config.
func WithRegion(region string) Option {
	return func(o *options) {
		o.region = region
	}
}

// WithStaticCredentials uses the given keys instead of the default credential chain.
func WithStaticCredentials(accessKeyID, secretAccessKey, sessionToken string) Option {
	return func(o *options) {
		o.accessKeyID = accessKeyID
		o.secretAccessKey = secretAccessKey
		o.sessionToken = sessionToken
	}
}

// WithClient sets the runtime client, the region and credentials options are ignored.
func WithClient(client API) Option {
	return func(o *options) {
		o.client = client
	}
}
