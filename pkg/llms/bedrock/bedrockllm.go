package bedrock

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/pkg/llms"
	"github.com/effective-security/supportagent/pkg/llms/bedrock/internal/bedrockclient"
)

// DefaultModel is the Claude inference profile used when no model is set.
const DefaultModel = "us.anthropic.claude-sonnet-4-20250514-v1:0"

// LLM is a Bedrock LLM implementation.
type LLM struct {
	modelID string
	client  *bedrockclient.Client
}

var _ llms.Model = (*LLM)(nil)

// New creates a new Bedrock LLM implementation.
func New(opts ...Option) (*LLM, error) {
	o, c, err := newClient(opts...)
	if err != nil {
		return nil, err
	}
	return &LLM{
		client:  c,
		modelID: o.modelID,
	}, nil
}

func newClient(opts ...Option) (*options, *bedrockclient.Client, error) {
	options := &options{
		modelID: DefaultModel,
	}

	for _, opt := range opts {
		opt(options)
	}

	if options.client == nil {
		var loadOpts []func(*config.LoadOptions) error
		if options.region != "" {
			loadOpts = append(loadOpts, config.WithRegion(options.region))
		}
		if options.accessKeyID != "" {
			loadOpts = append(loadOpts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(options.accessKeyID, options.secretAccessKey, options.sessionToken)))
		}

		cfg, err := config.LoadDefaultConfig(context.Background(), loadOpts...)
		if err != nil {
			return options, nil, errors.Wrap(err, "bedrock: failed to load AWS config")
		}
		options.client = bedrockruntime.NewFromConfig(cfg)
	}

	return options, bedrockclient.NewClient(options.client), nil
}

// GetName implements the Model interface.
func (l *LLM) GetName() string {
	return l.modelID
}

// GetProviderType implements the Model interface.
func (l *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderBedrock
}

// GenerateContent implements llms.Model.
func (l *LLM) GenerateContent(ctx context.Context, req *llms.Request) (resp *llms.Response, err error) {
	defer llms.Observe(ctx, l, time.Now(), &resp, &err)

	resp, err = l.client.CreateCompletion(ctx, l.modelID, req)
	if err != nil {
		return nil, llms.InvocationError(err, "bedrock: failed to invoke model %s", l.modelID)
	}
	return resp, nil
}
