package llmfactory

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/pkg/llms"
	"github.com/effective-security/supportagent/pkg/llms/anthropic"
	"github.com/effective-security/supportagent/pkg/llms/bedrock"
	"github.com/effective-security/supportagent/pkg/llms/googleai"
	"github.com/effective-security/supportagent/pkg/llms/openai"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/supportagent/pkg", "llmfactory")

// NewLLM creates the model of the provider, tests replace it with a fake
var NewLLM = CreateLLM

type constructor func(cfg *ProviderConfig, model string) (llms.Model, error)

var constructors = map[llms.ProviderType]constructor{
	llms.ProviderAnthropic: newAnthropic,
	llms.ProviderBedrock:   newBedrock,
	llms.ProviderGoogleAI:  newGoogleAI,
	llms.ProviderOpenAI:    newOpenAI,
}

// Factory returns the models of the configured providers
type Factory interface {
	// Model returns a model of the named provider, or of the default provider
	// when the name is empty.
	// The first available preferred model is used, otherwise the provider default.
	Model(provider string, preferredModels ...string) (llms.Model, error)
	// ModelByName returns the model of the first provider that lists one of the names.
	ModelByName(names ...string) (llms.Model, error)
}

// Load returns the factory configured from the file
func Load(location string) (Factory, error) {
	cfg, err := LoadConfig(location)
	if err != nil {
		return nil, err
	}
	return New(cfg), nil
}

type factory struct {
	cfg    *Config
	models map[string]llms.Model
	lock   sync.Mutex
}

// New returns the factory of the providers
func New(cfg *Config) Factory {
	return &factory{
		cfg:    cfg,
		models: make(map[string]llms.Model),
	}
}

// CreateLLM creates the model of the provider,
// the first available preferred model or the provider default is used.
func CreateLLM(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	typ := llms.ProviderType(strings.ToUpper(cfg.Type))
	create, ok := constructors[typ]
	if !ok {
		return nil, errors.Errorf("unsupported provider type: %s", typ)
	}
	return create(cfg, cfg.FindModel(preferredModels...))
}

func newAnthropic(cfg *ProviderConfig, model string) (llms.Model, error) {
	opts := []anthropic.Option{anthropic.WithModel(model)}
	if cfg.Token != "" {
		opts = append(opts, anthropic.WithToken(cfg.Token))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	return anthropic.New(opts...)
}

func newGoogleAI(cfg *ProviderConfig, model string) (llms.Model, error) {
	var opts []googleai.Option
	if model != "" {
		opts = append(opts, googleai.WithDefaultModel(model))
	}
	if cfg.Token != "" {
		opts = append(opts, googleai.WithAPIKey(cfg.Token))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, googleai.WithBaseURL(cfg.BaseURL))
	}
	return googleai.New(context.Background(), opts...)
}

func newOpenAI(cfg *ProviderConfig, model string) (llms.Model, error) {
	opts := []openai.Option{openai.WithModel(model)}
	if cfg.Token != "" {
		opts = append(opts, openai.WithToken(cfg.Token))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	return openai.New(opts...)
}

func newBedrock(cfg *ProviderConfig, model string) (llms.Model, error) {
	var opts []bedrock.Option
	if model != "" {
		opts = append(opts, bedrock.WithModel(model))
	}
	if cfg.Region != "" {
		opts = append(opts, bedrock.WithRegion(cfg.Region))
	}
	return bedrock.New(opts...)
}

func (f *factory) provider(name string) *ProviderConfig {
	name = values.StringsCoalesce(name, f.cfg.DefaultProvider)
	for _, p := range f.cfg.Providers {
		if p.Name == name {
			return p
		}
	}
	if name == f.cfg.DefaultProvider && len(f.cfg.Providers) > 0 {
		return f.cfg.Providers[0]
	}
	return nil
}

func (f *factory) Model(provider string, preferredModels ...string) (llms.Model, error) {
	if len(f.cfg.Providers) == 0 {
		return nil, errors.New("no providers configured")
	}
	p := f.provider(provider)
	if p == nil {
		return nil, errors.Errorf("provider not found: %s", provider)
	}
	return f.create(p, p.FindModel(preferredModels...))
}

func (f *factory) ModelByName(names ...string) (llms.Model, error) {
	for _, name := range names {
		for _, p := range f.cfg.Providers {
			if p.HasModel(name) {
				return f.create(p, name)
			}
		}
	}
	return nil, errors.Errorf("model not found: %s", strings.Join(names, ","))
}

// create returns the cached model of the provider
func (f *factory) create(p *ProviderConfig, model string) (llms.Model, error) {
	key := p.Name + "/" + model

	f.lock.Lock()
	defer f.lock.Unlock()

	if m, ok := f.models[key]; ok {
		return m, nil
	}

	m, err := NewLLM(p, model)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to create model of %s provider", p.Name)
	}

	logger.KV(xlog.DEBUG,
		"status", "created_llm",
		"provider", p.Name,
		"type", p.Type,
		"model", m.GetName(),
	)
	f.models[key] = m
	return m, nil
}
