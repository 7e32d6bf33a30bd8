package llmfactory

import (
	"slices"

	"github.com/effective-security/x/configloader"
)

// Config specifies the model providers
type Config struct {
	// Providers specifies the list of providers to use
	Providers []*ProviderConfig `json:"providers" yaml:"providers" toml:"providers" validate:"dive"`
	// DefaultProvider is the name of the provider used when none is requested,
	// the first provider if empty
	DefaultProvider string `json:"default_provider,omitempty" yaml:"default_provider,omitempty" toml:"default_provider,omitempty"`
}

// ProviderConfig for a model provider
type ProviderConfig struct {
	Name string `json:"name" yaml:"name" toml:"name" validate:"required"`
	// Type specifies the type of API to use:
	// ANTHROPIC|BEDROCK|GOOGLEAI|OPENAI
	Type            string   `json:"type" yaml:"type" toml:"type" validate:"required,oneof=ANTHROPIC BEDROCK GOOGLEAI OPENAI"`
	Token           string   `json:"token,omitempty" yaml:"token,omitempty" toml:"token,omitempty"`
	BaseURL         string   `json:"base_url,omitempty" yaml:"base_url,omitempty" toml:"base_url,omitempty"`
	Region          string   `json:"region,omitempty" yaml:"region,omitempty" toml:"region,omitempty"`
	DefaultModel    string   `json:"default_model,omitempty" yaml:"default_model,omitempty" toml:"default_model,omitempty"`
	AvailableModels []string `json:"available_models,omitempty" yaml:"available_models,omitempty" toml:"available_models,omitempty"`
}

// HasModel returns true if the model is the default or one of the available models
func (c *ProviderConfig) HasModel(model string) bool {
	return model != "" && (model == c.DefaultModel || slices.Contains(c.AvailableModels, model))
}

// FindModel returns the first available model, or the default one
func (c *ProviderConfig) FindModel(models ...string) string {
	for _, model := range models {
		if c.HasModel(model) {
			return model
		}
	}
	return c.DefaultModel
}

// LoadConfig from file, an empty name returns an empty configuration
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return cfg, nil
	}

	if err := configloader.UnmarshalAndExpand(file, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
