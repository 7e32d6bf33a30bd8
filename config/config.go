package config

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/pkg/llmfactory"
	"github.com/effective-security/x/configloader"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/go-playground/validator/v10"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/supportagent", "config")

// Defaults
const (
	DefaultModel         = "claude-sonnet-4-20250514"
	DefaultMaxTokens     = 4096
	DefaultTemperature   = 0.7
	DefaultLogLevel      = "INFO"
	DefaultUserID        = "user_001"
	DefaultProvider      = "anthropic"
	DefaultToolsHost     = "localhost"
	DefaultToolsPort     = 8765
	DefaultMaxTurns      = 10
	DefaultIdentityKey   = "user_id"
	DefaultToolTimeout   = 30 * time.Second
	DefaultShutdownGrace = 5 * time.Second
)

// Tool transports
const (
	TransportLocal = "local"
	TransportPipe  = "pipe"
	TransportHTTP  = "http"
)

// Store backends
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Environment variables that override the configuration
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvModelName       = "MODEL_NAME"
	EnvMaxTokens       = "MAX_TOKENS"
	EnvTemperature     = "TEMPERATURE"
	EnvLogLevel        = "LOG_LEVEL"
	EnvDefaultUserID   = "DEFAULT_USER_ID"
	EnvToolsHost       = "MCP_SERVER_HOST"
	EnvToolsPort       = "MCP_SERVER_PORT"
)

// Config is the application configuration
type Config struct {
	// LogLevel specifies the global log level:
	// TRACE|DEBUG|INFO|NOTICE|WARNING|ERROR|CRITICAL
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level" comment:"TRACE|DEBUG|INFO|NOTICE|WARNING|ERROR|CRITICAL" validate:"oneof=TRACE DEBUG INFO NOTICE WARNING ERROR CRITICAL"`
	// DefaultUserID is the identity of a new session
	DefaultUserID string `json:"default_user_id" yaml:"default_user_id" toml:"default_user_id" comment:"identity of a new session" validate:"required"`

	Model ModelConfig       `json:"model" yaml:"model" toml:"model" comment:"model invocation parameters"`
	LLM   llmfactory.Config `json:"llm" yaml:"llm" toml:"llm" comment:"model providers"`
	Agent AgentConfig       `json:"agent" yaml:"agent" toml:"agent" comment:"tool-use loop settings"`
	Tools ToolsConfig       `json:"tools" yaml:"tools" toml:"tools" comment:"tool bridge settings"`
	Store StoreConfig       `json:"store" yaml:"store" toml:"store" comment:"account record store"`
}

// ModelConfig specifies the model invocation parameters
type ModelConfig struct {
	// Provider is the name of the provider in the LLM section,
	// if empty the default provider is used
	Provider    string  `json:"provider,omitempty" yaml:"provider,omitempty" toml:"provider,omitempty"`
	Name        string  `json:"name" yaml:"name" toml:"name" validate:"required"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens" validate:"gte=1"`
	Temperature float64 `json:"temperature" yaml:"temperature" toml:"temperature" validate:"gte=0,lte=2"`
}

// AgentConfig specifies the tool-use loop settings
type AgentConfig struct {
	Name              string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	MaxTurns          int    `json:"max_turns" yaml:"max_turns" toml:"max_turns" comment:"model calls per user turn" validate:"gte=1"`
	ParallelToolCalls bool   `json:"parallel_tool_calls" yaml:"parallel_tool_calls" toml:"parallel_tool_calls"`
	IdentityKey       string `json:"identity_key" yaml:"identity_key" toml:"identity_key" comment:"argument that carries the session identity" validate:"required"`
	// SystemPrompt overrides the default system prompt template
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty" toml:"system_prompt,omitempty"`
}

// ToolsConfig specifies the tool bridge
type ToolsConfig struct {
	// Transport specifies the bridge: local|pipe|http
	Transport string `json:"transport" yaml:"transport" toml:"transport" comment:"local|pipe|http" validate:"oneof=local pipe http"`
	// Command is the tool host command line for the pipe transport
	Command []string `json:"command,omitempty" yaml:"command,omitempty" toml:"command,omitempty" validate:"required_if=Transport pipe"`
	// URL of the HTTP tool host, if empty it is built from Host and Port
	URL           string   `json:"url,omitempty" yaml:"url,omitempty" toml:"url,omitempty"`
	Host          string   `json:"host" yaml:"host" toml:"host"`
	Port          int      `json:"port" yaml:"port" toml:"port" validate:"gte=0,lte=65535"`
	Timeout       Duration `json:"timeout" yaml:"timeout" toml:"timeout" comment:"per-call timeout"`
	ShutdownGrace Duration `json:"shutdown_grace" yaml:"shutdown_grace" toml:"shutdown_grace"`
}

// HostURL returns the URL of the HTTP tool host
func (c *ToolsConfig) HostURL() string {
	if c.URL != "" {
		return c.URL
	}
	return "http://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ListenAddr returns the listen address of the HTTP tool host
func (c *ToolsConfig) ListenAddr() string {
	return ":" + strconv.Itoa(c.Port)
}

// StoreConfig specifies the account record store
type StoreConfig struct {
	// Backend specifies the store: memory|redis
	Backend string `json:"backend" yaml:"backend" toml:"backend" comment:"memory|redis" validate:"oneof=memory redis"`
	// File persists the memory store, optional
	File     string `json:"file,omitempty" yaml:"file,omitempty" toml:"file,omitempty"`
	RedisURL string `json:"redis_url,omitempty" yaml:"redis_url,omitempty" toml:"redis_url,omitempty" validate:"required_if=Backend redis"`
	Prefix   string `json:"prefix,omitempty" yaml:"prefix,omitempty" toml:"prefix,omitempty"`
}

var validate = validator.New()

// Default returns the configuration with defaults
func Default() *Config {
	cfg := new(Config)
	cfg.SetDefaults()
	return cfg
}

// Load returns the configuration from the file, with the environment
// overrides and defaults applied.
// If the file is empty, the configuration is built from the environment.
func Load(file string) (*Config, error) {
	cfg := new(Config)
	if file != "" {
		var err error
		switch strings.ToLower(filepath.Ext(file)) {
		case ".toml":
			err = loadTOML(file, cfg)
		default:
			err = configloader.UnmarshalAndExpand(file, cfg)
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "unable to load config: %s", file)
		}
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.KV(xlog.DEBUG,
		"status", "loaded",
		"file", file,
		"model", cfg.Model.Name,
		"transport", cfg.Tools.Transport,
		"store", cfg.Store.Backend,
	)
	return cfg, nil
}

func loadTOML(file string, cfg *Config) error {
	b, err := os.ReadFile(file)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = toml.Decode(os.ExpandEnv(string(b)), cfg)
	return errors.WithStack(err)
}

// ApplyEnv overrides the configuration from the environment
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := getenv(EnvDefaultUserID); v != "" {
		c.DefaultUserID = v
	}
	if v := getenv(EnvModelName); v != "" {
		c.Model.Name = v
	}
	if v := getenv(EnvMaxTokens); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %s: %q", EnvMaxTokens, v)
		}
		c.Model.MaxTokens = n
	}
	if v := getenv(EnvTemperature); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid %s: %q", EnvTemperature, v)
		}
		c.Model.Temperature = f
	}
	if v := getenv(EnvToolsHost); v != "" {
		c.Tools.Host = v
	}
	if v := getenv(EnvToolsPort); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %s: %q", EnvToolsPort, v)
		}
		c.Tools.Port = n
	}
	if v := getenv(EnvAnthropicAPIKey); v != "" {
		for _, p := range c.LLM.Providers {
			if strings.EqualFold(p.Type, "ANTHROPIC") && p.Token == "" {
				p.Token = v
			}
		}
	}
	return nil
}

// SetDefaults fills the values that are not set.
func (c *Config) SetDefaults() {
	c.LogLevel = strings.ToUpper(values.StringsCoalesce(c.LogLevel, DefaultLogLevel))
	c.DefaultUserID = values.StringsCoalesce(c.DefaultUserID, DefaultUserID)

	if c.Model.Temperature == 0 {
		c.Model.Temperature = DefaultTemperature
	}
	c.Model.Name = values.StringsCoalesce(c.Model.Name, DefaultModel)
	c.Model.MaxTokens = values.NumbersCoalesce(c.Model.MaxTokens, DefaultMaxTokens)

	c.Agent.MaxTurns = values.NumbersCoalesce(c.Agent.MaxTurns, DefaultMaxTurns)
	c.Agent.IdentityKey = values.StringsCoalesce(c.Agent.IdentityKey, DefaultIdentityKey)

	c.Tools.Transport = strings.ToLower(values.StringsCoalesce(c.Tools.Transport, TransportLocal))
	c.Tools.Host = values.StringsCoalesce(c.Tools.Host, DefaultToolsHost)
	c.Tools.Port = values.NumbersCoalesce(c.Tools.Port, DefaultToolsPort)
	if c.Tools.Timeout == 0 {
		c.Tools.Timeout = Duration(DefaultToolTimeout)
	}
	if c.Tools.ShutdownGrace == 0 {
		c.Tools.ShutdownGrace = Duration(DefaultShutdownGrace)
	}

	c.Store.Backend = strings.ToLower(values.StringsCoalesce(c.Store.Backend, StoreMemory))

	if len(c.LLM.Providers) == 0 {
		c.LLM.Providers = []*llmfactory.ProviderConfig{
			{
				Name:            DefaultProvider,
				Type:            "ANTHROPIC",
				DefaultModel:    c.Model.Name,
				AvailableModels: []string{c.Model.Name},
			},
		}
	}
	c.LLM.DefaultProvider = values.StringsCoalesce(c.LLM.DefaultProvider, c.LLM.Providers[0].Name)
}

// Validate returns an error if the configuration is not valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	if c.Model.Provider != "" && c.Provider() == nil {
		return errors.Errorf("invalid configuration: provider not found: %s", c.Model.Provider)
	}
	return nil
}

// Provider returns the provider of the model
func (c *Config) Provider() *llmfactory.ProviderConfig {
	name := values.StringsCoalesce(c.Model.Provider, c.LLM.DefaultProvider)
	for _, p := range c.LLM.Providers {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Level returns the log level
func (c *Config) Level() xlog.LogLevel {
	return ParseLevel(c.LogLevel)
}

// ParseLevel returns the log level by name, INFO if the name is unknown
func ParseLevel(s string) xlog.LogLevel {
	switch strings.ToUpper(s) {
	case "TRACE":
		return xlog.TRACE
	case "DEBUG":
		return xlog.DEBUG
	case "NOTICE":
		return xlog.NOTICE
	case "WARNING", "WARN":
		return xlog.WARNING
	case "ERROR":
		return xlog.ERROR
	case "CRITICAL":
		return xlog.CRITICAL
	}
	return xlog.INFO
}
