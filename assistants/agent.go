package assistants

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/chatmodel"
	"github.com/effective-security/supportagent/mcp"
	"github.com/effective-security/supportagent/pkg/llms"
	"github.com/effective-security/supportagent/pkg/prompts"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

// Agent binds the model, the tool bridge and the system prompt.
// It is safe for concurrent use, each Session is single threaded.
type Agent struct {
	model        llms.Model
	bridge       mcp.Bridge
	cfg          *Config
	systemPrompt string
}

// NewAgent returns the agent, the system prompt template is rendered once.
// The catalog of the bridge is cached for the lifetime of the agent.
func NewAgent(model llms.Model, bridge mcp.Bridge, opts ...Option) (*Agent, error) {
	if model == nil {
		return nil, errors.New("model is required")
	}
	if bridge == nil {
		return nil, errors.New("tool bridge is required")
	}

	cfg := NewConfig(opts...)
	if cfg.MaxTurns < 1 {
		return nil, errors.Errorf("invalid max turns: %d", cfg.MaxTurns)
	}
	if cfg.IdentityKey == "" {
		return nil, errors.New("identity key is required")
	}

	data := cfg.PromptData
	data.IdentityKey = values.StringsCoalesce(data.IdentityKey, cfg.IdentityKey)
	systemPrompt, err := prompts.SystemPrompt(cfg.SystemPrompt, data)
	if err != nil {
		return nil, err
	}

	if _, ok := bridge.(*mcp.CachedBridge); !ok {
		bridge = mcp.NewCachedBridge(bridge, "bridge")
	}

	return &Agent{
		model:        model,
		bridge:       bridge,
		cfg:          cfg,
		systemPrompt: strings.TrimSpace(systemPrompt),
	}, nil
}

// Name returns the name of the agent
func (a *Agent) Name() string {
	return a.cfg.Name
}

// Model returns the model of the agent
func (a *Agent) Model() llms.Model {
	return a.model
}

// SystemPrompt returns the rendered system prompt
func (a *Agent) SystemPrompt() string {
	return a.systemPrompt
}

// Config returns the agent configuration
func (a *Agent) Config() Config {
	return *a.cfg
}

// Start returns a new session bound to the userID,
// the history is empty.
func (a *Agent) Start(ctx context.Context, userID string) (*Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, validationError("user ID is required")
	}

	s := &Session{
		agent:  a,
		id:     chatmodel.NewSessionID(),
		userID: userID,
		state:  StateAwaitingUserInput,
	}

	logger.ContextKV(ctx, xlog.INFO,
		"status", "session_started",
		"agent", a.cfg.Name,
		"session_id", s.id,
		"user_id", userID,
		"model", a.model.GetName(),
	)
	return s, nil
}

// Close releases the tool bridge
func (a *Agent) Close() error {
	return a.bridge.Close()
}
