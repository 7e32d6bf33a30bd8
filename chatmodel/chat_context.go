package chatmodel

import (
	"context"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xdb/pkg/flake"
)

// ChatContext is the per call context of a conversation session,
// it carries the session ID and the user identity the call is bound to.
type ChatContext interface {
	GetSessionID() string
	GetUserID() string
	// GetMetadata retrieves metadata by key
	GetMetadata(key string) (value any, ok bool)
	// SetMetadata sets metadata by key
	SetMetadata(key string, value any)
}

type chatContext struct {
	sessionID string
	userID    string
	metadata  sync.Map
}

func (c *chatContext) GetSessionID() string {
	return c.sessionID
}

func (c *chatContext) GetUserID() string {
	return c.userID
}

func (c *chatContext) GetMetadata(key string) (value any, ok bool) {
	return c.metadata.Load(key)
}

func (c *chatContext) SetMetadata(key string, value any) {
	c.metadata.Store(key, value)
}

// NewChatContext returns a chat context,
// a new session ID is generated if sessionID is empty.
func NewChatContext(sessionID, userID string) ChatContext {
	return &chatContext{
		sessionID: values.StringsCoalesce(sessionID, NewSessionID()),
		userID:    userID,
	}
}

type contextKey int

const (
	keyContext contextKey = iota
)

// WithChatContext returns a new context with ChatContext value
func WithChatContext(ctx context.Context, chatCtx ChatContext) context.Context {
	return context.WithValue(ctx, keyContext, chatCtx)
}

// GetChatContext retrieves the ChatContext from the context
func GetChatContext(ctx context.Context) ChatContext {
	if v, ok := ctx.Value(keyContext).(ChatContext); ok {
		return v
	}
	return nil
}

// GetSessionAndUserID returns the session and user IDs from the context.
func GetSessionAndUserID(ctx context.Context) (string, string, error) {
	v := GetChatContext(ctx)
	if v == nil {
		return "", "", errors.WithStack(ErrInvalidChatContext)
	}
	return v.GetSessionID(), v.GetUserID(), nil
}

// GetSessionID retrieves the session ID from the provided context.
// If the context does not contain a ChatContext, it returns an empty string.
func GetSessionID(ctx context.Context) string {
	if v := GetChatContext(ctx); v != nil {
		return v.GetSessionID()
	}
	return ""
}

// NewSessionID generates a new session ID using the flake ID generator.
func NewSessionID() string {
	return strconv.FormatUint(flake.DefaultIDGenerator.NextID(), 10)
}
