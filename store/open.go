package store

import (
	"context"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

// Backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Options specifies the store to open
type Options struct {
	// Backend is memory or redis, memory is used if empty
	Backend string
	// File persists the memory store, optional
	File string
	// RedisURL is the redis://... connection string
	RedisURL string
	// Prefix of the Redis keys
	Prefix string
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open returns the store and its closer.
// An empty Redis keyspace is seeded with the demo accounts.
func Open(ctx context.Context, opts Options) (AccountStore, io.Closer, error) {
	switch opts.Backend {
	case "", BackendMemory:
		var mo []MemoryOption
		if opts.File != "" {
			mo = append(mo, WithFile(opts.File))
		}
		st, err := NewMemoryStore(mo...)
		if err != nil {
			return nil, nil, err
		}
		return st, nopCloser{}, nil

	case BackendRedis:
		ro, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "invalid Redis URL")
		}
		client := redis.NewClient(ro)
		if err = client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, errors.Wrapf(err, "failed to connect to Redis")
		}

		st := &redisStore{client: client, prefix: opts.Prefix}
		count, err := client.SCard(ctx, st.usersKey()).Result()
		if err != nil {
			_ = client.Close()
			return nil, nil, errors.Wrapf(err, "failed to read users from Redis")
		}
		if count == 0 {
			if err = ImportSnapshot(ctx, client, opts.Prefix, SeedSnapshot(time.Now())); err != nil {
				_ = client.Close()
				return nil, nil, err
			}
		}
		logger.ContextKV(ctx, xlog.INFO, "status", "opened", "backend", BackendRedis, "prefix", opts.Prefix, "users", count)
		return st, client, nil
	}
	return nil, nil, errors.Errorf("unsupported store backend: %s", opts.Backend)
}
