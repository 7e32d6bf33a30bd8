package mcp

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/effective-security/supportagent/chatmodel"
	"github.com/effective-security/supportagent/pkg/metricskey"
	"github.com/effective-security/xlog"
)

// CachedBridge fetches the catalog once and serves it from memory
// for the lifetime of the bridge. Invoke and Close are delegated.
type CachedBridge struct {
	bridge    Bridge
	transport string

	lock        sync.Mutex
	catalog     []chatmodel.ToolDefinition
	fingerprint uint64
}

var _ Bridge = (*CachedBridge)(nil)

// NewCachedBridge wraps the bridge with a catalog cache,
// transportName is used in metrics.
func NewCachedBridge(bridge Bridge, transportName string) *CachedBridge {
	return &CachedBridge{
		bridge:    bridge,
		transport: transportName,
	}
}

// ListTools implements Bridge.ListTools
func (b *CachedBridge) ListTools(ctx context.Context) ([]chatmodel.ToolDefinition, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.catalog != nil {
		metricskey.StatsCatalogCacheHits.IncrCounter(1, b.transport)
		return slices.Clone(b.catalog), nil
	}

	list, err := b.bridge.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []chatmodel.ToolDefinition{}
	}

	b.catalog = list
	b.fingerprint = Fingerprint(list)
	logger.ContextKV(ctx, xlog.INFO,
		"status", "catalog_loaded",
		"transport", b.transport,
		"tools", len(list),
		"fingerprint", b.fingerprint,
	)
	return slices.Clone(list), nil
}

// Invalidate drops the cached catalog.
func (b *CachedBridge) Invalidate() {
	b.lock.Lock()
	b.catalog = nil
	b.fingerprint = 0
	b.lock.Unlock()
}

// Fingerprint returns the fingerprint of the cached catalog,
// or zero if not loaded.
func (b *CachedBridge) Fingerprint() uint64 {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.fingerprint
}

// Invoke implements Bridge.Invoke
func (b *CachedBridge) Invoke(ctx context.Context, name string, args json.RawMessage) chatmodel.ToolResult {
	return b.bridge.Invoke(ctx, name, args)
}

// Close implements Bridge.Close
func (b *CachedBridge) Close() error {
	return b.bridge.Close()
}

// Fingerprint returns a hash of the catalog.
func Fingerprint(list []chatmodel.ToolDefinition) uint64 {
	js, err := json.Marshal(list)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(js)
}
