package permission

import (
	"context"
	"sync"
	"time"
)

// DefaultCacheTTL bounds how stale a cached role configuration may be.
const DefaultCacheTTL = 60 * time.Second

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache holds loaded values for a fixed time. Writers call Invalidate
// after changing the backing data.
type TTLCache[V any] struct {
	mu      sync.Mutex
	entries map[string]cacheEntry[V]
	gen     uint64
	now     func() time.Time
}

// NewTTLCache returns an empty cache. A nil clock uses time.Now.
func NewTTLCache[V any](now func() time.Time) *TTLCache[V] {
	if now == nil {
		now = time.Now
	}
	return &TTLCache[V]{entries: make(map[string]cacheEntry[V]), now: now}
}

// GetOrLoad returns the cached value for key, or calls loader and caches its
// result for ttl. Loader errors are returned and nothing is cached. The
// second result reports a cache hit.
//
// The lock is not held while loading, so concurrent misses may each call
// loader. A load that overlaps Invalidate is returned but not cached.
func (c *TTLCache[V]) GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader func(context.Context) (V, error)) (V, bool, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	now := c.now()
	if ok && now.Before(e.expiresAt) {
		c.mu.Unlock()
		return e.value, true, nil
	}
	gen := c.gen
	c.mu.Unlock()

	v, err := loader(ctx)
	if err != nil {
		var zero V
		return zero, false, err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.entries[key] = cacheEntry[V]{value: v, expiresAt: c.now().Add(ttl)}
	}
	c.mu.Unlock()
	return v, false, nil
}

// Invalidate drops every cached entry.
func (c *TTLCache[V]) Invalidate() {
	c.mu.Lock()
	c.gen++
	clear(c.entries)
	c.mu.Unlock()
}
