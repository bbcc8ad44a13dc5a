package embed

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Cached wraps an Embedder with a bounded LRU keyed by the exact input text.
// The cache is a pure latency optimization: it is process-local, never
// persisted, and has no correctness role. Concurrent misses for the same
// text are collapsed into a single upstream call.
type Cached struct {
	inner Embedder
	lru   *lru.Cache[string, []float32]
	group singleflight.Group
}

// NewCached builds a caching wrapper holding at most size entries.
func NewCached(inner Embedder, size int) (*Cached, error) {
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("embed: cache: %w", err)
	}
	return &Cached{inner: inner, lru: c}, nil
}

// Embed returns the cached vector for text, or fetches and caches it.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.lru.Get(text); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(text, func() (any, error) {
		// Re-check: another caller may have populated the cache while this
		// one waited on the flight group.
		if v, ok := c.lru.Get(text); ok {
			return v, nil
		}
		vec, err := c.inner.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		c.lru.Add(text, vec)
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

// Len reports the current number of cached entries.
func (c *Cached) Len() int {
	return c.lru.Len()
}
