package providers

import (
	"context"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"
)

// Cached memoizes embeddings by model and text. Vectors are copied on the
// way in and out so callers may not mutate the cached value.
type Cached struct {
	next  Embedder
	model string
	cache *cache.Cache
}

// NewCached wraps next with an in-memory cache. A non-positive ttl disables caching.
func NewCached(next Embedder, model string, ttl time.Duration) Embedder {
	if ttl <= 0 {
		return next
	}
	return &Cached{
		next:  next,
		model: model,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Embed returns the cached vector for text or calls the wrapped Embedder.
// Failures are not cached.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.model + "\x00" + text
	if v, ok := c.cache.Get(key); ok {
		return slices.Clone(v.([]float32)), nil
	}

	v, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.SetDefault(key, slices.Clone(v))
	return v, nil
}

// Len reports the number of cached vectors.
func (c *Cached) Len() int {
	return c.cache.ItemCount()
}
