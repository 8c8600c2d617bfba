package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached wraps an Embedder with a bounded LRU cache keyed by model and text.
// Identical chunk text across re-indexes hits the cache instead of the
// service.
type Cached struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCached wraps inner with an LRU cache of the given size
func NewCached(inner Embedder, size int) (*Cached, error) {
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, cache: cache}, nil
}

func (c *Cached) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(c.inner.ModelName() + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Embed returns a cached embedding when available
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if vector, ok := c.cache.Get(key); ok {
		return vector, nil
	}

	vector, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, vector)
	return vector, nil
}

// EmbedBatch embeds each text through the cache, preserving input order
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vector, err := c.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vector)
	}
	return vectors, nil
}

// ServiceAvailable delegates to the wrapped embedder
func (c *Cached) ServiceAvailable(ctx context.Context) bool {
	return c.inner.ServiceAvailable(ctx)
}

// ModelAvailable delegates to the wrapped embedder
func (c *Cached) ModelAvailable(ctx context.Context) (bool, error) {
	return c.inner.ModelAvailable(ctx)
}

// Dimension delegates to the wrapped embedder
func (c *Cached) Dimension() int {
	return c.inner.Dimension()
}

// ModelName delegates to the wrapped embedder
func (c *Cached) ModelName() string {
	return c.inner.ModelName()
}

// Close purges the cache and closes the wrapped embedder
func (c *Cached) Close() error {
	c.cache.Purge()
	return c.inner.Close()
}
