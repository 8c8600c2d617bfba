// Package embedder generates vector embeddings for chunks through a local
// Ollama service. Callers treat the service as optional: availability is
// probed, never assumed.
package embedder

import (
	"context"
)

// Embedder generates vector embeddings for text
type Embedder interface {
	// Embed generates an embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in input order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// ServiceAvailable reports whether the embedding service is reachable
	ServiceAvailable(ctx context.Context) bool

	// ModelAvailable reports whether the configured model is installed
	ModelAvailable(ctx context.Context) (bool, error)

	// Dimension returns the embedding dimension for the configured model
	Dimension() int

	// ModelName returns the configured model name
	ModelName() string

	// Close releases any held resources
	Close() error
}

// Config holds embedder configuration
type Config struct {
	Host      string // Ollama host, e.g. http://localhost:11434
	Model     string // Embedding model name
	TimeoutMS int    // Per-request timeout in milliseconds
	CacheSize int    // Max entries for the embedding cache, 0 disables caching
}

// DefaultConfig returns sensible local defaults
func DefaultConfig() Config {
	return Config{
		Host:      "http://localhost:11434",
		Model:     "nomic-embed-text",
		TimeoutMS: 30000,
		CacheSize: 1000,
	}
}

// New builds an Ollama-backed embedder, wrapped with an LRU cache when the
// config asks for one
func New(cfg Config) (Embedder, error) {
	ollama := NewOllama(cfg)
	if cfg.CacheSize <= 0 {
		return ollama, nil
	}
	return NewCached(ollama, cfg.CacheSize)
}
