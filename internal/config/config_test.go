package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 150, cfg.Chunking.SizeLimit)
	assert.Equal(t, 20, cfg.Chunking.Overlap)
	assert.Equal(t, 10, cfg.Search.ResultLimit)
	assert.InDelta(t, 0.7, cfg.Search.VectorWeight, 1e-9)
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.Host)
	assert.Equal(t, "nomic-embed-text", cfg.Ollama.EmbeddingModel)
	assert.NotEmpty(t, cfg.Storage.Path)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ragify.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chunking:
  size_limit: 200
  overlap: 30
search:
  vector_weight: 0.5
ollama:
  embedding_model: mxbai-embed-large
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Chunking.SizeLimit)
	assert.Equal(t, 30, cfg.Chunking.Overlap)
	assert.InDelta(t, 0.5, cfg.Search.VectorWeight, 1e-9)
	assert.Equal(t, "mxbai-embed-large", cfg.Ollama.EmbeddingModel)
	// Untouched keys keep defaults
	assert.Equal(t, 10, cfg.Search.ResultLimit)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RAGIFY_OLLAMA_HOST", "http://embed-box:11434")
	t.Setenv("RAGIFY_CHUNKING_SIZE_LIMIT", "120")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://embed-box:11434", cfg.Ollama.Host)
	assert.Equal(t, 120, cfg.Chunking.SizeLimit)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"RAGIFY_CHUNKING_SIZE_LIMIT":  "0",
		"RAGIFY_CHUNKING_OVERLAP":     "500",
		"RAGIFY_SEARCH_VECTOR_WEIGHT": "1.5",
		"RAGIFY_SEARCH_RESULT_LIMIT":  "-1",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
