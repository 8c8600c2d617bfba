package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cmpprg/ragify-sub000/pkg/types"
)

// knownDimensions maps common Ollama embedding models to their output size
var knownDimensions = map[string]int{
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"snowflake-arctic-embed": 1024,
}

// defaultDimension is assumed for models not in the table until the first
// embedding reveals the real size
const defaultDimension = 768

// Ollama talks to a local Ollama instance over its HTTP API. One instance is
// shared between the indexer and searcher, so the learned dimension is
// updated atomically.
type Ollama struct {
	host      string
	model     string
	client    *http.Client
	dimension atomic.Int64
}

// NewOllama creates an Ollama embedder from config
func NewOllama(cfg Config) *Ollama {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	dim := knownDimensions[cfg.Model]
	if dim == 0 {
		dim = defaultDimension
	}

	o := &Ollama{
		host:   strings.TrimRight(cfg.Host, "/"),
		model:  cfg.Model,
		client: &http.Client{Timeout: timeout},
	}
	o.dimension.Store(int64(dim))
	return o
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed generates an embedding for a single text, retrying transient
// failures with exponential backoff
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	vector, err := retryWithBackoff(ctx, defaultRetryPolicy, func() ([]float32, error) {
		return o.embedOnce(ctx, text)
	})
	if err != nil {
		return nil, &types.EmbeddingServiceError{Op: "embed", Err: err}
	}

	if len(vector) > 0 {
		o.dimension.Store(int64(len(vector)))
	}
	return vector, nil
}

func (o *Ollama) embedOnce(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: o.model, Prompt: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}

	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding for model %s", o.model)
	}

	return parsed.Embedding, nil
}

// EmbedBatch embeds texts one at a time, preserving input order. Ollama's
// embeddings endpoint is single-prompt, so the batch is a client-side loop.
func (o *Ollama) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vector, err := o.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vector)
	}
	return vectors, nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ServiceAvailable probes the Ollama tags endpoint
func (o *Ollama) ServiceAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.host+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

// ModelAvailable checks whether the configured model is installed locally.
// Model names may carry a tag suffix (nomic-embed-text:latest), so matching
// is on the name before the colon as well as the full name.
func (o *Ollama) ModelAvailable(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.host+"/api/tags", nil)
	if err != nil {
		return false, &types.EmbeddingServiceError{Op: "model_available", Err: err}
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return false, &types.EmbeddingServiceError{Op: "model_available", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, &types.EmbeddingServiceError{
			Op:  "model_available",
			Err: fmt.Errorf("ollama returned %d", resp.StatusCode),
		}
	}

	var parsed tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return false, &types.EmbeddingServiceError{Op: "model_available", Err: err}
	}

	for _, m := range parsed.Models {
		if m.Name == o.model || strings.SplitN(m.Name, ":", 2)[0] == o.model {
			return true, nil
		}
	}
	return false, nil
}

// Dimension returns the embedding dimension for the configured model
func (o *Ollama) Dimension() int {
	return int(o.dimension.Load())
}

// ModelName returns the configured model name
func (o *Ollama) ModelName() string {
	return o.model
}

// Close releases idle connections
func (o *Ollama) Close() error {
	o.client.CloseIdleConnections()
	return nil
}
