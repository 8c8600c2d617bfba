package searcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmpprg/ragify-sub000/internal/storage"
	"github.com/cmpprg/ragify-sub000/pkg/types"
)

// mockEmbedder serves canned vectors and switchable availability
type mockEmbedder struct {
	available bool
	vectors   map[string][]float32
	dim       int
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if !m.available {
		return nil, &types.EmbeddingServiceError{Op: "embed", Err: errors.New("service down")}
	}
	if v, ok := m.vectors[text]; ok {
		return v, nil
	}
	return make([]float32, m.dim), nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (m *mockEmbedder) ServiceAvailable(context.Context) bool        { return m.available }
func (m *mockEmbedder) ModelAvailable(context.Context) (bool, error) { return m.available, nil }
func (m *mockEmbedder) Dimension() int                               { return m.dim }
func (m *mockEmbedder) ModelName() string                            { return "mock-model" }
func (m *mockEmbedder) Close() error                                 { return nil }

func setupStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "search.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedChunk(t *testing.T, db *storage.SQLiteStorage, id, path, name, code string, vector []float32) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.UpsertChunk(ctx, &storage.ChunkRecord{
		ID: id, FilePath: path, ChunkType: "method", Name: name,
		Code: code, StartLine: 1, EndLine: 3, Metadata: "{}",
	}))
	if vector != nil {
		require.NoError(t, db.UpsertEmbedding(ctx, &storage.Embedding{
			ChunkID: id, Vector: storage.SerializeVector(vector),
			Dimension: len(vector), Model: "mock-model",
		}))
	}
}

func TestSearchValidation(t *testing.T) {
	s := New(setupStore(t), nil, zerolog.Nop())
	ctx := context.Background()

	var verr *types.ValidationError

	_, err := s.Search(ctx, Request{Query: "   "})
	require.ErrorAs(t, err, &verr)

	_, err = s.Search(ctx, Request{Query: "ok", Mode: "fuzzy"})
	require.ErrorAs(t, err, &verr)

	_, err = s.Search(ctx, Request{Query: "ok", Mode: ModeText, VectorWeight: 1.5})
	require.ErrorAs(t, err, &verr)
}

func TestTextSearch(t *testing.T) {
	db := setupStore(t)
	seedChunk(t, db, "id1", "lib/auth.rb", "authenticate", "def authenticate(user)\n  verify_token(user)\nend", nil)
	seedChunk(t, db, "id2", "lib/cart.rb", "checkout", "def checkout\n  charge\nend", nil)

	s := New(db, nil, zerolog.Nop())
	resp, err := s.Search(context.Background(), Request{Query: "authenticate", Mode: ModeText})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)

	r := resp.Results[0]
	assert.Equal(t, "authenticate", r.Chunk.Name)
	assert.Equal(t, "text", r.SearchType)
	assert.Greater(t, r.Score, 0.0)
	assert.LessOrEqual(t, r.Score, 1.0)
	assert.Equal(t, r.Score, r.TextScore)
	assert.False(t, resp.Degraded)
}

func TestSemanticSearch(t *testing.T) {
	db := setupStore(t)
	seedChunk(t, db, "id1", "lib/a.rb", "near", "def near; end", []float32{1, 0, 0})
	seedChunk(t, db, "id2", "lib/b.rb", "far", "def far; end", []float32{0, 1, 0})

	emb := &mockEmbedder{available: true, dim: 3, vectors: map[string][]float32{
		"find near": {1, 0, 0},
	}}
	s := New(db, emb, zerolog.Nop())

	resp, err := s.Search(context.Background(), Request{Query: "find near", Mode: ModeSemantic})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "near", resp.Results[0].Chunk.Name)
	assert.Equal(t, "semantic", resp.Results[0].SearchType)
	assert.InDelta(t, 1.0, resp.Results[0].Score, 1e-6)
	assert.InDelta(t, resp.Results[0].Score, resp.Results[0].VectorScore, 1e-9)
}

func TestSemanticUnavailableIsFatal(t *testing.T) {
	db := setupStore(t)
	ctx := context.Background()
	var searchErr *types.SearchError

	// No embedder configured at all
	s := New(db, nil, zerolog.Nop())
	_, err := s.Search(ctx, Request{Query: "anything", Mode: ModeSemantic})
	require.ErrorAs(t, err, &searchErr)

	// Embedder configured but unreachable
	s = New(db, &mockEmbedder{available: false, dim: 3}, zerolog.Nop())
	_, err = s.Search(ctx, Request{Query: "anything", Mode: ModeSemantic})
	require.ErrorAs(t, err, &searchErr)
}

func TestHybridFusionWeights(t *testing.T) {
	db := setupStore(t)
	// id1 is the vector-side winner, id2 the text-side winner
	seedChunk(t, db, "id1", "lib/a.rb", "alpha", "def alpha; end", []float32{1, 0, 0})
	seedChunk(t, db, "id2", "lib/b.rb", "payment", "def payment_gateway; end", []float32{0, 1, 0})

	emb := &mockEmbedder{available: true, dim: 3, vectors: map[string][]float32{
		"payment gateway": {1, 0, 0},
	}}
	s := New(db, emb, zerolog.Nop())
	ctx := context.Background()

	resp, err := s.Search(ctx, Request{Query: "payment gateway", Mode: ModeHybrid, VectorWeight: 1.0})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "alpha", resp.Results[0].Chunk.Name)

	resp, err = s.Search(ctx, Request{Query: "payment gateway", Mode: ModeHybrid, VectorWeight: 0.0})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "payment", resp.Results[0].Chunk.Name)

	for _, r := range resp.Results {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
		assert.Equal(t, "hybrid", r.SearchType)
	}
}

func TestHybridDegradesToText(t *testing.T) {
	db := setupStore(t)
	// Term present verbatim in code, no embedding stored anywhere
	seedChunk(t, db, "id1", "lib/refunds.rb", "refund", "def refund_policy; end", nil)

	s := New(db, &mockEmbedder{available: false, dim: 3}, zerolog.Nop())
	resp, err := s.Search(context.Background(), Request{Query: "refund_policy", Mode: ModeHybrid, VectorWeight: 0.7})
	require.NoError(t, err)

	assert.True(t, resp.Degraded)
	assert.Equal(t, ModeText, resp.Mode)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "refund", resp.Results[0].Chunk.Name)
	assert.Equal(t, "text", resp.Results[0].SearchType)
}

func TestHybridDefaultsApplied(t *testing.T) {
	db := setupStore(t)
	seedChunk(t, db, "id1", "lib/a.rb", "alpha", "def alpha; end", nil)

	s := New(db, nil, zerolog.Nop())
	resp, err := s.Search(context.Background(), Request{Query: "alpha"})
	require.NoError(t, err)
	assert.True(t, resp.Degraded) // No embedder, default hybrid falls back
	assert.Len(t, resp.Results, 1)

	req := DefaultRequest("alpha")
	assert.Equal(t, ModeHybrid, req.Mode)
	assert.Equal(t, DefaultLimit, req.Limit)
	assert.InDelta(t, DefaultVectorWeight, req.VectorWeight, 1e-9)
}

func TestSearchFilters(t *testing.T) {
	db := setupStore(t)
	ctx := context.Background()
	require.NoError(t, db.UpsertChunk(ctx, &storage.ChunkRecord{
		ID: "id1", FilePath: "app/models/user.rb", ChunkType: "class", Name: "User",
		Code: "class User\n  validates :password\nend", StartLine: 1, EndLine: 3, Metadata: "{}",
	}))
	require.NoError(t, db.UpsertChunk(ctx, &storage.ChunkRecord{
		ID: "id2", FilePath: "app/services/auth.rb", ChunkType: "method", Name: "verify",
		Code: "def verify(password); end", StartLine: 1, EndLine: 1, Metadata: "{}",
	}))

	s := New(db, nil, zerolog.Nop())

	resp, err := s.Search(ctx, Request{Query: "password", Mode: ModeText, TypeFilter: "class"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "User", resp.Results[0].Chunk.Name)

	resp, err = s.Search(ctx, Request{Query: "password", Mode: ModeText, PathFilter: "services"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "verify", resp.Results[0].Chunk.Name)
}

func TestFinishFiltersBeforeTruncating(t *testing.T) {
	mk := func(id string, score float64) *types.SearchResult {
		return &types.SearchResult{Chunk: &types.Chunk{ID: id}, Score: score, SearchType: "hybrid"}
	}
	results := []*types.SearchResult{mk("a", 0.9), mk("b", 0.5), mk("c", 0.4), mk("d", 0.3)}

	// Filter drops d, then the limit truncates the survivors
	out := finish(results, Request{Limit: 2, MinScore: 0.35})
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Chunk.ID)
	assert.Equal(t, "b", out[1].Chunk.ID)

	// The bound is strict: equal scores are excluded
	out = finish(results, Request{Limit: 4, MinScore: 0.5})
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].Chunk.ID)
}

func TestFormatResults(t *testing.T) {
	resp := &Response{
		Query: "add",
		Mode:  ModeText,
		Results: []*types.SearchResult{{
			Chunk: &types.Chunk{
				ID: "id1", FilePath: "lib/calc.rb", Type: types.ChunkMethod,
				Name: "add", Code: "def add(a, b)\n  a + b\nend",
				Context: "class Calculator", StartLine: 2, EndLine: 4,
			},
			Score: 0.8, TextScore: 0.8, SearchType: "text",
		}},
	}

	plain, err := FormatResults(resp, FormatPlain)
	require.NoError(t, err)
	assert.Contains(t, plain, "method add")
	assert.Contains(t, plain, "lib/calc.rb:2-4")
	assert.Contains(t, plain, "class Calculator")

	jsonOut, err := FormatResults(resp, FormatJSON)
	require.NoError(t, err)
	assert.Contains(t, jsonOut, `"search_type": "text"`)

	_, err = FormatResults(resp, OutputFormat("yaml"))
	var verr *types.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestLargeResultSetTruncation(t *testing.T) {
	db := setupStore(t)
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		seedChunk(t, db, fmt.Sprintf("id%02d", i), fmt.Sprintf("lib/f%02d.rb", i),
			fmt.Sprintf("handler%02d", i), "def process_order; end", nil)
	}

	s := New(db, nil, zerolog.Nop())
	resp, err := s.Search(ctx, Request{Query: "process_order", Mode: ModeText, Limit: 5})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 5)
}
