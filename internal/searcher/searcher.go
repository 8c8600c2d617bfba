// Package searcher orchestrates text, semantic, and hybrid retrieval over
// the chunk store. Hybrid mode fuses the two signals into one canonical
// score; when the embedding service is down it quietly falls back to keyword
// search rather than failing the call.
package searcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cmpprg/ragify-sub000/internal/embedder"
	"github.com/cmpprg/ragify-sub000/internal/storage"
	"github.com/cmpprg/ragify-sub000/pkg/types"
)

// Mode selects the retrieval strategy
type Mode string

const (
	ModeText     Mode = "text"
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
)

// Defaults applied to zero-valued request fields
const (
	DefaultLimit        = 10
	DefaultVectorWeight = 0.7
)

// candidateMultiplier is how many candidates each leg contributes relative
// to the requested limit, so fusion and min-score filtering have slack
const candidateMultiplier = 2

// Request describes one search call
type Request struct {
	Query        string
	Mode         Mode
	Limit        int
	TypeFilter   string  // Exact chunk type match
	PathFilter   string  // Substring match on file path
	MinScore     float64 // Strict lower bound on the canonical score
	VectorWeight float64 // Weight of the vector leg in hybrid fusion
}

// DefaultRequest builds a hybrid request with engine defaults
func DefaultRequest(query string) Request {
	return Request{
		Query:        query,
		Mode:         ModeHybrid,
		Limit:        DefaultLimit,
		VectorWeight: DefaultVectorWeight,
	}
}

// Response carries ranked results plus what actually happened: Mode is the
// mode that produced the results, which differs from the requested mode when
// hybrid degraded to text.
type Response struct {
	Results  []*types.SearchResult
	Mode     Mode
	Degraded bool
	Query    string
	TookMS   int64
}

// Searcher runs queries against storage, optionally consulting an embedder
type Searcher struct {
	store    storage.Storage
	embedder embedder.Embedder // May be nil when embeddings are not configured
	logger   zerolog.Logger
}

// New creates a Searcher. A nil embedder is valid: semantic mode then fails
// and hybrid mode degrades to text.
func New(store storage.Storage, emb embedder.Embedder, logger zerolog.Logger) *Searcher {
	return &Searcher{store: store, embedder: emb, logger: logger}
}

// Search validates the request, runs the selected mode, and returns ranked
// results with canonical scores
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	if err := validateRequest(&req); err != nil {
		return nil, err
	}

	start := time.Now()
	resp := &Response{Mode: req.Mode, Query: req.Query}

	var err error
	switch req.Mode {
	case ModeText:
		resp.Results, err = s.searchText(ctx, req)
	case ModeSemantic:
		resp.Results, err = s.searchSemantic(ctx, req)
	case ModeHybrid:
		err = s.searchHybrid(ctx, req, resp)
	}
	if err != nil {
		return nil, err
	}

	resp.TookMS = time.Since(start).Milliseconds()
	return resp, nil
}

// validateRequest applies defaults and rejects malformed requests before any
// storage or service I/O
func validateRequest(req *Request) error {
	if strings.TrimSpace(req.Query) == "" {
		return &types.ValidationError{Reason: "query must not be empty"}
	}

	if req.Mode == "" {
		req.Mode = ModeHybrid
	}
	switch req.Mode {
	case ModeText, ModeSemantic, ModeHybrid:
	default:
		return &types.ValidationError{Reason: fmt.Sprintf("unknown search mode %q", req.Mode)}
	}

	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.VectorWeight < 0 || req.VectorWeight > 1 {
		return &types.ValidationError{Reason: fmt.Sprintf("vector weight must be in [0,1], got %g", req.VectorWeight)}
	}

	return nil
}

func (req Request) filters() *storage.SearchFilters {
	if req.TypeFilter == "" && req.PathFilter == "" {
		return nil
	}
	return &storage.SearchFilters{ChunkType: req.TypeFilter, PathContains: req.PathFilter}
}

// searchText runs the keyword leg on its own. BM25 ranks are negative with
// lower meaning better; the inverse-rank transform maps them into (0,1].
func (s *Searcher) searchText(ctx context.Context, req Request) ([]*types.SearchResult, error) {
	hits, err := s.store.SearchText(ctx, req.Query, req.Limit*candidateMultiplier, req.filters())
	if err != nil {
		return nil, err
	}

	results := make([]*types.SearchResult, 0, len(hits))
	for _, hit := range hits {
		score := inverseRankScore(hit.Rank)
		result, err := s.hydrate(ctx, hit.ChunkID, score, string(ModeText))
		if err != nil {
			return nil, err
		}
		result.TextScore = score
		results = append(results, result)
	}

	return finish(results, req), nil
}

// searchSemantic runs the vector leg on its own. The caller explicitly asked
// for embeddings, so an unavailable service is fatal here.
func (s *Searcher) searchSemantic(ctx context.Context, req Request) ([]*types.SearchResult, error) {
	if s.embedder == nil {
		return nil, &types.SearchError{Mode: string(ModeSemantic), Reason: "no embedding service configured"}
	}
	if !s.embedder.ServiceAvailable(ctx) {
		return nil, &types.SearchError{Mode: string(ModeSemantic), Reason: "embedding service unavailable"}
	}

	queryVector, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	hits, err := s.store.SearchVector(ctx, queryVector, req.Limit*candidateMultiplier, req.filters())
	if err != nil {
		return nil, err
	}

	results := make([]*types.SearchResult, 0, len(hits))
	for _, hit := range hits {
		result, err := s.hydrate(ctx, hit.ChunkID, hit.Similarity, string(ModeSemantic))
		if err != nil {
			return nil, err
		}
		result.VectorScore = hit.Similarity
		results = append(results, result)
	}

	return finish(results, req), nil
}

// searchHybrid fuses the vector and text legs. If embeddings are not
// usable the call degrades to text mode with a warning instead of failing.
func (s *Searcher) searchHybrid(ctx context.Context, req Request, resp *Response) error {
	if s.embedder == nil || !s.embedder.ServiceAvailable(ctx) {
		return s.degradeToText(ctx, req, resp, "embedding service unavailable")
	}

	queryVector, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		var serviceErr *types.EmbeddingServiceError
		if errors.As(err, &serviceErr) {
			return s.degradeToText(ctx, req, resp, serviceErr.Error())
		}
		return err
	}

	vectorHits, err := s.store.SearchVector(ctx, queryVector, req.Limit*candidateMultiplier, req.filters())
	if err != nil {
		return err
	}
	textHits, err := s.store.SearchText(ctx, req.Query, req.Limit*candidateMultiplier, req.filters())
	if err != nil {
		return err
	}

	results, err := s.fuse(ctx, req, vectorHits, textHits)
	if err != nil {
		return err
	}

	resp.Results = results
	return nil
}

// degradeToText reruns the request in text mode and marks the response
func (s *Searcher) degradeToText(ctx context.Context, req Request, resp *Response, reason string) error {
	s.logger.Warn().
		Str("query", req.Query).
		Str("reason", reason).
		Msg("hybrid search degraded to text mode")

	req.Mode = ModeText
	results, err := s.searchText(ctx, req)
	if err != nil {
		return err
	}

	resp.Results = results
	resp.Mode = ModeText
	resp.Degraded = true
	return nil
}

// fuse unions the two candidate sets by chunk id and computes the weighted
// canonical score. Vector similarities normalize by the max observed value;
// text ranks go through the inverse-rank transform. A chunk missing from one
// leg contributes 0 on that side.
func (s *Searcher) fuse(ctx context.Context, req Request, vectorHits []storage.VectorResult, textHits []storage.TextResult) ([]*types.SearchResult, error) {
	var maxSimilarity float64
	for _, hit := range vectorHits {
		if hit.Similarity > maxSimilarity {
			maxSimilarity = hit.Similarity
		}
	}

	type legScores struct {
		vector float64
		text   float64
	}
	merged := make(map[string]*legScores, len(vectorHits)+len(textHits))
	order := make([]string, 0, len(vectorHits)+len(textHits))

	for _, hit := range vectorHits {
		normalized := 0.0
		if maxSimilarity > 0 {
			normalized = hit.Similarity / maxSimilarity
		}
		merged[hit.ChunkID] = &legScores{vector: normalized}
		order = append(order, hit.ChunkID)
	}
	for _, hit := range textHits {
		entry, ok := merged[hit.ChunkID]
		if !ok {
			entry = &legScores{}
			merged[hit.ChunkID] = entry
			order = append(order, hit.ChunkID)
		}
		entry.text = inverseRankScore(hit.Rank)
	}

	results := make([]*types.SearchResult, 0, len(order))
	for _, chunkID := range order {
		scores := merged[chunkID]
		final := req.VectorWeight*scores.vector + (1-req.VectorWeight)*scores.text

		result, err := s.hydrate(ctx, chunkID, final, string(ModeHybrid))
		if err != nil {
			return nil, err
		}
		result.VectorScore = scores.vector
		result.TextScore = scores.text
		results = append(results, result)
	}

	return finish(results, req), nil
}

// hydrate loads the chunk behind a hit and wraps it as a result
func (s *Searcher) hydrate(ctx context.Context, chunkID string, score float64, searchType string) (*types.SearchResult, error) {
	record, err := s.store.GetChunk(ctx, chunkID)
	if err != nil {
		return nil, err
	}
	chunk, err := record.ToChunk()
	if err != nil {
		return nil, err
	}
	return &types.SearchResult{
		Chunk:      chunk,
		Score:      score,
		SearchType: searchType,
	}, nil
}

// finish sorts by canonical score, applies the min-score bound, then
// truncates. Filtering happens before truncation: a min-score that removes
// top candidates lets lower-ranked ones surface into the limit.
func finish(results []*types.SearchResult, req Request) []*types.SearchResult {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if req.MinScore != 0 {
		filtered := results[:0]
		for _, r := range results {
			if r.Score > req.MinScore {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	if len(results) > req.Limit {
		results = results[:req.Limit]
	}
	return results
}

// inverseRankScore maps a raw BM25 rank (negative, lower is better) into
// (0,1], larger meaning a better match
func inverseRankScore(rank float64) float64 {
	return 1.0 / (1.0 + math.Abs(rank))
}
