package storage

import (
	"context"
	"encoding/binary"
	"math"
	"sort"
	"strings"

	"github.com/cmpprg/ragify-sub000/pkg/types"
)

// searchVector scans every stored embedding, computes cosine similarity in
// Go, and returns the top candidates. Index scale is a single codebase, so a
// linear scan stays well inside interactive latency.
func searchVector(ctx context.Context, q querier, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	query := `
		SELECT c.id, e.vector
		FROM chunks c
		INNER JOIN embeddings e ON c.id = e.chunk_id
	`
	query, args := applySearchFilters(query, nil, filters, "WHERE")

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &types.StorageError{Op: "search_vector", Err: err}
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]VectorResult, 0, 256)
	for rows.Next() {
		var chunkID string
		var blob []byte
		if err := rows.Scan(&chunkID, &blob); err != nil {
			return nil, &types.StorageError{Op: "search_vector", Err: err}
		}

		vector := deserializeVector(blob)
		if len(vector) != len(queryVector) {
			continue // Dimension mismatch, skip
		}

		candidates = append(candidates, VectorResult{
			ChunkID:    chunkID,
			Similarity: cosineSimilarity(queryVector, vector),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, &types.StorageError{Op: "search_vector", Err: err}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// searchText runs a BM25-ranked FTS5 query. The returned rank is FTS5's raw
// bm25 rank: negative, with lower meaning a better match. Score shaping
// happens at the search layer, not here.
func searchText(ctx context.Context, q querier, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return []TextResult{}, nil
	}

	// The MATCH operand must be the unaliased FTS table name; SQLite does
	// not resolve an alias there.
	sqlQuery := `
		SELECT c.id, chunks_fts.rank
		FROM chunks_fts
		INNER JOIN chunks c ON c.id = chunks_fts.chunk_id
		WHERE chunks_fts MATCH ?
	`
	args := []interface{}{sanitized}
	sqlQuery, args = applySearchFilters(sqlQuery, args, filters, "AND")

	sqlQuery += " ORDER BY chunks_fts.rank LIMIT ?"
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, &types.StorageError{Op: "search_text", Err: err}
	}
	defer func() { _ = rows.Close() }()

	results := make([]TextResult, 0, limit)
	for rows.Next() {
		var result TextResult
		if err := rows.Scan(&result.ChunkID, &result.Rank); err != nil {
			return nil, &types.StorageError{Op: "search_text", Err: err}
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.StorageError{Op: "search_text", Err: err}
	}
	return results, nil
}

// applySearchFilters appends the shared chunk filters to a query. keyword is
// the first connective to use ("WHERE" or "AND") depending on whether the
// base query already has a WHERE clause.
func applySearchFilters(query string, args []interface{}, filters *SearchFilters, keyword string) (string, []interface{}) {
	if filters == nil {
		return query, args
	}

	if filters.ChunkType != "" {
		query += " " + keyword + " c.chunk_type = ?"
		args = append(args, filters.ChunkType)
		keyword = "AND"
	}

	if filters.PathContains != "" {
		query += " " + keyword + " c.file_path LIKE '%' || ? || '%'"
		args = append(args, filters.PathContains)
	}

	return query, args
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors.
// A zero vector on either side yields 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// sanitizeFTSQuery turns free-form query text into a safe FTS5 match
// expression. Each whitespace-separated token becomes a quoted string, which
// makes boolean operators (AND, OR, NOT, NEAR) and syntax characters plain
// search terms instead of query syntax.
func sanitizeFTSQuery(query string) string {
	tokens := strings.Fields(query)
	if len(tokens) == 0 {
		return ""
	}

	quoted := make([]string, 0, len(tokens))
	for _, token := range tokens {
		// Inside an FTS5 string, a double quote is escaped by doubling it
		quoted = append(quoted, `"`+strings.ReplaceAll(token, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

// SerializeVector is an exported helper for callers that stage embeddings
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is the inverse of SerializeVector
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
