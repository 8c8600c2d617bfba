package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cmpprg/ragify-sub000/pkg/types"
)

// Storage defines the interface for persisting and querying indexed chunks
type Storage interface {
	// Chunk operations
	UpsertChunk(ctx context.Context, chunk *ChunkRecord) error
	UpsertChunks(ctx context.Context, chunks []*ChunkRecord) error
	GetChunk(ctx context.Context, chunkID string) (*ChunkRecord, error)
	ListChunksByFile(ctx context.Context, filePath string) ([]*ChunkRecord, error)
	DeleteChunksByFile(ctx context.Context, filePath string) (deletedCount int, err error)
	Clear(ctx context.Context) error

	// Embedding operations
	UpsertEmbedding(ctx context.Context, embedding *Embedding) error
	GetEmbedding(ctx context.Context, chunkID string) (*Embedding, error)
	DeleteEmbedding(ctx context.Context, chunkID string) error

	// Search operations
	SearchVector(ctx context.Context, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error)
	SearchText(ctx context.Context, query string, limit int, filters *SearchFilters) ([]TextResult, error)

	// Statistics
	Stats(ctx context.Context) (*IndexStats, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// ChunkRecord is the persisted form of a chunk. Metadata travels as a JSON
// document so the schema stays stable as metadata fields evolve.
type ChunkRecord struct {
	ID        string
	FilePath  string
	ChunkType string
	Name      string
	Code      string
	Context   string
	StartLine int
	EndLine   int
	Comments  string
	Metadata  string // JSON-encoded types.Metadata
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Embedding represents a vector embedding for a chunk
type Embedding struct {
	ChunkID   string
	Vector    []byte // Serialized float32 array, little-endian
	Dimension int
	Model     string
	CreatedAt time.Time
}

// SearchFilters narrows search results before ranking
type SearchFilters struct {
	ChunkType    string // Exact chunk type match
	PathContains string // Substring match on file path
}

// VectorResult represents a result from vector similarity search
type VectorResult struct {
	ChunkID    string
	Similarity float64 // Cosine similarity in [-1, 1]
}

// TextResult represents a result from full-text search. Rank is the raw FTS5
// bm25 rank, negative with lower meaning a better match.
type TextResult struct {
	ChunkID string
	Rank    float64
}

// IndexStats contains statistics about the index
type IndexStats struct {
	TotalChunks    int
	TotalFiles     int
	TotalVectors   int
	ChunksByType   map[string]int
	IndexSizeMB    float64
	SchemaVersion  string
	LastIndexedAt  time.Time
	VectorCoverage float64 // Fraction of chunks that carry an embedding
}

// FromChunk converts a types.Chunk into its persisted form
func FromChunk(c *types.Chunk) (*ChunkRecord, error) {
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chunk metadata: %w", err)
	}

	return &ChunkRecord{
		ID:        c.ID,
		FilePath:  c.FilePath,
		ChunkType: string(c.Type),
		Name:      c.Name,
		Code:      c.Code,
		Context:   c.Context,
		StartLine: c.StartLine,
		EndLine:   c.EndLine,
		Comments:  c.Comments,
		Metadata:  string(meta),
	}, nil
}

// ToChunk converts a persisted record back into a types.Chunk
func (r *ChunkRecord) ToChunk() (*types.Chunk, error) {
	chunk := &types.Chunk{
		ID:        r.ID,
		FilePath:  r.FilePath,
		Type:      types.ChunkType(r.ChunkType),
		Name:      r.Name,
		Code:      r.Code,
		Context:   r.Context,
		StartLine: r.StartLine,
		EndLine:   r.EndLine,
		Comments:  r.Comments,
	}

	if r.Metadata != "" {
		if err := json.Unmarshal([]byte(r.Metadata), &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode chunk metadata: %w", err)
		}
	}

	return chunk, nil
}
