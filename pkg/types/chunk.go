package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// ChunkType represents the kind of source construct a chunk was extracted from
type ChunkType string

const (
	ChunkClass    ChunkType = "class"
	ChunkModule   ChunkType = "module"
	ChunkMethod   ChunkType = "method"
	ChunkConstant ChunkType = "constant"
	ChunkFile     ChunkType = "file"
)

// IDHexLength is the number of hex characters kept from the SHA-256 digest.
// 64 bits of digest; no collision handling beyond the width itself.
const IDHexLength = 16

// LargeChunkThreshold is the line count above which a chunk is tagged large
const LargeChunkThreshold = 100

// Metadata carries the type-dependent fields of a chunk. Zero values are
// omitted from the persisted JSON representation.
type Metadata struct {
	// Method chunks
	Visibility  string   `json:"visibility,omitempty"`
	ClassMethod bool     `json:"class_method,omitempty"`
	Parameters  []string `json:"parameters,omitempty"`

	// Class chunks
	Superclass string `json:"superclass,omitempty"`

	// File fallback chunks
	TopLevel bool `json:"top_level,omitempty"`

	// Large-chunk tagging, independent of splitting
	LargeChunk bool `json:"large_chunk,omitempty"`
	LineCount  int  `json:"line_count,omitempty"`

	// Split-part bookkeeping
	IsPartial     bool   `json:"is_partial,omitempty"`
	PartNumber    int    `json:"part_number,omitempty"`
	TotalParts    int    `json:"total_parts,omitempty"`
	ParentChunkID string `json:"parent_chunk_id,omitempty"`
	OverlapLines  int    `json:"overlap_lines,omitempty"`
}

// Chunk is the unit of retrieval: a named, bounded slice of source code with
// its ancestor context and preceding doc comments preserved.
type Chunk struct {
	ID        string
	FilePath  string
	Type      ChunkType
	Name      string
	Code      string
	Context   string // joined ancestor path, e.g. "module Blog > class Post"
	StartLine int
	EndLine   int
	Comments  string // preceding contiguous #-comment block, possibly empty
	Metadata  Metadata
}

// NewChunkID derives the deterministic chunk id from the identity tuple.
// Identical inputs always produce identical ids, which is what makes
// re-indexing an upsert rather than an append.
func NewChunkID(filePath string, chunkType ChunkType, name string, startLine int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s:%s:%s:%d", filePath, chunkType, name, startLine))
	return hex.EncodeToString(sum[:])[:IDHexLength]
}

// PartID derives the id of split part n from its parent chunk id.
// Parts are not independently content-addressed.
func PartID(parentID string, n int) string {
	return fmt.Sprintf("%s_part%d", parentID, n)
}

// LineCount returns the number of source lines the chunk spans
func (c *Chunk) LineCount() int {
	return c.EndLine - c.StartLine + 1
}

// ValidateType checks if the chunk type is valid
func (c *Chunk) ValidateType() error {
	switch c.Type {
	case ChunkClass, ChunkModule, ChunkMethod, ChunkConstant, ChunkFile:
		return nil
	default:
		return errors.New("invalid chunk type")
	}
}

// Validate performs comprehensive validation of the chunk
func (c *Chunk) Validate() error {
	if c.ID == "" {
		return errors.New("chunk id is required")
	}

	if c.FilePath == "" {
		return errors.New("file path is required")
	}

	if c.Code == "" {
		return errors.New("chunk code cannot be empty")
	}

	if err := c.ValidateType(); err != nil {
		return err
	}

	if c.Name == "" {
		return errors.New("chunk name is required")
	}

	if c.StartLine <= 0 || c.EndLine <= 0 {
		return errors.New("line numbers must be positive")
	}

	if c.StartLine > c.EndLine {
		return errors.New("start line must be before or equal to end line")
	}

	return nil
}
