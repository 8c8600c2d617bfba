// Package splitter breaks oversized chunks into overlapping parts so each
// piece fits an embedding model's context window without losing continuity
// at the seams.
package splitter

import (
	"fmt"
	"strings"

	"github.com/cmpprg/ragify-sub000/pkg/types"
)

// Default sliding window dimensions, in lines
const (
	DefaultSizeLimit = 150
	DefaultOverlap   = 20
)

// Splitter slides a fixed window over a chunk's lines. Consecutive parts
// share Overlap lines, so the window advances SizeLimit-Overlap lines at a
// time.
type Splitter struct {
	SizeLimit int
	Overlap   int
}

// New creates a Splitter, validating the window dimensions
func New(sizeLimit, overlap int) (*Splitter, error) {
	if sizeLimit <= 0 {
		return nil, &types.ValidationError{Reason: fmt.Sprintf("size limit must be positive, got %d", sizeLimit)}
	}
	if overlap < 0 {
		return nil, &types.ValidationError{Reason: fmt.Sprintf("overlap must not be negative, got %d", overlap)}
	}
	if overlap >= sizeLimit {
		return nil, &types.ValidationError{Reason: fmt.Sprintf("overlap %d must be smaller than size limit %d", overlap, sizeLimit)}
	}
	return &Splitter{SizeLimit: sizeLimit, Overlap: overlap}, nil
}

// Split returns the chunk unchanged (as a single-element slice) when it fits
// the window, otherwise a sequence of overlapping parts. Part ids derive from
// the parent id, so re-splitting the same chunk is idempotent.
func (s *Splitter) Split(chunk *types.Chunk) []*types.Chunk {
	total := chunk.LineCount()
	if total <= s.SizeLimit {
		return []*types.Chunk{chunk}
	}

	lines := strings.Split(chunk.Code, "\n")
	if len(lines) < total {
		total = len(lines)
	}
	stride := s.SizeLimit - s.Overlap
	totalParts := (total - s.Overlap + stride - 1) / stride
	if totalParts < 1 {
		totalParts = 1
	}

	parts := make([]*types.Chunk, 0, totalParts)
	for n := 1; n <= totalParts; n++ {
		offset := (n - 1) * stride
		end := offset + s.SizeLimit
		if end > total {
			end = total
		}

		part := &types.Chunk{
			ID:        types.PartID(chunk.ID, n),
			FilePath:  chunk.FilePath,
			Type:      chunk.Type,
			Name:      chunk.Name,
			Code:      strings.Join(lines[offset:end], "\n"),
			Context:   chunk.Context,
			StartLine: chunk.StartLine + offset,
			EndLine:   chunk.StartLine + end - 1,
			Metadata:  chunk.Metadata,
		}

		// Comments describe the declaration, which only part 1 contains
		if n == 1 {
			part.Comments = chunk.Comments
		}

		part.Metadata.IsPartial = true
		part.Metadata.PartNumber = n
		part.Metadata.TotalParts = totalParts
		part.Metadata.ParentChunkID = chunk.ID
		part.Metadata.OverlapLines = s.Overlap

		parts = append(parts, part)
	}

	return parts
}

// SplitAll applies Split across a batch, preserving order
func (s *Splitter) SplitAll(chunks []*types.Chunk) []*types.Chunk {
	out := make([]*types.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		out = append(out, s.Split(chunk)...)
	}
	return out
}
