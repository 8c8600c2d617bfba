package splitter

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmpprg/ragify-sub000/pkg/types"
)

func makeChunk(startLine, lineCount int) *types.Chunk {
	lines := make([]string, lineCount)
	for i := range lines {
		lines[i] = fmt.Sprintf("line_%d", startLine+i)
	}
	return &types.Chunk{
		ID:        "parent01",
		FilePath:  "lib/big.rb",
		Type:      types.ChunkMethod,
		Name:      "huge",
		Code:      strings.Join(lines, "\n"),
		Context:   "class Big",
		StartLine: startLine,
		EndLine:   startLine + lineCount - 1,
		Comments:  "# big method",
	}
}

func TestSplitConfigValidation(t *testing.T) {
	_, err := New(0, 0)
	assert.Error(t, err)

	_, err = New(150, -1)
	assert.Error(t, err)

	_, err = New(150, 150)
	var verr *types.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = New(DefaultSizeLimit, DefaultOverlap)
	assert.NoError(t, err)
}

func TestSplitSmallChunkPassesThrough(t *testing.T) {
	s, err := New(150, 20)
	require.NoError(t, err)

	chunk := makeChunk(10, 150)
	parts := s.Split(chunk)
	require.Len(t, parts, 1)
	assert.Same(t, chunk, parts[0])
	assert.False(t, parts[0].Metadata.IsPartial)
}

func TestSplitTwoParts(t *testing.T) {
	s, err := New(150, 20)
	require.NoError(t, err)

	// 200 lines, stride 130: parts at offsets 0 and 130
	chunk := makeChunk(100, 200)
	parts := s.Split(chunk)
	require.Len(t, parts, 2)

	first, second := parts[0], parts[1]

	assert.Equal(t, "parent01_part1", first.ID)
	assert.Equal(t, 100, first.StartLine)
	assert.Equal(t, 249, first.EndLine)
	assert.Equal(t, 1, first.Metadata.PartNumber)
	assert.Equal(t, 2, first.Metadata.TotalParts)
	assert.Equal(t, "parent01", first.Metadata.ParentChunkID)
	assert.Equal(t, 20, first.Metadata.OverlapLines)
	assert.True(t, first.Metadata.IsPartial)

	assert.Equal(t, "parent01_part2", second.ID)
	assert.Equal(t, 230, second.StartLine)
	assert.Equal(t, 299, second.EndLine)
	assert.Equal(t, 2, second.Metadata.PartNumber)
}

func TestSplitPartCount(t *testing.T) {
	s, err := New(150, 20)
	require.NoError(t, err)

	// ceil((total-20)/130)
	cases := map[int]int{
		151: 2,
		200: 2,
		280: 2,
		281: 3,
		500: 4,
	}
	for total, want := range cases {
		parts := s.Split(makeChunk(1, total))
		assert.Len(t, parts, want, "total=%d", total)
		for _, p := range parts {
			assert.Equal(t, want, p.Metadata.TotalParts)
		}
	}
}

func TestSplitOverlapIsByteExact(t *testing.T) {
	s, err := New(150, 20)
	require.NoError(t, err)

	parts := s.Split(makeChunk(1, 500))
	require.Greater(t, len(parts), 1)

	for i := 1; i < len(parts); i++ {
		prev := strings.Split(parts[i-1].Code, "\n")
		cur := strings.Split(parts[i].Code, "\n")
		tail := prev[len(prev)-20:]
		head := cur[:20]
		assert.Equal(t, tail, head, "seam between part %d and %d", i, i+1)
	}
}

func TestSplitCoversEveryLine(t *testing.T) {
	s, err := New(150, 20)
	require.NoError(t, err)

	chunk := makeChunk(1, 437)
	parts := s.Split(chunk)

	seen := make(map[string]bool)
	for _, p := range parts {
		for _, line := range strings.Split(p.Code, "\n") {
			seen[line] = true
		}
	}
	for _, line := range strings.Split(chunk.Code, "\n") {
		assert.True(t, seen[line], "line %q missing from parts", line)
	}

	last := parts[len(parts)-1]
	assert.Equal(t, chunk.EndLine, last.EndLine)
}

func TestSplitCommentsOnlyOnFirstPart(t *testing.T) {
	s, err := New(150, 20)
	require.NoError(t, err)

	parts := s.Split(makeChunk(1, 300))
	require.Greater(t, len(parts), 1)

	assert.Equal(t, "# big method", parts[0].Comments)
	for _, p := range parts[1:] {
		assert.Empty(t, p.Comments)
	}
}

func TestSplitPreservesEnvelope(t *testing.T) {
	s, err := New(150, 20)
	require.NoError(t, err)

	for _, p := range s.Split(makeChunk(1, 300)) {
		assert.Equal(t, "lib/big.rb", p.FilePath)
		assert.Equal(t, types.ChunkMethod, p.Type)
		assert.Equal(t, "huge", p.Name)
		assert.Equal(t, "class Big", p.Context)
	}
}

func TestSplitAll(t *testing.T) {
	s, err := New(150, 20)
	require.NoError(t, err)

	small := makeChunk(1, 50)
	small.ID = "small001"
	big := makeChunk(1, 200)

	out := s.SplitAll([]*types.Chunk{small, big})
	require.Len(t, out, 3)
	assert.Equal(t, "small001", out[0].ID)
	assert.Equal(t, "parent01_part1", out[1].ID)
	assert.Equal(t, "parent01_part2", out[2].ID)
}
