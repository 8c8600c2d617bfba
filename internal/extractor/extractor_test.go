package extractor

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmpprg/ragify-sub000/pkg/types"
)

func extract(t *testing.T, source string) []*types.Chunk {
	t.Helper()
	chunks, err := New().Extract(context.Background(), "lib/sample.rb", source)
	require.NoError(t, err)
	return chunks
}

func byName(chunks []*types.Chunk, name string) *types.Chunk {
	for _, c := range chunks {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestExtractClassWithMethods(t *testing.T) {
	source := `class Calculator
  def add(a, b)
    a + b
  end

  def subtract(a, b)
    a - b
  end
end
`
	chunks := extract(t, source)
	require.Len(t, chunks, 3)

	class := byName(chunks, "Calculator")
	require.NotNil(t, class)
	assert.Equal(t, types.ChunkClass, class.Type)
	assert.Equal(t, "", class.Context)
	assert.Equal(t, 1, class.StartLine)
	assert.Equal(t, 9, class.EndLine)
	assert.True(t, strings.HasPrefix(class.Code, "class Calculator"))

	add := byName(chunks, "add")
	require.NotNil(t, add)
	assert.Equal(t, types.ChunkMethod, add.Type)
	assert.Equal(t, "class Calculator", add.Context)
	assert.Equal(t, 2, add.StartLine)
	assert.Equal(t, 4, add.EndLine)
	assert.Equal(t, []string{"a", "b"}, add.Metadata.Parameters)

	sub := byName(chunks, "subtract")
	require.NotNil(t, sub)
	assert.Equal(t, "class Calculator", sub.Context)
}

func TestExtractDeterministicIDs(t *testing.T) {
	source := "class Foo\n  def bar\n  end\nend\n"

	first := extract(t, source)
	second := extract(t, source)
	require.Len(t, first, 2)
	require.Len(t, second, 2)

	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Len(t, first[i].ID, types.IDHexLength)
	}
}

func TestExtractNestedContext(t *testing.T) {
	source := `module Outer
  class Inner
    def work
    end
  end

  def helper
  end
end
`
	chunks := extract(t, source)
	require.Len(t, chunks, 4)

	assert.Equal(t, "", byName(chunks, "Outer").Context)
	assert.Equal(t, "module Outer", byName(chunks, "Inner").Context)
	assert.Equal(t, "module Outer > class Inner", byName(chunks, "work").Context)

	// Sibling of Inner must not inherit Inner's context
	assert.Equal(t, "module Outer", byName(chunks, "helper").Context)
}

func TestExtractVisibility(t *testing.T) {
	source := `class Account
  def open
  end

  private

  def audit
  end

  protected

  def compare
  end
end
`
	chunks := extract(t, source)

	assert.Equal(t, "public", byName(chunks, "open").Metadata.Visibility)
	assert.Equal(t, "private", byName(chunks, "audit").Metadata.Visibility)
	assert.Equal(t, "protected", byName(chunks, "compare").Metadata.Visibility)
}

func TestExtractVisibilityResetsPerBody(t *testing.T) {
	source := `class A
  private

  def hidden
  end
end

class B
  def visible
  end
end
`
	chunks := extract(t, source)

	assert.Equal(t, "private", byName(chunks, "hidden").Metadata.Visibility)
	assert.Equal(t, "public", byName(chunks, "visible").Metadata.Visibility)
}

func TestExtractClassMethods(t *testing.T) {
	source := `class Config
  def self.load(path)
  end

  class << self
    def reset
    end
  end

  def instance_method
  end
end
`
	chunks := extract(t, source)

	load := byName(chunks, "load")
	require.NotNil(t, load)
	assert.True(t, load.Metadata.ClassMethod)
	assert.Equal(t, "class Config", load.Context)

	reset := byName(chunks, "reset")
	require.NotNil(t, reset)
	assert.True(t, reset.Metadata.ClassMethod)

	inst := byName(chunks, "instance_method")
	require.NotNil(t, inst)
	assert.False(t, inst.Metadata.ClassMethod)
}

func TestExtractParameterNotation(t *testing.T) {
	source := `class Runner
  def call(a, b = 1, *rest, key:, opt: nil, **extra, &blk)
  end
end
`
	chunks := extract(t, source)

	call := byName(chunks, "call")
	require.NotNil(t, call)
	assert.Equal(t,
		[]string{"a", "b = 1", "*rest", "key:", "opt: nil", "**extra", "&blk"},
		call.Metadata.Parameters)
}

func TestExtractConstants(t *testing.T) {
	source := `MAX_RETRIES = 3

class Worker
  TIMEOUT = 30
  counter = 0
end
`
	chunks := extract(t, source)

	top := byName(chunks, "MAX_RETRIES")
	require.NotNil(t, top)
	assert.Equal(t, types.ChunkConstant, top.Type)
	assert.Equal(t, "", top.Context)

	nested := byName(chunks, "TIMEOUT")
	require.NotNil(t, nested)
	assert.Equal(t, "class Worker", nested.Context)

	// Lowercase assignments are locals, not constants
	assert.Nil(t, byName(chunks, "counter"))
}

func TestExtractSuperclass(t *testing.T) {
	source := `class Admin < User
end
`
	chunks := extract(t, source)
	require.Len(t, chunks, 1)
	assert.Equal(t, "User", chunks[0].Metadata.Superclass)
}

func TestExtractComments(t *testing.T) {
	source := `# Handles fare calculation.
# Prices are in cents.
class Fare
  # stale note

  # Computes the total.
  def total
  end
end
`
	chunks := extract(t, source)

	fare := byName(chunks, "Fare")
	require.NotNil(t, fare)
	assert.Equal(t, "# Handles fare calculation.\n# Prices are in cents.", fare.Comments)

	// A blank line cuts the comment block
	total := byName(chunks, "total")
	require.NotNil(t, total)
	assert.Equal(t, "# Computes the total.", total.Comments)
}

func TestExtractFileFallback(t *testing.T) {
	source := `puts "starting"
run_migrations
puts "done"
`
	chunks := extract(t, source)
	require.Len(t, chunks, 1)

	c := chunks[0]
	assert.Equal(t, types.ChunkFile, c.Type)
	assert.Equal(t, "sample.rb", c.Name)
	assert.True(t, c.Metadata.TopLevel)
	assert.Equal(t, 1, c.StartLine)
	assert.Equal(t, 3, c.EndLine)
}

func TestExtractBlankSource(t *testing.T) {
	for _, source := range []string{"", "   \n\t\n"} {
		chunks, err := New().Extract(context.Background(), "lib/empty.rb", source)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	}
}

func TestExtractParseError(t *testing.T) {
	_, err := New().Extract(context.Background(), "lib/broken.rb", "class Foo\n  def bar(\nend\n")
	require.Error(t, err)

	var parseErr *types.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "lib/broken.rb", parseErr.Path)
}

func TestExtractLargeChunkTagging(t *testing.T) {
	var b strings.Builder
	b.WriteString("class Big\n  def huge\n")
	for i := 0; i < 120; i++ {
		b.WriteString(fmt.Sprintf("    step_%d\n", i))
	}
	b.WriteString("  end\nend\n")

	chunks := extract(t, b.String())

	huge := byName(chunks, "huge")
	require.NotNil(t, huge)
	assert.True(t, huge.Metadata.LargeChunk)
	assert.Equal(t, huge.LineCount(), huge.Metadata.LineCount)
	assert.Greater(t, huge.Metadata.LineCount, types.LargeChunkThreshold)

	big := byName(chunks, "Big")
	require.NotNil(t, big)
	assert.True(t, big.Metadata.LargeChunk)
}
