package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmpprg/ragify-sub000/internal/embedder"
	"github.com/cmpprg/ragify-sub000/internal/extractor"
	"github.com/cmpprg/ragify-sub000/internal/splitter"
	"github.com/cmpprg/ragify-sub000/internal/storage"
)

type stubEmbedder struct {
	available bool
	calls     int
}

func (s *stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	s.calls++
	return []float32{1, 0, 0}, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i], _ = s.Embed(ctx, texts[i])
	}
	return out, nil
}

func (s *stubEmbedder) ServiceAvailable(context.Context) bool        { return s.available }
func (s *stubEmbedder) ModelAvailable(context.Context) (bool, error) { return s.available, nil }
func (s *stubEmbedder) Dimension() int                               { return 3 }
func (s *stubEmbedder) ModelName() string                            { return "stub-model" }
func (s *stubEmbedder) Close() error                                 { return nil }

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func newTestIndexer(t *testing.T, db *storage.SQLiteStorage, emb embedder.Embedder) *Indexer {
	t.Helper()
	split, err := splitter.New(splitter.DefaultSizeLimit, splitter.DefaultOverlap)
	require.NoError(t, err)
	return New(db, extractor.New(), split, emb, zerolog.Nop(), Options{})
}

func setupDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestIndexDir(t *testing.T) {
	root := writeTree(t, map[string]string{
		"lib/calc.rb":   "class Calculator\n  def add(a, b)\n    a + b\n  end\nend\n",
		"lib/user.rb":   "class User\n  def name\n    @name\n  end\nend\n",
		"vendor/gem.rb": "class Ignored\nend\n",
		"README.md":     "not ruby",
	})

	db := setupDB(t)
	ix := newTestIndexer(t, db, nil)

	result, err := ix.IndexDir(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 2, result.FilesIndexed)
	assert.Equal(t, 0, result.FilesFailed)
	assert.Equal(t, 4, result.ChunksStored) // 2 classes + 2 methods
	assert.Equal(t, 0, result.VectorsStored)

	stats, err := db.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalChunks)
	assert.Equal(t, 2, stats.TotalFiles)
}

func TestIndexDirIsIdempotent(t *testing.T) {
	root := writeTree(t, map[string]string{
		"lib/calc.rb": "class Calculator\n  def add(a, b)\n    a + b\n  end\nend\n",
	})

	db := setupDB(t)
	ix := newTestIndexer(t, db, nil)
	ctx := context.Background()

	_, err := ix.IndexDir(ctx, root)
	require.NoError(t, err)
	_, err = ix.IndexDir(ctx, root)
	require.NoError(t, err)

	stats, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalChunks)
}

func TestIndexDirPurgesStaleChunks(t *testing.T) {
	root := writeTree(t, map[string]string{
		"lib/calc.rb": "class Calculator\n  def add(a, b)\n    a + b\n  end\nend\n",
	})

	db := setupDB(t)
	ix := newTestIndexer(t, db, nil)
	ctx := context.Background()

	_, err := ix.IndexDir(ctx, root)
	require.NoError(t, err)

	// Shift the method to a new line: a new chunk id, so the old one must go
	require.NoError(t, os.WriteFile(filepath.Join(root, "lib", "calc.rb"),
		[]byte("class Calculator\n  # adds\n  def add(a, b)\n    a + b\n  end\nend\n"), 0o644))

	_, err = ix.IndexDir(ctx, root)
	require.NoError(t, err)

	chunks, err := db.ListChunksByFile(ctx, "lib/calc.rb")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 3, chunks[1].StartLine)
}

func TestIndexDirReportsBadFiles(t *testing.T) {
	root := writeTree(t, map[string]string{
		"lib/good.rb":   "class Good\nend\n",
		"lib/broken.rb": "class Broken\n  def oops(\nend\n",
	})

	db := setupDB(t)
	ix := newTestIndexer(t, db, nil)

	result, err := ix.IndexDir(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 1, result.FilesIndexed)
	assert.Equal(t, 1, result.FilesFailed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "lib/broken.rb", result.Errors[0].Path)

	// The good file's chunks landed despite the neighbor failing
	chunks, err := db.ListChunksByFile(context.Background(), "lib/good.rb")
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestIndexDirWithEmbeddings(t *testing.T) {
	root := writeTree(t, map[string]string{
		"lib/calc.rb": "class Calculator\n  def add(a, b)\n    a + b\n  end\nend\n",
	})

	db := setupDB(t)
	emb := &stubEmbedder{available: true}
	ix := newTestIndexer(t, db, emb)

	result, err := ix.IndexDir(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ChunksStored)
	assert.Equal(t, 2, result.VectorsStored)
	assert.Equal(t, 2, emb.calls)

	stats, err := db.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalVectors)
}

func TestIndexDirServiceDownSkipsVectors(t *testing.T) {
	root := writeTree(t, map[string]string{
		"lib/calc.rb": "class Calculator\nend\n",
	})

	db := setupDB(t)
	emb := &stubEmbedder{available: false}
	ix := newTestIndexer(t, db, emb)

	result, err := ix.IndexDir(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesIndexed)
	assert.Equal(t, 0, result.VectorsStored)
	assert.Equal(t, 0, emb.calls)
}

func TestIndexFileReplacesPrevious(t *testing.T) {
	db := setupDB(t)
	ix := newTestIndexer(t, db, nil)
	ctx := context.Background()

	stored, _, err := ix.IndexFile(ctx, "lib/a.rb", "class A\n  def one; end\n  def two; end\nend\n")
	require.NoError(t, err)
	assert.Equal(t, 3, stored)

	// Second pass with one method removed must not leave stale chunks
	stored, _, err = ix.IndexFile(ctx, "lib/a.rb", "class A\n  def one; end\nend\n")
	require.NoError(t, err)
	assert.Equal(t, 2, stored)

	chunks, err := db.ListChunksByFile(ctx, "lib/a.rb")
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}

func TestDiscoverRubyFiles(t *testing.T) {
	root := writeTree(t, map[string]string{
		"app/models/user.rb": "class User\nend\n",
		"lib/util.rb":        "module Util\nend\n",
		".git/hook.rb":       "ignored",
		"node_modules/x.rb":  "ignored",
		"doc/readme.txt":     "ignored",
	})

	paths, err := discoverRubyFiles(root)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Contains(t, paths[0], filepath.Join("app", "models", "user.rb"))
	assert.Contains(t, paths[1], filepath.Join("lib", "util.rb"))
}
