// Package indexer walks a codebase, runs extraction and splitting across
// files in parallel, and commits each file's chunks to storage atomically.
// Embedding generation is best-effort: when the service is down the index is
// still built, just without vectors.
package indexer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cmpprg/ragify-sub000/internal/embedder"
	"github.com/cmpprg/ragify-sub000/internal/extractor"
	"github.com/cmpprg/ragify-sub000/internal/splitter"
	"github.com/cmpprg/ragify-sub000/internal/storage"
	"github.com/cmpprg/ragify-sub000/pkg/types"
)

// DefaultWorkers bounds parallel extraction
const DefaultWorkers = 4

// Directories never worth indexing
var skipDirs = map[string]bool{
	".git":         true,
	".bundle":      true,
	"node_modules": true,
	"vendor":       true,
	"tmp":          true,
	"log":          true,
}

// Options tunes an indexing run
type Options struct {
	Workers        int  // Parallel extraction workers, 0 means DefaultWorkers
	SkipEmbeddings bool // Index without vectors even if the service is up
}

// FileError records a single file's failure without aborting the run
type FileError struct {
	Path string
	Err  error
}

// Result summarizes an indexing run
type Result struct {
	FilesIndexed  int
	FilesFailed   int
	ChunksStored  int
	VectorsStored int
	Errors        []FileError
	Duration      time.Duration
}

// Indexer drives the extract -> split -> store pipeline
type Indexer struct {
	store     storage.Storage
	extractor *extractor.Extractor
	splitter  *splitter.Splitter
	embedder  embedder.Embedder // May be nil
	logger    zerolog.Logger
	opts      Options
}

// New creates an Indexer. A nil embedder disables vector generation.
func New(store storage.Storage, ext *extractor.Extractor, split *splitter.Splitter, emb embedder.Embedder, logger zerolog.Logger, opts Options) *Indexer {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Indexer{
		store:     store,
		extractor: ext,
		splitter:  split,
		embedder:  emb,
		logger:    logger,
		opts:      opts,
	}
}

// WithSkipEmbeddings returns a copy of the indexer with vector generation
// toggled, for per-request overrides on a shared instance.
func (ix *Indexer) WithSkipEmbeddings(skip bool) *Indexer {
	clone := *ix
	clone.opts.SkipEmbeddings = skip
	return &clone
}

// IndexDir indexes every Ruby file under root. Extraction runs in parallel;
// storage commits are serialized, one transaction per file, so a bad file
// never leaves partial state behind.
func (ix *Indexer) IndexDir(ctx context.Context, root string) (*Result, error) {
	start := time.Now()

	paths, err := discoverRubyFiles(root)
	if err != nil {
		return nil, err
	}

	ix.logger.Info().Str("root", root).Int("files", len(paths)).Msg("indexing started")

	type extracted struct {
		path   string
		chunks []*types.Chunk
		err    error
	}

	var mu sync.Mutex
	byPath := make(map[string]extracted, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.opts.Workers)
	for _, path := range paths {
		g.Go(func() error {
			// Everything downstream sees the root-relative path: stored
			// chunks, delete-by-file targets, and error reports.
			rel := relPath(root, path)
			chunks, err := ix.extractFile(gctx, path, rel)
			mu.Lock()
			byPath[path] = extracted{path: rel, chunks: chunks, err: err}
			mu.Unlock()
			return nil // Per-file errors are reported, not fatal
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	embed := ix.embeddingEnabled(ctx)

	result := &Result{}
	for _, path := range paths {
		ex := byPath[path]
		if ex.err != nil {
			result.FilesFailed++
			result.Errors = append(result.Errors, FileError{Path: ex.path, Err: ex.err})
			ix.logger.Warn().Str("file", ex.path).Err(ex.err).Msg("file skipped")
			continue
		}

		stored, vectors, err := ix.commitFile(ctx, ex.path, ex.chunks, embed)
		if err != nil {
			result.FilesFailed++
			result.Errors = append(result.Errors, FileError{Path: ex.path, Err: err})
			ix.logger.Error().Str("file", ex.path).Err(err).Msg("commit failed")
			continue
		}

		result.FilesIndexed++
		result.ChunksStored += stored
		result.VectorsStored += vectors
	}

	result.Duration = time.Since(start)
	ix.logger.Info().
		Int("files", result.FilesIndexed).
		Int("failed", result.FilesFailed).
		Int("chunks", result.ChunksStored).
		Int("vectors", result.VectorsStored).
		Dur("took", result.Duration).
		Msg("indexing finished")

	return result, nil
}

// IndexFile indexes a single already-read file. Returns chunks stored and
// vectors written.
func (ix *Indexer) IndexFile(ctx context.Context, filePath, content string) (int, int, error) {
	chunks, err := ix.extractor.Extract(ctx, filePath, content)
	if err != nil {
		return 0, 0, err
	}
	chunks = ix.splitter.SplitAll(chunks)
	return ix.commitFile(ctx, filePath, chunks, ix.embeddingEnabled(ctx))
}

// extractFile reads and chunks one file. Chunks carry the root-relative path
// so ids survive moving the project directory.
func (ix *Indexer) extractFile(ctx context.Context, path, rel string) ([]*types.Chunk, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	chunks, err := ix.extractor.Extract(ctx, rel, string(content))
	if err != nil {
		return nil, err
	}
	return ix.splitter.SplitAll(chunks), nil
}

// relPath maps an absolute discovery path to the root-relative form chunks
// are stored under
func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// commitFile replaces a file's chunks in one transaction, then writes
// embeddings outside it. An embedding failure costs the vector, not the
// chunk.
func (ix *Indexer) commitFile(ctx context.Context, filePath string, chunks []*types.Chunk, embed bool) (int, int, error) {
	records := make([]*storage.ChunkRecord, 0, len(chunks))
	for _, chunk := range chunks {
		record, err := storage.FromChunk(chunk)
		if err != nil {
			return 0, 0, err
		}
		records = append(records, record)
	}

	tx, err := ix.store.BeginTx(ctx)
	if err != nil {
		return 0, 0, err
	}
	if _, err := tx.DeleteChunksByFile(ctx, filePath); err != nil {
		_ = tx.Rollback()
		return 0, 0, err
	}
	if err := tx.UpsertChunks(ctx, records); err != nil {
		_ = tx.Rollback()
		return 0, 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}

	if !embed {
		return len(chunks), 0, nil
	}

	vectors := 0
	for _, chunk := range chunks {
		vector, err := ix.embedder.Embed(ctx, embeddingText(chunk))
		if err != nil {
			ix.logger.Warn().Str("chunk", chunk.ID).Err(err).Msg("embedding failed")
			continue
		}
		err = ix.store.UpsertEmbedding(ctx, &storage.Embedding{
			ChunkID:   chunk.ID,
			Vector:    storage.SerializeVector(vector),
			Dimension: len(vector),
			Model:     ix.embedder.ModelName(),
		})
		if err != nil {
			return len(chunks), vectors, err
		}
		vectors++
	}

	return len(chunks), vectors, nil
}

// embeddingEnabled probes the service once per run
func (ix *Indexer) embeddingEnabled(ctx context.Context) bool {
	if ix.opts.SkipEmbeddings || ix.embedder == nil {
		return false
	}
	if !ix.embedder.ServiceAvailable(ctx) {
		ix.logger.Warn().Msg("embedding service unavailable, indexing without vectors")
		return false
	}
	return true
}

// embeddingText is what the model sees for a chunk: the nesting context and
// comments carry meaning the raw code lacks
func embeddingText(chunk *types.Chunk) string {
	var parts []string
	if chunk.Context != "" {
		parts = append(parts, chunk.Context)
	}
	if chunk.Comments != "" {
		parts = append(parts, chunk.Comments)
	}
	parts = append(parts, chunk.Code)
	return strings.Join(parts, "\n")
}

// discoverRubyFiles walks root collecting .rb files in deterministic order
func discoverRubyFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) == ".rb" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
