package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cmpprg/ragify-sub000/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
)

// metaLastIndexedAt is the index_meta key holding the last index timestamp
const metaLastIndexedAt = "last_indexed_at"

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Embeddings cascade on chunk deletion
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance and applies any
// pending migrations
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, &types.StorageError{Op: "open", Err: err}
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, &types.StorageError{Op: "migrate", Err: err}
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &types.StorageError{Op: "begin_tx", Err: err}
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Chunk operations

// upsertChunkWithQuerier inserts or fully replaces a chunk by id
func (s *SQLiteStorage) upsertChunkWithQuerier(ctx context.Context, q querier, chunk *ChunkRecord) error {
	query := `
		INSERT INTO chunks (
			id, file_path, chunk_type, name, code, context,
			start_line, end_line, comments, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_path = excluded.file_path,
			chunk_type = excluded.chunk_type,
			name = excluded.name,
			code = excluded.code,
			context = excluded.context,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			comments = excluded.comments,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`
	now := time.Now()
	_, err := q.ExecContext(ctx, query,
		chunk.ID, chunk.FilePath, chunk.ChunkType, chunk.Name, chunk.Code,
		chunk.Context, chunk.StartLine, chunk.EndLine, chunk.Comments,
		chunk.Metadata, now, now,
	)
	if err != nil {
		return &types.StorageError{Op: "upsert_chunk", Err: err}
	}

	chunk.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertChunk(ctx context.Context, chunk *ChunkRecord) error {
	return s.upsertChunkWithQuerier(ctx, s.querier(), chunk)
}

// upsertChunksWithQuerier writes a batch and bumps last_indexed_at once
func (s *SQLiteStorage) upsertChunksWithQuerier(ctx context.Context, q querier, chunks []*ChunkRecord) error {
	for _, chunk := range chunks {
		if err := s.upsertChunkWithQuerier(ctx, q, chunk); err != nil {
			return err
		}
	}
	return s.setLastIndexedAtWithQuerier(ctx, q, time.Now())
}

// UpsertChunks writes a batch of chunks atomically: either every chunk lands
// or none do
func (s *SQLiteStorage) UpsertChunks(ctx context.Context, chunks []*ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &types.StorageError{Op: "upsert_chunks", Err: err}
	}

	if err := s.upsertChunksWithQuerier(ctx, tx, chunks); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return &types.StorageError{Op: "upsert_chunks", Err: err}
	}
	return nil
}

// getChunkWithQuerier retrieves a chunk by id
func (s *SQLiteStorage) getChunkWithQuerier(ctx context.Context, q querier, chunkID string) (*ChunkRecord, error) {
	query := `
		SELECT id, file_path, chunk_type, name, code, context,
		       start_line, end_line, comments, metadata, created_at, updated_at
		FROM chunks
		WHERE id = ?
	`
	var chunk ChunkRecord
	err := q.QueryRowContext(ctx, query, chunkID).Scan(
		&chunk.ID, &chunk.FilePath, &chunk.ChunkType, &chunk.Name, &chunk.Code,
		&chunk.Context, &chunk.StartLine, &chunk.EndLine, &chunk.Comments,
		&chunk.Metadata, &chunk.CreatedAt, &chunk.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &types.StorageError{Op: "get_chunk", Err: err}
	}
	return &chunk, nil
}

func (s *SQLiteStorage) GetChunk(ctx context.Context, chunkID string) (*ChunkRecord, error) {
	return s.getChunkWithQuerier(ctx, s.querier(), chunkID)
}

// listChunksByFileWithQuerier returns a file's chunks in source order
func (s *SQLiteStorage) listChunksByFileWithQuerier(ctx context.Context, q querier, filePath string) ([]*ChunkRecord, error) {
	query := `
		SELECT id, file_path, chunk_type, name, code, context,
		       start_line, end_line, comments, metadata, created_at, updated_at
		FROM chunks
		WHERE file_path = ?
		ORDER BY start_line, id
	`
	rows, err := q.QueryContext(ctx, query, filePath)
	if err != nil {
		return nil, &types.StorageError{Op: "list_chunks", Err: err}
	}
	defer func() { _ = rows.Close() }()

	chunks := make([]*ChunkRecord, 0)
	for rows.Next() {
		var chunk ChunkRecord
		err := rows.Scan(
			&chunk.ID, &chunk.FilePath, &chunk.ChunkType, &chunk.Name, &chunk.Code,
			&chunk.Context, &chunk.StartLine, &chunk.EndLine, &chunk.Comments,
			&chunk.Metadata, &chunk.CreatedAt, &chunk.UpdatedAt,
		)
		if err != nil {
			return nil, &types.StorageError{Op: "list_chunks", Err: err}
		}
		chunks = append(chunks, &chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.StorageError{Op: "list_chunks", Err: err}
	}
	return chunks, nil
}

func (s *SQLiteStorage) ListChunksByFile(ctx context.Context, filePath string) ([]*ChunkRecord, error) {
	return s.listChunksByFileWithQuerier(ctx, s.querier(), filePath)
}

// deleteChunksByFileWithQuerier counts the file's chunks, then deletes them.
// The count comes first so the reported number reflects what was actually
// removed, not RowsAffected quirks across drivers.
func (s *SQLiteStorage) deleteChunksByFileWithQuerier(ctx context.Context, q querier, filePath string) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE file_path = ?", filePath).Scan(&count)
	if err != nil {
		return 0, &types.StorageError{Op: "delete_chunks_by_file", Err: err}
	}

	if count == 0 {
		return 0, nil
	}

	if _, err := q.ExecContext(ctx, "DELETE FROM chunks WHERE file_path = ?", filePath); err != nil {
		return 0, &types.StorageError{Op: "delete_chunks_by_file", Err: err}
	}

	return count, nil
}

func (s *SQLiteStorage) DeleteChunksByFile(ctx context.Context, filePath string) (int, error) {
	return s.deleteChunksByFileWithQuerier(ctx, s.querier(), filePath)
}

// clearWithQuerier removes all indexed data. Embeddings cascade from chunks
// and the FTS table follows via trigger. The schema_version table survives so
// a cleared database is still a migrated one.
func (s *SQLiteStorage) clearWithQuerier(ctx context.Context, q querier) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
		return &types.StorageError{Op: "clear", Err: err}
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM index_meta"); err != nil {
		return &types.StorageError{Op: "clear", Err: err}
	}
	return nil
}

func (s *SQLiteStorage) Clear(ctx context.Context) error {
	return s.clearWithQuerier(ctx, s.querier())
}

// Embedding operations

// upsertEmbeddingWithQuerier inserts or replaces a chunk's embedding
func (s *SQLiteStorage) upsertEmbeddingWithQuerier(ctx context.Context, q querier, embedding *Embedding) error {
	query := `
		INSERT INTO embeddings (chunk_id, vector, dimension, model, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			model = excluded.model
	`
	now := time.Now()
	_, err := q.ExecContext(ctx, query,
		embedding.ChunkID, embedding.Vector, embedding.Dimension, embedding.Model, now)
	if err != nil {
		return &types.StorageError{Op: "upsert_embedding", Err: err}
	}

	embedding.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return s.upsertEmbeddingWithQuerier(ctx, s.querier(), embedding)
}

// getEmbeddingWithQuerier retrieves a chunk's embedding
func (s *SQLiteStorage) getEmbeddingWithQuerier(ctx context.Context, q querier, chunkID string) (*Embedding, error) {
	query := `
		SELECT chunk_id, vector, dimension, model, created_at
		FROM embeddings
		WHERE chunk_id = ?
	`
	var embedding Embedding
	err := q.QueryRowContext(ctx, query, chunkID).Scan(
		&embedding.ChunkID, &embedding.Vector, &embedding.Dimension,
		&embedding.Model, &embedding.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &types.StorageError{Op: "get_embedding", Err: err}
	}
	return &embedding, nil
}

func (s *SQLiteStorage) GetEmbedding(ctx context.Context, chunkID string) (*Embedding, error) {
	return s.getEmbeddingWithQuerier(ctx, s.querier(), chunkID)
}

// deleteEmbeddingWithQuerier removes a chunk's embedding
func (s *SQLiteStorage) deleteEmbeddingWithQuerier(ctx context.Context, q querier, chunkID string) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM embeddings WHERE chunk_id = ?", chunkID); err != nil {
		return &types.StorageError{Op: "delete_embedding", Err: err}
	}
	return nil
}

func (s *SQLiteStorage) DeleteEmbedding(ctx context.Context, chunkID string) error {
	return s.deleteEmbeddingWithQuerier(ctx, s.querier(), chunkID)
}

// Search operations

func (s *SQLiteStorage) SearchVector(ctx context.Context, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	return searchVector(ctx, s.querier(), queryVector, limit, filters)
}

func (s *SQLiteStorage) SearchText(ctx context.Context, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	return searchText(ctx, s.querier(), query, limit, filters)
}

// Statistics

// statsWithQuerier gathers index statistics in a handful of aggregate queries
func (s *SQLiteStorage) statsWithQuerier(ctx context.Context, q querier) (*IndexStats, error) {
	stats := &IndexStats{ChunksByType: make(map[string]int)}

	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&stats.TotalChunks); err != nil {
		return nil, &types.StorageError{Op: "stats", Err: err}
	}

	if err := q.QueryRowContext(ctx, "SELECT COUNT(DISTINCT file_path) FROM chunks").Scan(&stats.TotalFiles); err != nil {
		return nil, &types.StorageError{Op: "stats", Err: err}
	}

	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&stats.TotalVectors); err != nil {
		return nil, &types.StorageError{Op: "stats", Err: err}
	}

	rows, err := q.QueryContext(ctx, "SELECT chunk_type, COUNT(*) FROM chunks GROUP BY chunk_type")
	if err != nil {
		return nil, &types.StorageError{Op: "stats", Err: err}
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var chunkType string
		var count int
		if err := rows.Scan(&chunkType, &count); err != nil {
			return nil, &types.StorageError{Op: "stats", Err: err}
		}
		stats.ChunksByType[chunkType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, &types.StorageError{Op: "stats", Err: err}
	}

	var pageCount, pageSize int
	if err := q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		stats.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	var version sql.NullString
	_ = q.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1").Scan(&version)
	if version.Valid {
		stats.SchemaVersion = version.String
	}

	var lastIndexed sql.NullString
	_ = q.QueryRowContext(ctx, "SELECT value FROM index_meta WHERE key = ?", metaLastIndexedAt).Scan(&lastIndexed)
	if lastIndexed.Valid {
		if t, err := time.Parse(time.RFC3339Nano, lastIndexed.String); err == nil {
			stats.LastIndexedAt = t
		}
	}

	if stats.TotalChunks > 0 {
		stats.VectorCoverage = float64(stats.TotalVectors) / float64(stats.TotalChunks)
	}

	return stats, nil
}

func (s *SQLiteStorage) Stats(ctx context.Context) (*IndexStats, error) {
	return s.statsWithQuerier(ctx, s.querier())
}

// setLastIndexedAtWithQuerier records when the index was last written
func (s *SQLiteStorage) setLastIndexedAtWithQuerier(ctx context.Context, q querier, at time.Time) error {
	query := `
		INSERT INTO index_meta (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`
	if _, err := q.ExecContext(ctx, query, metaLastIndexedAt, at.Format(time.RFC3339Nano), at); err != nil {
		return &types.StorageError{Op: "set_last_indexed_at", Err: err}
	}
	return nil
}

// Transaction implementations delegate to the internal querier helpers

func (t *sqliteTx) UpsertChunk(ctx context.Context, chunk *ChunkRecord) error {
	return t.storage.upsertChunkWithQuerier(ctx, t.querier(), chunk)
}

func (t *sqliteTx) UpsertChunks(ctx context.Context, chunks []*ChunkRecord) error {
	return t.storage.upsertChunksWithQuerier(ctx, t.querier(), chunks)
}

func (t *sqliteTx) GetChunk(ctx context.Context, chunkID string) (*ChunkRecord, error) {
	return t.storage.getChunkWithQuerier(ctx, t.querier(), chunkID)
}

func (t *sqliteTx) ListChunksByFile(ctx context.Context, filePath string) ([]*ChunkRecord, error) {
	return t.storage.listChunksByFileWithQuerier(ctx, t.querier(), filePath)
}

func (t *sqliteTx) DeleteChunksByFile(ctx context.Context, filePath string) (int, error) {
	return t.storage.deleteChunksByFileWithQuerier(ctx, t.querier(), filePath)
}

func (t *sqliteTx) Clear(ctx context.Context) error {
	return t.storage.clearWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return t.storage.upsertEmbeddingWithQuerier(ctx, t.querier(), embedding)
}

func (t *sqliteTx) GetEmbedding(ctx context.Context, chunkID string) (*Embedding, error) {
	return t.storage.getEmbeddingWithQuerier(ctx, t.querier(), chunkID)
}

func (t *sqliteTx) DeleteEmbedding(ctx context.Context, chunkID string) error {
	return t.storage.deleteEmbeddingWithQuerier(ctx, t.querier(), chunkID)
}

func (t *sqliteTx) SearchVector(ctx context.Context, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	return searchVector(ctx, t.querier(), vector, limit, filters)
}

func (t *sqliteTx) SearchText(ctx context.Context, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	return searchText(ctx, t.querier(), query, limit, filters)
}

func (t *sqliteTx) Stats(ctx context.Context) (*IndexStats, error) {
	return t.storage.statsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
