// Package storage provides SQLite-based persistence for indexed chunks.
//
// The storage layer manages:
//   - Chunk records keyed by content-derived TEXT ids
//   - Vector embeddings (packed little-endian float32 blobs)
//   - An FTS5 full-text index kept in sync by triggers
//   - Index-level bookkeeping such as last_indexed_at
//
// # Database Schema
//
// Tables:
//   - chunks: one row per extracted chunk, metadata as JSON
//   - embeddings: one vector per chunk, cascades on chunk deletion
//   - chunks_fts: FTS5 index over name, code, comments, and context
//   - index_meta: key/value bookkeeping
//   - schema_version: applied migrations, semver-ordered
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.ragify/index.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	record, _ := storage.FromChunk(chunk)
//	if err := db.UpsertChunk(ctx, record); err != nil {
//	    return err
//	}
//
// # Transactions
//
// Use transactions to replace a file's chunks atomically:
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	tx.DeleteChunksByFile(ctx, path)
//	tx.UpsertChunks(ctx, records)
//
//	if err := tx.Commit(); err != nil {
//	    return err
//	}
//
// # Build Modes
//
// The default build uses the pure Go modernc.org/sqlite driver. Building
// with the cgo_sqlite tag switches to mattn/go-sqlite3.
package storage
