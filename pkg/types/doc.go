// Package types defines the shared data model for ragify: the Chunk record
// produced by extraction and splitting, the search result envelope, and the
// error taxonomy used across the pipeline.
//
// Chunk identity is content-addressed: NewChunkID hashes the
// (file_path, type, name, start_line) tuple, so re-extracting an unchanged
// construct yields the same id and storage upserts replace in place. Split
// parts instead derive their ids from the parent ("<parent>_part<N>").
//
// The error types partition failures by who must act on them:
//
//   - ParseError: the source file is the problem; skip it, index the rest
//   - ValidationError: the caller's arguments are the problem
//   - EmbeddingServiceError: the embedding collaborator is the problem;
//     hybrid search degrades, semantic search fails
//   - StorageError: the database is the problem; fatal
//   - SearchError: a mode contract was violated
package types
