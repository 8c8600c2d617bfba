package types

import "fmt"

// ParseError reports source that could not be parsed. It is always propagated
// to the caller; the extractor never substitutes placeholder chunks.
type ParseError struct {
	Path   string
	Detail string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Detail)
}

// ValidationError reports a bad query or argument, rejected before any I/O
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Reason
}

// EmbeddingServiceError is the single error class the core sees for any
// failure of the embedding collaborator: unreachable, timeout, malformed
// response. Retry and caching policy live inside the collaborator.
type EmbeddingServiceError struct {
	Op  string
	Err error
}

func (e *EmbeddingServiceError) Error() string {
	return fmt.Sprintf("embedding service: %s: %v", e.Op, e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error {
	return e.Err
}

// StorageError reports an engine-level failure such as a corrupt store on
// open. It is fatal; the core never retries it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// SearchError reports a mode-contract violation, e.g. semantic search
// requested while the embedding collaborator is unavailable
type SearchError struct {
	Mode   string
	Reason string
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search (%s): %s", e.Mode, e.Reason)
}
