//go:build !cgo_sqlite
// +build !cgo_sqlite

package storage

// Default build: pure Go SQLite via modernc.org/sqlite. No C compiler
// required, cross-compiles everywhere, and FTS5 ships built in.
//
// Build command:
//   go build ./...

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
