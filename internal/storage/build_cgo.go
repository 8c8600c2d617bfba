//go:build cgo_sqlite
// +build cgo_sqlite

package storage

// Optional build: C SQLite via mattn/go-sqlite3. Noticeably faster on large
// indexes at the cost of requiring a C toolchain.
//
// Build command:
//   CGO_ENABLED=1 go build -tags "cgo_sqlite,fts5" ./...

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)
