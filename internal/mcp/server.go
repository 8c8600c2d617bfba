package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/cmpprg/ragify-sub000/internal/config"
	"github.com/cmpprg/ragify-sub000/internal/embedder"
	"github.com/cmpprg/ragify-sub000/internal/extractor"
	"github.com/cmpprg/ragify-sub000/internal/indexer"
	"github.com/cmpprg/ragify-sub000/internal/searcher"
	"github.com/cmpprg/ragify-sub000/internal/splitter"
	"github.com/cmpprg/ragify-sub000/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "ragify"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	storage  storage.Storage
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	cfg      *config.Config
	logger   zerolog.Logger
}

// NewServer wires storage, embedder, indexer, and searcher from config and
// registers the MCP tools
func NewServer(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := embedder.New(embedder.Config{
		Host:      cfg.Ollama.Host,
		Model:     cfg.Ollama.EmbeddingModel,
		TimeoutMS: cfg.Ollama.TimeoutMS,
		CacheSize: cfg.Ollama.CacheSize,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	split, err := splitter.New(cfg.Chunking.SizeLimit, cfg.Chunking.Overlap)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	idx := indexer.New(store, extractor.New(), split, emb, logger, indexer.Options{
		Workers: cfg.Indexer.Workers,
	})
	srch := searcher.New(store, emb, logger)

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		storage:  store,
		indexer:  idx,
		searcher: srch,
		cfg:      cfg,
		logger:   logger,
	}
	s.registerTools()

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.storage.Close() }()
	s.logger.Info().Str("server", ServerName).Msg("serving MCP over stdio")
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexCodebaseTool(), s.handleIndexCodebase)
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(getStatsTool(), s.handleGetStats)
	s.mcp.AddTool(clearIndexTool(), s.handleClearIndex)
}
