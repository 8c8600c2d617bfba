// Command ragify indexes Ruby codebases into a local SQLite knowledge base
// and serves hybrid search over the CLI or MCP stdio.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cmpprg/ragify-sub000/internal/config"
	"github.com/cmpprg/ragify-sub000/internal/embedder"
	"github.com/cmpprg/ragify-sub000/internal/extractor"
	"github.com/cmpprg/ragify-sub000/internal/indexer"
	"github.com/cmpprg/ragify-sub000/internal/mcp"
	"github.com/cmpprg/ragify-sub000/internal/searcher"
	"github.com/cmpprg/ragify-sub000/internal/splitter"
	"github.com/cmpprg/ragify-sub000/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ragify",
		Short:         "Turn a Ruby codebase into a locally searchable knowledge base",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default .ragify.yaml)")

	root.AddCommand(
		newIndexCmd(),
		newSearchCmd(),
		newStatsCmd(),
		newClearCmd(),
		newServeCmd(),
		newVersionCmd(),
	)
	return root
}

// loadApp builds the shared dependency set the commands run on. The caller
// owns closing the returned storage.
func loadApp() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	// stdout stays clean for command output (and the MCP protocol)
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()

	return cfg, logger, nil
}

func openStorage(cfg *config.Config) (storage.Storage, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	return storage.NewSQLiteStorage(cfg.Storage.Path)
}

func newEmbedder(cfg *config.Config) (embedder.Embedder, error) {
	return embedder.New(embedder.Config{
		Host:      cfg.Ollama.Host,
		Model:     cfg.Ollama.EmbeddingModel,
		TimeoutMS: cfg.Ollama.TimeoutMS,
		CacheSize: cfg.Ollama.CacheSize,
	})
}

func newIndexCmd() *cobra.Command {
	var (
		skipEmbeddings bool
		workers        int
	)

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a Ruby codebase for search",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			absRoot, err := filepath.Abs(root)
			if err != nil {
				return err
			}

			cfg, logger, err := loadApp()
			if err != nil {
				return err
			}
			store, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			emb, err := newEmbedder(cfg)
			if err != nil {
				return err
			}
			split, err := splitter.New(cfg.Chunking.SizeLimit, cfg.Chunking.Overlap)
			if err != nil {
				return err
			}
			if workers <= 0 {
				workers = cfg.Indexer.Workers
			}
			idx := indexer.New(store, extractor.New(), split, emb, logger, indexer.Options{
				Workers:        workers,
				SkipEmbeddings: skipEmbeddings,
			})

			result, err := idx.IndexDir(cmd.Context(), absRoot)
			if err != nil {
				return err
			}
			printIndexResult(cmd, absRoot, result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipEmbeddings, "skip-embeddings", false, "index without generating vectors")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel extraction workers (default from config)")
	return cmd
}

func printIndexResult(cmd *cobra.Command, root string, result *indexer.Result) {
	bold := color.New(color.Bold).SprintFunc()
	cmd.Printf("Indexed %s in %s\n", bold(root), result.Duration.Round(time.Millisecond))
	cmd.Printf("  files:   %d indexed, %d failed\n", result.FilesIndexed, result.FilesFailed)
	cmd.Printf("  chunks:  %d\n", result.ChunksStored)
	cmd.Printf("  vectors: %d\n", result.VectorsStored)
	for _, fe := range result.Errors {
		cmd.Printf("  %s %s: %v\n", color.YellowString("warn"), fe.Path, fe.Err)
	}
}

func newSearchCmd() *cobra.Command {
	var (
		mode         string
		limit        int
		typeFilter   string
		pathFilter   string
		minScore     float64
		vectorWeight float64
		format       string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed codebase",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadApp()
			if err != nil {
				return err
			}
			store, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			emb, err := newEmbedder(cfg)
			if err != nil {
				return err
			}
			srch := searcher.New(store, emb, logger)

			if limit <= 0 {
				limit = cfg.Search.ResultLimit
			}
			if vectorWeight < 0 {
				vectorWeight = cfg.Search.VectorWeight
			}
			resp, err := srch.Search(cmd.Context(), searcher.Request{
				Query:        strings.Join(args, " "),
				Mode:         searcher.Mode(mode),
				Limit:        limit,
				TypeFilter:   typeFilter,
				PathFilter:   pathFilter,
				MinScore:     minScore,
				VectorWeight: vectorWeight,
			})
			if err != nil {
				return err
			}

			out, err := searcher.FormatResults(resp, searcher.OutputFormat(format))
			if err != nil {
				return err
			}
			cmd.Println(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(searcher.ModeHybrid), "search mode: hybrid, semantic, or text")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (default from config)")
	cmd.Flags().StringVar(&typeFilter, "type", "", "restrict to a chunk type (class, module, method, constant, file)")
	cmd.Flags().StringVar(&pathFilter, "path", "", "restrict to file paths containing this substring")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "drop results at or below this score")
	cmd.Flags().Float64Var(&vectorWeight, "vector-weight", -1, "vector leg weight for hybrid fusion, 0 to 1")
	cmd.Flags().StringVar(&format, "format", string(searcher.FormatText), "output format: text, plain, or json")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadApp()
			if err != nil {
				return err
			}
			store, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}

			cmd.Printf("Database:       %s\n", cfg.Storage.Path)
			cmd.Printf("Schema version: %s\n", stats.SchemaVersion)
			cmd.Printf("Chunks:         %d across %d files\n", stats.TotalChunks, stats.TotalFiles)
			cmd.Printf("Vectors:        %d (%.0f%% coverage)\n", stats.TotalVectors, stats.VectorCoverage*100)
			cmd.Printf("Index size:     %.2f MB\n", stats.IndexSizeMB)
			if !stats.LastIndexedAt.IsZero() {
				cmd.Printf("Last indexed:   %s\n", stats.LastIndexedAt.Format(time.RFC3339))
			}
			if len(stats.ChunksByType) > 0 {
				cmd.Println("By type:")
				for _, ct := range sortedKeys(stats.ChunksByType) {
					cmd.Printf("  %-10s %d\n", ct, stats.ChunksByType[ct])
				}
			}
			return nil
		},
	}
}

func newClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all indexed data, keeping the schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadApp()
			if err != nil {
				return err
			}

			if !yes {
				cmd.Printf("This removes all indexed data from %s. Continue? [y/N] ", cfg.Storage.Path)
				var answer string
				_, _ = fmt.Fscanln(cmd.InOrStdin(), &answer)
				if answer != "y" && answer != "Y" {
					cmd.Println("Aborted")
					return nil
				}
			}

			store, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.Clear(cmd.Context()); err != nil {
				return err
			}
			cmd.Printf("Removed %d chunks\n", stats.TotalChunks)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP protocol over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadApp()
			if err != nil {
				return err
			}

			srv, err := mcp.NewServer(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info().
				Str("version", version).
				Str("build_mode", storage.BuildMode).
				Str("driver", storage.DriverName).
				Msg("ragify MCP server starting")
			return srv.Serve(ctx)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("ragify %s\n", version)
			cmd.Printf("  build time:    %s\n", buildTime)
			cmd.Printf("  build mode:    %s\n", storage.BuildMode)
			cmd.Printf("  sqlite driver: %s\n", storage.DriverName)
		},
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
