// Package config loads settings from a YAML file, environment variables, and
// defaults, in that order of increasing precedence for env over file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all runtime settings
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage"`
	Chunking ChunkingConfig `mapstructure:"chunking"`
	Search   SearchConfig   `mapstructure:"search"`
	Ollama   OllamaConfig   `mapstructure:"ollama"`
	Indexer  IndexerConfig  `mapstructure:"indexer"`
	Log      LogConfig      `mapstructure:"log"`
}

// StorageConfig locates the index database
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// ChunkingConfig controls the splitter's sliding window
type ChunkingConfig struct {
	SizeLimit int `mapstructure:"size_limit"`
	Overlap   int `mapstructure:"overlap"`
}

// SearchConfig sets query defaults
type SearchConfig struct {
	ResultLimit  int     `mapstructure:"result_limit"`
	VectorWeight float64 `mapstructure:"vector_weight"`
}

// OllamaConfig points at the local embedding service
type OllamaConfig struct {
	Host           string `mapstructure:"host"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	TimeoutMS      int    `mapstructure:"timeout_ms"`
	CacheSize      int    `mapstructure:"cache_size"`
}

// IndexerConfig tunes the indexing run
type IndexerConfig struct {
	Workers int `mapstructure:"workers"`
}

// LogConfig controls logging output
type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.path", defaultDBPath())
	v.SetDefault("chunking.size_limit", 150)
	v.SetDefault("chunking.overlap", 20)
	v.SetDefault("search.result_limit", 10)
	v.SetDefault("search.vector_weight", 0.7)
	v.SetDefault("ollama.host", "http://localhost:11434")
	v.SetDefault("ollama.embedding_model", "nomic-embed-text")
	v.SetDefault("ollama.timeout_ms", 30000)
	v.SetDefault("ollama.cache_size", 1000)
	v.SetDefault("indexer.workers", 4)
	v.SetDefault("log.level", "info")
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ragify/index.db"
	}
	return filepath.Join(home, ".ragify", "index.db")
}

// Load reads configuration. cfgFile may be empty, in which case .ragify.yaml
// is looked up in the working directory and the home directory. Environment
// variables use the RAGIFY_ prefix with underscores, e.g.
// RAGIFY_OLLAMA_HOST.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RAGIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".ragify")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; a malformed one is not
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Chunking.SizeLimit <= 0 {
		return fmt.Errorf("chunking.size_limit must be positive, got %d", c.Chunking.SizeLimit)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.SizeLimit {
		return fmt.Errorf("chunking.overlap must be in [0, size_limit), got %d", c.Chunking.Overlap)
	}
	if c.Search.VectorWeight < 0 || c.Search.VectorWeight > 1 {
		return fmt.Errorf("search.vector_weight must be in [0,1], got %g", c.Search.VectorWeight)
	}
	if c.Search.ResultLimit <= 0 {
		return fmt.Errorf("search.result_limit must be positive, got %d", c.Search.ResultLimit)
	}
	return nil
}
