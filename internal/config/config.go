// Package config provides configuration loading and structs for the Kirameki server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// MaxUploadBytes caps the size of a search or admin image upload.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	// SearchRateLimit is the sustained searches/second allowed per server;
	// SearchRateBurst is the burst allowance. 0 disables limiting.
	SearchRateLimit float64 `yaml:"search_rate_limit"`
	SearchRateBurst int     `yaml:"search_rate_burst"`
}

// StorageConfig holds paths for the database, keyword index, and stored images.
type StorageConfig struct {
	DatabasePath     string `yaml:"database_path"`
	KeywordIndexPath string `yaml:"keyword_index_path"`
	ImageDir         string `yaml:"image_dir"`
}

// EmbeddingConfig holds feature-extractor settings.
type EmbeddingConfig struct {
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	// InputSize is the square pixel size the model expects.
	InputSize int `yaml:"input_size"`
	CacheSize int `yaml:"cache_size"`
	// UseMock switches to the deterministic hash extractor (no model needed).
	UseMock bool `yaml:"use_mock"`
}

// SearchConfig holds visual search settings.
type SearchConfig struct {
	DefaultK       int           `yaml:"default_k"`
	MaxK           int           `yaml:"max_k"`
	ExtractTimeout time.Duration `yaml:"extract_timeout"`
}

// CatalogConfig holds catalog mutation settings.
type CatalogConfig struct {
	// EmbedOnIngest, when true, computes an embedding from the item's image
	// for admin inputs that carry none. When false such inputs are rejected.
	EmbedOnIngest bool `yaml:"embed_on_ingest"`
}

// WatchConfig holds image-directory ingestion settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, applies .env and KIRAMEKI_*
// environment overrides, expands paths, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()
	applyEnvOverrides(&cfg)
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.KeywordIndexPath = expandPath(cfg.Storage.KeywordIndexPath, configDir)
	cfg.Storage.ImageDir = expandPath(cfg.Storage.ImageDir, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config back to path as YAML. Used to persist watch
// directory changes made through the API.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides lets the environment override the most commonly
// deployment-specific settings.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KIRAMEKI_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("KIRAMEKI_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("KIRAMEKI_DEBUG"); v != "" {
		cfg.Debug = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("KIRAMEKI_MODEL_PATH"); v != "" {
		cfg.Embedding.ModelPath = v
	}
	if v := os.Getenv("KIRAMEKI_DATABASE_PATH"); v != "" {
		cfg.Storage.DatabasePath = v
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative
// to configDir; other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
