// Package config loads budgetdb settings from a YAML file and the
// environment.
//
// Precedence, lowest first: built-in defaults, the YAML file, BUDGETDB_*
// environment variables, then command line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/budgetdb/internal/metrics"
)

// DefaultFile is read when no config path is given and it exists in the
// working directory
const DefaultFile = "budgetdb.yaml"

// Environment variables that override file settings
const (
	EnvDBPath     = "BUDGETDB_DB_PATH"
	EnvDocsDir    = "BUDGETDB_DOCS_DIR"
	EnvStagingDir = "BUDGETDB_STAGING_DIR"
	EnvWorkers    = "BUDGETDB_WORKERS"
	EnvLogLevel   = "BUDGETDB_LOG_LEVEL"
)

// Config holds all budgetdb configuration
type Config struct {
	DBPath  string         `yaml:"db_path"`
	DocsDir string         `yaml:"docs_dir"`
	Build   BuildConfig    `yaml:"build"`
	Staging StagingConfig  `yaml:"staging"`
	Search  SearchConfig   `yaml:"search"`
	Log     LogConfig      `yaml:"log"`
	Metrics metrics.Config `yaml:"metrics"`
}

// BuildConfig tunes the builder
type BuildConfig struct {
	Workers            int           `yaml:"workers"`
	CheckpointInterval int           `yaml:"checkpoint_interval"`
	PDFTimeout         time.Duration `yaml:"pdf_timeout"`
	TableRectThreshold int           `yaml:"table_rect_threshold"`
}

// StagingConfig controls the Parquet staging layer
type StagingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// SearchConfig controls the query cache
type SearchConfig struct {
	CacheSize    int `yaml:"cache_size"`
	DefaultLimit int `yaml:"default_limit"`
}

// LogConfig selects the zap logger
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// Default returns a config with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values
func (c *Config) ApplyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "budget.db"
	}
	if c.DocsDir == "" {
		c.DocsDir = "DoD_Budget_Documents"
	}
	if c.Build.CheckpointInterval == 0 {
		c.Build.CheckpointInterval = 20
	}
	if c.Build.PDFTimeout == 0 {
		c.Build.PDFTimeout = 30 * time.Second
	}
	if c.Build.TableRectThreshold == 0 {
		c.Build.TableRectThreshold = 10
	}
	if c.Search.CacheSize == 0 {
		c.Search.CacheSize = 100
	}
	if c.Search.DefaultLimit == 0 {
		c.Search.DefaultLimit = 20
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	c.Metrics.ApplyDefaults()
}

// StagingDir returns the configured staging directory, or "staging" next to
// the documents root when none is set
func (c *Config) StagingDir() string {
	if c.Staging.Dir != "" {
		return c.Staging.Dir
	}
	return filepath.Join(filepath.Dir(filepath.Clean(c.DocsDir)), "staging")
}

// Load reads path, applies environment overrides and defaults, and
// validates the result. An empty path reads DefaultFile when it exists and
// otherwise starts from defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDBPath); ok && v != "" {
		c.DBPath = v
	}
	if v, ok := lookup(EnvDocsDir); ok && v != "" {
		c.DocsDir = v
	}
	if v, ok := lookup(EnvStagingDir); ok && v != "" {
		c.Staging.Dir = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvWorkers); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvWorkers, v, err)
		}
		c.Build.Workers = n
	}
	return nil
}

// Validate rejects settings no component can run with
func (c *Config) Validate() error {
	if c.Build.Workers < 0 {
		return fmt.Errorf("build.workers must not be negative, got %d", c.Build.Workers)
	}
	if c.Build.CheckpointInterval < 1 {
		return fmt.Errorf("build.checkpoint_interval must be at least 1, got %d", c.Build.CheckpointInterval)
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}
