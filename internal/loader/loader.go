// Package loader handles configuration file loading and validation.
//
// This package is responsible for:
//   - Loading YAML configuration files
//   - Expanding environment variables
//   - Validating the result before anything touches the database
//   - Converting file-level settings to component configs

package loader

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	appconfig "github.com/MalchuL/experiment-tracker-sub000/config"
	"github.com/MalchuL/experiment-tracker-sub000/internal/errors"
	"github.com/MalchuL/experiment-tracker-sub000/internal/store"
)

// =============================================================================
// Types
// =============================================================================

// Config is the root configuration file structure.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Query    QueryConfig    `yaml:"query"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig configures the DuckDB backend.
type DatabaseConfig struct {
	// Path is the database file; empty means in-memory.
	Path string `yaml:"path"`

	MaxOpenConns    int `yaml:"max_open_conns"`
	MaxIdleConns    int `yaml:"max_idle_conns"`
	ConnMaxLifetime int `yaml:"conn_max_lifetime_sec"`
	QueryTimeout    int `yaml:"query_timeout_sec"`
}

// CacheConfig configures the query result cache.
type CacheConfig struct {
	// TTLSec is the entry lifetime in seconds. Zero uses the default;
	// negative disables the cache.
	TTLSec int `yaml:"ttl_sec"`
}

// QueryConfig configures the read path.
type QueryConfig struct {
	// DefaultMaxPoints caps points per series when a query does not
	// request a limit.
	DefaultMaxPoints int `yaml:"default_max_points"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            appconfig.DefaultDatabasePath,
			MaxOpenConns:    appconfig.DefaultMaxOpenConns,
			MaxIdleConns:    appconfig.DefaultMaxIdleConns,
			ConnMaxLifetime: int(appconfig.DefaultConnMaxLifetime / time.Second),
			QueryTimeout:    int(appconfig.DefaultQueryTimeout / time.Second),
		},
		Cache: CacheConfig{
			TTLSec: appconfig.DefaultCacheTTLSec,
		},
		Query: QueryConfig{
			DefaultMaxPoints: appconfig.DefaultMaxPoints,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// =============================================================================
// Load
// =============================================================================

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	// Start with defaults
	cfg := DefaultConfig()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// =============================================================================
// Validate
// =============================================================================

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	errs := errors.NewValidationErrors()

	if c.Database.MaxOpenConns < 0 {
		errs.AddField("database.max_open_conns", "must not be negative")
	}
	if c.Database.MaxIdleConns < 0 {
		errs.AddField("database.max_idle_conns", "must not be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns && c.Database.MaxOpenConns > 0 {
		errs.AddField("database.max_idle_conns", "must not exceed max_open_conns")
	}
	if c.Database.QueryTimeout < 0 {
		errs.AddField("database.query_timeout_sec", "must not be negative")
	}
	if c.Query.DefaultMaxPoints < 0 {
		errs.AddField("query.default_max_points", "must not be negative")
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs.AddField("log.level", "must be one of debug, info, warn, error")
	}

	return errs.Err()
}

// =============================================================================
// Conversion
// =============================================================================

// StoreConfig converts the database section to a store configuration.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		DSN:             c.Database.Path,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(c.Database.ConnMaxLifetime) * time.Second,
		QueryTimeout:    time.Duration(c.Database.QueryTimeout) * time.Second,
	}
}

// CacheTTL returns the cache TTL; negative means caching is disabled.
func (c *Config) CacheTTL() time.Duration {
	if c.Cache.TTLSec < 0 {
		return -1
	}
	if c.Cache.TTLSec == 0 {
		return appconfig.DefaultCacheTTLSec * time.Second
	}
	return time.Duration(c.Cache.TTLSec) * time.Second
}
