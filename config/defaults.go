// Package config provides configuration defaults and utilities
// for the tracker scalar store.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or environment variables.
package config

import "time"

// =============================================================================
// Database Defaults
// =============================================================================

const (
	// DefaultDatabasePath is the default DuckDB database file.
	// An empty path opens an in-memory database.
	// Override via config: database.path
	DefaultDatabasePath = "tracker.db"

	// DefaultMaxOpenConns is the maximum number of open connections.
	// Override via config: database.max_open_conns
	DefaultMaxOpenConns = 25

	// DefaultMaxIdleConns is the maximum number of idle connections.
	// Override via config: database.max_idle_conns
	DefaultMaxIdleConns = 5

	// DefaultConnMaxLifetime is the maximum lifetime of a pooled connection.
	// Override via config: database.conn_max_lifetime_sec
	DefaultConnMaxLifetime = 5 * time.Minute

	// DefaultQueryTimeout bounds a single ingest or query call.
	// Callers may pass a shorter deadline via context.
	// Override via config: database.query_timeout_sec
	DefaultQueryTimeout = 30 * time.Second
)

// =============================================================================
// Query Defaults
// =============================================================================

const (
	// DefaultMaxPoints is the per-series point limit applied when a query
	// does not request one. The limit is advisory: it bounds the returned
	// series, it does not downsample.
	// Override via config: query.default_max_points
	DefaultMaxPoints = 1000
)

// =============================================================================
// Cache Defaults
// =============================================================================

const (
	// DefaultCacheTTLSec is how long assembled query results are cached.
	// Entries are also dropped eagerly when a write touches their project.
	// Override via config: cache.ttl_sec
	DefaultCacheTTLSec = 30
)

// =============================================================================
// Column Allocation Defaults
// =============================================================================

const (
	// DefaultColumnTokenBytes is the number of random bytes in a generated
	// scalar column identifier. 8 bytes of hex gives a 64-bit namespace,
	// which makes in-project collisions effectively a retry-once event.
	DefaultColumnTokenBytes = 8

	// DefaultColumnAllocRetries is the number of regeneration attempts when
	// a generated column identifier collides with an allocated one.
	DefaultColumnAllocRetries = 5
)
