// Package store - Name-map snapshots and freshness index
//
// The scalar name mapping for a project is persisted as a versioned snapshot:
// every save writes the entire current mapping with an update timestamp, and
// readers take the most recently timestamped row as authoritative. Two writers
// racing on a save therefore resolve as last-write-wins; the loser's newly
// allocated columns become orphaned and are skipped on read.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// Meta Schema
// =============================================================================

// EnsureMetaSchema creates the shared meta tables if they do not exist.
// All statements are idempotent and safe to race.
func (s *Store) EnsureMetaSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scalar_name_maps (
			project_id VARCHAR NOT NULL,
			mapping    VARCHAR NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scalar_name_maps_project
			ON scalar_name_maps (project_id, updated_at)`,
		`CREATE TABLE IF NOT EXISTS last_logged (
			project_id    VARCHAR NOT NULL,
			experiment_id VARCHAR NOT NULL,
			logged_at     TIMESTAMP NOT NULL,
			PRIMARY KEY (project_id, experiment_id)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure meta schema: %w", err)
		}
	}
	return nil
}

// =============================================================================
// Name-Map Snapshots
// =============================================================================

// LoadNameMap returns the latest persisted name mapping for a project and its
// update timestamp. A project with no snapshot yet yields an empty mapping.
func (s *Store) LoadNameMap(ctx context.Context, projectID string) (map[string]string, time.Time, error) {
	var encoded string
	var updatedAt time.Time

	err := s.db.QueryRowContext(ctx, `
		SELECT mapping, updated_at
		FROM scalar_name_maps
		WHERE project_id = ?
		ORDER BY updated_at DESC
		LIMIT 1
	`, projectID).Scan(&encoded, &updatedAt)

	if err == sql.ErrNoRows {
		return map[string]string{}, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("load name map: %w", err)
	}

	mapping := make(map[string]string)
	if err := json.Unmarshal([]byte(encoded), &mapping); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode name map: %w", err)
	}

	return mapping, updatedAt, nil
}

// SaveNameMap persists the full mapping as a new timestamped snapshot.
// Callers should save only when the mapping actually grew; every save
// rewrites the whole map.
func (s *Store) SaveNameMap(ctx context.Context, projectID string, mapping map[string]string) error {
	encoded, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("encode name map: %w", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scalar_name_maps (project_id, mapping, updated_at)
		VALUES (?, ?, ?)
	`, projectID, string(encoded), now)
	if err != nil {
		return fmt.Errorf("save name map: %w", err)
	}

	return nil
}

// =============================================================================
// Freshness Index
// =============================================================================

// TouchLastLogged upserts the most recent write timestamp for an experiment.
// This is a best-effort hint for change polling; callers must not let an
// error here fail the write that triggered it.
func (s *Store) TouchLastLogged(ctx context.Context, projectID, experimentID string) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO last_logged (project_id, experiment_id, logged_at)
		VALUES (?, ?, ?)
		ON CONFLICT (project_id, experiment_id)
		DO UPDATE SET logged_at = excluded.logged_at
	`, projectID, experimentID, now)
	if err != nil {
		return fmt.Errorf("touch last logged: %w", err)
	}
	return nil
}

// LastLogged returns the most recent write timestamp for an experiment.
// The second return is false when nothing has been recorded.
func (s *Store) LastLogged(ctx context.Context, projectID, experimentID string) (time.Time, bool, error) {
	var loggedAt time.Time

	err := s.db.QueryRowContext(ctx, `
		SELECT logged_at FROM last_logged
		WHERE project_id = ? AND experiment_id = ?
	`, projectID, experimentID).Scan(&loggedAt)

	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query last logged: %w", err)
	}

	return loggedAt, true, nil
}
