// Package schema manages the per-project wide scalar tables.
//
// Every project gets one table whose name is derived deterministically from
// the project id. The table starts with the fixed base columns and grows one
// nullable DOUBLE column per distinct scalar name ever logged. Schema
// evolution happens on the write hot path, so all DDL here is phrased as
// "if not exists" and is safe to race and safe to repeat.
package schema

import (
	"context"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/MalchuL/experiment-tracker-sub000/internal/errors"
	"github.com/MalchuL/experiment-tracker-sub000/internal/logging"
	"github.com/MalchuL/experiment-tracker-sub000/internal/store"
	"github.com/MalchuL/experiment-tracker-sub000/internal/validation"
)

var log = logging.Component("schema")

// TablePrefix prefixes every project scalar table name.
const TablePrefix = "metrics_"

// BaseColumns are present in every project scalar table regardless of which
// scalar names have been logged. They are append-only: never removed or
// retyped.
var BaseColumns = []string{"timestamp", "experiment_id", "step", "tags"}

var hexOnly = regexp.MustCompile(`^[0-9a-f]+$`)

// =============================================================================
// Manager
// =============================================================================

// Manager computes table names and applies idempotent DDL for project
// scalar tables.
//
// Manager is safe for concurrent use; it keeps no mutable state.
type Manager struct {
	store *store.Store
}

// NewManager creates a table manager on top of the given store.
func NewManager(s *store.Store) *Manager {
	return &Manager{store: s}
}

// =============================================================================
// Table Names
// =============================================================================

// TableName derives the deterministic table name for a project. The project
// id is normalized to its lower-cased hexadecimal form (UUIDs lose their
// dashes; anything non-hex is hex-encoded) and the result is validated
// against the identifier grammar before it may appear in generated SQL.
func (m *Manager) TableName(projectID string) (string, error) {
	if strings.TrimSpace(projectID) == "" {
		return "", errors.ErrInvalidProject
	}

	norm := strings.ToLower(strings.ReplaceAll(projectID, "-", ""))
	if !hexOnly.MatchString(norm) {
		norm = hex.EncodeToString([]byte(projectID))
	}

	name := TablePrefix + norm
	if err := validation.ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("derived table name: %v: %w", err, errors.ErrUnsafeIdentifier)
	}

	return name, nil
}

// =============================================================================
// Introspection
// =============================================================================

// Exists reports whether a table is present in the backend.
func (m *Manager) Exists(ctx context.Context, table string) (bool, error) {
	if err := validation.ValidateIdentifier(table); err != nil {
		return false, fmt.Errorf("%v: %w", err, errors.ErrUnsafeIdentifier)
	}

	var count int
	err := m.store.QueryRowContext(ctx, `
		SELECT count(*) FROM information_schema.tables WHERE table_name = ?
	`, table).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("describe tables: %w", err)
	}

	return count > 0, nil
}

// CurrentColumns returns the set of columns currently present on a table.
func (m *Manager) CurrentColumns(ctx context.Context, table string) (map[string]struct{}, error) {
	if err := validation.ValidateIdentifier(table); err != nil {
		return nil, fmt.Errorf("%v: %w", err, errors.ErrUnsafeIdentifier)
	}

	rows, err := m.store.QueryContext(ctx, `
		SELECT column_name FROM information_schema.columns WHERE table_name = ?
	`, table)
	if err != nil {
		return nil, fmt.Errorf("describe columns: %w", err)
	}
	defer rows.Close()

	columns := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		columns[name] = struct{}{}
	}

	return columns, rows.Err()
}

// ScalarColumns returns the table's dynamic scalar columns (everything but
// the base columns), sorted by the caller if ordering matters.
func (m *Manager) ScalarColumns(ctx context.Context, table string) ([]string, error) {
	current, err := m.CurrentColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	base := make(map[string]struct{}, len(BaseColumns))
	for _, c := range BaseColumns {
		base[c] = struct{}{}
	}

	var scalars []string
	for c := range current {
		if _, ok := base[c]; !ok {
			scalars = append(scalars, c)
		}
	}
	return scalars, nil
}

// =============================================================================
// Schema Evolution
// =============================================================================

// EnsureSchema makes sure the table exists with the base columns plus every
// column in required. Missing columns are added as nullable DOUBLEs via
// additive DDL. Concurrent callers may race; every statement is a no-op when
// re-issued.
func (m *Manager) EnsureSchema(ctx context.Context, table string, required []string) error {
	if err := validation.ValidateIdentifier(table); err != nil {
		return fmt.Errorf("%v: %w", err, errors.ErrUnsafeIdentifier)
	}
	if err := validation.ValidateIdentifiers(required); err != nil {
		return fmt.Errorf("%v: %w", err, errors.ErrUnsafeIdentifier)
	}

	exists, err := m.Exists(ctx, table)
	if err != nil {
		return err
	}

	if !exists {
		if err := m.createTable(ctx, table, required); err != nil {
			return err
		}
		log.Debug("created scalar table", "table", table, "scalar_columns", len(required))
		return nil
	}

	current, err := m.CurrentColumns(ctx, table)
	if err != nil {
		return err
	}

	var missing []string
	for _, col := range required {
		if _, ok := current[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	for _, col := range missing {
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s DOUBLE", table, col)
		if _, err := m.store.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s: %w", col, err)
		}
	}

	log.Debug("extended scalar table", "table", table, "added_columns", len(missing))
	return nil
}

// createTable creates the wide table with base columns, the requested scalar
// columns, and the (experiment_id, step) sort-key index.
func (m *Manager) createTable(ctx context.Context, table string, scalarColumns []string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", table)
	b.WriteString("\ttimestamp TIMESTAMP NOT NULL,\n")
	b.WriteString("\texperiment_id VARCHAR NOT NULL,\n")
	b.WriteString("\tstep BIGINT NOT NULL,\n")
	b.WriteString("\ttags VARCHAR")
	for _, col := range scalarColumns {
		fmt.Fprintf(&b, ",\n\t%s DOUBLE", col)
	}
	b.WriteString("\n)")

	if _, err := m.store.ExecContext(ctx, b.String()); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}

	// Sort key for per-experiment, step-ordered scans.
	idx := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS idx_%s_exp_step ON %s (experiment_id, step)",
		table, table,
	)
	if _, err := m.store.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("create index on %s: %w", table, err)
	}

	return nil
}
