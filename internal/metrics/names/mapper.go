// Package names maps user-facing scalar names to stable internal column
// identifiers, per project.
//
// Scalar names are arbitrary user input ("loss", "val/accuracy", unicode,
// anything non-blank), while the storage engine wants strict, statically
// safe column identifiers. The mapper bridges the two: the first time a name
// is seen for a project it is assigned a random hex column id, and that
// assignment is permanent. The mapping only ever grows.
//
// Persistence is a full-snapshot, last-write-wins record per project (see
// internal/store). Two writers concurrently discovering the same new name may
// each allocate a different column; the later save wins and the earlier
// allocation's column becomes orphaned. That race is documented and accepted,
// not eliminated.
package names

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/MalchuL/experiment-tracker-sub000/config"
	"github.com/MalchuL/experiment-tracker-sub000/internal/errors"
	"github.com/MalchuL/experiment-tracker-sub000/internal/store"
	"github.com/MalchuL/experiment-tracker-sub000/internal/validation"
)

// ColumnPrefix prefixes every generated scalar column identifier so the
// result always starts with a letter regardless of the random token.
const ColumnPrefix = "c_"

// =============================================================================
// Mapping
// =============================================================================

// Mapping is a project's translation table from scalar name to internal
// column identifier.
type Mapping map[string]string

// Columns returns the set of allocated column identifiers.
func (m Mapping) Columns() map[string]struct{} {
	cols := make(map[string]struct{}, len(m))
	for _, c := range m {
		cols[c] = struct{}{}
	}
	return cols
}

// Inverse returns the column-to-name translation used by the read path.
func (m Mapping) Inverse() map[string]string {
	inv := make(map[string]string, len(m))
	for name, col := range m {
		inv[col] = name
	}
	return inv
}

// =============================================================================
// Mapper
// =============================================================================

// Mapper allocates and persists scalar name mappings. It is constructed once
// per process and injected into the ingest and query engines; it holds no
// per-project state of its own.
type Mapper struct {
	store *store.Store
}

// NewMapper creates a mapper on top of the given store.
func NewMapper(s *store.Store) *Mapper {
	return &Mapper{store: s}
}

// Load fetches the latest persisted snapshot for a project, or an empty
// mapping if none exists yet.
func (m *Mapper) Load(ctx context.Context, projectID string) (Mapping, error) {
	mapping, _, err := m.store.LoadNameMap(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return Mapping(mapping), nil
}

// Resolve assigns fresh column identifiers to every name in names that is
// not already present in mapping, mutating mapping in place. It reports
// whether any new entries were added; callers must persist the mapping via
// Save only in that case, to avoid needless full-snapshot rewrites.
func (m *Mapper) Resolve(mapping Mapping, names []string) (bool, error) {
	allocated := mapping.Columns()
	changed := false

	for _, name := range names {
		if _, ok := mapping[name]; ok {
			continue
		}

		col, err := newColumnID(allocated)
		if err != nil {
			return changed, err
		}

		mapping[name] = col
		allocated[col] = struct{}{}
		changed = true
	}

	return changed, nil
}

// Save persists the full mapping as a new timestamped snapshot.
func (m *Mapper) Save(ctx context.Context, projectID string, mapping Mapping) error {
	return m.store.SaveNameMap(ctx, projectID, mapping)
}

// =============================================================================
// Column Allocation
// =============================================================================

// newColumnID draws a column identifier from the random hex namespace and
// verifies it against the project's allocated set, regenerating on the rare
// collision.
func newColumnID(allocated map[string]struct{}) (string, error) {
	for attempt := 0; attempt < config.DefaultColumnAllocRetries; attempt++ {
		buf := make([]byte, config.DefaultColumnTokenBytes)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate column token: %w", err)
		}

		col := ColumnPrefix + hex.EncodeToString(buf)
		if err := validation.ValidateIdentifier(col); err != nil {
			return "", fmt.Errorf("generated column id: %v: %w", err, errors.ErrUnsafeIdentifier)
		}

		if _, taken := allocated[col]; !taken {
			return col, nil
		}
	}

	return "", errors.ErrColumnExhausted
}
