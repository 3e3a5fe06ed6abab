// Package ingest implements the scalar write path.
//
// A log call runs: cache invalidation → name filtering → name resolution →
// schema ensure → batched row insert, strictly in that order. Invalidation
// happens before the write completes so that a reader never observes a cache
// entry predating an acknowledged write. The insert is all-or-nothing: either
// every row of the batch lands, or the call fails and nothing is inserted.
package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/MalchuL/experiment-tracker-sub000/internal/logging"
	"github.com/MalchuL/experiment-tracker-sub000/internal/metrics/cache"
	"github.com/MalchuL/experiment-tracker-sub000/internal/metrics/names"
	"github.com/MalchuL/experiment-tracker-sub000/internal/metrics/schema"
	"github.com/MalchuL/experiment-tracker-sub000/internal/metrics/types"
	"github.com/MalchuL/experiment-tracker-sub000/internal/store"
	"github.com/MalchuL/experiment-tracker-sub000/internal/validation"
)

var log = logging.Component("ingest")

// =============================================================================
// Writer
// =============================================================================

// Writer validates and inserts scalar batches.
//
// Writer is safe for concurrent use. Concurrent writers against the same
// project may race on name allocation (last snapshot wins) and on additive
// DDL (idempotent, safe); neither race is serialized here.
type Writer struct {
	store  *store.Store
	tables *schema.Manager
	mapper *names.Mapper
	cache  *cache.ResultCache
}

// NewWriter creates an ingest writer. The cache may be nil to disable
// result caching entirely.
func NewWriter(s *store.Store, tables *schema.Manager, mapper *names.Mapper, c *cache.ResultCache) *Writer {
	return &Writer{
		store:  s,
		tables: tables,
		mapper: mapper,
		cache:  c,
	}
}

// LogScalar logs the scalars of a single step.
func (w *Writer) LogScalar(ctx context.Context, projectID, experimentID string, step int64, scalars map[string]float64, tags []string) (*types.LogResult, error) {
	return w.LogScalars(ctx, projectID, experimentID, []types.LogItem{{
		Step:    step,
		Scalars: scalars,
		Tags:    tags,
	}})
}

// LogScalars logs a batch of steps for one experiment. Blank scalar names are
// dropped and reported as warnings; a batch left with nothing to insert after
// filtering still succeeds, carrying only the warnings.
func (w *Writer) LogScalars(ctx context.Context, projectID, experimentID string, items []types.LogItem) (*types.LogResult, error) {
	// Drop stale cached answers before the write lands, so a reader that
	// sees this call acknowledged cannot be served a pre-write entry.
	if w.cache != nil {
		w.cache.InvalidateExperiment(projectID, experimentID)
	}

	result := &types.LogResult{}

	rows, nameSet := w.filterItems(items, result)
	if len(rows) == 0 {
		return result, nil
	}

	mapping, err := w.mapper.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}

	batchNames := make([]string, 0, len(nameSet))
	for name := range nameSet {
		batchNames = append(batchNames, name)
	}
	sort.Strings(batchNames)

	changed, err := w.mapper.Resolve(mapping, batchNames)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := w.mapper.Save(ctx, projectID, mapping); err != nil {
			return nil, err
		}
	}

	table, err := w.tables.TableName(projectID)
	if err != nil {
		return nil, err
	}

	columns := make([]string, len(batchNames))
	for i, name := range batchNames {
		columns[i] = mapping[name]
	}

	if err := w.tables.EnsureSchema(ctx, table, columns); err != nil {
		return nil, err
	}

	if err := w.insertRows(ctx, table, experimentID, rows, batchNames, columns); err != nil {
		return nil, err
	}
	result.Rows = len(rows)

	// Best-effort freshness hint; never fails the write.
	if err := w.store.TouchLastLogged(ctx, projectID, experimentID); err != nil {
		log.Warn("freshness update failed",
			"project", projectID, "experiment", experimentID, "error", err)
	}

	log.Debug("scalars logged",
		"project", projectID, "experiment", experimentID,
		"rows", result.Rows, "scalars", len(batchNames), "warnings", len(result.Warnings))

	return result, nil
}

// =============================================================================
// Validation
// =============================================================================

// filterItems drops blank scalar names (one warning each) and discards steps
// left with no scalars at all. A call containing only invalid names is not an
// error; it returns zero rows and the warnings.
func (w *Writer) filterItems(items []types.LogItem, result *types.LogResult) ([]types.LogItem, map[string]struct{}) {
	var rows []types.LogItem
	nameSet := make(map[string]struct{})

	for _, item := range items {
		kept := make(map[string]float64, len(item.Scalars))
		for name, value := range item.Scalars {
			if !validation.ScalarNameOK(name) {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("dropped scalar with blank name at step %d", item.Step))
				continue
			}
			kept[name] = value
			nameSet[name] = struct{}{}
		}

		if len(kept) == 0 {
			continue
		}

		rows = append(rows, types.LogItem{
			Step:    item.Step,
			Scalars: kept,
			Tags:    item.Tags,
		})
	}

	return rows, nameSet
}

// =============================================================================
// Insert
// =============================================================================

// insertRows appends one row per step inside a single transaction. Scalars
// absent from a step's payload are NULL in that row; the table is
// intentionally sparse and wide.
func (w *Writer) insertRows(ctx context.Context, table, experimentID string, rows []types.LogItem, batchNames, columns []string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (timestamp, experiment_id, step, tags", table)
	for _, col := range columns {
		b.WriteString(", ")
		b.WriteString(col)
	}
	b.WriteString(") VALUES (?, ?, ?, ?")
	b.WriteString(strings.Repeat(", ?", len(columns)))
	b.WriteString(")")
	insert := b.String()

	now := time.Now().UTC().Truncate(time.Millisecond)

	return w.store.TransactionContext(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insert)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, row := range rows {
			args := make([]interface{}, 0, 4+len(columns))
			args = append(args, now, experimentID, row.Step, encodeTags(row.Tags))

			for _, name := range batchNames {
				if value, ok := row.Scalars[name]; ok {
					args = append(args, value)
				} else {
					args = append(args, nil)
				}
			}

			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("insert row step %d: %w", row.Step, err)
			}
		}
		return nil
	})
}

// encodeTags serializes the ordered tag list; nil and empty both map to NULL.
func encodeTags(tags []string) interface{} {
	if len(tags) == 0 {
		return nil
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return nil
	}
	return string(encoded)
}

// DecodeTags restores a tag list from its stored form.
func DecodeTags(encoded string) []string {
	if encoded == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(encoded), &tags); err != nil {
		return nil
	}
	return tags
}
