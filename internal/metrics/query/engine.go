// Package query implements the scalar read path.
//
// A read consults the result cache first, queries the backend only for what
// the cache cannot answer, and reassembles raw wide rows into per-experiment,
// per-scalar time series. Column selection is computed per call by describing
// the table, so scalar columns added after this process started are still
// visible. Identical concurrent cache misses are coalesced through
// singleflight so only one backend query is in flight per distinct read.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MalchuL/experiment-tracker-sub000/config"
	"github.com/MalchuL/experiment-tracker-sub000/internal/errors"
	"github.com/MalchuL/experiment-tracker-sub000/internal/logging"
	"github.com/MalchuL/experiment-tracker-sub000/internal/metrics/cache"
	"github.com/MalchuL/experiment-tracker-sub000/internal/metrics/ingest"
	"github.com/MalchuL/experiment-tracker-sub000/internal/metrics/names"
	"github.com/MalchuL/experiment-tracker-sub000/internal/metrics/schema"
	"github.com/MalchuL/experiment-tracker-sub000/internal/metrics/types"
	"github.com/MalchuL/experiment-tracker-sub000/internal/store"
)

var log = logging.Component("query")

// =============================================================================
// Engine
// =============================================================================

// Engine executes scalar reads.
//
// Engine is safe for concurrent use, including concurrently with writers
// against the same project. A read racing an in-flight write may observe
// either the pre- or post-write state; no snapshot isolation is provided.
type Engine struct {
	store  *store.Store
	tables *schema.Manager
	mapper *names.Mapper
	cache  *cache.ResultCache

	// Coalesces identical concurrent backend reads.
	group singleflight.Group

	defaultMaxPoints int

	statsMu sync.Mutex
	stats   Stats
}

// Stats holds query statistics.
type Stats struct {
	QueriesExecuted int64
	RowsScanned     int64
	Errors          int64
}

// NewEngine creates a query engine. The cache may be nil to disable result
// caching. defaultMaxPoints of zero falls back to the system default.
func NewEngine(s *store.Store, tables *schema.Manager, mapper *names.Mapper, c *cache.ResultCache, defaultMaxPoints int) *Engine {
	if defaultMaxPoints <= 0 {
		defaultMaxPoints = config.DefaultMaxPoints
	}
	return &Engine{
		store:            s,
		tables:           tables,
		mapper:           mapper,
		cache:            c,
		defaultMaxPoints: defaultMaxPoints,
	}
}

// GetScalars returns the reconstructed series for a project, optionally
// restricted to specific experiments and a time range. A project with no
// table yet yields an empty result, not an error.
func (e *Engine) GetScalars(ctx context.Context, projectID string, p types.QueryParams) ([]*types.ExperimentSeries, error) {
	if p.StartTime != nil && p.EndTime != nil && p.EndTime.Before(*p.StartTime) {
		return nil, fmt.Errorf("%w: end %s before start %s",
			errors.ErrInvalidTimeRange, p.EndTime.UTC().Format(time.RFC3339), p.StartTime.UTC().Format(time.RFC3339))
	}

	maxPoints := p.MaxPoints
	if maxPoints <= 0 {
		maxPoints = e.defaultMaxPoints
	}

	// Time-filtered reads bypass the cache: its keys carry no time bounds.
	useCache := e.cache != nil && !p.TimeFiltered()

	if len(p.ExperimentIDs) == 0 {
		return e.getWholeProject(ctx, projectID, p, maxPoints, useCache)
	}
	return e.getExperiments(ctx, projectID, p, maxPoints, useCache)
}

// =============================================================================
// Whole-Project Reads
// =============================================================================

func (e *Engine) getWholeProject(ctx context.Context, projectID string, p types.QueryParams, maxPoints int, useCache bool) ([]*types.ExperimentSeries, error) {
	key := cache.WideKey(projectID, maxPoints, p.ReturnTags)

	if useCache {
		if cached, ok := e.cache.Get(key); ok {
			return cached, nil
		}
	}

	result, err, _ := e.group.Do(key.String(), func() (interface{}, error) {
		return e.queryBackend(ctx, projectID, nil, p, maxPoints)
	})
	if err != nil {
		return nil, err
	}

	series := result.([]*types.ExperimentSeries)
	if useCache {
		e.cache.Set(key, series)
	}
	return series, nil
}

// =============================================================================
// Per-Experiment Reads
// =============================================================================

// getExperiments answers a filtered read with one cache entry per experiment
// id, so already-cached experiments are excluded from the backend query and
// the backend is hit only for the remainder.
func (e *Engine) getExperiments(ctx context.Context, projectID string, p types.QueryParams, maxPoints int, useCache bool) ([]*types.ExperimentSeries, error) {
	order := dedup(p.ExperimentIDs)
	found := make(map[string][]*types.ExperimentSeries, len(order))

	var missing []string
	for _, id := range order {
		if useCache {
			if cached, ok := e.cache.Get(cache.ExperimentKey(projectID, id, maxPoints, p.ReturnTags)); ok {
				found[id] = cached
				continue
			}
		}
		missing = append(missing, id)
	}

	if len(missing) > 0 {
		flightKey := fmt.Sprintf("%s|%s|%d|%t",
			projectID, strings.Join(missing, ","), maxPoints, p.ReturnTags)

		result, err, _ := e.group.Do(flightKey, func() (interface{}, error) {
			return e.queryBackend(ctx, projectID, missing, p, maxPoints)
		})
		if err != nil {
			return nil, err
		}

		byID := make(map[string]*types.ExperimentSeries)
		for _, es := range result.([]*types.ExperimentSeries) {
			byID[es.ExperimentID] = es
		}

		for _, id := range missing {
			var value []*types.ExperimentSeries
			if es, ok := byID[id]; ok {
				value = []*types.ExperimentSeries{es}
			}
			found[id] = value
			if useCache {
				e.cache.Set(cache.ExperimentKey(projectID, id, maxPoints, p.ReturnTags), value)
			}
		}
	}

	var combined []*types.ExperimentSeries
	for _, id := range order {
		combined = append(combined, found[id]...)
	}
	return combined, nil
}

// =============================================================================
// Backend Query
// =============================================================================

// queryBackend issues the storage read and reconstructs series from raw rows.
func (e *Engine) queryBackend(ctx context.Context, projectID string, experimentIDs []string, p types.QueryParams, maxPoints int) ([]*types.ExperimentSeries, error) {
	table, err := e.tables.TableName(projectID)
	if err != nil {
		return nil, err
	}

	// "No data logged yet" is a valid, non-exceptional state.
	exists, err := e.tables.Exists(ctx, table)
	if err != nil {
		e.countError()
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	scalarCols, err := e.tables.ScalarColumns(ctx, table)
	if err != nil {
		e.countError()
		return nil, err
	}
	sort.Strings(scalarCols)

	mapping, err := e.mapper.Load(ctx, projectID)
	if err != nil {
		e.countError()
		return nil, err
	}
	colToName := mapping.Inverse()

	stmt, args := buildSelect(table, scalarCols, experimentIDs, p)

	rows, err := e.store.QueryContext(ctx, stmt, args...)
	if err != nil {
		e.countError()
		return nil, fmt.Errorf("query scalars: %w", err)
	}
	defer rows.Close()

	series, scanned, err := e.assemble(rows, scalarCols, colToName, p.ReturnTags, maxPoints)
	if err != nil {
		e.countError()
		return nil, err
	}

	e.statsMu.Lock()
	e.stats.QueriesExecuted++
	e.stats.RowsScanned += int64(scanned)
	e.statsMu.Unlock()

	log.Debug("scalars queried",
		"project", projectID, "experiments", len(experimentIDs),
		"rows", scanned, "series_experiments", len(series))

	return series, nil
}

// buildSelect constructs the read statement. The table and scalar column
// names were validated at schema time and are interpolated as literals; every
// data value is bound.
func buildSelect(table string, scalarCols, experimentIDs []string, p types.QueryParams) (string, []interface{}) {
	var b strings.Builder
	b.WriteString("SELECT experiment_id, step, tags")
	for _, col := range scalarCols {
		b.WriteString(", ")
		b.WriteString(col)
	}
	fmt.Fprintf(&b, " FROM %s", table)

	var clauses []string
	var args []interface{}

	if len(experimentIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(experimentIDs)), ", ")
		clauses = append(clauses, fmt.Sprintf("experiment_id IN (%s)", placeholders))
		for _, id := range experimentIDs {
			args = append(args, id)
		}
	}
	if p.StartTime != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, p.StartTime.UTC())
	}
	if p.EndTime != nil {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, p.EndTime.UTC())
	}

	if len(clauses) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(clauses, " AND "))
	}

	b.WriteString(" ORDER BY experiment_id, step")

	return b.String(), args
}

// assemble groups rows by experiment and translates internal columns back to
// user-facing scalar names, preserving the backend's (experiment, step)
// order. Columns missing from the mapping (orphaned by a lost name-allocation
// race) are skipped. Each series stops growing at maxPoints.
func (e *Engine) assemble(rows *sql.Rows, scalarCols []string, colToName map[string]string, returnTags bool, maxPoints int) ([]*types.ExperimentSeries, int, error) {
	byExperiment := make(map[string]*types.ExperimentSeries)
	var order []*types.ExperimentSeries
	scanned := 0

	for rows.Next() {
		var experimentID string
		var step int64
		var tags sql.NullString
		values := make([]sql.NullFloat64, len(scalarCols))

		dest := make([]interface{}, 0, 3+len(scalarCols))
		dest = append(dest, &experimentID, &step, &tags)
		for i := range values {
			dest = append(dest, &values[i])
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, scanned, fmt.Errorf("scan row: %w", err)
		}
		scanned++

		es, ok := byExperiment[experimentID]
		if !ok {
			es = types.NewExperimentSeries(experimentID)
			byExperiment[experimentID] = es
			order = append(order, es)
		}

		var populated []string
		for i, col := range scalarCols {
			if !values[i].Valid {
				continue
			}
			name, ok := colToName[col]
			if !ok {
				continue // orphaned column, unreachable via the mapping
			}

			series := es.Scalars[name]
			if series == nil {
				series = &types.Series{}
				es.Scalars[name] = series
			}
			if series.Len() < maxPoints {
				series.Append(step, values[i].Float64)
			}

			if returnTags {
				populated = append(populated, name)
			}
		}

		if returnTags {
			sort.Strings(populated)
			var tagList []string
			if tags.Valid {
				tagList = ingest.DecodeTags(tags.String)
			}
			es.Tags = append(es.Tags, types.StepTags{
				Step:        step,
				ScalarNames: populated,
				Tags:        tagList,
			})
		}
	}

	if err := rows.Err(); err != nil {
		return nil, scanned, err
	}

	var result []*types.ExperimentSeries
	for _, es := range order {
		if !es.Empty() {
			result = append(result, es)
		}
	}
	return result, scanned, nil
}

// =============================================================================
// Statistics
// =============================================================================

func (e *Engine) countError() {
	e.statsMu.Lock()
	e.stats.Errors++
	e.statsMu.Unlock()
}

// GetStats returns current query statistics.
func (e *Engine) GetStats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// dedup removes duplicate experiment ids while preserving order.
func dedup(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	var out []string
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
