// Package types defines the data types exchanged between the scalar ingest,
// query, and cache components.
package types

import "time"

// =============================================================================
// Write Path
// =============================================================================

// LogItem is one step's worth of scalars in a batched log call.
type LogItem struct {
	// Step is the integer ordering key within the experiment.
	Step int64

	// Scalars maps user-facing scalar names to values. Names are arbitrary
	// user input; blank names are dropped with a warning during ingest.
	Scalars map[string]float64

	// Tags is an optional ordered list of strings attached to this step.
	Tags []string
}

// LogResult is the outcome of a log call. A call that dropped some scalar
// names still reports overall success; the drops surface as warnings.
type LogResult struct {
	// Rows is the number of rows inserted.
	Rows int

	// Warnings lists non-fatal validation problems, one per dropped entry.
	Warnings []string
}

// =============================================================================
// Read Path
// =============================================================================

// Series holds the points of one scalar for one experiment, in step order
// as returned by the backend scan.
type Series struct {
	// Steps and Values are parallel slices: Values[i] was logged at Steps[i].
	Steps  []int64
	Values []float64
}

// Len returns the number of points in the series.
func (s *Series) Len() int {
	return len(s.Steps)
}

// Append adds one point to the series.
func (s *Series) Append(step int64, value float64) {
	s.Steps = append(s.Steps, step)
	s.Values = append(s.Values, value)
}

// StepTags describes, for one row, which scalars were populated and the
// row's tag list. Emitted only when a query requests tags.
type StepTags struct {
	Step        int64
	ScalarNames []string
	Tags        []string
}

// ExperimentSeries is the reconstructed result for one experiment: every
// scalar ever logged for it within the queried range, keyed by the
// user-facing scalar name.
type ExperimentSeries struct {
	ExperimentID string
	Scalars      map[string]*Series
	Tags         []StepTags
}

// NewExperimentSeries creates an empty result for an experiment.
func NewExperimentSeries(experimentID string) *ExperimentSeries {
	return &ExperimentSeries{
		ExperimentID: experimentID,
		Scalars:      make(map[string]*Series),
	}
}

// Empty reports whether the experiment has no points and no tag rows.
func (e *ExperimentSeries) Empty() bool {
	return len(e.Scalars) == 0 && len(e.Tags) == 0
}

// =============================================================================
// Query Parameters
// =============================================================================

// QueryParams filters a scalar read.
type QueryParams struct {
	// ExperimentIDs restricts the query to the listed experiments.
	// Empty means the whole project.
	ExperimentIDs []string

	// MaxPoints bounds the number of points returned per series.
	// Zero applies the configured default.
	MaxPoints int

	// ReturnTags requests per-step tag metadata alongside the series.
	ReturnTags bool

	// StartTime and EndTime bound the scan by row timestamp when non-nil.
	StartTime *time.Time
	EndTime   *time.Time
}

// TimeFiltered reports whether the query carries a time bound. Time-filtered
// reads bypass the result cache: the cache key has no time dimensions.
func (p *QueryParams) TimeFiltered() bool {
	return p.StartTime != nil || p.EndTime != nil
}
