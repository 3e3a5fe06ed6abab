// Package cache provides the result cache fronting the scalar query engine.
//
// Entries are keyed by (project, experiment-or-wide, max-points, tags-flag)
// and hold already-assembled query results. The cache is never authoritative:
// everything in it is reconstructible from the backend. Entries leave the
// cache through TTL expiry or through explicit invalidation when a write
// touches their project/experiment.
package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/MalchuL/experiment-tracker-sub000/internal/logging"
	"github.com/MalchuL/experiment-tracker-sub000/internal/metrics/types"
)

var log = logging.Component("result_cache")

// ProjectWide is the experiment sentinel for whole-project query results.
// Experiment ids are opaque user input, so the sentinel carries a NUL byte
// that no legitimate id can collide with.
const ProjectWide = "\x00wide"

// =============================================================================
// Keys
// =============================================================================

// Key identifies one cached query result.
type Key struct {
	Project    string
	Experiment string // experiment id, or ProjectWide
	MaxPoints  int
	ReturnTags bool
}

// ExperimentKey builds a key for a single experiment's cached result.
func ExperimentKey(project, experiment string, maxPoints int, returnTags bool) Key {
	return Key{Project: project, Experiment: experiment, MaxPoints: maxPoints, ReturnTags: returnTags}
}

// WideKey builds the whole-project aggregate key.
func WideKey(project string, maxPoints int, returnTags bool) Key {
	return Key{Project: project, Experiment: ProjectWide, MaxPoints: maxPoints, ReturnTags: returnTags}
}

// String renders the key for logging and singleflight grouping.
func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%d|%t", k.Project, k.Experiment, k.MaxPoints, k.ReturnTags)
}

// =============================================================================
// Cache
// =============================================================================

type entry struct {
	value     []*types.ExperimentSeries
	createdAt time.Time
}

// ResultCache caches assembled query results with TTL expiry and write-time
// invalidation. It is constructed once per process and injected into the
// ingest writer and query engine.
//
// ResultCache is safe for concurrent use.
type ResultCache struct {
	// Primary cache: Key → entry
	entries sync.Map

	// Maps project → set of keys, for O(keys-in-project) invalidation
	// instead of a scan over all entries.
	byProject   map[string]map[Key]struct{}
	byProjectMu sync.RWMutex

	ttl time.Duration

	statsMu sync.Mutex
	stats   Stats
}

// Stats holds cache statistics.
type Stats struct {
	Hits          int64
	Misses        int64
	Invalidations int64
	Size          int
	Projects      int
}

// New creates a result cache with the given TTL. A zero TTL disables expiry;
// entries then live until a write invalidates them.
func New(ttl time.Duration) *ResultCache {
	return &ResultCache{
		byProject: make(map[string]map[Key]struct{}),
		ttl:       ttl,
	}
}

// Get returns the cached result for a key, or false on miss or expiry.
func (c *ResultCache) Get(key Key) ([]*types.ExperimentSeries, bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		c.miss()
		return nil, false
	}

	e := v.(*entry)
	if c.ttl > 0 && time.Since(e.createdAt) >= c.ttl {
		c.remove(key)
		c.miss()
		return nil, false
	}

	c.hit()
	return e.value, true
}

// Set stores an assembled result under a key.
func (c *ResultCache) Set(key Key, value []*types.ExperimentSeries) {
	c.entries.Store(key, &entry{value: value, createdAt: time.Now()})
	c.addToProjectIndex(key)
}

// =============================================================================
// Invalidation
// =============================================================================

// InvalidateExperiment drops every entry for (project, experiment) across all
// max-points/tags variants, plus every whole-project aggregate entry for the
// project: a write can change the answer for any of those.
func (c *ResultCache) InvalidateExperiment(project, experiment string) {
	removed := 0

	c.byProjectMu.Lock()
	for key := range c.byProject[project] {
		if key.Experiment == experiment || key.Experiment == ProjectWide {
			c.entries.Delete(key)
			delete(c.byProject[project], key)
			removed++
		}
	}
	if len(c.byProject[project]) == 0 {
		delete(c.byProject, project)
	}
	c.byProjectMu.Unlock()

	if removed > 0 {
		c.statsMu.Lock()
		c.stats.Invalidations += int64(removed)
		c.statsMu.Unlock()

		log.Debug("invalidated cache entries",
			"project", project, "experiment", experiment, "removed", removed)
	}
}

// remove drops a single expired entry.
func (c *ResultCache) remove(key Key) {
	c.entries.Delete(key)

	c.byProjectMu.Lock()
	if keys, ok := c.byProject[key.Project]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(c.byProject, key.Project)
		}
	}
	c.byProjectMu.Unlock()
}

// =============================================================================
// Secondary Index Helpers
// =============================================================================

func (c *ResultCache) addToProjectIndex(key Key) {
	c.byProjectMu.Lock()
	defer c.byProjectMu.Unlock()

	if c.byProject[key.Project] == nil {
		c.byProject[key.Project] = make(map[Key]struct{})
	}
	c.byProject[key.Project][key] = struct{}{}
}

// =============================================================================
// Statistics
// =============================================================================

func (c *ResultCache) hit() {
	c.statsMu.Lock()
	c.stats.Hits++
	c.statsMu.Unlock()
}

func (c *ResultCache) miss() {
	c.statsMu.Lock()
	c.stats.Misses++
	c.statsMu.Unlock()
}

// GetStats returns current cache statistics.
func (c *ResultCache) GetStats() Stats {
	var size int
	c.entries.Range(func(_, _ interface{}) bool {
		size++
		return true
	})

	c.byProjectMu.RLock()
	projects := len(c.byProject)
	c.byProjectMu.RUnlock()

	c.statsMu.Lock()
	s := c.stats
	c.statsMu.Unlock()

	s.Size = size
	s.Projects = projects
	return s
}
