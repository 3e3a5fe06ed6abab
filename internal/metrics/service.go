package metrics

import (
	"context"
	"fmt"
	"time"

	appconfig "github.com/MalchuL/experiment-tracker-sub000/config"
	"github.com/MalchuL/experiment-tracker-sub000/internal/errors"
	"github.com/MalchuL/experiment-tracker-sub000/internal/metrics/cache"
	"github.com/MalchuL/experiment-tracker-sub000/internal/metrics/ingest"
	"github.com/MalchuL/experiment-tracker-sub000/internal/metrics/names"
	"github.com/MalchuL/experiment-tracker-sub000/internal/metrics/query"
	"github.com/MalchuL/experiment-tracker-sub000/internal/metrics/schema"
	"github.com/MalchuL/experiment-tracker-sub000/internal/metrics/types"
	"github.com/MalchuL/experiment-tracker-sub000/internal/store"
)

// Config holds service construction options.
type Config struct {
	// Store is the backing database. Required.
	Store *store.Store

	// CacheTTL is the result cache expiry. Zero uses the default;
	// negative disables caching entirely.
	CacheTTL time.Duration

	// DefaultMaxPoints is the per-series point limit applied when a
	// query does not request one. Zero uses the system default.
	DefaultMaxPoints int
}

// Service wires the scalar engine's components together with explicit,
// injected dependencies and a per-process lifetime.
type Service struct {
	store  *store.Store
	cache  *cache.ResultCache
	mapper *names.Mapper
	tables *schema.Manager
	writer *ingest.Writer
	engine *query.Engine
}

// New creates the scalar service and ensures the shared meta tables exist.
func New(ctx context.Context, cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("metrics: store is required")
	}

	var resultCache *cache.ResultCache
	if cfg.CacheTTL >= 0 {
		ttl := cfg.CacheTTL
		if ttl == 0 {
			ttl = appconfig.DefaultCacheTTLSec * time.Second
		}
		resultCache = cache.New(ttl)
	}

	if err := cfg.Store.EnsureMetaSchema(ctx); err != nil {
		return nil, errors.Wrap(err, "ensure meta schema")
	}

	mapper := names.NewMapper(cfg.Store)
	tables := schema.NewManager(cfg.Store)

	return &Service{
		store:  cfg.Store,
		cache:  resultCache,
		mapper: mapper,
		tables: tables,
		writer: ingest.NewWriter(cfg.Store, tables, mapper, resultCache),
		engine: query.NewEngine(cfg.Store, tables, mapper, resultCache, cfg.DefaultMaxPoints),
	}, nil
}

// LogScalar logs the scalars of a single step for one experiment.
func (s *Service) LogScalar(ctx context.Context, projectID, experimentID string, step int64, scalars map[string]float64, tags []string) (*types.LogResult, error) {
	return s.writer.LogScalar(ctx, projectID, experimentID, step, scalars, tags)
}

// LogScalars logs a batch of steps for one experiment.
func (s *Service) LogScalars(ctx context.Context, projectID, experimentID string, items []types.LogItem) (*types.LogResult, error) {
	return s.writer.LogScalars(ctx, projectID, experimentID, items)
}

// GetScalars returns reconstructed series for a project.
func (s *Service) GetScalars(ctx context.Context, projectID string, p types.QueryParams) ([]*types.ExperimentSeries, error) {
	return s.engine.GetScalars(ctx, projectID, p)
}

// LastLogged returns the most recent write timestamp for an experiment, a
// cheap change-poll hint maintained best-effort by the write path.
func (s *Service) LastLogged(ctx context.Context, projectID, experimentID string) (time.Time, bool, error) {
	return s.store.LastLogged(ctx, projectID, experimentID)
}

// NameMapping returns the project's current scalar-name mapping.
func (s *Service) NameMapping(ctx context.Context, projectID string) (names.Mapping, error) {
	return s.mapper.Load(ctx, projectID)
}

// Tables exposes the table manager for introspection tooling.
func (s *Service) Tables() *schema.Manager {
	return s.tables
}

// CacheStats returns result cache statistics; the second return is false
// when caching is disabled.
func (s *Service) CacheStats() (cache.Stats, bool) {
	if s.cache == nil {
		return cache.Stats{}, false
	}
	return s.cache.GetStats(), true
}

// QueryStats returns query engine statistics.
func (s *Service) QueryStats() query.Stats {
	return s.engine.GetStats()
}
