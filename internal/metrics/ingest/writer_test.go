package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/MalchuL/experiment-tracker-sub000/internal/metrics/cache"
	"github.com/MalchuL/experiment-tracker-sub000/internal/metrics/names"
	"github.com/MalchuL/experiment-tracker-sub000/internal/metrics/schema"
	"github.com/MalchuL/experiment-tracker-sub000/internal/metrics/types"
	"github.com/MalchuL/experiment-tracker-sub000/internal/store"
	apptesting "github.com/MalchuL/experiment-tracker-sub000/internal/testing"
)

func newTestWriter(t *testing.T) (*Writer, *store.Store, *cache.ResultCache) {
	t.Helper()

	s, err := store.New(store.DefaultConfig())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.EnsureMetaSchema(context.Background()); err != nil {
		t.Fatalf("ensure meta schema: %v", err)
	}

	c := cache.New(time.Minute)
	w := NewWriter(s, schema.NewManager(s), names.NewMapper(s), c)
	return w, s, c
}

// countRows counts rows in a project's scalar table directly.
func countRows(t *testing.T, s *store.Store, table string) int {
	t.Helper()

	var n int
	err := s.QueryRowContext(context.Background(),
		"SELECT count(*) FROM "+table).Scan(&n)
	if err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}

func TestLogScalarInsertsRow(t *testing.T) {
	w, s, _ := newTestWriter(t)
	ctx := context.Background()

	result, err := w.LogScalar(ctx, "deadbeef", "e1", 1,
		map[string]float64{"loss": 0.5, "acc": 0.9}, nil)
	if err != nil {
		t.Fatalf("LogScalar: %v", err)
	}
	if result.Rows != 1 {
		t.Errorf("rows = %d, want 1", result.Rows)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("warnings = %v", result.Warnings)
	}

	if got := countRows(t, s, "metrics_deadbeef"); got != 1 {
		t.Errorf("table rows = %d, want 1", got)
	}
}

func TestLogScalarsBatch(t *testing.T) {
	w, s, _ := newTestWriter(t)
	ctx := context.Background()

	items := []types.LogItem{
		{Step: 1, Scalars: map[string]float64{"loss": 0.9}},
		{Step: 2, Scalars: map[string]float64{"loss": 0.7, "acc": 0.5}},
		{Step: 3, Scalars: map[string]float64{"acc": 0.6}},
	}

	result, err := w.LogScalars(ctx, "deadbeef", "e1", items)
	if err != nil {
		t.Fatalf("LogScalars: %v", err)
	}
	if result.Rows != 3 {
		t.Errorf("rows = %d, want 3", result.Rows)
	}

	if got := countRows(t, s, "metrics_deadbeef"); got != 3 {
		t.Errorf("table rows = %d, want 3", got)
	}
}

func TestBlankNamesDroppedWithWarning(t *testing.T) {
	w, _, _ := newTestWriter(t)
	ctx := context.Background()

	result, err := w.LogScalar(ctx, "deadbeef", "e1", 7,
		map[string]float64{"loss": 0.5, "": 1.0, "   ": 2.0}, nil)
	if err != nil {
		t.Fatalf("LogScalar: %v", err)
	}
	if result.Rows != 1 {
		t.Errorf("rows = %d, want 1", result.Rows)
	}
	if len(result.Warnings) != 2 {
		t.Fatalf("warnings = %v, want 2", result.Warnings)
	}
	for _, warning := range result.Warnings {
		if !strings.Contains(warning, "step 7") {
			t.Errorf("warning %q should name the step", warning)
		}
	}
}

func TestAllBlankNamesStillSucceeds(t *testing.T) {
	w, _, _ := newTestWriter(t)
	ctx := context.Background()

	result, err := w.LogScalar(ctx, "deadbeef", "e1", 1,
		map[string]float64{"": 1.0}, nil)
	if err != nil {
		t.Fatalf("LogScalar: %v", err)
	}
	if result.Rows != 0 {
		t.Errorf("rows = %d, want 0", result.Rows)
	}
	if len(result.Warnings) != 1 {
		t.Errorf("warnings = %v, want 1", result.Warnings)
	}
}

func TestEmptyBatchSucceeds(t *testing.T) {
	w, _, _ := newTestWriter(t)

	result, err := w.LogScalars(context.Background(), "deadbeef", "e1", nil)
	if err != nil {
		t.Fatalf("LogScalars: %v", err)
	}
	if result.Rows != 0 || len(result.Warnings) != 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestWriteInvalidatesCache(t *testing.T) {
	w, _, c := newTestWriter(t)
	ctx := context.Background()

	key := cache.ExperimentKey("deadbeef", "e1", 1000, false)
	c.Set(key, nil)

	if _, err := w.LogScalar(ctx, "deadbeef", "e1", 1,
		map[string]float64{"loss": 0.5}, nil); err != nil {
		t.Fatalf("LogScalar: %v", err)
	}

	if _, ok := c.Get(key); ok {
		t.Error("stale cache entry survived the write")
	}
}

func TestWriteUpdatesLastLogged(t *testing.T) {
	w, s, _ := newTestWriter(t)
	ctx := context.Background()

	if _, err := w.LogScalar(ctx, "deadbeef", "e1", 1,
		map[string]float64{"loss": 0.5}, nil); err != nil {
		t.Fatalf("LogScalar: %v", err)
	}

	_, ok, err := s.LastLogged(ctx, "deadbeef", "e1")
	if err != nil {
		t.Fatalf("LastLogged: %v", err)
	}
	if !ok {
		t.Error("expected a freshness record after the write")
	}
}

func TestNewScalarExtendsSchema(t *testing.T) {
	w, s, _ := newTestWriter(t)
	ctx := context.Background()

	if _, err := w.LogScalar(ctx, "deadbeef", "e1", 1,
		map[string]float64{"loss": 0.5}, nil); err != nil {
		t.Fatalf("first write: %v", err)
	}

	// A never-seen name mid-run grows the table, earlier rows read NULL.
	if _, err := w.LogScalar(ctx, "deadbeef", "e1", 2,
		map[string]float64{"grad_norm": 1.5}, nil); err != nil {
		t.Fatalf("second write: %v", err)
	}

	mapper := names.NewMapper(s)
	mapping, err := mapper.Load(ctx, "deadbeef")
	if err != nil {
		t.Fatalf("load mapping: %v", err)
	}
	if len(mapping) != 2 {
		t.Errorf("mapping = %v, want 2 entries", mapping)
	}
}

func TestConcurrentWritersSameProject(t *testing.T) {
	w, s, _ := newTestWriter(t)
	h := apptesting.NewTestHelper(t)

	for i := 0; i < 8; i++ {
		h.Add(1)
		go func(id int) {
			defer h.Done()
			_, err := w.LogScalar(context.Background(), "deadbeef", "e1",
				int64(id), map[string]float64{"loss": float64(id)}, nil)
			if err != nil {
				h.Errorf("writer %d: %v", id, err)
			}
		}(i)
	}

	h.Wait()

	if got := countRows(t, s, "metrics_deadbeef"); got != 8 {
		t.Errorf("table rows = %d, want 8", got)
	}
}

func TestTagsRoundTrip(t *testing.T) {
	tags := []string{"warmup", "fold=3"}

	encoded := encodeTags(tags)
	str, ok := encoded.(string)
	if !ok {
		t.Fatalf("encoded tags = %T, want string", encoded)
	}

	decoded := DecodeTags(str)
	if len(decoded) != 2 || decoded[0] != "warmup" || decoded[1] != "fold=3" {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestEmptyTagsEncodeToNull(t *testing.T) {
	if encodeTags(nil) != nil {
		t.Error("nil tags should encode to NULL")
	}
	if encodeTags([]string{}) != nil {
		t.Error("empty tags should encode to NULL")
	}
}
