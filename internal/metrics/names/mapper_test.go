package names

import (
	"context"
	"strings"
	"testing"

	"github.com/MalchuL/experiment-tracker-sub000/internal/store"
	"github.com/MalchuL/experiment-tracker-sub000/internal/validation"
)

func newTestMapper(t *testing.T) *Mapper {
	t.Helper()

	s, err := store.New(store.DefaultConfig())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.EnsureMetaSchema(context.Background()); err != nil {
		t.Fatalf("ensure meta schema: %v", err)
	}
	return NewMapper(s)
}

func TestResolveAllocates(t *testing.T) {
	m := newTestMapper(t)

	mapping := Mapping{}
	changed, err := m.Resolve(mapping, []string{"loss", "val/accuracy", "学習率"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !changed {
		t.Fatal("expected changed=true for fresh names")
	}
	if len(mapping) != 3 {
		t.Fatalf("mapping size = %d, want 3", len(mapping))
	}

	seen := make(map[string]struct{})
	for name, col := range mapping {
		if !strings.HasPrefix(col, ColumnPrefix) {
			t.Errorf("column for %q = %q, missing prefix", name, col)
		}
		if err := validation.ValidateIdentifier(col); err != nil {
			t.Errorf("column for %q = %q fails identifier grammar: %v", name, col, err)
		}
		if _, dup := seen[col]; dup {
			t.Errorf("duplicate column %q", col)
		}
		seen[col] = struct{}{}
	}
}

func TestResolveStable(t *testing.T) {
	m := newTestMapper(t)

	mapping := Mapping{}
	if _, err := m.Resolve(mapping, []string{"loss"}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	col := mapping["loss"]

	// Re-resolving an existing name must neither change it nor report change.
	changed, err := m.Resolve(mapping, []string{"loss"})
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if changed {
		t.Error("expected changed=false for an existing name")
	}
	if mapping["loss"] != col {
		t.Errorf("column changed from %q to %q", col, mapping["loss"])
	}
}

func TestResolvePartiallyNew(t *testing.T) {
	m := newTestMapper(t)

	mapping := Mapping{}
	if _, err := m.Resolve(mapping, []string{"loss"}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	col := mapping["loss"]

	changed, err := m.Resolve(mapping, []string{"loss", "acc"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !changed {
		t.Error("expected changed=true when a new name appears")
	}
	if mapping["loss"] != col {
		t.Error("existing assignment must be preserved")
	}
	if mapping["acc"] == "" || mapping["acc"] == col {
		t.Errorf("acc column = %q", mapping["acc"])
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m := newTestMapper(t)
	ctx := context.Background()

	mapping := Mapping{}
	if _, err := m.Resolve(mapping, []string{"loss", "acc"}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := m.Save(ctx, "p1", mapping); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := m.Load(ctx, "p1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != len(mapping) {
		t.Fatalf("loaded %d entries, want %d", len(loaded), len(mapping))
	}
	for name, col := range mapping {
		if loaded[name] != col {
			t.Errorf("loaded[%q] = %q, want %q", name, loaded[name], col)
		}
	}
}

func TestLoadUnknownProject(t *testing.T) {
	m := newTestMapper(t)

	mapping, err := m.Load(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(mapping) != 0 {
		t.Errorf("expected empty mapping, got %v", mapping)
	}
}

func TestMappingInverse(t *testing.T) {
	mapping := Mapping{
		"loss": "c_0000000000000001",
		"acc":  "c_0000000000000002",
	}

	inv := mapping.Inverse()
	if inv["c_0000000000000001"] != "loss" || inv["c_0000000000000002"] != "acc" {
		t.Errorf("Inverse = %v", inv)
	}
}
