package schema

import (
	"context"
	"strings"
	"testing"

	"github.com/MalchuL/experiment-tracker-sub000/internal/errors"
	"github.com/MalchuL/experiment-tracker-sub000/internal/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	s, err := store.New(store.DefaultConfig())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return NewManager(s)
}

func TestTableName(t *testing.T) {
	m := newTestManager(t)

	tests := []struct {
		project string
		want    string
	}{
		// UUIDs lose their dashes
		{"a1b2c3d4-e5f6-7890-abcd-ef0123456789", "metrics_a1b2c3d4e5f67890abcdef0123456789"},
		// Hex ids pass through lower-cased
		{"DEADBEEF", "metrics_deadbeef"},
		// Non-hex ids are hex-encoded
		{"my-project", "metrics_" + "6d792d70726f6a656374"},
	}

	for _, tt := range tests {
		got, err := m.TableName(tt.project)
		if err != nil {
			t.Errorf("TableName(%q): %v", tt.project, err)
			continue
		}
		if got != tt.want {
			t.Errorf("TableName(%q) = %q, want %q", tt.project, got, tt.want)
		}
	}
}

func TestTableNameDeterministic(t *testing.T) {
	m := newTestManager(t)

	a, err := m.TableName("a1b2c3d4-e5f6-7890-abcd-ef0123456789")
	if err != nil {
		t.Fatalf("TableName: %v", err)
	}
	b, err := m.TableName("a1b2c3d4-e5f6-7890-abcd-ef0123456789")
	if err != nil {
		t.Fatalf("TableName: %v", err)
	}
	if a != b {
		t.Errorf("same project produced %q and %q", a, b)
	}
}

func TestTableNameRejectsBlank(t *testing.T) {
	m := newTestManager(t)

	for _, project := range []string{"", "   "} {
		if _, err := m.TableName(project); err == nil {
			t.Errorf("TableName(%q): expected error", project)
		}
	}
}

func TestTableNameAlwaysSafeIdentifier(t *testing.T) {
	m := newTestManager(t)

	// Hostile project ids must either map to a safe identifier or fail;
	// they may never produce SQL metacharacters.
	hostile := []string{
		"p; DROP TABLE users--",
		"Robert'); DROP TABLE students;--",
		"проект",
	}
	for _, project := range hostile {
		name, err := m.TableName(project)
		if err != nil {
			continue
		}
		if strings.ContainsAny(name, " ;'\"()-") {
			t.Errorf("TableName(%q) = %q contains unsafe characters", project, name)
		}
	}
}

func TestExistsBeforeCreate(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	exists, err := m.Exists(ctx, "metrics_deadbeef")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Error("table should not exist before creation")
	}
}

func TestExistsRejectsUnsafeName(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Exists(context.Background(), "metrics_x; DROP TABLE y")
	if !errors.Is(err, errors.ErrUnsafeIdentifier) {
		t.Errorf("expected ErrUnsafeIdentifier, got %v", err)
	}
}

func TestEnsureSchemaCreatesTable(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	table := "metrics_deadbeef"
	cols := []string{"c_0000000000000001", "c_0000000000000002"}

	if err := m.EnsureSchema(ctx, table, cols); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	exists, err := m.Exists(ctx, table)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Fatal("table missing after EnsureSchema")
	}

	current, err := m.CurrentColumns(ctx, table)
	if err != nil {
		t.Fatalf("CurrentColumns: %v", err)
	}
	for _, base := range BaseColumns {
		if _, ok := current[base]; !ok {
			t.Errorf("missing base column %q", base)
		}
	}
	for _, col := range cols {
		if _, ok := current[col]; !ok {
			t.Errorf("missing scalar column %q", col)
		}
	}
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	table := "metrics_deadbeef"
	cols := []string{"c_0000000000000001"}

	for i := 0; i < 3; i++ {
		if err := m.EnsureSchema(ctx, table, cols); err != nil {
			t.Fatalf("EnsureSchema round %d: %v", i, err)
		}
	}

	scalars, err := m.ScalarColumns(ctx, table)
	if err != nil {
		t.Fatalf("ScalarColumns: %v", err)
	}
	if len(scalars) != 1 {
		t.Errorf("scalar columns = %v, want exactly one", scalars)
	}
}

func TestEnsureSchemaAddsColumns(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	table := "metrics_deadbeef"

	if err := m.EnsureSchema(ctx, table, []string{"c_0000000000000001"}); err != nil {
		t.Fatalf("initial EnsureSchema: %v", err)
	}

	// A later batch brings a new scalar; the old column must survive.
	if err := m.EnsureSchema(ctx, table, []string{"c_0000000000000002"}); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}

	scalars, err := m.ScalarColumns(ctx, table)
	if err != nil {
		t.Fatalf("ScalarColumns: %v", err)
	}
	if len(scalars) != 2 {
		t.Errorf("scalar columns = %v, want two", scalars)
	}
}

func TestEnsureSchemaRejectsUnsafeColumns(t *testing.T) {
	m := newTestManager(t)

	err := m.EnsureSchema(context.Background(), "metrics_deadbeef", []string{"c_1; DROP TABLE x"})
	if !errors.Is(err, errors.ErrUnsafeIdentifier) {
		t.Errorf("expected ErrUnsafeIdentifier, got %v", err)
	}
}
