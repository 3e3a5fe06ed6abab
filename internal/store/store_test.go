package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/MalchuL/experiment-tracker-sub000/internal/errors"
)

func TestHealth(t *testing.T) {
	s := newTestStore(t)

	if err := s.Health(context.Background()); err != nil {
		t.Errorf("Health: %v", err)
	}
}

func TestExecContextTimeoutClassified(t *testing.T) {
	s := newTestStore(t)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := s.ExecContext(ctx, "SELECT 1")
	if err == nil {
		t.Fatal("expected error from expired deadline")
	}
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout in its chain", err)
	}
	if !errors.IsRetriable(err) {
		t.Errorf("timeout should be retriable, err = %v", err)
	}
}

func TestExecContextDatabaseErrorClassified(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ExecContext(context.Background(), "DEFINITELY NOT SQL")
	if err == nil {
		t.Fatal("expected error for invalid statement")
	}
	if !errors.Is(err, ErrDatabase) {
		t.Errorf("err = %v, want ErrDatabase in its chain", err)
	}
	if errors.IsRetriable(err) {
		t.Errorf("a statement error must not be retriable, err = %v", err)
	}
}

func TestClosedStoreRejectsCalls(t *testing.T) {
	s := newTestStore(t)

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := s.ExecContext(context.Background(), "SELECT 1"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("ExecContext err = %v, want ErrStoreClosed", err)
	}
	if _, err := s.QueryContext(context.Background(), "SELECT 1"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("QueryContext err = %v, want ErrStoreClosed", err)
	}
	err := s.TransactionContext(context.Background(), func(*sql.Tx) error { return nil })
	if !errors.Is(err, ErrStoreClosed) {
		t.Errorf("TransactionContext err = %v, want ErrStoreClosed", err)
	}
}

func TestQueryContextDatabaseErrorClassified(t *testing.T) {
	s := newTestStore(t)

	_, err := s.QueryContext(context.Background(), "SELECT FROM FROM")
	if err == nil {
		t.Fatal("expected error for invalid query")
	}
	if !errors.Is(err, ErrDatabase) {
		t.Errorf("err = %v, want ErrDatabase in its chain", err)
	}
}
