package store

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/MalchuL/experiment-tracker-sub000/internal/errors"
)

var (
	ErrStoreClosed        = errors.ErrStoreClosed
	ErrDatabase           = errors.ErrDatabase
	ErrTimeout            = errors.ErrTimeout
	ErrBackendUnavailable = errors.ErrBackendUnavailable
)

// classifyErr maps a low-level database error onto the shared sentinels so
// callers can categorize it (errors.IsRetriable and friends) without knowing
// the driver. The original error stays in the chain.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrDatabase, err)
}
