package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/booklens/backend/internal/domain"
)

// cancelled wraps the context's cause with domain.ErrCancelled so callers can
// tell an aborted resolution apart from "no match".
func cancelled(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = context.Canceled
	}
	return fmt.Errorf("%w: %w", domain.ErrCancelled, cause)
}

// cancellationError returns err normalized to wrap domain.ErrCancelled when
// err or ctx signals cancellation, and nil otherwise.
func cancellationError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrCancelled):
		return err
	case ctx.Err() != nil:
		return cancelled(ctx)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", domain.ErrCancelled, err)
	}
	return nil
}
