package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/booklens/backend/internal/domain"
	"github.com/booklens/backend/internal/logging"
)

// defaultProviderAttempts bounds every suggestion provider call
const defaultProviderAttempts = 3

// callWithRetry runs fn up to attempts times and returns the first success.
// Cancellation and validation failures end the loop at once.
func callWithRetry[T any](
	ctx context.Context,
	logger *slog.Logger,
	operation string,
	attempts int,
	fn func(context.Context) (T, error),
) (T, error) {
	var zero T
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return zero, cancelled(ctx)
		}

		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}
		if cerr := cancellationError(ctx, err); cerr != nil {
			return zero, cerr
		}
		if errors.Is(err, domain.ErrValidation) {
			return zero, err
		}

		lastErr = err
		logger.Warn("provider call failed",
			logging.String("operation", operation),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", attempts),
			logging.Error(err),
		)
	}

	return zero, fmt.Errorf("%s failed after %d attempts: %w", operation, attempts, lastErr)
}
