package usecase

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/booklens/backend/internal/domain"
)

// throttle enforces a minimum delay between successive searches issued from
// one call site. The first call passes immediately. A throttle belongs to a
// single resolution chain and is never shared globally.
type throttle struct {
	limiter *rate.Limiter
}

func newThrottle(delay time.Duration) *throttle {
	if delay <= 0 {
		return &throttle{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &throttle{limiter: rate.NewLimiter(rate.Every(delay), 1)}
}

// Wait blocks until the next call is allowed or ctx is done
func (t *throttle) Wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return cancelled(ctx)
		}
		// The limiter refuses up front when the deadline is closer than the delay.
		return fmt.Errorf("%w: %w", domain.ErrCancelled, err)
	}
	return nil
}
