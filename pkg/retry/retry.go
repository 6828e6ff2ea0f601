// Package retry re-runs short store operations that failed transiently.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/folio/contact-relay/pkg/logger"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Policy describes how often and how patiently an operation is retried
type Policy struct {
	// Attempts is the total number of calls, including the first one
	Attempts int
	// BaseDelay is the wait before the second call; it doubles after every failure
	BaseDelay time.Duration
	// MaxDelay caps a single wait
	MaxDelay time.Duration
	// Jitter spreads each wait uniformly over [delay*(1-Jitter), delay]
	Jitter float64
	// Retryable decides whether an error is transient. Nil retries everything.
	Retryable func(error) bool
}

// StorePolicy is used for rate limit writes that run after an email already
// went out, while the caller is still waiting for the response
func StorePolicy() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 50 * time.Millisecond,
		MaxDelay:  500 * time.Millisecond,
		Jitter:    0.5,
		Retryable: IsRetryable,
	}
}

// Do calls fn until it succeeds, the error is permanent, attempts run out or ctx ends
func Do(ctx context.Context, p Policy, operation string, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err = fn(ctx); err == nil {
			if attempt > 1 {
				logger.Info("Operation succeeded after retry",
					zap.String("operation", operation),
					zap.Int("attempt", attempt))
			}
			return nil
		}

		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := p.backoff(attempt)
		logger.Warn("Operation failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("attempts", attempts),
			zap.Duration("delay", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, attempts, err)
}

// backoff returns the wait after the given failed attempt (1-based)
func (p Policy) backoff(attempt int) time.Duration {
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	delay := p.BaseDelay << shift
	if delay <= 0 || (p.MaxDelay > 0 && delay > p.MaxDelay) {
		delay = p.MaxDelay
	}

	if p.Jitter > 0 && delay > 0 {
		//nolint:gosec // G404: jitter does not need a secure source
		cut := time.Duration(rand.Float64() * p.Jitter * float64(delay))
		delay -= cut
	}
	return delay
}

// IsRetryable reports whether err is worth another attempt.
// Cancellation is final, as are Postgres errors the server will repeat:
// integrity violations (class 23), syntax or access errors (class 42)
// and invalid input (class 22).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "22", "23", "42":
			return false
		}
	}
	return true
}
