package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds how often a store write is attempted.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy makes five attempts with exponential backoff starting at 50ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}
}

func (p RetryPolicy) backoff() retry.Backoff {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}
	b := retry.NewExponential(base)
	b = retry.WithJitterPercent(20, b)
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}
	return retry.WithMaxRetries(uint64(attempts-1), b)
}

// terminal errors carry a definite answer from the store and are never retried.
func terminal(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound)
}

// durable runs a store write under the retry policy. Transient failures are retried
// with backoff; after the last attempt, or on cancellation, the failure becomes a
// *PersistenceError.
func (s *Service) durable(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := 0
	err := retry.Do(ctx, s.retry.backoff(), func(ctx context.Context) error {
		attempts++
		err := s.call(ctx, fn)
		if err == nil || terminal(err) || ctx.Err() != nil {
			return err
		}
		s.logger.Warn("store write failed",
			slog.String("op", op),
			slog.Int("attempt", attempts),
			slog.Any("error", err),
		)
		return retry.RetryableError(err)
	})
	if err == nil || terminal(err) {
		return err
	}
	return &PersistenceError{Op: op, Attempts: attempts, Err: err}
}

// read runs a single store read with the per-call timeout.
func (s *Service) read(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := s.call(ctx, fn)
	if err == nil || terminal(err) {
		return err
	}
	return &PersistenceError{Op: op, Attempts: 1, Err: err}
}

func (s *Service) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.storeTimeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return fn(callCtx)
}
