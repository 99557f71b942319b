package retry

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts    uint
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
	// OnRetry is called after a failed attempt that will be retried. n is zero-based.
	OnRetry func(n uint, err error)
}

// DefaultConfig returns default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		AttemptTimeout: 10 * time.Second,
	}
}

// Do runs fn with exponential backoff while retryIf(err) holds.
// Each attempt gets its own context bounded by AttemptTimeout.
// Cancelling ctx stops further attempts.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error, retryIf func(error) bool) error {
	attempts := cfg.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	return retry.Do(
		func() error {
			attemptCtx := ctx
			if cfg.AttemptTimeout > 0 {
				var cancel context.CancelFunc
				attemptCtx, cancel = context.WithTimeout(ctx, cfg.AttemptTimeout)
				defer cancel()
			}
			return fn(attemptCtx)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(cfg.InitialDelay),
		retry.MaxDelay(cfg.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			if ctx.Err() != nil {
				return false
			}
			return retryIf != nil && retryIf(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			if cfg.OnRetry != nil {
				cfg.OnRetry(n, err)
			}
		}),
	)
}

// DoWithResult executes a function with exponential backoff retry and returns a result
func DoWithResult[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error), retryIf func(error) bool) (T, error) {
	var result T
	err := Do(ctx, cfg, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	}, retryIf)
	return result, err
}
