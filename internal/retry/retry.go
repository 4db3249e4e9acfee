// Package retry runs operations with bounded exponential backoff.
package retry

import (
	"context"
	"time"
)

// Config configures exponential backoff retry behavior
type Config struct {
	MaxRetries int           // Maximum number of attempts, including the first
	BaseDelay  time.Duration // Initial delay between retries
	MaxDelay   time.Duration // Maximum delay between retries
	Multiplier float64       // Exponential backoff multiplier
}

// DefaultConfig returns the defaults used for remote calls
func DefaultConfig() Config {
	return Config{
		MaxRetries: 4,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
	}
}

// Backoff returns the delay to wait after the given zero-based attempt
func Backoff(cfg Config, attempt int) time.Duration {
	delay := cfg.BaseDelay
	for i := 0; i < attempt; i++ {
		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			return cfg.MaxDelay
		}
	}
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do executes fn until it succeeds, returns an error retryable rejects, or
// the attempts are exhausted. A nil retryable retries every error.
// Retry is skipped on context cancellation.
func Do[T any](ctx context.Context, cfg Config, retryable func(error) bool, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		// Don't retry on context cancellation
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if retryable != nil && !retryable(err) {
			return zero, err
		}

		if attempt < attempts-1 {
			if err := Sleep(ctx, Backoff(cfg, attempt)); err != nil {
				return zero, err
			}
		}
	}

	return zero, lastErr
}
