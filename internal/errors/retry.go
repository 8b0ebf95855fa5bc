package errors

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration

	// Multiplier grows the delay after each retry.
	Multiplier float64

	// Jitter randomizes each delay to between 50% and 100% of its value.
	Jitter bool
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryOnce returns a configuration for a single retry after delay.
// The Index Writer uses it for batches.
func RetryOnce(delay time.Duration) RetryConfig {
	return RetryConfig{
		MaxRetries:   1,
		InitialDelay: delay,
		MaxDelay:     delay,
		Multiplier:   1.0,
	}
}

// Retry runs fn until it succeeds, MaxRetries is exhausted, or ctx is done.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult is Retry for functions that return a value.
// On final failure the last error is wrapped, so errors.Is and As still see it.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	b := backoff{cfg: cfg, next: cfg.InitialDelay}
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == cfg.MaxRetries {
			break
		}
		if err := b.wait(ctx); err != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}

type backoff struct {
	cfg  RetryConfig
	next time.Duration
}

// wait sleeps for the current delay and advances it.
func (b *backoff) wait(ctx context.Context) error {
	d := b.next
	if b.cfg.Jitter {
		d = time.Duration(float64(d) * (0.5 + rand.Float64()*0.5))
	}

	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}

	mult := b.cfg.Multiplier
	if mult <= 0 {
		mult = 1
	}
	b.next = time.Duration(float64(b.next) * mult)
	if b.cfg.MaxDelay > 0 && b.next > b.cfg.MaxDelay {
		b.next = b.cfg.MaxDelay
	}
	return nil
}
