package errors

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryConfig configures WithRetryContext.
type RetryConfig struct {
	// MaxAttempts counts the first attempt. Values below 1 mean 1.
	MaxAttempts int

	// InitialBackoff is the wait after the first failure.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait. Zero means uncapped.
	MaxBackoff time.Duration

	// BackoffFactor multiplies the wait after each failure. Values below
	// or equal to zero keep the wait constant.
	BackoffFactor float64

	// Jitter spreads each wait by up to +/- Jitter of itself (0.0-1.0).
	Jitter float64

	// RetryableFunc replaces IsRetryable.
	RetryableFunc func(error) bool

	// OnRetry runs before each wait with the failed attempt (from 1), its
	// error and the wait that follows.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Backoff returns the wait after zero-based attempt n, before jitter:
// InitialBackoff * BackoffFactor^n, capped at MaxBackoff.
func (cfg RetryConfig) Backoff(n int) time.Duration {
	wait := cfg.InitialBackoff
	if cfg.BackoffFactor > 0 {
		wait = time.Duration(float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffFactor, float64(n)))
	}
	if cfg.MaxBackoff > 0 {
		wait = min(wait, cfg.MaxBackoff)
	}
	return wait
}

func (cfg RetryConfig) jittered(n int) time.Duration {
	wait := cfg.Backoff(n)
	if cfg.Jitter <= 0 || wait <= 0 {
		return wait
	}
	spread := float64(wait) * min(cfg.Jitter, 1) * (2*rand.Float64() - 1)
	return wait + time.Duration(spread)
}

// RetryResult is the outcome of WithRetryContext.
type RetryResult[T any] struct {
	// Value is the last attempt's value.
	Value T

	// Err is nil on success, otherwise a *CategorizedError wrapping the
	// error that ended the retries.
	Err error

	Attempts int
	Duration time.Duration
}

// WithRetryContext calls fn until it succeeds, returns a non-retryable
// error, runs out of attempts or ctx ends. Waits between attempts follow
// cfg.Backoff with jitter and stop early when ctx is done.
func WithRetryContext[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) RetryResult[T] {
	start := time.Now()
	retryable := cfg.RetryableFunc
	if retryable == nil {
		retryable = IsRetryable
	}
	attempts := max(cfg.MaxAttempts, 1)

	var res RetryResult[T]
	stop := func(err error, c Category, op string) RetryResult[T] {
		if err != nil {
			res.Err = &CategorizedError{Err: err, Category: c, Attempts: res.Attempts, Op: op}
		}
		res.Duration = time.Since(start)
		return res
	}

	for {
		if err := ctx.Err(); err != nil {
			return stop(err, Permanent, "cancelled")
		}

		value, err := fn(ctx)
		res.Value = value
		res.Attempts++
		switch {
		case err == nil:
			return stop(nil, 0, "")
		case !retryable(err):
			return stop(err, Categorize(err), "")
		case res.Attempts == attempts:
			return stop(err, Categorize(err), "retries exhausted")
		}

		wait := cfg.jittered(res.Attempts - 1)
		if cfg.OnRetry != nil {
			cfg.OnRetry(res.Attempts, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return stop(ctx.Err(), Permanent, "cancelled during backoff")
		case <-timer.C:
		}
	}
}
