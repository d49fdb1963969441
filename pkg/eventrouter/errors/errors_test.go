package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestCategoryString(t *testing.T) {
	for c, want := range map[Category]string{
		Transient:    "transient",
		Permanent:    "permanent",
		Category(42): "category(42)",
	} {
		if got := c.String(); got != want {
			t.Errorf("Category(%d).String() = %q, want %q", uint8(c), got, want)
		}
	}
}

func TestCategorize(t *testing.T) {
	handlerErr := &HandlerError{SubscriptionID: "s", EventID: "e", EventType: "t", Err: errors.New("x")}

	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, Permanent},
		{"plain", errors.New("boom"), Permanent},
		{"marked transient", Mark(errors.New("x"), Transient, "op"), Transient},
		{"marked permanent", Mark(handlerErr, Permanent, "op"), Permanent},
		{"delivery failed", &DeliveryFailedError{EventID: "e", Failed: 1, Total: 2}, Transient},
		{"handler error", handlerErr, Transient},
		{"wrapped handler error", fmt.Errorf("wrap: %w", handlerErr), Transient},
		{"panic", &PanicError{Value: "oops"}, Permanent},
		{"deadline", context.DeadlineExceeded, Transient},
		{"cancelled", context.Canceled, Permanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Categorize(tt.err); got != tt.want {
				t.Errorf("Categorize() = %s, want %s", got, tt.want)
			}
			if IsRetryable(tt.err) != (tt.want == Transient) {
				t.Errorf("IsRetryable() disagrees with Categorize()")
			}
		})
	}
}

func TestCategorizedError(t *testing.T) {
	inner := errors.New("inner")
	err := &CategorizedError{Err: inner, Category: Transient, Attempts: 2, Op: "publish"}

	if !errors.Is(err, inner) {
		t.Error("expected errors.Is to find inner error")
	}
	if got, want := err.Error(), "publish: inner [transient, 2 attempts]"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	if got, want := Mark(inner, Permanent, "").Error(), "inner [permanent]"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if Mark(nil, Transient, "op") != nil {
		t.Error("Mark(nil) should be nil")
	}
}

func TestFailureTypes(t *testing.T) {
	cause := errors.New("db down")
	herr := &HandlerError{SubscriptionID: "sub-1", EventID: "evt-1", EventType: "order.created", Err: cause}
	if !errors.Is(herr, cause) {
		t.Error("HandlerError should unwrap to its cause")
	}
	if got, want := herr.Error(), "subscription sub-1: order.created event evt-1: db down"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	perr := &PanicError{Value: cause}
	if !errors.Is(perr, cause) {
		t.Error("PanicError should unwrap an error value")
	}
	wrapped := &HandlerError{Err: &PanicError{Value: "oops"}}
	var target *PanicError
	if !errors.As(wrapped, &target) || target.Value != "oops" {
		t.Error("HandlerError should expose a wrapped PanicError")
	}
	if (&PanicError{Value: "oops"}).Unwrap() != nil {
		t.Error("non-error panic value should not unwrap")
	}

	derr := &DeliveryFailedError{EventID: "e1", Failed: 2, Total: 3}
	if got, want := derr.Error(), "event e1: 2/3 deliveries failed"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestBackoff(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, BackoffFactor: 2}
	for n, want := range []time.Duration{100, 200, 400, 800} {
		if got := cfg.Backoff(n); got != want*time.Millisecond {
			t.Errorf("Backoff(%d) = %v, want %v", n, got, want*time.Millisecond)
		}
	}

	cfg.MaxBackoff = 300 * time.Millisecond
	if got := cfg.Backoff(3); got != 300*time.Millisecond {
		t.Errorf("capped Backoff(3) = %v", got)
	}

	flat := RetryConfig{InitialBackoff: time.Millisecond}
	if got := flat.Backoff(5); got != time.Millisecond {
		t.Errorf("zero factor Backoff(5) = %v", got)
	}

	jittered := RetryConfig{InitialBackoff: 100 * time.Millisecond, Jitter: 0.5}
	for _i := 0; _i < 20; _i++ {
		if got := jittered.jittered(0); got < 50*time.Millisecond || got > 150*time.Millisecond {
			t.Fatalf("jittered wait %v outside [50ms, 150ms]", got)
		}
	}
}

func TestWithRetryContext(t *testing.T) {
	ctx := context.Background()
	transient := Mark(errors.New("flaky"), Transient, "op")

	t.Run("succeeds first try", func(t *testing.T) {
		calls := 0
		res := WithRetryContext(ctx, RetryConfig{}, func(context.Context) (string, error) {
			calls++
			return "ok", nil
		})
		if res.Err != nil || res.Value != "ok" || res.Attempts != 1 || calls != 1 {
			t.Errorf("unexpected result %+v calls=%d", res, calls)
		}
	})

	t.Run("retries transient errors", func(t *testing.T) {
		cfg := RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, BackoffFactor: 2}
		calls := 0
		res := WithRetryContext(ctx, cfg, func(context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, transient
			}
			return 42, nil
		})
		if res.Err != nil {
			t.Fatalf("unexpected error: %v", res.Err)
		}
		if res.Value != 42 || res.Attempts != 3 {
			t.Errorf("value=%d attempts=%d", res.Value, res.Attempts)
		}
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		cfg := RetryConfig{MaxAttempts: 5, InitialBackoff: time.Millisecond}
		calls := 0
		res := WithRetryContext(ctx, cfg, func(context.Context) (int, error) {
			calls++
			return 0, errors.New("bad input")
		})
		if calls != 1 || res.Attempts != 1 {
			t.Errorf("calls=%d attempts=%d, want 1", calls, res.Attempts)
		}
		var ce *CategorizedError
		if !errors.As(res.Err, &ce) || ce.Category != Permanent {
			t.Errorf("expected permanent CategorizedError, got %v", res.Err)
		}
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		var waits []time.Duration
		var attempts []int
		cfg := RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			BackoffFactor:  2,
			RetryableFunc:  func(error) bool { return true },
			OnRetry: func(attempt int, _ error, wait time.Duration) {
				attempts = append(attempts, attempt)
				waits = append(waits, wait)
			},
		}
		sentinel := errors.New("still failing")
		res := WithRetryContext(ctx, cfg, func(context.Context) (bool, error) {
			return false, sentinel
		})
		if !errors.Is(res.Err, sentinel) {
			t.Errorf("expected final error to wrap sentinel, got %v", res.Err)
		}
		if res.Attempts != 3 {
			t.Errorf("attempts = %d, want 3", res.Attempts)
		}
		if fmt.Sprint(attempts) != "[1 2]" || fmt.Sprint(waits) != "[1ms 2ms]" {
			t.Errorf("attempts=%v waits=%v", attempts, waits)
		}
	})

	t.Run("cancelled before start", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		calls := 0
		res := WithRetryContext(cctx, RetryConfig{MaxAttempts: 3}, func(context.Context) (int, error) {
			calls++
			return 0, nil
		})
		if calls != 0 || res.Attempts != 0 {
			t.Errorf("calls=%d attempts=%d, want 0", calls, res.Attempts)
		}
		if !errors.Is(res.Err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", res.Err)
		}
	})

	t.Run("cancelled during backoff", func(t *testing.T) {
		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		cfg := RetryConfig{MaxAttempts: 3, InitialBackoff: time.Hour}
		res := WithRetryContext(cctx, cfg, func(context.Context) (int, error) {
			return 0, transient
		})
		if !errors.Is(res.Err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", res.Err)
		}
		if res.Attempts != 1 {
			t.Errorf("attempts = %d, want 1", res.Attempts)
		}
	})
}
