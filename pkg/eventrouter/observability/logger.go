// Package observability provides structured logging, metrics and tracing for
// the event router, store and replayer.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry, plus a Prometheus collector for counter snapshots
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
// Every Log* helper accepts a nil logger.
package observability

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/eventrouter/pkg/eventrouter/event"
)

// EnrichLogger adds event identity to a logger.
//
// Example:
//
//	logger := EnrichLogger(base, evt)
//	logger.Info("handling") // includes event_id, event_type, correlation_id
func EnrichLogger(logger *slog.Logger, evt *event.Event) *slog.Logger {
	if logger == nil || evt == nil {
		return logger
	}
	return logger.With(
		slog.String("event_id", evt.ID),
		slog.String("event_type", evt.Type),
		slog.String("correlation_id", evt.CorrelationID),
	)
}

// LogPublish logs a publish call and how many subscriptions matched.
func LogPublish(logger *slog.Logger, evt *event.Event, mode string, matched int) {
	if logger == nil {
		return
	}
	logger.Debug("event published",
		slog.String("event_id", evt.ID),
		slog.String("event_type", evt.Type),
		slog.String("source", evt.Source),
		slog.String("mode", mode),
		slog.Int("matched", matched),
	)
}

// LogDeliveryFailed logs a handler failure. Delivery continues for other
// subscriptions.
func LogDeliveryFailed(logger *slog.Logger, evt *event.Event, subscriptionID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("delivery failed",
		slog.String("event_id", evt.ID),
		slog.String("event_type", evt.Type),
		slog.String("subscription_id", subscriptionID),
		slog.String("error", err.Error()),
	)
}

// LogErrorHandlerFailed logs a swallowed error-handler panic.
func LogErrorHandlerFailed(logger *slog.Logger, subscriptionID string, recovered any) {
	if logger == nil {
		return
	}
	logger.Warn("error handler panicked",
		slog.String("subscription_id", subscriptionID),
		slog.Any("panic", recovered),
	)
}

// LogQueued logs a queued hand-off.
func LogQueued(logger *slog.Logger, evt *event.Event, subscriptionID string) {
	if logger == nil {
		return
	}
	logger.Debug("event queued",
		slog.String("event_id", evt.ID),
		slog.String("event_type", evt.Type),
		slog.String("subscription_id", subscriptionID),
	)
}

// LogRetry logs a failed publish attempt that will be retried.
func LogRetry(logger *slog.Logger, eventID string, attempt int, err error, wait time.Duration) {
	if logger == nil {
		return
	}
	logger.Debug("publish attempt failed, retrying",
		slog.String("event_id", eventID),
		slog.Int("attempt", attempt),
		slog.String("error", err.Error()),
		slog.Duration("wait", wait),
	)
}

// LogRetryExhausted logs a publish that failed every attempt.
func LogRetryExhausted(logger *slog.Logger, eventID string, attempts int, err error) {
	if logger == nil {
		return
	}
	logger.Error("publish retries exhausted",
		slog.String("event_id", eventID),
		slog.Int("attempts", attempts),
		slog.String("error", err.Error()),
	)
}

// LogRetention logs a retention sweep.
func LogRetention(logger *slog.Logger, removed, remaining int) {
	if logger == nil {
		return
	}
	logger.Info("retention sweep completed",
		slog.Int("removed", removed),
		slog.Int("remaining", remaining),
	)
}

// LogReplayStart logs the start of a replay.
func LogReplayStart(logger *slog.Logger, kind, key string, count int, speed float64) {
	if logger == nil {
		return
	}
	logger.Info("replay starting",
		slog.String("kind", kind),
		slog.String("key", key),
		slog.Int("events", count),
		slog.Float64("speed_multiplier", speed),
	)
}

// LogReplayComplete logs replay completion.
func LogReplayComplete(logger *slog.Logger, kind string, replayed, failed int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("replay completed",
		slog.String("kind", kind),
		slog.Int("replayed", replayed),
		slog.Int("failed", failed),
		slog.Float64("duration_ms", durationMs),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
