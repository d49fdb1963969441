package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/randalmurphal/eventrouter/pkg/eventrouter/event"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/observability"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/router"
	"github.com/randalmurphal/eventrouter/pkg/eventrouter/store"
	"go.opentelemetry.io/otel/attribute"
)

// Replay kinds, used in logs, spans and metrics.
const (
	KindCorrelation = "correlation"
	KindTimeRange   = "time_range"
	KindEvents      = "events"
)

// ErrInvalidSpeed is returned for a negative speed multiplier.
var ErrInvalidSpeed = errors.New("speed multiplier must not be negative")

// Source resolves the events to replay.
type Source interface {
	ByCorrelationID(correlationID string) []*event.Event
	Events(f store.Filter) ([]*event.Event, error)
}

// Publisher publishes replayed events.
type Publisher interface {
	Publish(ctx context.Context, evt *event.Event, mode router.DeliveryMode) (*router.Receipt, error)
}

// Config configures a Replayer.
type Config struct {
	// Store supplies the events to replay.
	Store Source

	// Router receives the replayed events.
	Router Publisher

	// Mode is the delivery mode for replayed events. Default: router.Sync.
	Mode router.DeliveryMode

	// Logger for structured logging. Default: slog.Default().
	Logger *slog.Logger

	// Metrics records replay metrics. Default: NoopMetrics.
	Metrics observability.MetricsRecorder

	// Spans creates replay spans. Default: NoopSpanManager.
	Spans observability.SpanManager
}

// Result summarizes one replay.
type Result struct {
	// Replayed is the number of events published.
	Replayed int

	// Failed is the number of events whose publish failed or whose
	// delivery failed for at least one subscription.
	Failed int

	Duration time.Duration
}

// Replayer republishes stored events with IsReplay set, optionally
// reproducing their original pacing.
type Replayer struct {
	source  Source
	router  Publisher
	mode    router.DeliveryMode
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

// New creates a Replayer.
func New(cfg Config) *Replayer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}
	if cfg.Spans == nil {
		cfg.Spans = observability.NoopSpanManager{}
	}
	return &Replayer{
		source:  cfg.Store,
		router:  cfg.Router,
		mode:    cfg.Mode,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		spans:   cfg.Spans,
	}
}

// ReplayByCorrelationID replays every stored event of one correlation.
func (r *Replayer) ReplayByCorrelationID(ctx context.Context, correlationID string, speed float64) (Result, error) {
	if speed < 0 {
		return Result{}, ErrInvalidSpeed
	}
	return r.replay(ctx, KindCorrelation, correlationID, r.source.ByCorrelationID(correlationID), speed)
}

// ReplayByTimeRange replays stored events with timestamps in [start, end]
// that also match filter. A zero start or end leaves that side open.
func (r *Replayer) ReplayByTimeRange(ctx context.Context, start, end time.Time, filter store.Filter, speed float64) (Result, error) {
	if speed < 0 {
		return Result{}, ErrInvalidSpeed
	}

	f := make(store.Filter, len(filter)+2)
	for k, v := range filter {
		f[k] = v
	}
	if !start.IsZero() {
		f[store.FilterStartTime] = start
	}
	if !end.IsZero() {
		f[store.FilterEndTime] = end
	}

	events, err := r.source.Events(f)
	if err != nil {
		return Result{}, fmt.Errorf("resolve replay events: %w", err)
	}
	key := fmt.Sprintf("%s..%s", formatBound(start), formatBound(end))
	return r.replay(ctx, KindTimeRange, key, events, speed)
}

// ReplayEvents replays the given events. The slice is not modified.
func (r *Replayer) ReplayEvents(ctx context.Context, events []*event.Event, speed float64) (Result, error) {
	if speed < 0 {
		return Result{}, ErrInvalidSpeed
	}
	return r.replay(ctx, KindEvents, "", events, speed)
}

func (r *Replayer) replay(ctx context.Context, kind, key string, events []*event.Event, speed float64) (res Result, err error) {
	ctx, span := r.spans.StartReplaySpan(ctx, kind, key)
	defer func() {
		r.spans.EndSpanWithError(span, err)
	}()

	ordered := slices.Clone(events)
	slices.SortStableFunc(ordered, func(a, b *event.Event) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	observability.LogReplayStart(r.logger, kind, key, len(ordered), speed)
	done := observability.TimedOperation()
	start := time.Now()

	receipts := make([]*router.Receipt, 0, len(ordered))
	for i, evt := range ordered {
		receipt, pubErr := r.router.Publish(ctx, evt.AsReplay(), r.mode)
		res.Replayed++
		if pubErr != nil {
			res.Failed++
			r.logger.Warn("replayed event not published",
				slog.String("event_id", evt.ID),
				slog.String("error", pubErr.Error()),
			)
			r.spans.AddSpanEvent(ctx, "replay.publish_failed", attribute.String("event.id", evt.ID))
		} else {
			receipts = append(receipts, receipt)
		}

		if speed > 0 && i+1 < len(ordered) {
			gap := ordered[i+1].Timestamp.Sub(evt.Timestamp)
			if err = pause(ctx, time.Duration(float64(gap)/speed)); err != nil {
				break
			}
		}
	}

	for _, receipt := range receipts {
		if waitErr := receipt.Wait(ctx); waitErr != nil {
			if err == nil {
				err = waitErr
			}
			break
		}
		if len(receipt.Failed()) > 0 {
			res.Failed++
		}
	}

	res.Duration = time.Since(start)
	r.metrics.RecordReplay(ctx, kind, res.Replayed, res.Failed, res.Duration)
	observability.LogReplayComplete(r.logger, kind, res.Replayed, res.Failed, done())
	return res, err
}

// pause sleeps for d unless ctx ends first.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
