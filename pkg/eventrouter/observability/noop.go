package observability

import (
	"context"
	"time"

	"github.com/randalmurphal/eventrouter/pkg/eventrouter/event"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics discards all measurements. Embed it to override only the
// methods a test cares about.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

func (NoopMetrics) RecordPublish(context.Context, string, string, int) {}
func (NoopMetrics) RecordDelivery(context.Context, string, string, time.Duration, error) {}
func (NoopMetrics) RecordReplay(context.Context, string, int, int, time.Duration) {}
func (NoopMetrics) RecordRetention(context.Context, int) {}

// NoopSpanManager returns ctx unchanged and non-recording spans.
type NoopSpanManager struct{}

var _ SpanManager = NoopSpanManager{}

func (NoopSpanManager) StartPublishSpan(ctx context.Context, _ *event.Event, _ string) (context.Context, trace.Span) {
	return ctx, noop.Span{}
}

func (NoopSpanManager) StartDeliverySpan(ctx context.Context, _ *event.Event, _ string) (context.Context, trace.Span) {
	return ctx, noop.Span{}
}

func (NoopSpanManager) StartReplaySpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noop.Span{}
}

func (NoopSpanManager) EndSpanWithError(trace.Span, error) {}

func (NoopSpanManager) AddSpanEvent(context.Context, string, ...attribute.KeyValue) {}
