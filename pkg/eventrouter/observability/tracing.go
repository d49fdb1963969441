package observability

import (
	"context"

	"github.com/randalmurphal/eventrouter/pkg/eventrouter/event"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName names the tracer and meter.
const InstrumentationName = "eventrouter"

// SpanManager opens spans around publishes, deliveries and replays.
// Use NewSpanManager for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartPublishSpan starts a producer span for one publish call.
	StartPublishSpan(ctx context.Context, evt *event.Event, mode string) (context.Context, trace.Span)

	// StartDeliverySpan starts a consumer span for one handler invocation,
	// a child of the publish span in ctx.
	StartDeliverySpan(ctx context.Context, evt *event.Event, subscriptionID string) (context.Context, trace.Span)

	// StartReplaySpan starts a span for one replay run.
	StartReplaySpan(ctx context.Context, kind, key string) (context.Context, trace.Span)

	// EndSpanWithError sets the span status from err and ends it.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the recording span in ctx, if any.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpans struct {
	tracer trace.Tracer
}

// NewSpanManager returns an OTel SpanManager using tp, or the global
// provider when tp is nil.
//
//	sm := observability.NewSpanManager(sdktrace.NewTracerProvider(...))
func NewSpanManager(tp trace.TracerProvider) SpanManager {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &otelSpans{tracer: tp.Tracer(InstrumentationName)}
}

func eventAttributes(evt *event.Event, extra ...attribute.KeyValue) []attribute.KeyValue {
	return append([]attribute.KeyValue{
		attribute.String("event.id", evt.ID),
		attribute.String("event.type", evt.Type),
		attribute.String("event.source", evt.Source),
		attribute.String("event.correlation_id", evt.CorrelationID),
		attribute.Bool("event.is_replay", evt.IsReplay),
	}, extra...)
}

func (s *otelSpans) StartPublishSpan(ctx context.Context, evt *event.Event, mode string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "eventrouter.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(eventAttributes(evt, attribute.String("delivery.mode", mode))...),
	)
}

func (s *otelSpans) StartDeliverySpan(ctx context.Context, evt *event.Event, subscriptionID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "eventrouter.deliver",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(eventAttributes(evt, attribute.String("subscription.id", subscriptionID))...),
	)
}

func (s *otelSpans) StartReplaySpan(ctx context.Context, kind, key string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "eventrouter.replay."+kind,
		trace.WithAttributes(
			attribute.String("replay.kind", kind),
			attribute.String("replay.key", key),
		),
	)
}

func (s *otelSpans) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	defer span.End()
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func (s *otelSpans) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}
