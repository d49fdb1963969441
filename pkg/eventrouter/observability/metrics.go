package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records router, store and replay metrics.
// Use NewMetricsRecorder for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordPublish records a publish call and the number of matched subscriptions.
	RecordPublish(ctx context.Context, eventType, mode string, matched int)

	// RecordDelivery records one handler invocation with its duration and error status.
	RecordDelivery(ctx context.Context, eventType, mode string, duration time.Duration, err error)

	// RecordReplay records a completed replay.
	RecordReplay(ctx context.Context, kind string, replayed, failed int, duration time.Duration)

	// RecordRetention records events removed by a retention sweep.
	RecordRetention(ctx context.Context, removed int)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	published       metric.Int64Counter
	matched         metric.Int64Histogram
	deliveries      metric.Int64Counter
	deliveryErrors  metric.Int64Counter
	deliveryLatency metric.Float64Histogram
	replayed        metric.Int64Counter
	replayFailures  metric.Int64Counter
	replayLatency   metric.Float64Histogram
	evicted         metric.Int64Counter
}

// NewMetricsRecorder returns an OTel MetricsRecorder using mp, or the
// global meter provider when mp is nil. If an instrument cannot be
// created it logs a warning and returns NoopMetrics.
//
//	reader := sdkmetric.NewManualReader()
//	rec := observability.NewMetricsRecorder(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
func NewMetricsRecorder(mp metric.MeterProvider) MetricsRecorder {
	m, err := newOtelMetrics(mp)
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func newOtelMetrics(mp metric.MeterProvider) (*otelMetrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(InstrumentationName)
	b := instruments{meter: meter}

	m := &otelMetrics{
		published:       b.counter("eventrouter.events.published", "Number of publish calls"),
		matched:         b.histogram("eventrouter.events.matched", "Subscriptions matched per publish"),
		deliveries:      b.counter("eventrouter.deliveries", "Number of handler invocations"),
		deliveryErrors:  b.counter("eventrouter.delivery.errors", "Number of failed handler invocations"),
		deliveryLatency: b.latency("eventrouter.delivery.latency_ms", "Handler latency in milliseconds"),
		replayed:        b.counter("eventrouter.replay.events", "Number of replayed events"),
		replayFailures:  b.counter("eventrouter.replay.failures", "Replayed events whose publish or delivery failed"),
		replayLatency:   b.latency("eventrouter.replay.latency_ms", "Replay duration in milliseconds"),
		evicted:         b.counter("eventrouter.store.evicted", "Events removed by retention policies"),
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// instruments creates meter instruments and keeps the first error.
type instruments struct {
	meter metric.Meter
	err   error
}

func (b *instruments) keep(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.keep(err)
	return c
}

func (b *instruments) histogram(name, desc string) metric.Int64Histogram {
	h, err := b.meter.Int64Histogram(name, metric.WithDescription(desc))
	b.keep(err)
	return h
}

func (b *instruments) latency(name, desc string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("ms"))
	b.keep(err)
	return h
}

// RecordPublish records a publish call.
func (m *otelMetrics) RecordPublish(ctx context.Context, eventType, mode string, matched int) {
	attrs := metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("mode", mode),
	)
	m.published.Add(ctx, 1, attrs)
	m.matched.Record(ctx, int64(matched), attrs)
}

// RecordDelivery records a handler invocation.
func (m *otelMetrics) RecordDelivery(ctx context.Context, eventType, mode string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("mode", mode),
	)
	m.deliveries.Add(ctx, 1, attrs)
	m.deliveryLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.deliveryErrors.Add(ctx, 1, attrs)
	}
}

// RecordReplay records a completed replay.
func (m *otelMetrics) RecordReplay(ctx context.Context, kind string, replayed, failed int, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	m.replayed.Add(ctx, int64(replayed), attrs)
	m.replayFailures.Add(ctx, int64(failed), attrs)
	m.replayLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordRetention records a retention sweep.
func (m *otelMetrics) RecordRetention(ctx context.Context, removed int) {
	m.evicted.Add(ctx, int64(removed))
}
