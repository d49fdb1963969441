package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupMetricsTest returns a recorder backed by a manual-reader provider.
func setupMetricsTest(t *testing.T) (*otelMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down meter provider: %v", err)
		}
	})

	m, err := newOtelMetrics(provider)
	require.NoError(t, err)
	return m, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumInt64(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()
	require.NotNil(t, m)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "Expected Sum type")
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestNewMetricsRecorder(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	recorder := NewMetricsRecorder(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NotNil(t, recorder)
	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop, "Expected real metrics recorder, got noop")

	recorder.RecordRetention(context.Background(), 2)
	assert.Equal(t, int64(2), sumInt64(t, findMetric(collectMetrics(t, reader), "eventrouter.store.evicted")))

	assert.NotNil(t, NewMetricsRecorder(nil), "nil provider falls back to the global one")
}

func TestRecordPublish(t *testing.T) {
	m, reader := setupMetricsTest(t)

	ctx := context.Background()
	m.RecordPublish(ctx, "order.created", "sync", 3)
	m.RecordPublish(ctx, "order.created", "async", 0)

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(2), sumInt64(t, findMetric(rm, "eventrouter.events.published")))

	matched := findMetric(rm, "eventrouter.events.matched")
	require.NotNil(t, matched)
	hist, ok := matched.Data.(metricdata.Histogram[int64])
	require.True(t, ok, "Expected Histogram type")
	assert.Len(t, hist.DataPoints, 2, "one datapoint per mode")
}

func TestRecordDelivery(t *testing.T) {
	m, reader := setupMetricsTest(t)

	ctx := context.Background()
	m.RecordDelivery(ctx, "order.created", "sync", 5*time.Millisecond, nil)
	m.RecordDelivery(ctx, "order.created", "sync", 7*time.Millisecond, errors.New("boom"))

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(2), sumInt64(t, findMetric(rm, "eventrouter.deliveries")))
	assert.Equal(t, int64(1), sumInt64(t, findMetric(rm, "eventrouter.delivery.errors")))

	latency := findMetric(rm, "eventrouter.delivery.latency_ms")
	require.NotNil(t, latency)
	hist, ok := latency.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "Expected Histogram type")
	require.NotEmpty(t, hist.DataPoints)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
}

func TestRecordReplayAndRetention(t *testing.T) {
	m, reader := setupMetricsTest(t)

	ctx := context.Background()
	m.RecordReplay(ctx, "correlation", 4, 1, 20*time.Millisecond)
	m.RecordRetention(ctx, 6)

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(4), sumInt64(t, findMetric(rm, "eventrouter.replay.events")))
	assert.Equal(t, int64(1), sumInt64(t, findMetric(rm, "eventrouter.replay.failures")))
	assert.Equal(t, int64(6), sumInt64(t, findMetric(rm, "eventrouter.store.evicted")))
	assert.NotNil(t, findMetric(rm, "eventrouter.replay.latency_ms"))
}

func TestNoopMetrics(t *testing.T) {
	var m MetricsRecorder = NoopMetrics{}
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordPublish(ctx, "a", "sync", 1)
		m.RecordDelivery(ctx, "a", "sync", time.Millisecond, errors.New("x"))
		m.RecordReplay(ctx, "k", 1, 0, time.Millisecond)
		m.RecordRetention(ctx, 1)
	})
}
