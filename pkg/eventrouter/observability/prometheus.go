package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CounterSnapshot returns named counter values, such as router.Stats.Counters.
type CounterSnapshot func() map[string]int64

// CounterCollector exposes a counter snapshot as Prometheus gauges.
// Each key becomes <namespace>_<subsystem>_<key>.
type CounterCollector struct {
	snapshot CounterSnapshot
	descs    map[string]*prometheus.Desc
	keys     []string
}

// Compile-time interface check.
var _ prometheus.Collector = (*CounterCollector)(nil)

// NewCounterCollector creates a collector for the given keys. Keys missing
// from a snapshot are reported as zero; extra keys are ignored.
func NewCounterCollector(namespace, subsystem string, keys []string, snapshot CounterSnapshot) *CounterCollector {
	c := &CounterCollector{
		snapshot: snapshot,
		descs:    make(map[string]*prometheus.Desc, len(keys)),
		keys:     append([]string(nil), keys...),
	}
	for _, key := range keys {
		c.descs[key] = prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, key),
			"Event router counter "+key,
			nil, nil,
		)
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *CounterCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, key := range c.keys {
		ch <- c.descs[key]
	}
}

// Collect implements prometheus.Collector.
func (c *CounterCollector) Collect(ch chan<- prometheus.Metric) {
	values := c.snapshot()
	for _, key := range c.keys {
		ch <- prometheus.MustNewConstMetric(c.descs[key], prometheus.GaugeValue, float64(values[key]))
	}
}
