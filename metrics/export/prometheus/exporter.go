package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skillbridge/authcore"
	internalmetrics "github.com/skillbridge/authcore/internal/metrics"
)

// Source is anything that can produce a metrics snapshot. *authcore.Engine
// satisfies it.
type Source interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

// Collector reads engine snapshots on scrape. It holds no state beyond
// descriptors; the engine's atomic counters are the source of truth.
type Collector struct {
	source Source

	counters [internalmetrics.MetricIDCount]*prometheus.Desc
	latency  *prometheus.Desc
	dropped  *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector over the given source.
func NewCollector(source Source) *Collector {
	c := &Collector{
		source: source,
		latency: prometheus.NewDesc(
			"authcore_validate_latency_seconds",
			"Access token validation latency.",
			nil, nil,
		),
		dropped: prometheus.NewDesc(
			"authcore_audit_dropped_total",
			"Audit events dropped due to dispatcher backpressure.",
			nil, nil,
		),
	}
	for id := authcore.MetricID(0); id < internalmetrics.MetricIDCount; id++ {
		if id == authcore.MetricValidateLatency {
			continue
		}
		c.counters[id] = prometheus.NewDesc(
			"authcore_"+id.Name()+"_total",
			"Engine counter "+id.Name()+".",
			nil, nil,
		)
	}
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range c.counters {
		if desc != nil {
			ch <- desc
		}
	}
	ch <- c.latency
	ch <- c.dropped
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.source.MetricsSnapshot()

	for id, desc := range c.counters {
		if desc == nil {
			continue
		}
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue,
			float64(snapshot.Counters[authcore.MetricID(id)]))
	}

	if buckets, ok := snapshot.Histograms[authcore.MetricValidateLatency]; ok {
		ch <- constHistogram(c.latency, buckets,
			snapshot.HistogramSums[authcore.MetricValidateLatency])
	}

	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue,
		float64(c.source.AuditDropped()))
}

// constHistogram converts the engine's per-bucket counts into the
// cumulative form Prometheus expects, with bounds in seconds.
func constHistogram(desc *prometheus.Desc, buckets []uint64, sumNanos uint64) prometheus.Metric {
	cumulative := make(map[float64]uint64, len(internalmetrics.HistogramBucketBounds))
	var count uint64
	for i, n := range buckets {
		count += n
		if i < len(internalmetrics.HistogramBucketBounds) {
			cumulative[float64(internalmetrics.HistogramBucketBounds[i])/1000] = count
		}
	}
	return prometheus.MustNewConstHistogram(desc, count, float64(sumNanos)/1e9, cumulative)
}

// Handler returns an http.Handler serving the source's metrics from a
// dedicated registry.
func Handler(source Source) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(source))
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
