// Package metrics holds the Prometheus collectors for fetch cycles,
// providers and sinks.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marketpulse"

// Metrics is a set of collectors registered on its own registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	CycleDuration    prometheus.Histogram
	CyclesTotal      prometheus.Counter
	ProviderFetches  *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
	SinkPublishes    *prometheus.CounterVec
	CacheSwept       prometheus.Counter
	LastSnapshot     prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Time to collect one snapshot from all providers.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		}),
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed fetch cycles.",
		}),
		ProviderFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_fetches_total",
			Help:      "Provider fetches by outcome (ok or error kind).",
		}, []string{"provider", "outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_fetch_duration_seconds",
			Help:      "Provider fetch latency including retries and pacing.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		SinkPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_publishes_total",
			Help:      "Snapshot publications by sink and outcome.",
		}, []string{"sink", "outcome"}),
		CacheSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_swept_total",
			Help:      "Expired cache entries removed by sweeps.",
		}),
		LastSnapshot: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_snapshot_timestamp_seconds",
			Help:      "Unix time of the newest snapshot.",
		}),
	}
	m.registry.MustRegister(
		m.CycleDuration,
		m.CyclesTotal,
		m.ProviderFetches,
		m.ProviderDuration,
		m.SinkPublishes,
		m.CacheSwept,
		m.LastSnapshot,
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveCycle(d time.Duration, at time.Time) {
	if m == nil {
		return
	}
	m.CycleDuration.Observe(d.Seconds())
	m.CyclesTotal.Inc()
	m.LastSnapshot.Set(float64(at.Unix()))
}

func (m *Metrics) ObserveProvider(name, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProviderFetches.WithLabelValues(name, outcome).Inc()
	m.ProviderDuration.WithLabelValues(name).Observe(d.Seconds())
}

func (m *Metrics) ObserveSink(name, outcome string) {
	if m == nil {
		return
	}
	m.SinkPublishes.WithLabelValues(name, outcome).Inc()
}

func (m *Metrics) AddSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CacheSwept.Add(float64(n))
}
