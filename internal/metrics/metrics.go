// Package metrics exposes Prometheus collectors for ingestion and pools.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PratikDhanave/event-counter-service/internal/pool"
)

// Metrics owns a private registry so tests can build as many as they like.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ingested *prometheus.CounterVec
	failures *prometheus.CounterVec
	latency  prometheus.Histogram
}

// New registers the service collectors plus the Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_events_total",
			Help: "Settled ingestion calls by outcome.",
		}, []string{"outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_failures_total",
			Help: "Failed ingestion calls by classified cause.",
		}, []string{"kind"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingest_duration_seconds",
			Help:    "Time from dispatch to settlement.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(
		m.ingested,
		m.failures,
		m.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveIngest records one settled ingestion. kind is empty on success.
func (m *Metrics) ObserveIngest(outcome, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.ingested.WithLabelValues(outcome).Inc()
	if kind != "" {
		m.failures.WithLabelValues(kind).Inc()
	}
	m.latency.Observe(d.Seconds())
}

// PoolStater is satisfied by *pool.Pool of any connection type.
type PoolStater interface {
	Name() string
	Stat() pool.Stats
}

// RegisterPool exports live, acquired and max connection gauges for p.
func (m *Metrics) RegisterPool(p PoolStater) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"pool": p.Name()}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "pool_live_connections",
			Help:        "Open connections in the pool.",
			ConstLabels: labels,
		}, func() float64 { return float64(p.Stat().Live) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "pool_acquired_connections",
			Help:        "Connections currently borrowed.",
			ConstLabels: labels,
		}, func() float64 { return float64(p.Stat().Acquired) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "pool_max_connections",
			Help:        "Configured pool capacity.",
			ConstLabels: labels,
		}, func() float64 { return float64(p.Stat().Max) }),
	)
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
