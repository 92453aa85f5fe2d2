package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "farmersaid"

// Metrics holds the Prometheus counters, histograms, and gauges for the dashboard backend.
type Metrics struct {
	// Upstream metrics.
	SourceRequests *prometheus.CounterVec   // labels: source, outcome={ok,empty,unavailable}
	SourceDuration *prometheus.HistogramVec // labels: source

	// Reconciliation metrics.
	MergedRows         prometheus.Gauge
	SatelliteOverrides prometheus.Counter
	PollenFallback     prometheus.Counter

	// Report metrics.
	ReportRequests *prometheus.CounterVec // labels: provider, outcome={success,error}

	registry *prometheus.Registry
}

// New creates all metrics and registers them with the default Prometheus registry.
func New() *Metrics {
	m := build()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewForTesting creates Metrics registered on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewForTesting() *Metrics {
	m := build()
	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(m.collectors()...)
	return m
}

// Gatherer returns the registry the metrics were registered on. A nil
// Metrics gathers from the default registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m != nil && m.registry != nil {
		return m.registry
	}
	return prometheus.DefaultGatherer
}

func build() *Metrics {
	return &Metrics{
		SourceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Upstream requests by source and outcome.",
		}, []string{"source", "outcome"}),
		SourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Upstream request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		MergedRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "merged_rows",
			Help:      "Rows in the most recent merged weather table.",
		}),
		SatelliteOverrides: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "satellite_overrides_total",
			Help:      "Rows whose precipitation was replaced by the satellite value.",
		}),
		PollenFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pollen_fallback_total",
			Help:      "Times the backup pollen dataset was served.",
		}),
		ReportRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_requests_total",
			Help:      "Narrative report requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.SourceRequests,
		m.SourceDuration,
		m.MergedRows,
		m.SatelliteOverrides,
		m.PollenFallback,
		m.ReportRequests,
	}
}
