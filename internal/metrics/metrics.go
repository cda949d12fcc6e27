package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the collection scheduler.
type Metrics struct {
	PassesTotal      prometheus.Counter
	PassDuration     prometheus.Histogram
	CollectorRunning prometheus.Gauge

	FetchesTotal    *prometheus.CounterVec // labels: facility, outcome={success,transient,permanent}
	AppendErrors    prometheus.Counter
	RunRecordErrors prometheus.Counter
}

// New creates and registers all collector metrics with the default registry.
func New() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PassesTotal,
		m.PassDuration,
		m.CollectorRunning,
		m.FetchesTotal,
		m.AppendErrors,
		m.RunRecordErrors,
	)
	return m
}

// NewUnregistered creates the metrics without touching the default registry,
// for tests that build more than one collector per process.
func NewUnregistered() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PassesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corec_tracker",
			Name:      "collection_passes_total",
			Help:      "Total collection passes attempted.",
		}),
		PassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "corec_tracker",
			Name:      "collection_pass_duration_seconds",
			Help:      "Wall-clock duration of a full collection pass.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		CollectorRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "corec_tracker",
			Name:      "collector_running",
			Help:      "1 while the collector loop is active, 0 otherwise.",
		}),
		FetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "corec_tracker",
			Name:      "facility_fetches_total",
			Help:      "Per-facility fetch attempts by outcome.",
		}, []string{"facility", "outcome"}),
		AppendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corec_tracker",
			Name:      "observation_append_errors_total",
			Help:      "Observations dropped because the store append failed.",
		}),
		RunRecordErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corec_tracker",
			Name:      "run_record_errors_total",
			Help:      "Collection runs whose metadata could not be persisted.",
		}),
	}
}
