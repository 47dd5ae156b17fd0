package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hydro_ingest"

// Metrics holds the Prometheus collectors for the ingestion engine.
type Metrics struct {
	SchedulerRunning prometheus.Gauge

	// Cycle metrics.
	Cycles         *prometheus.CounterVec // labels: result={completed,failed}
	CyclesSkipped  prometheus.Counter
	CycleDuration  prometheus.Histogram
	PlantsPerCycle prometheus.Histogram

	// Per-plant metrics.
	Outcomes      *prometheus.CounterVec   // labels: status, source_kind
	FetchAttempts *prometheus.CounterVec   // labels: source_kind, result={ok,error}
	FetchDuration *prometheus.HistogramVec // labels: source_kind

	// Inserted-reading publishing.
	SinkPublished prometheus.Counter
	SinkErrors    prometheus.Counter

	// UETK register lookups.
	GISRequests *prometheus.CounterVec // labels: outcome={success,error}
	GISCache    *prometheus.CounterVec // labels: result={hit,miss}
	GISEnabled  prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests can
// build as many as they need.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}

	return &Metrics{
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_running",
			Help:      help("1 while the ingestion scheduler is active, 0 after shutdown."),
		}),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      help("Ingestion cycles by result."),
		}, []string{"result"}),
		CyclesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_skipped_total",
			Help:      help("Ticks skipped because another cycle held the cycle lock."),
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      help("Wall time of a complete ingestion cycle."),
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		PlantsPerCycle: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "plants_per_cycle",
			Help:      help("Number of eligible plants dispatched per cycle."),
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plant_outcomes_total",
			Help:      help("Per-plant ingestion outcomes by status and source kind."),
		}, []string{"status", "source_kind"}),
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      help("Provider HTTP attempts by source kind and result."),
		}, []string{"source_kind", "result"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      help("Provider HTTP request duration in seconds."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source_kind"}),
		SinkPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_published_total",
			Help:      help("Inserted readings published to the reading sink."),
		}),
		SinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reading_publish_errors_total",
			Help:      help("Failed reading sink publish calls."),
		}),
		GISRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gis_requests_total",
			Help:      help("UETK register requests by outcome."),
		}, []string{"outcome"}),
		GISCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gis_cache_total",
			Help:      help("UETK metadata cache lookups by result."),
		}, []string{"result"}),
		GISEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gis_enabled",
			Help:      help("1 when UETK metadata lookups are enabled, 0 otherwise."),
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.SchedulerRunning,
		m.Cycles,
		m.CyclesSkipped,
		m.CycleDuration,
		m.PlantsPerCycle,
		m.Outcomes,
		m.FetchAttempts,
		m.FetchDuration,
		m.SinkPublished,
		m.SinkErrors,
		m.GISRequests,
		m.GISCache,
		m.GISEnabled,
	}
}
