package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quake"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline and the prediction service.
type Metrics struct {
	// Pipeline metrics.
	RunsTotal     *prometheus.CounterVec // labels: outcome={done,failed}
	StepFailures  *prometheus.CounterVec // labels: kind
	RecordsLoaded prometheus.Counter
	ArchiveBytes  prometheus.Counter
	RunDuration   prometheus.Histogram

	// Serving metrics.
	Predictions     *prometheus.CounterVec // labels: outcome={success,bad_request,error}
	PredictionCache *prometheus.CounterVec // labels: result={hit,miss,error}
	ModelLoads      *prometheus.CounterVec // labels: outcome={success,error}
	ModelReady      prometheus.Gauge
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      help("Pipeline runs by terminal state."),
		}, []string{"outcome"}),
		StepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_step_failures_total",
			Help:      help("Step failures by failure kind."),
		}, []string{"kind"}),
		RecordsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_loaded_total",
			Help:      help("Event records appended to the warehouse."),
		}),
		ArchiveBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_bytes_total",
			Help:      help("Raw snapshot bytes written to the archive bucket."),
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_run_duration_seconds",
			Help:      help("Duration of a complete extract-archive-load-transform run."),
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}),
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      help("Prediction requests by outcome."),
		}, []string{"outcome"}),
		PredictionCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_cache_total",
			Help:      help("Prediction cache lookups by result."),
		}, []string{"result"}),
		ModelLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_loads_total",
			Help:      help("Model artifact loads by outcome."),
		}, []string{"outcome"}),
		ModelReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_ready",
			Help:      help("1 when the model artifacts are loaded, 0 otherwise."),
		}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.RunsTotal,
		m.StepFailures,
		m.RecordsLoaded,
		m.ArchiveBytes,
		m.RunDuration,
		m.Predictions,
		m.PredictionCache,
		m.ModelLoads,
		m.ModelReady,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}
