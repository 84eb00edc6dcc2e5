package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storm_footprint"

// Metrics holds the Prometheus counters, histograms, and gauges for a footprint run.
type Metrics struct {
	TracksLoaded      prometheus.Counter
	EventsSelected    prometheus.Counter
	PairsEvaluated    prometheus.Counter
	PairsPruned       prometheus.Counter
	FootprintRecords  prometheus.Counter
	UnmatchedBins     *prometheus.CounterVec // labels: table={intensity,damage}
	ValidationFailure *prometheus.CounterVec // labels: kind={bins,extent,samples,parameters,criteria}
	PipelineRunning   prometheus.Gauge

	RunDuration   prometheus.Histogram
	StageDuration *prometheus.HistogramVec // labels: stage
}

// NewMetrics creates all footprint metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TracksLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracks_loaded_total",
			Help:      "Total track samples read from the catalogue.",
		}),
		EventsSelected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_selected_total",
			Help:      "Total events passing the distance and category thresholds.",
		}),
		PairsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairs_evaluated_total",
			Help:      "Sample and cell pairs evaluated with the wind-field model.",
		}),
		PairsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairs_pruned_total",
			Help:      "Sample and cell pairs skipped by the spatial index.",
		}),
		FootprintRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "footprint_records_total",
			Help:      "Footprint records written.",
		}),
		UnmatchedBins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unmatched_bin_total",
			Help:      "Values that fell outside every bin of a table and were dropped.",
		}, []string{"table"}),
		ValidationFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Runs aborted by input validation, by kind.",
		}, []string{"kind"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a footprint run is in progress, 0 otherwise.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete footprint run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		}, []string{"stage"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.TracksLoaded,
			m.EventsSelected,
			m.PairsEvaluated,
			m.PairsPruned,
			m.FootprintRecords,
			m.UnmatchedBins,
			m.ValidationFailure,
			m.PipelineRunning,
			m.RunDuration,
			m.StageDuration,
		)
	}
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewMetrics(nil)
}
