package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "prepbufr_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	ObservationsConsumed  prometheus.Counter
	ObservationsRejected  prometheus.Counter
	ReportsProduced       prometheus.Counter
	PressureIndeterminate prometheus.Counter
	TransformErrors       prometheus.Counter
	PipelineRunning       prometheus.Gauge

	// Segment and batch metrics.
	SegmentSize             prometheus.Histogram
	BatchesWritten          *prometheus.CounterVec // labels: encoder={prepbufr,sqlite,kafka}
	BatchProcessingDuration prometheus.Histogram

	// Observation source metrics.
	SourceRequests    *prometheus.CounterVec // labels: source, outcome={success,error,retry}
	SourceAPIDuration *prometheus.HistogramVec // labels: source
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ObservationsConsumed,
		m.ObservationsRejected,
		m.ReportsProduced,
		m.PressureIndeterminate,
		m.TransformErrors,
		m.PipelineRunning,
		m.SegmentSize,
		m.BatchesWritten,
		m.BatchProcessingDuration,
		m.SourceRequests,
		m.SourceAPIDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ObservationsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_consumed_total",
			Help:      "Total observations read from the source.",
		}),
		ObservationsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_rejected_total",
			Help:      "Source records dropped for missing identity, position, or time.",
		}),
		ReportsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_produced_total",
			Help:      "Total reports written (each holds a kinematic and a thermodynamic sub-record).",
		}),
		PressureIndeterminate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pressure_indeterminate_total",
			Help:      "Reports whose observation errors were left missing for lack of pressure and altitude.",
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      "Segments that failed report assembly.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a pipeline pass is active, 0 otherwise.",
		}),
		SegmentSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segment_size",
			Help:      "Number of observations per bucket segment.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}),
		BatchesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_written_total",
			Help:      "Report batches written by encoder.",
		}, []string{"encoder"}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete extract-transform-load pass.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		SourceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Observation source requests by source and outcome.",
		}, []string{"source", "outcome"}),
		SourceAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_api_duration_seconds",
			Help:      "Observation source request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
	}
}
