// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	RecordsLoaded    *prometheus.CounterVec
	RowsRejected     *prometheus.CounterVec
	IngestionErrors  *prometheus.CounterVec

	// Resolution metrics
	PeriodsResolved     *prometheus.CounterVec
	ResolutionConflicts prometheus.Counter

	// Normalization metrics
	FirmsNormalized prometheus.Counter
	PanelRowsBuilt  prometheus.Counter
	FirmsRejected   prometheus.Counter

	// Sample metrics
	RowsCensored  *prometheus.CounterVec
	ValuesClamped *prometheus.CounterVec

	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineDuration  *prometheus.HistogramVec
	ReportsGenerated  prometheus.Counter

	// Verification metrics
	InvariantViolations *prometheus.CounterVec
	RowsDivergent       prometheus.Counter

	// Database metrics
	DBQueryErrors *prometheus.CounterVec

	// Health metrics
	LastSuccessfulPipeline prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "firm_panel_lab"
	}

	return &Metrics{
		// Ingestion metrics
		RecordsLoaded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "records_loaded_total",
			Help:      "Total number of rows loaded by source",
		}, []string{"source"}),
		RowsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "rows_rejected_total",
			Help:      "Total number of rows rejected during validation by source and reason",
		}, []string{"source", "reason"}),
		IngestionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "errors_total",
			Help:      "Total number of ingestion errors by source",
		}, []string{"source"}),

		// Resolution metrics
		PeriodsResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolution",
			Name:      "periods_resolved_total",
			Help:      "Total number of firm-periods emitted by resolution method",
		}, []string{"method"}),
		ResolutionConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolution",
			Name:      "conflicts_total",
			Help:      "Total number of duplicate keys that required a tiebreak or override",
		}),

		// Normalization metrics
		FirmsNormalized: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalization",
			Name:      "firms_total",
			Help:      "Total number of firms normalized",
		}),
		PanelRowsBuilt: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalization",
			Name:      "panel_rows_total",
			Help:      "Total number of panel rows built",
		}),
		FirmsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalization",
			Name:      "firms_rejected_total",
			Help:      "Total number of firms rejected for non-increasing report dates",
		}),

		// Sample metrics
		RowsCensored: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sample",
			Name:      "rows_censored_total",
			Help:      "Total number of panel rows excluded by censoring reason",
		}, []string{"reason"}),
		ValuesClamped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sample",
			Name:      "values_clamped_total",
			Help:      "Total number of winsorized values by variable and tail",
		}, []string{"variable", "tail"}),

		// Pipeline metrics
		PipelineRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by phase and status",
		}, []string{"phase", "status"}),
		PipelineDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Pipeline execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"phase"}),
		ReportsGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "reports_generated_total",
			Help:      "Total number of reports generated",
		}),

		// Verification metrics
		InvariantViolations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "invariant_violations_total",
			Help:      "Total number of panel invariant violations by property",
		}, []string{"property"}),
		RowsDivergent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "rows_divergent_total",
			Help:      "Total number of stored rows the rebuild could not reproduce",
		}),

		// Database metrics
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulPipeline: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_pipeline_timestamp",
			Help:      "Unix timestamp of last successful pipeline run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordPipelineRun records a pipeline phase outcome and its duration.
func RecordPipelineRun(phase, status string, seconds float64) {
	DefaultMetrics.PipelineRunsTotal.WithLabelValues(phase, status).Inc()
	DefaultMetrics.PipelineDuration.WithLabelValues(phase).Observe(seconds)
}

// RecordRejectedRow increments the validation reject counter.
func RecordRejectedRow(source, reason string) {
	DefaultMetrics.RowsRejected.WithLabelValues(source, reason).Inc()
}

// RecordResolvedPeriod increments the per-method resolution counter.
func RecordResolvedPeriod(method string) {
	DefaultMetrics.PeriodsResolved.WithLabelValues(method).Inc()
}

// RecordCensoredRow increments the per-reason censor counter.
func RecordCensoredRow(reason string) {
	DefaultMetrics.RowsCensored.WithLabelValues(reason).Inc()
}

// RecordClampedValue increments the winsorization clamp counter.
// tail is "low" or "high".
func RecordClampedValue(variable, tail string) {
	DefaultMetrics.ValuesClamped.WithLabelValues(variable, tail).Inc()
}

// RecordInvariantViolation increments the per-property violation counter.
func RecordInvariantViolation(property string) {
	DefaultMetrics.InvariantViolations.WithLabelValues(property).Inc()
}
