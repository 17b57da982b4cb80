// Package metrics provides Prometheus metrics for the raiser uploader.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the uploader.
type Metrics struct {
	// Batch metrics
	BatchesTotal    *prometheus.CounterVec
	RecordsUploaded prometheus.Counter
	BatchDuration   prometheus.Histogram
	BatchRecords    prometheus.Histogram

	// Job metrics
	JobsTotal   *prometheus.CounterVec
	JobRunning  prometheus.Gauge
	JobUploaded prometheus.Gauge
	JobTotal    prometheus.Gauge

	// Error metrics
	APIErrors          *prometheus.CounterVec
	StoreErrors        *prometheus.CounterVec
	NotificationErrors prometheus.Counter
	ReportErrors       prometheus.Counter
}

// New registers all collectors with reg under namespace.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "raiser_uploader"
	}
	factory := promauto.With(reg)

	return &Metrics{
		BatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Total number of batch requests by outcome",
			},
			[]string{"outcome"},
		),
		RecordsUploaded: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_uploaded_total",
				Help:      "Total number of records the backend reported as uploaded",
			},
		),
		BatchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Time for one batch request",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
		),
		BatchRecords: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_records",
				Help:      "Records uploaded per batch",
				Buckets:   prometheus.LinearBuckets(0, 25, 9), // 0 to 200
			},
		),
		JobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Total number of finished jobs by final status",
			},
			[]string{"status"},
		),
		JobRunning: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "job_running",
				Help:      "1 while an upload job is running",
			},
		),
		JobUploaded: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "job_uploaded_records",
				Help:      "Records uploaded by the current or last job",
			},
		),
		JobTotal: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "job_total_records",
				Help:      "Records pending when the current or last job started",
			},
		),
		APIErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_errors_total",
				Help:      "Total number of backend API errors",
			},
			[]string{"operation"},
		),
		StoreErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobstore_errors_total",
				Help:      "Total number of job store errors",
			},
			[]string{"operation"},
		),
		NotificationErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notification_errors_total",
				Help:      "Total number of failed notifications",
			},
		),
		ReportErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "report_errors_total",
				Help:      "Total number of failed run report publishes",
			},
		),
	}
}

// NewNop returns metrics registered with a private registry, for tests and
// for running with metrics disabled.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry(), "")
}

// ObserveBatch records a successful batch.
func (m *Metrics) ObserveBatch(seconds float64, uploaded int64) {
	m.BatchesTotal.WithLabelValues("ok").Inc()
	m.RecordsUploaded.Add(float64(uploaded))
	m.BatchDuration.Observe(seconds)
	m.BatchRecords.Observe(float64(uploaded))
}

// IncBatchFailed records a failed batch.
func (m *Metrics) IncBatchFailed() {
	m.BatchesTotal.WithLabelValues("failed").Inc()
}

// IncAPIErrors increments the API error counter for operation.
func (m *Metrics) IncAPIErrors(operation string) {
	m.APIErrors.WithLabelValues(operation).Inc()
}

// IncStoreErrors increments the job store error counter for operation.
func (m *Metrics) IncStoreErrors(operation string) {
	m.StoreErrors.WithLabelValues(operation).Inc()
}

// SetProgress sets the job progress gauges.
func (m *Metrics) SetProgress(uploaded, total int64) {
	m.JobUploaded.Set(float64(uploaded))
	m.JobTotal.Set(float64(total))
}

// JobStarted marks a job as running.
func (m *Metrics) JobStarted() {
	m.JobRunning.Set(1)
}

// JobFinished records a job's final status.
func (m *Metrics) JobFinished(status string) {
	m.JobRunning.Set(0)
	m.JobsTotal.WithLabelValues(status).Inc()
}
