package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jellywish/confidential-cat-counter/pkg/config"
)

// JobMetrics tracks the job loop.
//
// Metrics:
//   - ccc_worker_jobs_total: terminal jobs by status and failure code
//   - ccc_worker_job_duration_seconds: claim-to-terminal time by status
//   - ccc_worker_jobs_skipped_total: re-deliveries by the status already stored
//   - ccc_worker_jobs_in_flight: jobs currently being processed
//   - ccc_worker_queue_errors_total: failed queue or store operations
//   - ccc_worker_jobs_requeued_total: envelopes pushed back after a failed claim
//   - ccc_worker_queue_length: last observed queue length
type JobMetrics struct {
	jobsTotal        *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	skippedTotal     *prometheus.CounterVec
	inFlight         prometheus.Gauge
	queueErrorsTotal *prometheus.CounterVec
	requeuedTotal    prometheus.Counter
	queueLength      prometheus.Gauge
}

// NewJobMetrics creates and registers job metrics with the provided registry.
func NewJobMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *JobMetrics {
	jm := &JobMetrics{
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "jobs_total",
				Help:      "Total number of jobs that reached a terminal state",
			},
			[]string{"status", "code"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "job_duration_seconds",
				Help:      "Time from claim to terminal state in seconds",
				Buckets:   cfg.JobDurationBuckets,
			},
			[]string{"status"},
		),
		skippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "jobs_skipped_total",
				Help:      "Total number of re-delivered jobs skipped by the idempotency check",
			},
			[]string{"existing"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "jobs_in_flight",
				Help:      "Number of jobs currently being processed",
			},
		),
		queueErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "queue_errors_total",
				Help:      "Total number of failed queue and store operations",
			},
			[]string{"op"},
		),
		requeuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "jobs_requeued_total",
				Help:      "Total number of envelopes pushed back after a failed claim",
			},
		),
		queueLength: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "queue_length",
				Help:      "Last observed number of queued envelopes",
			},
		),
	}

	registry.MustRegister(
		jm.jobsTotal,
		jm.jobDuration,
		jm.skippedTotal,
		jm.inFlight,
		jm.queueErrorsTotal,
		jm.requeuedTotal,
		jm.queueLength,
	)

	return jm
}

// RecordJob records a terminal job.
func (jm *JobMetrics) RecordJob(status, code string, duration time.Duration) {
	jm.jobsTotal.WithLabelValues(status, code).Inc()
	jm.jobDuration.WithLabelValues(status).Observe(duration.Seconds())
}
