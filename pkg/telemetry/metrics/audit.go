package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jellywish/confidential-cat-counter/pkg/config"
)

// AuditMetrics tracks the audit trail.
//
// Metrics:
//   - ccc_worker_audit_records_total: signed records by event
//   - ccc_worker_audit_sink_errors_total: failed publishes by sink
//   - ccc_worker_audit_pruned_total: records removed by retention
type AuditMetrics struct {
	emittedTotal    *prometheus.CounterVec
	sinkErrorsTotal *prometheus.CounterVec
	prunedTotal     prometheus.Counter
}

// NewAuditMetrics creates and registers audit metrics with the provided registry.
func NewAuditMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *AuditMetrics {
	am := &AuditMetrics{
		emittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "audit_records_total",
				Help:      "Total number of signed audit records",
			},
			[]string{"event"},
		),
		sinkErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "audit_sink_errors_total",
				Help:      "Total number of audit records a sink failed to accept",
			},
			[]string{"sink"},
		),
		prunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "audit_pruned_total",
				Help:      "Total number of audit records removed by retention",
			},
		),
	}

	registry.MustRegister(am.emittedTotal, am.sinkErrorsTotal, am.prunedTotal)

	return am
}
