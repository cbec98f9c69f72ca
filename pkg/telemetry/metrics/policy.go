package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jellywish/confidential-cat-counter/pkg/config"
)

// PolicyMetrics tracks policy decisions and the bundle in effect.
//
// Metrics:
//   - ccc_worker_policy_decisions_total: decisions by stage and action
//   - ccc_worker_policy_evaluation_duration_seconds: evaluation time by stage
//   - ccc_worker_policy_rule_hits_total: rules that produced a deny or redact
//   - ccc_worker_policy_bundle_info: 1 for the digest and origin in effect
//   - ccc_worker_policy_bundle_drift_total: bundle file changes after startup
type PolicyMetrics struct {
	decisionsTotal     *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	ruleHitsTotal      *prometheus.CounterVec
	bundleInfo         *prometheus.GaugeVec
	driftTotal         prometheus.Counter

	mu sync.Mutex
}

// NewPolicyMetrics creates and registers policy metrics with the provided registry.
func NewPolicyMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *PolicyMetrics {
	pm := &PolicyMetrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_decisions_total",
				Help:      "Total number of policy decisions",
			},
			[]string{"stage", "action"},
		),
		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_evaluation_duration_seconds",
				Help:      "Duration of policy evaluation in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.000001, 2, 15), // 1µs to 16ms
			},
			[]string{"stage"},
		),
		ruleHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_rule_hits_total",
				Help:      "Total number of decisions each rule produced",
			},
			[]string{"rule_id"},
		),
		bundleInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_bundle_info",
				Help:      "Policy bundle in effect, labelled by digest and origin",
			},
			[]string{"digest", "origin"},
		),
		driftTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_bundle_drift_total",
				Help:      "Total number of bundle file changes observed after startup",
			},
		),
	}

	registry.MustRegister(
		pm.decisionsTotal,
		pm.evaluationDuration,
		pm.ruleHitsTotal,
		pm.bundleInfo,
		pm.driftTotal,
	)

	return pm
}

// RecordDecision records one decision.
func (pm *PolicyMetrics) RecordDecision(stage, action string, ruleIDs []string, duration time.Duration) {
	pm.decisionsTotal.WithLabelValues(stage, action).Inc()
	pm.evaluationDuration.WithLabelValues(stage).Observe(duration.Seconds())
	for _, id := range ruleIDs {
		pm.ruleHitsTotal.WithLabelValues(id).Inc()
	}
}

// SetBundle replaces the bundle info series.
func (pm *PolicyMetrics) SetBundle(digest, origin string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.bundleInfo.Reset()
	pm.bundleInfo.WithLabelValues(digest, origin).Set(1)
}
