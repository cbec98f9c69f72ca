package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jellywish/confidential-cat-counter/pkg/config"
)

// Collector owns the worker's Prometheus registry and records job, policy,
// queue and audit metrics. All methods are safe on a nil *Collector and do
// nothing when metrics are disabled.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	jobMetrics    *JobMetrics
	policyMetrics *PolicyMetrics
	auditMetrics  *AuditMetrics
}

// NewCollector creates a collector and registers every metric with registry.
// A nil registry gets a fresh one with the Go runtime and process collectors.
//
//	cfg := &config.MetricsConfig{Enabled: true, Namespace: "ccc", Subsystem: "worker"}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.JobDurationBuckets) == 0 {
		cfg.JobDurationBuckets = config.DefaultJobDurationBuckets
	}

	return &Collector{
		config:        cfg,
		registry:      registry,
		jobMetrics:    NewJobMetrics(cfg, registry),
		policyMetrics: NewPolicyMetrics(cfg, registry),
		auditMetrics:  NewAuditMetrics(cfg, registry),
	}
}

// Registry returns the registry metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordJob records a job that reached a terminal state. code is the
// failure code, or "" for completed jobs.
func (c *Collector) RecordJob(status, code string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.jobMetrics.RecordJob(status, code, duration)
}

// RecordJobSkipped records a re-delivered envelope whose job was already claimed.
func (c *Collector) RecordJobSkipped(existing string) {
	if !c.enabled() {
		return
	}
	c.jobMetrics.skippedTotal.WithLabelValues(existing).Inc()
}

// SetJobsInFlight sets the number of jobs being processed.
func (c *Collector) SetJobsInFlight(n int) {
	if !c.enabled() {
		return
	}
	c.jobMetrics.inFlight.Set(float64(n))
}

// RecordQueueError records a failed queue or store operation.
func (c *Collector) RecordQueueError(op string) {
	if !c.enabled() {
		return
	}
	c.jobMetrics.queueErrorsTotal.WithLabelValues(op).Inc()
}

// RecordRequeue records an envelope pushed back after a failed claim.
func (c *Collector) RecordRequeue() {
	if !c.enabled() {
		return
	}
	c.jobMetrics.requeuedTotal.Inc()
}

// SetQueueLength sets the last observed queue length.
func (c *Collector) SetQueueLength(n int64) {
	if !c.enabled() {
		return
	}
	c.jobMetrics.queueLength.Set(float64(n))
}

// RecordPolicyDecision records one decision at stage ("input" or "output").
func (c *Collector) RecordPolicyDecision(stage, action string, ruleIDs []string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.policyMetrics.RecordDecision(stage, action, ruleIDs, duration)
}

// SetBundle publishes the digest and origin of the bundle in effect.
func (c *Collector) SetBundle(digest, origin string) {
	if !c.enabled() {
		return
	}
	c.policyMetrics.SetBundle(digest, origin)
}

// RecordBundleDrift records a change to the bundle file after startup.
func (c *Collector) RecordBundleDrift() {
	if !c.enabled() {
		return
	}
	c.policyMetrics.driftTotal.Inc()
}

// RecordAuditEmitted records a signed audit record.
func (c *Collector) RecordAuditEmitted(event string) {
	if !c.enabled() {
		return
	}
	c.auditMetrics.emittedTotal.WithLabelValues(event).Inc()
}

// RecordAuditSinkError records a sink that failed to accept a record.
func (c *Collector) RecordAuditSinkError(sink string) {
	if !c.enabled() {
		return
	}
	c.auditMetrics.sinkErrorsTotal.WithLabelValues(sink).Inc()
}

// RecordAuditPruned records records deleted by retention.
func (c *Collector) RecordAuditPruned(n int64) {
	if !c.enabled() || n <= 0 {
		return
	}
	c.auditMetrics.prunedTotal.Add(float64(n))
}
