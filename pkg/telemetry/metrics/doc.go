// Package metrics provides Prometheus metrics for the worker.
//
// A single Collector is created at startup and handed to the controller,
// the audit emitter and the retention pruner. It implements the audit
// package's Metrics interface, so sink failures show up as
// ccc_worker_audit_sink_errors_total without the audit package importing
// Prometheus.
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
package metrics
