// Package telemetry groups the worker's observability packages.
//
//   - logging: slog construction with key-material masking and job ids
//   - metrics: Prometheus collector for jobs, policy decisions and audit sinks
//   - tracing: OpenTelemetry spans per job, exported over OTLP gRPC
//   - health: liveness and readiness probes
package telemetry
