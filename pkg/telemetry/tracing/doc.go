// Package tracing provides OpenTelemetry tracing for the worker.
//
// Each job gets a "job.process" span with children for the input policy,
// inference and output policy steps. When the front end puts W3C
// traceparent/tracestate fields on the job envelope, the job span joins that
// trace. Spans are exported over OTLP gRPC; with tracing disabled a noop
// tracer is used and the cost is a few allocations per job.
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	defer tracer.Shutdown(context.Background())
package tracing
