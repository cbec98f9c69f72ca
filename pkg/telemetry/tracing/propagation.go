package tracing

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
)

// Envelope fields that carry W3C trace context through the queue.
const (
	FieldTraceParent = "traceparent"
	FieldTraceState  = "tracestate"
)

// Propagator returns the W3C trace context and baggage propagator.
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// ExtractFromMap returns ctx with the remote span context found in carrier.
// The worker uses it on the traceparent and tracestate fields of a job
// envelope, so a job's spans join the trace of the upload that queued it.
func ExtractFromMap(ctx context.Context, carrier map[string]string) context.Context {
	return Propagator().Extract(ctx, propagation.MapCarrier(carrier))
}

// InjectToMap writes the span context in ctx into carrier.
func InjectToMap(ctx context.Context, carrier map[string]string) {
	Propagator().Inject(ctx, propagation.MapCarrier(carrier))
}
