package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/jellywish/confidential-cat-counter/pkg/config"
)

func newTestTracer(t *testing.T, sampler string) (*Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tr, err := NewWithExporter(&config.TracingConfig{
		Enabled:     true,
		Sampler:     sampler,
		SampleRatio: 1.0,
		ServiceName: "test",
	}, "test", exporter)
	if err != nil {
		t.Fatalf("NewWithExporter() failed: %v", err)
	}
	t.Cleanup(func() { _ = tr.Shutdown(context.Background()) })
	return tr, exporter
}

func TestNew_Disabled(t *testing.T) {
	tr, err := New(&config.TracingConfig{Enabled: false}, "dev")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if tr.Enabled() {
		t.Error("disabled tracer reports enabled")
	}
	_, span := tr.Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("noop span should have an invalid span context")
	}
	span.End()
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() failed: %v", err)
	}
}

func TestNew_NilConfig(t *testing.T) {
	if _, err := New(nil, "dev"); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestNewWithExporter_BadSampler(t *testing.T) {
	_, err := NewWithExporter(&config.TracingConfig{Enabled: true, Sampler: "sometimes"}, "dev", tracetest.NewInMemoryExporter())
	if err == nil {
		t.Error("expected sampler error")
	}
}

func TestTracer_RecordsSpans(t *testing.T) {
	tr, exporter := newTestTracer(t, SamplerAlways)

	ctx, parent := tr.Start(context.Background(), "job.process")
	SetJobAttributes(parent, "job-1", "completed")
	_, child := tr.Start(ctx, "policy.output")
	SetPolicyAttributes(child, "output", "redact", "abc", []string{"out.cats_limit"})
	SetStatus(child, errors.New("boom"))
	child.End()
	SetStatus(parent, nil)
	parent.End()

	if err := tr.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush() failed: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	byName := map[string]tracetest.SpanStub{}
	for _, s := range spans {
		byName[s.Name] = s
	}
	out := byName["policy.output"]
	if out.Parent.SpanID() != byName["job.process"].SpanContext.SpanID() {
		t.Error("child span not linked to parent")
	}
	if out.Status.Code != codes.Error {
		t.Errorf("child status = %v, want Error", out.Status.Code)
	}
	found := false
	for _, a := range out.Attributes {
		if a.Key == AttrPolicyAction && a.Value.AsString() == "redact" {
			found = true
		}
	}
	if !found {
		t.Error("policy action attribute missing")
	}
}

func TestTracer_NeverSampler(t *testing.T) {
	tr, exporter := newTestTracer(t, SamplerNever)

	_, span := tr.Start(context.Background(), "dropped")
	span.End()
	_ = tr.ForceFlush(context.Background())

	if n := len(exporter.GetSpans()); n != 0 {
		t.Errorf("spans = %d, want 0", n)
	}
}

func TestPropagation_RoundTrip(t *testing.T) {
	tr, exporter := newTestTracer(t, SamplerAlways)

	ctx, upload := tr.Start(context.Background(), "upload")
	carrier := map[string]string{}
	InjectToMap(ctx, carrier)
	upload.End()

	if carrier[FieldTraceParent] == "" {
		t.Fatal("traceparent not injected")
	}

	jobCtx := ExtractFromMap(context.Background(), carrier)
	_, job := tr.Start(jobCtx, "job.process")
	job.End()
	_ = tr.ForceFlush(context.Background())

	if TraceID(trace.ContextWithSpan(context.Background(), job)) != upload.SpanContext().TraceID().String() {
		t.Error("job span did not join the upload trace")
	}
	if n := len(exporter.GetSpans()); n != 2 {
		t.Errorf("spans = %d, want 2", n)
	}
}

func TestNilTracer(t *testing.T) {
	var tr *Tracer
	_, span := tr.Start(context.Background(), "x")
	span.End()
	if tr.Enabled() {
		t.Error("nil tracer reports enabled")
	}
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() failed: %v", err)
	}
}

var _ sdktrace.SpanExporter = (*tracetest.InMemoryExporter)(nil)
