package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jellywish/confidential-cat-counter/pkg/audit"
	"github.com/jellywish/confidential-cat-counter/pkg/inference"
	"github.com/jellywish/confidential-cat-counter/pkg/jobs"
	"github.com/jellywish/confidential-cat-counter/pkg/policy/bundle"
	"github.com/jellywish/confidential-cat-counter/pkg/policy/engine"
	"github.com/jellywish/confidential-cat-counter/pkg/state"
	"github.com/jellywish/confidential-cat-counter/pkg/telemetry/logging"
	"github.com/jellywish/confidential-cat-counter/pkg/telemetry/metrics"
	"github.com/jellywish/confidential-cat-counter/pkg/telemetry/tracing"
)

// Policy stages.
const (
	StageInput  = "input"
	StageOutput = "output"
)

// Auditor records policy decisions. *audit.Emitter satisfies it.
type Auditor interface {
	Emit(ctx context.Context, event string, data map[string]any) (audit.Record, error)
}

// OutcomeKind classifies what Process did with an envelope.
type OutcomeKind string

const (
	// OutcomeCompleted means the job reached completed.
	OutcomeCompleted OutcomeKind = "completed"

	// OutcomeFailed means the job reached failed.
	OutcomeFailed OutcomeKind = "failed"

	// OutcomeSkipped means the job was already claimed or finished.
	OutcomeSkipped OutcomeKind = "skipped"

	// OutcomeInvalid means the envelope could not be decoded. It is dropped.
	OutcomeInvalid OutcomeKind = "invalid"

	// OutcomeRetry means the store failed before the job was claimed. The
	// envelope should go back on the queue.
	OutcomeRetry OutcomeKind = "retry"
)

// Outcome reports the result of processing one envelope.
type Outcome struct {
	Kind  OutcomeKind
	JobID string

	// Existing is the status that caused a skip.
	Existing jobs.Status

	// Failure is set when Kind is OutcomeFailed.
	Failure *jobs.Failure

	// Result is the persisted result when Kind is OutcomeCompleted.
	Result map[string]any

	// Err is an infrastructure error: the decode error for OutcomeInvalid,
	// the claim error for OutcomeRetry, or a failed final write.
	Err error
}

// ControllerConfig wires a Controller.
type ControllerConfig struct {
	Store        state.Store
	Bundle       *bundle.Bundle
	PolicyDigest string
	Auditor      Auditor
	Detector     inference.Detector

	// Metrics and Tracer may be nil.
	Metrics *metrics.Collector
	Tracer  *tracing.Tracer
	Logger  *slog.Logger

	// UploadsDir is where uploaded images are read from.
	UploadsDir string

	// JobTTL bounds every write of a job record.
	JobTTL time.Duration

	// InferenceTimeout bounds one Detect call. Zero means no deadline.
	InferenceTimeout time.Duration

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Controller owns the per-job state machine.
type Controller struct {
	store            state.Store
	bundle           *bundle.Bundle
	policyDigest     string
	auditor          Auditor
	detector         inference.Detector
	metrics          *metrics.Collector
	tracer           *tracing.Tracer
	logger           *slog.Logger
	uploadsDir       string
	jobTTL           time.Duration
	inferenceTimeout time.Duration
	now              func() time.Time
}

// NewController validates cfg and creates a Controller.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Store == nil {
		return nil, errors.New("job store cannot be nil")
	}
	if cfg.Bundle == nil {
		return nil, errors.New("policy bundle cannot be nil")
	}
	if cfg.Auditor == nil {
		return nil, errors.New("auditor cannot be nil")
	}
	if cfg.Detector == nil {
		return nil, errors.New("detector cannot be nil")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.JobTTL
	if ttl <= 0 {
		ttl = state.DefaultJobTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Controller{
		store:            cfg.Store,
		bundle:           cfg.Bundle,
		policyDigest:     cfg.PolicyDigest,
		auditor:          cfg.Auditor,
		detector:         cfg.Detector,
		metrics:          cfg.Metrics,
		tracer:           cfg.Tracer,
		logger:           logger.With("component", "worker.controller"),
		uploadsDir:       cfg.UploadsDir,
		jobTTL:           ttl,
		inferenceTimeout: cfg.InferenceTimeout,
		now:              now,
	}, nil
}

// Process runs one envelope through the lifecycle.
func (c *Controller) Process(ctx context.Context, envelope []byte) Outcome {
	start := c.now()

	job, err := jobs.Decode(envelope)
	if err != nil {
		c.logger.WarnContext(ctx, "dropping invalid job envelope", "error", err, "bytes", len(envelope))
		c.metrics.RecordJob(string(OutcomeInvalid), "", 0)
		return Outcome{Kind: OutcomeInvalid, Err: err}
	}

	ctx = logging.WithJobID(ctx, job.ID)
	ctx = tracing.ExtractFromMap(ctx, traceCarrier(job))
	ctx, span := c.tracer.Start(ctx, "job.process", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	tracing.SetJobAttributes(span, job.ID, "")

	claim, err := c.store.Claim(ctx, job, c.jobTTL, start)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to claim job", "error", err)
		c.metrics.RecordQueueError("claim")
		tracing.SetStatus(span, err)
		return Outcome{Kind: OutcomeRetry, JobID: job.ID, Err: err}
	}
	if !claim.Claimed {
		c.logger.InfoContext(ctx, "job already claimed, skipping", "existing_status", claim.Existing)
		c.metrics.RecordJobSkipped(string(claim.Existing))
		span.SetAttributes(attribute.String("ccc.job.existing_status", string(claim.Existing)))
		return Outcome{Kind: OutcomeSkipped, JobID: job.ID, Existing: claim.Existing}
	}

	c.metrics.SetJobsInFlight(1)
	defer c.metrics.SetJobsInFlight(0)
	c.logger.InfoContext(ctx, "processing job", "filename", job.Filename)

	result, failure := c.execute(ctx, job)

	out := Outcome{JobID: job.ID}
	finished := c.now()
	if failure != nil {
		job.MarkFailed(failure, finished)
		out.Kind = OutcomeFailed
		out.Failure = failure
	} else {
		job.MarkCompleted(result, finished)
		out.Kind = OutcomeCompleted
		out.Result = result
	}

	if err := c.store.Set(context.WithoutCancel(ctx), job, c.jobTTL); err != nil {
		c.logger.ErrorContext(ctx, "failed to persist job", "status", job.Status, "error", err)
		c.metrics.RecordQueueError("persist")
		out.Err = err
	}

	duration := finished.Sub(start)
	tracing.SetJobAttributes(span, job.ID, string(job.Status))
	if failure != nil {
		span.SetAttributes(tracing.AttrFailureCode.String(string(failure.Code)))
		tracing.SetStatus(span, failure)
		c.metrics.RecordJob(string(job.Status), string(failure.Code), duration)
		c.logger.WarnContext(ctx, "job failed",
			"code", failure.Code,
			"error", failure.Message,
			"duration", duration,
		)
	} else {
		tracing.SetStatus(span, out.Err)
		c.metrics.RecordJob(string(job.Status), "", duration)
		c.logger.InfoContext(ctx, "job completed", "duration", duration)
	}

	return out
}

// execute runs steps after the claim. A panic becomes an internal failure.
func (c *Controller) execute(ctx context.Context, job *jobs.Job) (result map[string]any, failure *jobs.Failure) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorContext(ctx, "panic while processing job",
				"error", r,
				"stack", string(debug.Stack()),
			)
			result = nil
			failure = &jobs.Failure{
				Code:    jobs.CodeInternal,
				Message: fmt.Sprint(r),
			}
			if err, ok := r.(error); ok {
				failure.Cause = err
			}
		}
	}()

	in := c.evaluate(ctx, StageInput, job.ID, func() engine.Decision {
		return engine.EvaluateInput(job, c.bundle)
	})
	if !in.Allowed() {
		return nil, jobs.PolicyDenied(StageInput, in.Reasons)
	}

	path, failure := c.artifactPath(job.Filename)
	if failure != nil {
		return nil, failure
	}

	raw, failure := c.detect(ctx, path)
	if failure != nil {
		return nil, failure
	}
	output := inference.Normalize(raw)
	if output == nil {
		output = map[string]any{}
	}

	out := c.evaluate(ctx, StageOutput, job.ID, func() engine.Decision {
		return engine.EvaluateOutput(output, c.bundle)
	})
	switch out.Action {
	case engine.ActionAllow:
		return output, nil
	case engine.ActionRedact:
		c.logger.InfoContext(ctx, "result redacted", "reasons", out.Reasons, "rule_ids", out.RuleIDs)
		return out.RedactedOutput, nil
	default:
		return nil, jobs.PolicyDenied(StageOutput, out.Reasons)
	}
}

// evaluate runs one policy evaluation and records it in the audit trail,
// metrics and a span.
func (c *Controller) evaluate(ctx context.Context, stage, jobID string, eval func() engine.Decision) engine.Decision {
	ctx, span := c.tracer.Start(ctx, "policy.evaluate_"+stage)
	defer span.End()

	started := time.Now()
	d := eval()
	c.metrics.RecordPolicyDecision(stage, string(d.Action), d.RuleIDs, time.Since(started))
	tracing.SetPolicyAttributes(span, stage, string(d.Action), c.policyDigest, d.RuleIDs)

	event := audit.EventInputPolicyDecision
	if stage == StageOutput {
		event = audit.EventOutputPolicyDecision
	}
	_, err := c.auditor.Emit(ctx, event, map[string]any{
		"job_id":        jobID,
		"decision":      d.Map(),
		"policy_digest": c.policyDigest,
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to emit audit record", "event", event, "error", err)
	}

	c.logger.DebugContext(ctx, "policy decision",
		"stage", stage,
		"action", d.Action,
		"reasons", d.Reasons,
	)
	return d
}

// artifactPath resolves filename inside the uploads directory. Filenames
// come from the envelope and must not name anything outside it.
func (c *Controller) artifactPath(filename string) (string, *jobs.Failure) {
	if filename == "" || filename == "." || filename == ".." ||
		filename != filepath.Base(filename) || strings.ContainsAny(filename, `/\`) {
		return "", jobs.Fail(jobs.CodeInvalidFilename, "invalid filename: %q", filename)
	}

	path := filepath.Join(c.uploadsDir, filename)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", jobs.Fail(jobs.CodeArtifactMissing, "image file not found: %s", path)
	}
	return path, nil
}

type detection struct {
	result map[string]any
	err    error
	panic  any
}

// detect calls the detector under the inference deadline. The call runs on
// its own goroutine so a detector that ignores its context still cannot hold
// the job past the deadline. A detector panic is re-raised on the caller's
// goroutine.
func (c *Controller) detect(ctx context.Context, path string) (map[string]any, *jobs.Failure) {
	ctx, span := c.tracer.Start(ctx, "inference.detect")
	defer span.End()

	if c.inferenceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.inferenceTimeout)
		defer cancel()
	}

	done := make(chan detection, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- detection{panic: r}
			}
		}()
		result, err := c.detector.Detect(ctx, path)
		done <- detection{result: result, err: err}
	}()

	var d detection
	select {
	case d = <-done:
	case <-ctx.Done():
		d = detection{err: ctx.Err()}
	}

	if d.panic != nil {
		panic(d.panic)
	}
	if d.err != nil {
		tracing.SetStatus(span, d.err)
		if errors.Is(d.err, context.DeadlineExceeded) && ctx.Err() != nil {
			return nil, &jobs.Failure{
				Code:    jobs.CodeTimeout,
				Message: fmt.Sprintf("inference timed out after %s", c.inferenceTimeout),
				Cause:   d.err,
			}
		}
		return nil, &jobs.Failure{
			Code:    jobs.CodeInferenceFailed,
			Message: fmt.Sprintf("inference failed: %v", d.err),
			Cause:   d.err,
		}
	}

	if name, ok := d.result[inference.KeyModelName].(string); ok {
		span.SetAttributes(tracing.AttrModelName.String(name))
	}
	if n, ok := d.result[inference.KeyCount].(int); ok {
		span.SetAttributes(tracing.AttrCount.Int(n))
	}
	return d.result, nil
}

// traceCarrier reads the W3C trace fields an uploader may have put on the
// envelope.
func traceCarrier(job *jobs.Job) map[string]string {
	carrier := make(map[string]string, 2)
	for _, field := range []string{tracing.FieldTraceParent, tracing.FieldTraceState} {
		raw, ok := job.Extra[field]
		if !ok {
			continue
		}
		var v string
		if err := json.Unmarshal(raw, &v); err == nil && v != "" {
			carrier[field] = v
		}
	}
	return carrier
}
