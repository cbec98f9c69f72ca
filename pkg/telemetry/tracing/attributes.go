package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys on worker spans.
const (
	AttrJobID        = attribute.Key("ccc.job.id")
	AttrJobStatus    = attribute.Key("ccc.job.status")
	AttrFailureCode  = attribute.Key("ccc.job.failure_code")
	AttrPolicyStage  = attribute.Key("ccc.policy.stage")
	AttrPolicyAction = attribute.Key("ccc.policy.action")
	AttrPolicyRules  = attribute.Key("ccc.policy.rule_ids")
	AttrPolicyDigest = attribute.Key("ccc.policy.digest")
	AttrModelName    = attribute.Key("ccc.inference.model")
	AttrCount        = attribute.Key("ccc.inference.count")
)

// SetJobAttributes tags span with the job id and, once known, its status.
func SetJobAttributes(span trace.Span, jobID, status string) {
	attrs := []attribute.KeyValue{AttrJobID.String(jobID)}
	if status != "" {
		attrs = append(attrs, AttrJobStatus.String(status))
	}
	span.SetAttributes(attrs...)
}

// SetPolicyAttributes tags span with a policy decision.
func SetPolicyAttributes(span trace.Span, stage, action, digest string, ruleIDs []string) {
	span.SetAttributes(
		AttrPolicyStage.String(stage),
		AttrPolicyAction.String(action),
		AttrPolicyDigest.String(digest),
		AttrPolicyRules.StringSlice(ruleIDs),
	)
}
