package engine

// Action is the outcome of a policy evaluation.
type Action string

const (
	// ActionAllow lets the job or result through unchanged.
	ActionAllow Action = "allow"

	// ActionDeny stops the job.
	ActionDeny Action = "deny"

	// ActionRedact replaces the result with its redacted form.
	ActionRedact Action = "redact"
)

// Reason codes.
const (
	ReasonFileTooLarge     = "file_too_large"
	ReasonResponseTooLarge = "response_too_large"
	ReasonForbiddenPattern = "forbidden_pattern"
	ReasonCatsExceedLimit  = "cats_exceed_limit"
)

// Rule identifiers.
const (
	RuleMaxUploadSize    = "in.max_upload_size"
	RuleOutputSize       = "out.size"
	RuleForbiddenPattern = "out.forbidden_pattern"
	RuleCatsLimit        = "out.cats_limit"
)

// Result keys that survive redaction.
const (
	FieldCount          = "count"
	FieldConfidence     = "confidence"
	FieldProcessingTime = "processingTime"
	FieldModelName      = "modelName"
)

// AllowedFields is the fixed key set of a redacted result.
var AllowedFields = []string{FieldCount, FieldConfidence, FieldProcessingTime, FieldModelName}

// Decision is the immutable result of one evaluation. Reasons and RuleIDs
// are parallel lists.
type Decision struct {
	Action         Action         `json:"action"`
	Reasons        []string       `json:"reasons"`
	RuleIDs        []string       `json:"rule_ids"`
	RedactedOutput map[string]any `json:"redacted_output,omitempty"`
}

// Allowed reports whether the decision lets work proceed unchanged.
func (d Decision) Allowed() bool {
	return d.Action == ActionAllow
}

// Map renders d for audit data.
func (d Decision) Map() map[string]any {
	m := map[string]any{
		"action":   string(d.Action),
		"reasons":  nonNil(d.Reasons),
		"rule_ids": nonNil(d.RuleIDs),
	}
	if d.RedactedOutput != nil {
		m["redacted_output"] = d.RedactedOutput
	}
	return m
}

func allow() Decision {
	return Decision{Action: ActionAllow, Reasons: []string{}, RuleIDs: []string{}}
}

func violation(action Action, reason, rule string, redacted map[string]any) Decision {
	return Decision{
		Action:         action,
		Reasons:        []string{reason},
		RuleIDs:        []string{rule},
		RedactedOutput: redacted,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
