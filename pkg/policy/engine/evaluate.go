package engine

import (
	"math"
	"sort"
	"strings"

	"github.com/jellywish/confidential-cat-counter/pkg/canonical"
	"github.com/jellywish/confidential-cat-counter/pkg/jobs"
	"github.com/jellywish/confidential-cat-counter/pkg/policy/bundle"
)

// EvaluateInput checks a job before its artifact is touched. A job without a
// declared size is allowed.
func EvaluateInput(job *jobs.Job, b *bundle.Bundle) Decision {
	limit := bundle.DefaultMaxUploadSize
	if b != nil && b.MaxUploadSize > 0 {
		limit = b.MaxUploadSize
	}

	if job != nil && job.Size != nil && *job.Size > limit {
		return violation(ActionDeny, ReasonFileTooLarge, RuleMaxUploadSize, nil)
	}
	return allow()
}

// EvaluateOutput checks an inference result. See the package documentation
// for rule order.
func EvaluateOutput(output map[string]any, b *bundle.Bundle) Decision {
	if b == nil {
		b = bundle.Default()
	}

	if serialized, err := canonical.Marshal(output); err != nil || len(serialized) > b.MaxResponseSize {
		// A result that cannot be serialized is treated as oversized.
		return violation(ActionRedact, ReasonResponseTooLarge, RuleOutputSize, Redact(output))
	}

	if containsForbidden(output, b.ForbiddenPatterns) {
		return violation(ActionRedact, ReasonForbiddenPattern, RuleForbiddenPattern, Redact(output))
	}

	if count, ok := integerValue(output[FieldCount]); ok && count > int64(b.MaxCats) {
		return violation(ActionRedact, ReasonCatsExceedLimit, RuleCatsLimit, Redact(output))
	}

	return allow()
}

// containsForbidden scans string values, including those nested in maps and
// slices, for any pattern. Map keys are visited in sorted order.
func containsForbidden(v any, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}

	switch val := v.(type) {
	case string:
		for _, p := range patterns {
			if p != "" && strings.Contains(val, p) {
				return true
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if containsForbidden(val[k], patterns) {
				return true
			}
		}
	case []any:
		for _, item := range val {
			if containsForbidden(item, patterns) {
				return true
			}
		}
	case []string:
		for _, item := range val {
			if containsForbidden(item, patterns) {
				return true
			}
		}
	}
	return false
}

// integerValue returns v as an int64 when it is an integral number. Values
// beyond the int64 range saturate.
func integerValue(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return saturate(uint64(n)), true
	case uint32:
		return int64(n), true
	case uint64:
		return saturate(n), true
	case float64:
		return floatInteger(n)
	case float32:
		return floatInteger(float64(n))
	}
	return 0, false
}

func saturate(n uint64) int64 {
	if n > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(n)
}

func floatInteger(f float64) (int64, bool) {
	switch {
	case math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f):
		return 0, false
	case f >= math.MaxInt64:
		return math.MaxInt64, true
	case f <= math.MinInt64:
		return math.MinInt64, true
	}
	return int64(f), true
}
