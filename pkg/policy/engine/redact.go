package engine

// Redact returns output restricted to AllowedFields. Only keys present in
// output are copied; redacting a redacted result returns an equal map.
func Redact(output map[string]any) map[string]any {
	redacted := make(map[string]any, len(AllowedFields))
	for _, key := range AllowedFields {
		if v, ok := output[key]; ok {
			redacted[key] = v
		}
	}
	return redacted
}
