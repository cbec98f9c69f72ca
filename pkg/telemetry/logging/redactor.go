package logging

import (
	"log/slog"
	"strings"
)

// Redacted replaces masked attribute values.
const Redacted = "[REDACTED]"

// Redactor masks attributes whose keys name key material. Matching is on
// the lower-cased key: any key containing one of the sensitive fragments is
// masked unless it is listed as safe.
type Redactor struct {
	fragments []string
	safe      map[string]bool
}

// NewRedactor returns a redactor for signing keys, wrapped data keys,
// signatures and credentials. Identifiers such as key_id stay visible.
func NewRedactor() *Redactor {
	return &Redactor{
		fragments: []string{"key", "secret", "signature", "password", "token", "credential"},
		safe: map[string]bool{
			"key_id":    true,
			"queue_key": true,
			"job_key":   true,
		},
	}
}

// Sensitive reports whether values under key are masked.
func (r *Redactor) Sensitive(key string) bool {
	k := strings.ToLower(key)
	if r.safe[k] {
		return false
	}
	for _, f := range r.fragments {
		if strings.Contains(k, f) {
			return true
		}
	}
	return false
}

// Attr returns a masked copy of a, descending into groups.
func (r *Redactor) Attr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		out := make([]slog.Attr, len(group))
		for i, ga := range group {
			out[i] = r.Attr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	if r.Sensitive(a.Key) {
		return slog.String(a.Key, Redacted)
	}
	return a
}
