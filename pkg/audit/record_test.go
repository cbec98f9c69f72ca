package audit

import (
	"strings"
	"testing"
)

var key = []byte("k")

func signed(t *testing.T) Record {
	t.Helper()
	r := Record{
		Event:     EventOutputPolicyDecision,
		Timestamp: 1700000000,
		Simulated: true,
		Sequence:  3,
		Data: map[string]any{
			"job_id": "j1",
			"decision": map[string]any{
				"action":   "redact",
				"reasons":  []string{"forbidden_pattern"},
				"rule_ids": []string{"out.forbidden_pattern"},
			},
		},
	}
	sig, err := Sign(r, key)
	if err != nil {
		t.Fatalf("Sign() failed: %v", err)
	}
	r.Signature = sig
	return r
}

func TestVerify_DetectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Record)
	}{
		{"event", func(r *Record) { r.Event = "other" }},
		{"timestamp", func(r *Record) { r.Timestamp++ }},
		{"simulated", func(r *Record) { r.Simulated = false }},
		{"sequence", func(r *Record) { r.Sequence = 4 }},
		{"data value", func(r *Record) { r.Data["job_id"] = "j2" }},
		{"added field", func(r *Record) { r.Data["extra"] = true }},
		{"removed field", func(r *Record) { delete(r.Data, "decision") }},
		{"signature", func(r *Record) { r.Signature = strings.Repeat("0", 64) }},
		{"bad hex", func(r *Record) { r.Signature = "xyz" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := signed(t)
			tt.mutate(&r)
			if err := Verify(r, key); err != ErrInvalidSignature {
				t.Errorf("Verify() = %v, want ErrInvalidSignature", err)
			}
		})
	}
}

func TestVerify_WrongKey(t *testing.T) {
	if err := Verify(signed(t), []byte("other")); err != ErrInvalidSignature {
		t.Errorf("Verify() = %v, want ErrInvalidSignature", err)
	}
}

func TestParseLine_VerifiesAfterRoundTrip(t *testing.T) {
	r := signed(t)

	line, err := MarshalLine(r)
	if err != nil {
		t.Fatalf("MarshalLine() failed: %v", err)
	}
	if string(line[:10]) != `{"audit":{` {
		t.Errorf("line = %s, want {\"audit\":{...}} envelope", line)
	}

	parsed, err := ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine() failed: %v", err)
	}
	if parsed.Sequence != r.Sequence || parsed.Event != r.Event {
		t.Errorf("parsed = %+v", parsed)
	}
	if err := Verify(parsed, key); err != nil {
		t.Errorf("Verify() after round trip failed: %v", err)
	}

	bare, err := r.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() failed: %v", err)
	}
	parsed, err = ParseLine(bare)
	if err != nil {
		t.Fatalf("ParseLine(bare) failed: %v", err)
	}
	if err := Verify(parsed, key); err != nil {
		t.Errorf("Verify() bare record failed: %v", err)
	}
}

func TestParseLine_Invalid(t *testing.T) {
	for _, line := range []string{
		``,
		`not json`,
		`{"audit":{"event":1}}`,
		`{"event":"e","timestamp":"now","simulated":true,"sequence":1}`,
		`{"event":"e","timestamp":1,"simulated":"yes","sequence":1}`,
		`{"event":"e","timestamp":1,"simulated":true,"sequence":-1}`,
	} {
		if _, err := ParseLine([]byte(line)); err == nil {
			t.Errorf("ParseLine(%q) succeeded, want error", line)
		}
	}
}

func TestSequence(t *testing.T) {
	var s Sequence
	if s.Current() != 0 {
		t.Errorf("Current() = %d, want 0", s.Current())
	}
	if s.Next() != 1 || s.Next() != 2 {
		t.Error("Next() did not count from 1")
	}
}
