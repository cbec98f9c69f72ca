package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/jellywish/confidential-cat-counter/pkg/canonical"
)

// Reserved record fields. Data keys with these names are ignored.
const (
	FieldEvent     = "event"
	FieldTimestamp = "timestamp"
	FieldSimulated = "simulated"
	FieldSequence  = "sequence"
	FieldSignature = "signature"
)

func reserved(key string) bool {
	switch key {
	case FieldEvent, FieldTimestamp, FieldSimulated, FieldSequence, FieldSignature:
		return true
	}
	return false
}

// Record is one audit entry. Data fields are serialized alongside the
// reserved fields, not nested.
type Record struct {
	Event     string
	Timestamp int64
	Simulated bool
	Sequence  uint64
	Data      map[string]any
	Signature string
}

// Fields returns the flat field map of r without the signature.
func (r Record) Fields() map[string]any {
	fields := make(map[string]any, len(r.Data)+4)
	for k, v := range r.Data {
		if !reserved(k) {
			fields[k] = v
		}
	}
	fields[FieldEvent] = r.Event
	fields[FieldTimestamp] = r.Timestamp
	fields[FieldSimulated] = r.Simulated
	fields[FieldSequence] = r.Sequence
	return fields
}

// SigningBytes returns the canonical bytes the signature is computed over.
func (r Record) SigningBytes() ([]byte, error) {
	return canonical.Marshal(r.Fields())
}

// JobID returns the job_id data field, if any.
func (r Record) JobID() string {
	id, _ := r.Data["job_id"].(string)
	return id
}

// MarshalJSON writes the flat form including the signature.
func (r Record) MarshalJSON() ([]byte, error) {
	fields := r.Fields()
	fields[FieldSignature] = r.Signature
	return json.Marshal(fields)
}

// UnmarshalJSON reads the flat form. Data values keep their JSON types with
// numbers as json.Number.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("audit record is null")
	}

	var out Record
	var ok bool

	if out.Event, ok = fields[FieldEvent].(string); !ok {
		return fmt.Errorf("audit record: %q must be a string", FieldEvent)
	}
	if out.Simulated, ok = fields[FieldSimulated].(bool); !ok {
		return fmt.Errorf("audit record: %q must be a boolean", FieldSimulated)
	}
	if sig, present := fields[FieldSignature]; present {
		if out.Signature, ok = sig.(string); !ok {
			return fmt.Errorf("audit record: %q must be a string", FieldSignature)
		}
	}

	ts, err := integer(fields[FieldTimestamp])
	if err != nil {
		return fmt.Errorf("audit record: %q: %w", FieldTimestamp, err)
	}
	out.Timestamp = ts

	seq, err := integer(fields[FieldSequence])
	if err != nil || seq < 0 {
		return fmt.Errorf("audit record: %q must be a non-negative integer", FieldSequence)
	}
	out.Sequence = uint64(seq)

	out.Data = make(map[string]any)
	for k, v := range fields {
		if !reserved(k) {
			out.Data[k] = v
		}
	}

	*r = out
	return nil
}

func integer(v any) (int64, error) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("not a number")
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %s", n)
	}
	return int64(f), nil
}

// envelope is the line format of WriterSink.
type envelope struct {
	Audit *Record `json:"audit"`
}

// ParseLine decodes one audit line, either {"audit":{...}} or a bare record.
func ParseLine(line []byte) (Record, error) {
	line = bytes.TrimSpace(line)

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(line, &probe); err != nil {
		return Record{}, fmt.Errorf("invalid audit line: %w", err)
	}

	if raw, ok := probe["audit"]; ok && len(probe) == 1 {
		var r Record
		if err := json.Unmarshal(raw, &r); err != nil {
			return Record{}, err
		}
		return r, nil
	}

	var r Record
	if err := json.Unmarshal(line, &r); err != nil {
		return Record{}, err
	}
	return r, nil
}

// MarshalLine encodes r as a canonical {"audit":{...}} line without a
// trailing newline.
func MarshalLine(r Record) ([]byte, error) {
	return canonical.Marshal(envelope{Audit: &r})
}
