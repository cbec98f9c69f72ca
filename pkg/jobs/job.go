package jobs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether s is completed or failed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Claimed reports whether a job in state s must not be processed again.
func (s Status) Claimed() bool {
	return s == StatusProcessing || s.Terminal()
}

// KeyPrefix prefixes job ids in the keyed store.
const KeyPrefix = "job:"

// Key returns the store key for a job id.
func Key(id string) string {
	return KeyPrefix + id
}

// Job is a unit of work. Timestamps are unix seconds with fractional part,
// the representation the front end reads.
type Job struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`

	// Size is the declared upload size in bytes. Nil when absent or not an
	// integer.
	Size *int64 `json:"size,omitempty"`

	Status Status `json:"status"`

	ProcessingStartedAt float64 `json:"processingStartedAt,omitempty"`
	CompletedAt         float64 `json:"completedAt,omitempty"`
	FailedAt            float64 `json:"failedAt,omitempty"`

	Error  string         `json:"error,omitempty"`
	Result map[string]any `json:"result,omitempty"`

	// Extra holds envelope fields not modelled above, such as createdAt.
	Extra map[string]json.RawMessage `json:"-"`
}

// knownFields are decoded into Job's typed fields.
var knownFields = map[string]struct{}{
	"id": {}, "filename": {}, "size": {}, "status": {},
	"processingStartedAt": {}, "completedAt": {}, "failedAt": {},
	"error": {}, "result": {},
}

// Decode parses a job envelope.
func Decode(data []byte) (*Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("invalid job envelope: %w", err)
	}
	if j.ID == "" {
		return nil, fmt.Errorf("invalid job envelope: missing id")
	}
	return &j, nil
}

// Encode serializes j including its extra fields.
func (j *Job) Encode() ([]byte, error) {
	return json.Marshal(j)
}

// UnmarshalJSON decodes the typed fields and keeps the rest in Extra.
func (j *Job) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	type plain Job
	var p plain
	known := make(map[string]json.RawMessage, len(fields))
	extra := make(map[string]json.RawMessage)
	for k, v := range fields {
		if _, ok := knownFields[k]; ok && k != "size" {
			known[k] = v
		} else if k != "size" {
			extra[k] = v
		}
	}

	if len(known) > 0 {
		buf, err := json.Marshal(known)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(buf, &p); err != nil {
			return err
		}
	}

	if raw, ok := fields["size"]; ok {
		if size, ok := parseSize(raw); ok {
			p.Size = &size
		} else {
			// Keep a size we cannot interpret so it survives persistence.
			extra["size"] = raw
		}
	}

	*j = Job(p)
	if len(extra) > 0 {
		j.Extra = extra
	}
	return nil
}

// MarshalJSON writes the typed fields over Extra.
func (j Job) MarshalJSON() ([]byte, error) {
	type plain Job
	typed, err := json.Marshal(plain(j))
	if err != nil {
		return nil, err
	}
	if len(j.Extra) == 0 {
		return typed, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(typed, &merged); err != nil {
		return nil, err
	}
	for k, v := range j.Extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// parseSize accepts only integral JSON numbers.
func parseSize(raw json.RawMessage) (int64, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// Timestamp converts t to fractional unix seconds.
func Timestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// MarkProcessing moves j to processing.
func (j *Job) MarkProcessing(now time.Time) {
	j.Status = StatusProcessing
	j.ProcessingStartedAt = Timestamp(now)
}

// MarkCompleted moves j to completed with result.
func (j *Job) MarkCompleted(result map[string]any, now time.Time) {
	j.Status = StatusCompleted
	j.Result = result
	j.Error = ""
	j.CompletedAt = Timestamp(now)
}

// MarkFailed moves j to failed with the failure's message.
func (j *Job) MarkFailed(f *Failure, now time.Time) {
	j.Status = StatusFailed
	j.Error = f.Message
	j.FailedAt = Timestamp(now)
}
