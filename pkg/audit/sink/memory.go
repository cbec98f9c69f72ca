package sink

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jellywish/confidential-cat-counter/pkg/audit"
)

// ErrClosed is returned when publishing to a closed sink.
var ErrClosed = errors.New("audit sink is closed")

// MemorySink stores records in publish order.
type MemorySink struct {
	mu      sync.RWMutex
	records []audit.Record
	closed  bool

	// FailWith, when set, makes Publish return it. Used to test sink failures.
	FailWith error
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Publish appends r.
func (s *MemorySink) Publish(_ context.Context, r audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &audit.SinkError{Sink: "memory", Sequence: r.Sequence, Cause: ErrClosed}
	}
	if s.FailWith != nil {
		return &audit.SinkError{Sink: "memory", Sequence: r.Sequence, Cause: s.FailWith}
	}
	s.records = append(s.records, r)
	return nil
}

// Records returns a copy of the stored records.
func (s *MemorySink) Records() []audit.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Record, len(s.records))
	copy(out, s.records)
	return out
}

// Events returns the event names in publish order.
func (s *MemorySink) Events() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.records))
	for i, r := range s.records {
		out[i] = r.Event
	}
	return out
}

// Count returns the number of stored records.
func (s *MemorySink) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

// DeleteBefore removes records with a timestamp before cutoff.
func (s *MemorySink) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	var deleted int64
	for _, r := range s.records {
		if r.Timestamp < cutoff.Unix() {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return deleted, nil
}

// DeleteOldest removes records beyond the newest keep.
func (s *MemorySink) DeleteOldest(_ context.Context, keep int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	excess := int64(len(s.records)) - keep
	if excess <= 0 {
		return 0, nil
	}
	s.records = append([]audit.Record(nil), s.records[excess:]...)
	return excess, nil
}

// Close marks the sink closed.
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
