package audit

import (
	"context"
	"fmt"
)

// Sink receives signed records in sequence order. Publish is called with the
// emitter's lock held, so implementations must not call back into it.
type Sink interface {
	Publish(ctx context.Context, r Record) error
	Close() error
}

// SinkError wraps a failure to publish one record.
type SinkError struct {
	Sink     string
	Sequence uint64
	Cause    error
}

// Error implements the error interface.
func (e *SinkError) Error() string {
	return fmt.Sprintf("audit sink %s failed to publish sequence %d: %v", e.Sink, e.Sequence, e.Cause)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *SinkError) Unwrap() error {
	return e.Cause
}
