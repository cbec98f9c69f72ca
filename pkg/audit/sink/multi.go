package sink

import (
	"context"
	"errors"

	"github.com/jellywish/confidential-cat-counter/pkg/audit"
)

// MultiSink publishes every record to each of its sinks. A failing sink does
// not stop delivery to the others; all failures are joined.
type MultiSink struct {
	sinks []audit.Sink
}

// NewMultiSink creates a MultiSink. Nil sinks are skipped.
func NewMultiSink(sinks ...audit.Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Publish delivers r to every sink.
func (m *MultiSink) Publish(ctx context.Context, r audit.Record) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Publish(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
