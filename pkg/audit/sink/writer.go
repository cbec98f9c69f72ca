package sink

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/jellywish/confidential-cat-counter/pkg/audit"
)

// WriterSink writes canonical {"audit":{...}} lines to an io.Writer.
type WriterSink struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// NewWriterSink creates a sink writing to w. If w is an io.Closer other than
// stdout or stderr it is closed by Close.
func NewWriterSink(w io.Writer) *WriterSink {
	if w == nil {
		w = os.Stdout
	}
	s := &WriterSink{w: w}
	if c, ok := w.(io.Closer); ok && w != os.Stdout && w != os.Stderr {
		s.closer = c
	}
	return s
}

// NewFileSink opens path for appending and returns a WriterSink over it.
func NewFileSink(path string) (*WriterSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, NewStorageError("file", "open", err)
	}
	return NewWriterSink(f), nil
}

// Publish writes r as one line.
func (s *WriterSink) Publish(_ context.Context, r audit.Record) error {
	line, err := audit.MarshalLine(r)
	if err != nil {
		return &audit.SinkError{Sink: "writer", Sequence: r.Sequence, Cause: err}
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(line); err != nil {
		return &audit.SinkError{Sink: "writer", Sequence: r.Sequence, Cause: err}
	}
	return nil
}

// Close closes the underlying writer when the sink owns it.
func (s *WriterSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closer != nil {
		err := s.closer.Close()
		s.closer = nil
		return err
	}
	return nil
}
