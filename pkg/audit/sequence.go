package audit

import "sync"

// Sequence is a gap-free counter. The zero value is ready to use and yields
// 1 from its first Next call.
type Sequence struct {
	mu sync.Mutex
	n  uint64
}

// NewSequence returns a counter whose next value is start+1.
func NewSequence(start uint64) *Sequence {
	return &Sequence{n: start}
}

// Next increments the counter and returns the new value.
func (s *Sequence) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return s.n
}

// Current returns the last value handed out.
func (s *Sequence) Current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}
