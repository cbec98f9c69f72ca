package state

import (
	"context"
	"sync"
	"time"

	"github.com/jellywish/confidential-cat-counter/pkg/jobs"
)

// MemoryQueue is an in-process Queue.
type MemoryQueue struct {
	mu     sync.Mutex
	items  [][]byte
	notify chan struct{}
}

// NewMemoryQueue creates an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{notify: make(chan struct{}, 1)}
}

func (q *MemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Push implements Queue.
func (q *MemoryQueue) Push(_ context.Context, envelope []byte) error {
	q.mu.Lock()
	q.items = append(q.items, append([]byte(nil), envelope...))
	q.mu.Unlock()
	q.signal()
	return nil
}

// Requeue implements Queue.
func (q *MemoryQueue) Requeue(_ context.Context, envelope []byte) error {
	q.mu.Lock()
	q.items = append([][]byte{append([]byte(nil), envelope...)}, q.items...)
	q.mu.Unlock()
	q.signal()
	return nil
}

// Pop implements Queue.
func (q *MemoryQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			remaining := len(q.items)
			q.mu.Unlock()
			if remaining > 0 {
				q.signal()
			}
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, ErrEmpty
		case <-q.notify:
		}
	}
}

// Len implements Queue.
func (q *MemoryQueue) Len(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

// Ping implements Queue.
func (q *MemoryQueue) Ping(context.Context) error {
	return nil
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemoryStore is an in-process Store with lazy expiry.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

// SetClock overrides the expiry clock in tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) lookup(key string) ([]byte, bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && !s.now().Before(e.expires) {
		delete(s.entries, key)
		return nil, false
	}
	return e.data, true
}

func (s *MemoryStore) put(key string, data []byte, ttl time.Duration) {
	e := memoryEntry{data: data}
	if ttl > 0 {
		e.expires = s.now().Add(ttl)
	}
	s.entries[key] = e
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*jobs.Job, error) {
	s.mu.Lock()
	raw, ok := s.lookup(jobs.Key(id))
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return jobs.Decode(raw)
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, job *jobs.Job, ttl time.Duration) error {
	data, err := job.Encode()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(jobs.Key(job.ID), data, ttl)
	return nil
}

// Claim implements Store.
func (s *MemoryStore) Claim(_ context.Context, job *jobs.Job, ttl time.Duration, now time.Time) (ClaimResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := jobs.Key(job.ID)
	if raw, ok := s.lookup(key); ok {
		if status, blocked := existingClaim(raw); blocked {
			return ClaimResult{Existing: status}, nil
		}
	}

	job.MarkProcessing(now)
	data, err := job.Encode()
	if err != nil {
		return ClaimResult{}, err
	}
	s.put(key, data, ttl)
	return ClaimResult{Claimed: true}, nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// TTL returns the remaining lifetime of a job record, or 0 when absent.
func (s *MemoryStore) TTL(id string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[jobs.Key(id)]
	if !ok || e.expires.IsZero() {
		return 0
	}
	return e.expires.Sub(s.now())
}
