package state

import (
	"context"
	"errors"
	"time"

	"github.com/jellywish/confidential-cat-counter/pkg/jobs"
)

// Defaults matching the upload front end.
const (
	DefaultQueueKey = "ml-jobs"
	DefaultJobTTL   = time.Hour
)

var (
	// ErrEmpty is returned by Pop when the wait timeout elapses.
	ErrEmpty = errors.New("queue is empty")

	// ErrNotFound is returned by Get for an unknown or expired job.
	ErrNotFound = errors.New("job not found")
)

// Queue is a FIFO of raw job envelopes.
type Queue interface {
	// Push appends an envelope to the queue.
	Push(ctx context.Context, envelope []byte) error

	// Requeue puts an envelope back so it is popped next.
	Requeue(ctx context.Context, envelope []byte) error

	// Pop removes the oldest envelope, waiting up to timeout.
	// It returns ErrEmpty when nothing arrives in time.
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)

	// Len returns the number of queued envelopes.
	Len(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
}

// ClaimResult reports the outcome of Store.Claim.
type ClaimResult struct {
	// Claimed is true when the caller now owns the job.
	Claimed bool

	// Existing is the status found when Claimed is false.
	Existing jobs.Status
}

// Store persists jobs under job:<id> with a TTL.
type Store interface {
	// Get returns the persisted job or ErrNotFound.
	Get(ctx context.Context, id string) (*jobs.Job, error)

	// Set writes job and refreshes its TTL.
	Set(ctx context.Context, job *jobs.Job, ttl time.Duration) error

	// Claim atomically checks the persisted status and, unless it is
	// processing or terminal, marks job as processing at now and writes it.
	Claim(ctx context.Context, job *jobs.Job, ttl time.Duration, now time.Time) (ClaimResult, error)

	Ping(ctx context.Context) error
}

// existingClaim decodes a persisted record and reports whether it blocks a
// new claim. Unreadable records do not block.
func existingClaim(raw []byte) (jobs.Status, bool) {
	existing, err := jobs.Decode(raw)
	if err != nil {
		return "", false
	}
	return existing.Status, existing.Status.Claimed()
}
