package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jellywish/confidential-cat-counter/pkg/jobs"
)

// maxClaimRetries bounds optimistic transaction retries under contention.
const maxClaimRetries = 8

// RedisConfig configures the Redis-backed queue and store.
type RedisConfig struct {
	// URL is a redis:// or rediss:// URL.
	URL string

	// QueueKey is the list holding job envelopes.
	QueueKey string

	DialTimeout time.Duration
}

// NewRedisClient parses cfg.URL and returns a client.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	return redis.NewClient(opts), nil
}

// RedisQueue implements Queue on a Redis list: LPUSH to enqueue, BRPOP to
// dequeue.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue creates a queue on key, or DefaultQueueKey when empty.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisQueue{client: client, key: key}
}

// Push implements Queue.
func (q *RedisQueue) Push(ctx context.Context, envelope []byte) error {
	if err := q.client.LPush(ctx, q.key, envelope).Err(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", q.key, err)
	}
	return nil
}

// Requeue implements Queue. The envelope goes to the tail, where BRPOP
// takes from next.
func (q *RedisQueue) Requeue(ctx context.Context, envelope []byte) error {
	if err := q.client.RPush(ctx, q.key, envelope).Err(); err != nil {
		return fmt.Errorf("failed to requeue to %s: %w", q.key, err)
	}
	return nil
}

// Pop implements Queue.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("failed to pop from %s: %w", q.key, err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of length %d", len(res))
	}
	return []byte(res[1]), nil
}

// Len implements Queue.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read length of %s: %w", q.key, err)
	}
	return n, nil
}

// Ping implements Queue.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// RedisStore implements Store with SET EX and WATCH/MULTI transactions.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store on client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, id string) (*jobs.Job, error) {
	raw, err := s.client.Get(ctx, jobs.Key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return jobs.Decode(raw)
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, job *jobs.Job, ttl time.Duration) error {
	data, err := job.Encode()
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, jobs.Key(job.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set job %s: %w", job.ID, err)
	}
	return nil
}

// Claim implements Store. The key is watched between the read and the
// write; a concurrent writer aborts the transaction and the check reruns.
func (s *RedisStore) Claim(ctx context.Context, job *jobs.Job, ttl time.Duration, now time.Time) (ClaimResult, error) {
	key := jobs.Key(job.ID)

	var result ClaimResult
	txf := func(tx *redis.Tx) error {
		result = ClaimResult{}

		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			if status, blocked := existingClaim(raw); blocked {
				result.Existing = status
				return nil
			}
		}

		claimed := *job
		claimed.MarkProcessing(now)
		data, err := claimed.Encode()
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, ttl)
			return nil
		})
		if err != nil {
			return err
		}

		*job = claimed
		result.Claimed = true
		return nil
	}

	for i := 0; i < maxClaimRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return ClaimResult{}, fmt.Errorf("failed to claim job %s: %w", job.ID, err)
	}

	return ClaimResult{}, fmt.Errorf("failed to claim job %s: too much contention", job.ID)
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
