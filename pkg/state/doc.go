// Package state holds the job queue and the keyed job store.
//
// The queue is a FIFO of raw job envelopes: producers push to the head and
// workers pop from the tail. The store maps job:<id> to the persisted job
// with a per-key TTL. Claim is the store's compare-and-swap: it moves a job
// to processing only if no worker has claimed it and no terminal state is
// recorded, so several workers can share one queue.
//
// Redis implementations back production; memory implementations back tests
// and single-process development runs.
package state
