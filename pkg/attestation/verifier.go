package attestation

import (
	"context"
	"sync"
	"time"
)

// Verification reasons.
const (
	ReasonOK                 = "ok"
	ReasonNonSimulated       = "non-simulated evidence in dev verifier"
	ReasonPolicyMismatch     = "policy digest mismatch"
	ReasonNonceReplayed      = "nonce replayed"
	ReasonEvidenceExpired    = "evidence expired"
	ReasonEvidenceFromFuture = "evidence timestamp in the future"
	ReasonMissingNonce       = "evidence has no nonce"
)

// Verifier decides whether evidence is acceptable. It fails closed: any
// evidence it does not positively recognise is rejected.
type Verifier interface {
	Verify(ctx context.Context, ev Evidence) (bool, string)
}

// DevVerifier accepts simulated evidence whose policy digest matches the one
// it was built with.
type DevVerifier struct {
	ExpectedPolicyDigest string
}

// NewDevVerifier creates a DevVerifier.
func NewDevVerifier(expectedPolicyDigest string) *DevVerifier {
	return &DevVerifier{ExpectedPolicyDigest: expectedPolicyDigest}
}

// Verify implements Verifier.
func (v *DevVerifier) Verify(_ context.Context, ev Evidence) (bool, string) {
	if !ev.Simulated {
		return false, ReasonNonSimulated
	}
	if ev.PolicyDigest != v.ExpectedPolicyDigest {
		return false, ReasonPolicyMismatch
	}
	return true, ReasonOK
}

// DefaultReplayWindow bounds evidence age for ReplayGuard.
const DefaultReplayWindow = 5 * time.Minute

// ReplayGuard wraps a Verifier and rejects evidence whose nonce was already
// seen or whose timestamp falls outside the window. Nonces are remembered
// for one window, after which the timestamp check alone rejects them.
type ReplayGuard struct {
	next   Verifier
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	seen map[string]int64
}

// NewReplayGuard creates a ReplayGuard around next.
func NewReplayGuard(next Verifier, window time.Duration) *ReplayGuard {
	if window <= 0 {
		window = DefaultReplayWindow
	}
	return &ReplayGuard{
		next:   next,
		window: window,
		now:    time.Now,
		seen:   make(map[string]int64),
	}
}

// Verify implements Verifier. The nonce is recorded only when the wrapped
// verifier accepts, so rejected evidence cannot exhaust the cache.
func (g *ReplayGuard) Verify(ctx context.Context, ev Evidence) (bool, string) {
	if ev.Nonce == "" {
		return false, ReasonMissingNonce
	}

	now := g.now()
	windowSecs := int64(g.window / time.Second)
	if ev.Timestamp < now.Unix()-windowSecs {
		return false, ReasonEvidenceExpired
	}
	if ev.Timestamp > now.Unix()+windowSecs {
		return false, ReasonEvidenceFromFuture
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.evict(now.Unix() - windowSecs)
	if _, ok := g.seen[ev.Nonce]; ok {
		return false, ReasonNonceReplayed
	}

	ok, reason := g.next.Verify(ctx, ev)
	if ok {
		g.seen[ev.Nonce] = ev.Timestamp
	}
	return ok, reason
}

func (g *ReplayGuard) evict(cutoff int64) {
	for nonce, ts := range g.seen {
		if ts < cutoff {
			delete(g.seen, nonce)
		}
	}
}
