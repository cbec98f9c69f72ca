package attestation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestBuildEvidence(t *testing.T) {
	now := time.Unix(1700000000, 0)
	ev := BuildEvidence("digest", Options{Simulated: true, Now: func() time.Time { return now }})

	if ev.ImageDigest != DefaultImageDigest {
		t.Errorf("ImageDigest = %q, want %q", ev.ImageDigest, DefaultImageDigest)
	}
	if ev.PolicyDigest != "digest" || !ev.Simulated || ev.Timestamp != now.Unix() {
		t.Errorf("evidence = %+v", ev)
	}
	parsed, err := uuid.Parse(ev.Nonce)
	if err != nil || parsed.Version() != 4 {
		t.Errorf("Nonce = %q, want UUIDv4", ev.Nonce)
	}

	other := BuildEvidence("digest", DefaultOptions())
	if other.Nonce == ev.Nonce {
		t.Error("BuildEvidence() reused a nonce")
	}
}

func TestDevVerifier(t *testing.T) {
	v := NewDevVerifier("good")

	tests := []struct {
		name   string
		ev     Evidence
		ok     bool
		reason string
	}{
		{"accepted", Evidence{PolicyDigest: "good", Simulated: true}, true, ReasonOK},
		{"not simulated", Evidence{PolicyDigest: "good", Simulated: false}, false, ReasonNonSimulated},
		{"wrong digest", Evidence{PolicyDigest: "bad", Simulated: true}, false, ReasonPolicyMismatch},
		{"not simulated wins", Evidence{PolicyDigest: "bad"}, false, ReasonNonSimulated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := v.Verify(context.Background(), tt.ev)
			if ok != tt.ok || reason != tt.reason {
				t.Errorf("Verify() = %v, %q, want %v, %q", ok, reason, tt.ok, tt.reason)
			}
		})
	}
}

func TestDevKeyReleaseClient(t *testing.T) {
	key, err := DevKeyReleaseClient{}.RequestDataKey(context.Background(), Evidence{})
	if err != nil {
		t.Fatalf("RequestDataKey() failed: %v", err)
	}
	want := KeyMaterial{KeyID: "DEV-LOCAL-KEY", WrappedKey: "DEV_WRAPPED_KEY_PLACEHOLDER", Algorithm: "AES-256-GCM"}
	if key != want {
		t.Errorf("RequestDataKey() = %+v, want %+v", key, want)
	}
}

func TestReplayGuard(t *testing.T) {
	now := time.Unix(1700000000, 0)
	g := NewReplayGuard(NewDevVerifier("d"), time.Minute)
	g.now = func() time.Time { return now }
	ctx := context.Background()

	ev := Evidence{PolicyDigest: "d", Simulated: true, Timestamp: now.Unix(), Nonce: "n1"}

	if ok, reason := g.Verify(ctx, ev); !ok {
		t.Fatalf("first Verify() = false, %q", reason)
	}
	if ok, reason := g.Verify(ctx, ev); ok || reason != ReasonNonceReplayed {
		t.Errorf("replayed Verify() = %v, %q, want false, %q", ok, reason, ReasonNonceReplayed)
	}

	stale := Evidence{PolicyDigest: "d", Simulated: true, Timestamp: now.Unix() - 120, Nonce: "n2"}
	if ok, reason := g.Verify(ctx, stale); ok || reason != ReasonEvidenceExpired {
		t.Errorf("stale Verify() = %v, %q, want false, %q", ok, reason, ReasonEvidenceExpired)
	}

	future := Evidence{PolicyDigest: "d", Simulated: true, Timestamp: now.Unix() + 120, Nonce: "n3"}
	if ok, reason := g.Verify(ctx, future); ok || reason != ReasonEvidenceFromFuture {
		t.Errorf("future Verify() = %v, %q", ok, reason)
	}

	if ok, reason := g.Verify(ctx, Evidence{Simulated: true, PolicyDigest: "d", Timestamp: now.Unix()}); ok || reason != ReasonMissingNonce {
		t.Errorf("no-nonce Verify() = %v, %q", ok, reason)
	}

	// A rejected attempt does not burn the nonce.
	wrong := Evidence{PolicyDigest: "x", Simulated: true, Timestamp: now.Unix(), Nonce: "n4"}
	if ok, _ := g.Verify(ctx, wrong); ok {
		t.Fatal("Verify() accepted wrong digest")
	}
	wrong.PolicyDigest = "d"
	if ok, reason := g.Verify(ctx, wrong); !ok {
		t.Errorf("Verify() after rejected attempt = false, %q", reason)
	}

	// Seen nonces are evicted once they fall out of the window.
	now = now.Add(2 * time.Minute)
	g.Verify(ctx, Evidence{PolicyDigest: "d", Simulated: true, Timestamp: now.Unix(), Nonce: "n5"})
	g.mu.Lock()
	_, kept := g.seen["n1"]
	g.mu.Unlock()
	if kept {
		t.Error("expired nonce was not evicted")
	}
}

type failingKeyClient struct{}

func (failingKeyClient) RequestDataKey(context.Context, Evidence) (KeyMaterial, error) {
	return KeyMaterial{}, errors.New("kms unavailable")
}

func TestGate_Unlock(t *testing.T) {
	ctx := context.Background()

	t.Run("unlocks with matching digest", func(t *testing.T) {
		g := &Gate{Verifier: NewDevVerifier("d"), KeyClient: DevKeyReleaseClient{}, Options: DefaultOptions()}
		res, err := g.Unlock(ctx, "d")
		if err != nil {
			t.Fatalf("Unlock() failed: %v", err)
		}
		if res.Key.KeyID != DevKeyID || res.Reason != ReasonOK {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("fails closed on digest mismatch", func(t *testing.T) {
		g := &Gate{Verifier: NewDevVerifier("d"), KeyClient: DevKeyReleaseClient{}, Options: DefaultOptions()}
		res, err := g.Unlock(ctx, "other")
		var gateErr *GateError
		if !errors.As(err, &gateErr) {
			t.Fatalf("Unlock() error = %v, want *GateError", err)
		}
		if gateErr.Stage != StageVerify || gateErr.Reason != ReasonPolicyMismatch {
			t.Errorf("GateError = %+v", gateErr)
		}
		if res != nil {
			t.Error("Unlock() returned a result on failure")
		}
	})

	t.Run("fails closed on non-simulated evidence", func(t *testing.T) {
		g := &Gate{Verifier: NewDevVerifier("d"), KeyClient: DevKeyReleaseClient{}, Options: Options{Simulated: false}}
		if _, err := g.Unlock(ctx, "d"); !IsGateError(err) {
			t.Errorf("Unlock() error = %v, want *GateError", err)
		}
	})

	t.Run("key release failure", func(t *testing.T) {
		g := &Gate{Verifier: NewDevVerifier("d"), KeyClient: failingKeyClient{}, Options: DefaultOptions()}
		_, err := g.Unlock(ctx, "d")
		var gateErr *GateError
		if !errors.As(err, &gateErr) || gateErr.Stage != StageKeyRelease {
			t.Errorf("Unlock() error = %v, want key_release *GateError", err)
		}
	})

	t.Run("unconfigured gate", func(t *testing.T) {
		if _, err := (&Gate{}).Unlock(ctx, "d"); !IsGateError(err) {
			t.Errorf("Unlock() error = %v, want *GateError", err)
		}
	})
}
