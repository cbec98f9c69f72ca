package attestation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Gate stages.
const (
	StageVerify     = "verify"
	StageKeyRelease = "key_release"
)

// GateError reports why the gate stayed closed.
type GateError struct {
	Stage  string
	Reason string
	Cause  error
}

// Error implements the error interface.
func (e *GateError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("attestation gate closed at %s: %s: %v", e.Stage, e.Reason, e.Cause)
	}
	return fmt.Sprintf("attestation gate closed at %s: %s", e.Stage, e.Reason)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *GateError) Unwrap() error {
	return e.Cause
}

// IsGateError reports whether err is or wraps a *GateError.
func IsGateError(err error) bool {
	var gateErr *GateError
	return errors.As(err, &gateErr)
}

// Result is the outcome of a successful Unlock.
type Result struct {
	Evidence Evidence
	Reason   string
	Key      KeyMaterial
}

// Gate builds evidence, verifies it and only then requests a data key.
type Gate struct {
	Verifier  Verifier
	KeyClient KeyReleaseClient
	Options   Options
	Logger    *slog.Logger
}

// Unlock runs the gate for policyDigest. Any failure returns a *GateError
// and no key material.
func (g *Gate) Unlock(ctx context.Context, policyDigest string) (*Result, error) {
	if g.Verifier == nil || g.KeyClient == nil {
		return nil, &GateError{Stage: StageVerify, Reason: "gate is not configured"}
	}
	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "attestation.gate")

	ev := BuildEvidence(policyDigest, g.Options)

	ok, reason := g.Verifier.Verify(ctx, ev)
	if !ok {
		logger.Warn("attestation verification failed",
			"reason", reason,
			"image_digest", ev.ImageDigest,
			"simulated", ev.Simulated,
		)
		return nil, &GateError{Stage: StageVerify, Reason: reason}
	}

	key, err := g.KeyClient.RequestDataKey(ctx, ev)
	if err != nil {
		return nil, &GateError{Stage: StageKeyRelease, Reason: "key release failed", Cause: err}
	}

	logger.Info("attestation gate unlocked",
		"image_digest", ev.ImageDigest,
		"simulated", ev.Simulated,
		"key_id", key.KeyID,
		"algorithm", key.Algorithm,
	)

	return &Result{Evidence: ev, Reason: reason, Key: key}, nil
}
