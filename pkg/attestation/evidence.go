package attestation

import (
	"time"

	"github.com/google/uuid"
)

// DefaultImageDigest identifies an image built outside a release pipeline.
const DefaultImageDigest = "dev-local"

// Evidence is a claim about the execution environment. Build a fresh value
// for every verification attempt.
type Evidence struct {
	ImageDigest  string `json:"image_digest"`
	PolicyDigest string `json:"policy_digest"`
	Simulated    bool   `json:"simulated"`
	Timestamp    int64  `json:"timestamp"`
	Nonce        string `json:"nonce"`
}

// Options configure BuildEvidence.
type Options struct {
	// ImageDigest defaults to DefaultImageDigest.
	ImageDigest string

	// Simulated marks evidence from a non-confidential environment.
	Simulated bool

	// Now overrides the clock in tests.
	Now func() time.Time
}

// DefaultOptions returns simulated options for the dev-local image.
func DefaultOptions() Options {
	return Options{ImageDigest: DefaultImageDigest, Simulated: true}
}

// BuildEvidence stamps the current time and a fresh UUIDv4 nonce.
func BuildEvidence(policyDigest string, opts Options) Evidence {
	image := opts.ImageDigest
	if image == "" {
		image = DefaultImageDigest
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	return Evidence{
		ImageDigest:  image,
		PolicyDigest: policyDigest,
		Simulated:    opts.Simulated,
		Timestamp:    now().Unix(),
		Nonce:        uuid.NewString(),
	}
}
