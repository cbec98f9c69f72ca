package bundle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Origin says where the bundle in effect came from.
type Origin string

const (
	// OriginSource means the bundle was parsed from the configured source.
	OriginSource Origin = "source"

	// OriginDefault means no source was configured.
	OriginDefault Origin = "default"

	// OriginFallbackMissing means the source had no bundle.
	OriginFallbackMissing Origin = "fallback_missing"

	// OriginFallbackInvalid means the source bundle did not parse.
	OriginFallbackInvalid Origin = "fallback_invalid"

	// OriginFallbackUnreadable means the source failed for a reason other
	// than a missing bundle.
	OriginFallbackUnreadable Origin = "fallback_unreadable"
)

// Provenance records how the bundle in effect was obtained.
type Provenance struct {
	Origin   Origin
	Location string
	Signed   bool
	Digest   string
}

// Options configure a Loader.
type Options struct {
	// Source is where the bundle bytes come from. Nil means defaults.
	Source Source

	// HMACKey and Signature enable signature verification when both are set.
	HMACKey   []byte
	Signature string

	Logger *slog.Logger
}

// Loader loads a bundle once and caches the result for the process lifetime.
type Loader struct {
	opts   Options
	logger *slog.Logger

	mu         sync.Mutex
	loaded     bool
	bundle     *Bundle
	digest     string
	provenance Provenance
}

// NewLoader creates a Loader. Supplying exactly one of HMACKey and Signature
// is rejected.
func NewLoader(opts Options) (*Loader, error) {
	hasKey := len(opts.HMACKey) > 0
	hasSig := opts.Signature != ""
	if hasKey != hasSig {
		return nil, fmt.Errorf("policy bundle signing requires both an HMAC key and a signature")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Loader{
		opts:   opts,
		logger: logger.With("component", "policy.bundle"),
	}, nil
}

// Load returns the bundle in effect and its hex SHA-256 digest. The first
// successful call fixes the result; later calls return it unchanged.
func (l *Loader) Load(ctx context.Context) (*Bundle, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.loaded {
		return l.bundle, l.digest, nil
	}

	b, digest, prov, err := l.load(ctx)
	if err != nil {
		return nil, "", err
	}

	l.bundle = b
	l.digest = digest
	l.provenance = prov
	l.loaded = true

	l.logger.Info("policy bundle loaded",
		"version", b.Version,
		"digest", digest,
		"origin", prov.Origin,
		"location", prov.Location,
		"signed", prov.Signed,
	)

	return b, digest, nil
}

// Provenance returns how the cached bundle was obtained. It is the zero
// value until Load succeeds.
func (l *Loader) Provenance() Provenance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.provenance
}

func (l *Loader) signed() bool {
	return len(l.opts.HMACKey) > 0 && l.opts.Signature != ""
}

func (l *Loader) load(ctx context.Context) (*Bundle, string, Provenance, error) {
	if l.opts.Source == nil {
		if l.signed() {
			return nil, "", Provenance{}, &SignatureError{Reason: "signature configured but no bundle source"}
		}
		b, digest, err := defaultWithDigest()
		return b, digest, Provenance{Origin: OriginDefault, Digest: digest}, err
	}

	location := l.opts.Source.Location()

	raw, err := l.opts.Source.Fetch(ctx)
	if err != nil {
		if l.signed() {
			return nil, "", Provenance{}, &SignatureError{
				Location: location,
				Reason:   "signed bundle could not be read",
				Cause:    err,
			}
		}
		if errors.Is(err, ErrNotFound) {
			l.logger.Warn("policy bundle not found, using defaults", "location", location)
			b, digest, derr := defaultWithDigest()
			return b, digest, Provenance{Origin: OriginFallbackMissing, Location: location, Digest: digest}, derr
		}
		l.logger.Warn("policy bundle could not be read, using defaults",
			"location", location,
			"error", err,
		)
		b, digest, derr := defaultWithDigest()
		return b, digest, Provenance{Origin: OriginFallbackUnreadable, Location: location, Digest: digest}, derr
	}

	if l.signed() {
		if err := Verify(l.opts.HMACKey, raw, l.opts.Signature, location); err != nil {
			return nil, "", Provenance{}, err
		}
	}

	b, err := Parse(raw)
	if err != nil {
		l.logger.Warn("policy bundle did not parse, using defaults",
			"location", location,
			"error", err,
		)
		b, digest, derr := defaultWithDigest()
		return b, digest, Provenance{
			Origin:   OriginFallbackInvalid,
			Location: location,
			Signed:   l.signed(),
			Digest:   digest,
		}, derr
	}

	digest := Digest(raw)
	return b, digest, Provenance{
		Origin:   OriginSource,
		Location: location,
		Signed:   l.signed(),
		Digest:   digest,
	}, nil
}

func defaultWithDigest() (*Bundle, string, error) {
	b := Default()
	raw, err := CanonicalBytes(b)
	if err != nil {
		return nil, "", fmt.Errorf("failed to canonicalize default bundle: %w", err)
	}
	return b, Digest(raw), nil
}
