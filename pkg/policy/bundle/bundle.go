package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jellywish/confidential-cat-counter/pkg/canonical"
)

const (
	// DefaultVersion is the version reported by the built-in bundle.
	DefaultVersion = "1.0"

	// DefaultMaxResponseSize bounds the canonical size of an inference result.
	DefaultMaxResponseSize = 2048

	// DefaultMaxCats is the highest count reported without redaction.
	DefaultMaxCats = 20

	// DefaultMaxUploadSize is the input size ceiling (25 MiB).
	DefaultMaxUploadSize int64 = 25 * 1024 * 1024
)

// DefaultForbiddenPatterns catch image payloads leaking into results:
// MIME prefixes, data URIs and the base64 magic of JPEG and PNG.
var DefaultForbiddenPatterns = []string{"image/", "data:", "/9j/", "iVBOR"}

// Bundle is the set of thresholds the decision engine evaluates against.
// A loaded bundle must be treated as read-only.
type Bundle struct {
	Version           string   `json:"version"`
	MaxResponseSize   int      `json:"max_response_size"`
	ForbiddenPatterns []string `json:"forbidden_patterns"`
	MinConfidence     float64  `json:"min_confidence"`
	MaxCats           int      `json:"max_cats"`
	MaxUploadSize     int64    `json:"max_upload_size"`
}

// Default returns the conservative built-in bundle.
func Default() *Bundle {
	patterns := make([]string, len(DefaultForbiddenPatterns))
	copy(patterns, DefaultForbiddenPatterns)

	return &Bundle{
		Version:           DefaultVersion,
		MaxResponseSize:   DefaultMaxResponseSize,
		ForbiddenPatterns: patterns,
		MinConfidence:     0.0,
		MaxCats:           DefaultMaxCats,
		MaxUploadSize:     DefaultMaxUploadSize,
	}
}

// rawBundle mirrors Bundle with pointer fields so absent keys can be told
// apart from explicit zero values.
type rawBundle struct {
	Version           *string   `json:"version"`
	MaxResponseSize   *int      `json:"max_response_size"`
	ForbiddenPatterns *[]string `json:"forbidden_patterns"`
	MinConfidence     *float64  `json:"min_confidence"`
	MaxCats           *int      `json:"max_cats"`
	MaxUploadSize     *int64    `json:"max_upload_size"`
}

// Parse decodes a JSON bundle. Absent fields take the Default values;
// a document that is not a JSON object, or has mistyped fields, is an error.
func Parse(data []byte) (*Bundle, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("bundle is not a JSON object")
	}

	var raw rawBundle
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid bundle JSON: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after bundle object")
	}

	b := Default()
	if raw.Version != nil {
		b.Version = *raw.Version
	}
	if raw.MaxResponseSize != nil {
		b.MaxResponseSize = *raw.MaxResponseSize
	}
	if raw.ForbiddenPatterns != nil {
		b.ForbiddenPatterns = append([]string{}, (*raw.ForbiddenPatterns)...)
	} else {
		b.ForbiddenPatterns = []string{}
	}
	if raw.MinConfidence != nil {
		b.MinConfidence = *raw.MinConfidence
	}
	if raw.MaxCats != nil {
		b.MaxCats = *raw.MaxCats
	}
	if raw.MaxUploadSize != nil && *raw.MaxUploadSize > 0 {
		b.MaxUploadSize = *raw.MaxUploadSize
	}

	return b, nil
}

// CanonicalBytes returns the canonical JSON encoding of b. The digest of a
// fallback bundle is computed over these bytes.
func CanonicalBytes(b *Bundle) ([]byte, error) {
	return canonical.Marshal(b)
}

// Digest returns the hex SHA-256 digest of raw bundle bytes.
func Digest(raw []byte) string {
	return canonical.HashBytes(raw)
}
