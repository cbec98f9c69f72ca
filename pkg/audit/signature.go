package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrInvalidSignature is returned by Verify when a record does not match
// its signature.
var ErrInvalidSignature = errors.New("audit record signature mismatch")

// Sign computes the hex HMAC-SHA256 signature of r's signing bytes.
func Sign(r Record, key []byte) (string, error) {
	body, err := r.SigningBytes()
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize audit record: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes r's signature with key and compares it in constant time.
func Verify(r Record, key []byte) error {
	got, err := hex.DecodeString(r.Signature)
	if err != nil || len(got) == 0 {
		return ErrInvalidSignature
	}

	body, err := r.SigningBytes()
	if err != nil {
		return fmt.Errorf("failed to canonicalize audit record: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), got) {
		return ErrInvalidSignature
	}
	return nil
}
