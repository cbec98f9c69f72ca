package bundle

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign returns hex(HMAC-SHA256(key, raw)).
func Sign(key, raw []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(raw)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks raw against a hex signature in constant time.
// location is only used to annotate the returned *SignatureError.
func Verify(key, raw []byte, signature, location string) error {
	expected, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return &SignatureError{Location: location, Reason: "expected signature is not valid hex"}
	}

	mac := hmac.New(sha256.New, key)
	mac.Write(raw)
	if !hmac.Equal(mac.Sum(nil), expected) {
		return &SignatureError{Location: location, Reason: "signature mismatch"}
	}
	return nil
}
