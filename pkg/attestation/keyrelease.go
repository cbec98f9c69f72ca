package attestation

import "context"

// Placeholder key material returned by DevKeyReleaseClient.
const (
	DevKeyID      = "DEV-LOCAL-KEY"
	DevWrappedKey = "DEV_WRAPPED_KEY_PLACEHOLDER"
	DevAlgorithm  = "AES-256-GCM"
)

// KeyMaterial is a wrapped data key.
type KeyMaterial struct {
	KeyID      string `json:"key_id"`
	WrappedKey string `json:"wrapped_key"`
	Algorithm  string `json:"algorithm"`
}

// KeyReleaseClient exchanges evidence for key material. Implementations
// may assume the evidence was verified.
type KeyReleaseClient interface {
	RequestDataKey(ctx context.Context, ev Evidence) (KeyMaterial, error)
}

// DevKeyReleaseClient returns fixed placeholder material unconditionally.
type DevKeyReleaseClient struct{}

// RequestDataKey implements KeyReleaseClient.
func (DevKeyReleaseClient) RequestDataKey(ctx context.Context, _ Evidence) (KeyMaterial, error) {
	if err := ctx.Err(); err != nil {
		return KeyMaterial{}, err
	}
	return KeyMaterial{
		KeyID:      DevKeyID,
		WrappedKey: DevWrappedKey,
		Algorithm:  DevAlgorithm,
	}, nil
}
