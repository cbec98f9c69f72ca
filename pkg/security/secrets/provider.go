package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a provider that has no value for a name.
var ErrNotFound = errors.New("secret not found")

// SecretProvider retrieves signing keys and other secrets from a backend.
type SecretProvider interface {
	// GetSecret returns the value for name, or an error wrapping ErrNotFound.
	GetSecret(ctx context.Context, name string) (string, error)

	// Provider returns the provider kind ("env" or "file").
	Provider() string
}

// RefreshableProvider can drop cached values so rotated secrets are re-read.
type RefreshableProvider interface {
	SecretProvider
	Refresh(ctx context.Context) error
}
