package bundle

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by a Source when no bundle exists at its location.
// The loader treats it as "use defaults", not as a failure.
var ErrNotFound = errors.New("policy bundle not found")

// LoadError describes a failure to read bundle bytes from a source.
type LoadError struct {
	// Location is the file path or repository reference.
	Location string

	// Message describes the error.
	Message string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load policy bundle %q: %s: %v", e.Location, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load policy bundle %q: %s", e.Location, e.Message)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// SignatureError is a fatal configuration error: the bundle bytes do not
// match the configured signature, or a signed bundle could not be read.
type SignatureError struct {
	Location string
	Reason   string
	Cause    error
}

// Error implements the error interface.
func (e *SignatureError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("policy bundle signature verification failed for %q: %s: %v", e.Location, e.Reason, e.Cause)
	}
	return fmt.Sprintf("policy bundle signature verification failed for %q: %s", e.Location, e.Reason)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *SignatureError) Unwrap() error {
	return e.Cause
}

// IsSignatureError reports whether err is or wraps a *SignatureError.
func IsSignatureError(err error) bool {
	var sigErr *SignatureError
	return errors.As(err, &sigErr)
}
