package cli

import (
	"errors"
	"fmt"

	"github.com/jellywish/confidential-cat-counter/pkg/attestation"
	"github.com/jellywish/confidential-cat-counter/pkg/config"
	"github.com/jellywish/confidential-cat-counter/pkg/policy/bundle"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfigError = 2
)

// ConfigError represents an error in configuration.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("config error in %s: %s: %v", e.Field, e.Message, e.Cause)
	}
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string, cause error) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
		Cause:   cause,
	}
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}

// ExitCode maps an error to a process exit code. Startup refusals (invalid
// configuration, a bundle signature mismatch, a failed attestation) exit
// with ExitConfigError so orchestrators can tell them from crashes.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var cfgErr *ConfigError
	var validationErr config.ValidationError
	switch {
	case errors.As(err, &cfgErr),
		errors.As(err, &validationErr),
		bundle.IsSignatureError(err),
		attestation.IsGateError(err):
		return ExitConfigError
	}
	return ExitFailure
}
