package jobs

import (
	"fmt"
	"strings"
)

// FailureCode classifies why a job failed.
type FailureCode string

const (
	CodeInputDenied     FailureCode = "input_denied"
	CodeOutputDenied    FailureCode = "output_denied"
	CodeArtifactMissing FailureCode = "artifact_missing"
	CodeInvalidFilename FailureCode = "invalid_filename"
	CodeInferenceFailed FailureCode = "inference_failed"
	CodeTimeout         FailureCode = "timeout"
	CodeInternal        FailureCode = "internal"
)

// Failure is a per-job error that ends in the failed state. It is returned
// as a value from pipeline steps, never raised.
type Failure struct {
	Code    FailureCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return f.Message
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (f *Failure) Unwrap() error {
	return f.Cause
}

// Fail creates a Failure with a formatted message.
func Fail(code FailureCode, format string, args ...any) *Failure {
	return &Failure{Code: code, Message: fmt.Sprintf(format, args...)}
}

// PolicyDenied builds the failure for a denied decision. reasons are
// rendered as a bracketed list, e.g. "input policy denied: [file_too_large]".
func PolicyDenied(stage string, reasons []string) *Failure {
	code := CodeInputDenied
	if stage == "output" {
		code = CodeOutputDenied
	}
	return &Failure{
		Code:    code,
		Message: fmt.Sprintf("%s policy denied: [%s]", stage, strings.Join(reasons, ", ")),
	}
}
