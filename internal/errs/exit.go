package errs

import (
	"errors"
	"fmt"
)

// Exit codes for the shadowai CLI, mirroring the teacher's cli.ExitError
// convention.
const (
	ExitOK             = 0
	ExitFailure        = 1
	ExitUsageError     = 2
	ExitConfigError    = 3
	ExitStoreError     = 4
	ExitPartialSuccess = 5 // run completed with partial failures (§8 S8)
)

// ExitError carries the process exit code an error should produce.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError builds an ExitError with no underlying cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps err with an exit code and message.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// ExitCode extracts the process exit code from err, defaulting to
// ExitFailure when err is not an *ExitError.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ExitFailure
}
