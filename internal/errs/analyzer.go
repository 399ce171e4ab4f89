package errs

import (
	"errors"
	"fmt"

	"github.com/roach88/shadowai/internal/ir"
)

// AnalyzerError wraps an LLM analyzer failure with its closed ir.ErrorKind
// classification, so call sites branch on the taxonomy rather than on
// string matching against provider error messages.
type AnalyzerError struct {
	Kind       ir.ErrorKind
	Signature  string
	RetryAfter string // provider-supplied retry hint, if any (e.g. "Retry-After" header)
	Err        error
}

func (e *AnalyzerError) Error() string {
	return fmt.Sprintf("analyzer: %s (signature=%s): %v", e.Kind, e.Signature, e.Err)
}

func (e *AnalyzerError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is an AnalyzerError whose kind is
// retried with backoff (§7).
func IsTransient(err error) bool {
	var ae *AnalyzerError
	if errors.As(err, &ae) {
		return ir.TransientErrorKinds[ae.Kind]
	}
	return false
}

// IsPermanent reports whether err is an AnalyzerError whose kind moves the
// signature to status=skipped without retry.
func IsPermanent(err error) bool {
	var ae *AnalyzerError
	if errors.As(err, &ae) {
		return ir.PermanentErrorKinds[ae.Kind]
	}
	return false
}

// IsSchemaError reports whether err is an AnalyzerError whose kind gets
// one error-aware retry before moving to needs_review.
func IsSchemaError(err error) bool {
	var ae *AnalyzerError
	if errors.As(err, &ae) {
		return ir.SchemaErrorKinds[ae.Kind]
	}
	return false
}
