package errs

import (
	"errors"
	"fmt"

	"github.com/roach88/shadowai/internal/ir"
)

// PipelineErrorCode categorizes a run-level failure.
type PipelineErrorCode string

const (
	// ErrCodePSLUnavailable indicates the PSL snapshot is missing or
	// unparseable — fatal at orchestrator startup, never per-row (§4.2).
	ErrCodePSLUnavailable PipelineErrorCode = "PSL_UNAVAILABLE"

	// ErrCodeRuleSetInvalid indicates the CUE rule set failed to load.
	ErrCodeRuleSetInvalid PipelineErrorCode = "RULE_SET_INVALID"

	// ErrCodeStoreUnavailable indicates the canonical store could not be
	// opened or migrated.
	ErrCodeStoreUnavailable PipelineErrorCode = "STORE_UNAVAILABLE"

	// ErrCodeHumanVerifiedConflict indicates an UPSERT attempted to
	// overwrite a human-verified classification; this is logged and
	// skipped, not fatal, but is surfaced through this code for audit.
	ErrCodeHumanVerifiedConflict PipelineErrorCode = "HUMAN_VERIFIED_CONFLICT"

	// ErrCodeEvidenceIncomplete indicates the evidence bundle failed its
	// own internal validation before the run could report success.
	ErrCodeEvidenceIncomplete PipelineErrorCode = "EVIDENCE_INCOMPLETE"

	// ErrCodeLockHeld indicates another process already holds the run
	// lock for this store directory.
	ErrCodeLockHeld PipelineErrorCode = "LOCK_HELD"
)

// PipelineError is a structured run-level failure, attributed to the
// pipeline stage it occurred in.
type PipelineError struct {
	Code  PipelineErrorCode
	Stage ir.Stage
	RunID string
	Err   error
}

func (e *PipelineError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("%s: stage=%s run=%s: %v", e.Code, e.Stage, e.RunID, e.Err)
	}
	return fmt.Sprintf("%s: stage=%s: %v", e.Code, e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError builds a PipelineError wrapping err.
func NewPipelineError(code PipelineErrorCode, stage ir.Stage, runID string, err error) *PipelineError {
	return &PipelineError{Code: code, Stage: stage, RunID: runID, Err: err}
}

// IsCode reports whether err is a PipelineError with the given code.
func IsCode(err error, code PipelineErrorCode) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}
