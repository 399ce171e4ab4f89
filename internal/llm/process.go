package llm

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/shadowai/internal/errs"
	"github.com/roach88/shadowai/internal/ir"
	"github.com/roach88/shadowai/internal/taxonomy"
)

const maxSchemaAttempts = 2

// verdictEnvelope is the batch response shape: one verdict object per
// requested signature, in request order.
type verdictEnvelope struct {
	Verdicts []json.RawMessage `json:"verdicts"`
}

// ParseVerdicts splits a batch response into its per-signature verdict
// documents, still unvalidated.
func ParseVerdicts(raw []byte) ([]json.RawMessage, error) {
	var env verdictEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("llm: parse verdict envelope: %w", err)
	}
	return env.Verdicts, nil
}

// ApplyVerdict drives one signature through the state machine (§4.6) given
// a single verdict document: schema-validate, taxonomy-validate, then
// transition prior into its next Classification. A schema or taxonomy
// failure increments FailureCount and, after maxSchemaAttempts, downgrades
// to needs_review rather than retrying indefinitely.
func ApplyVerdict(validator *SchemaValidator, artifact *taxonomy.Artifact, prior ir.Classification, verdictRaw []byte, promptVersion string) ir.Classification {
	doc, err := validator.Validate(verdictRaw)
	if err != nil {
		return retrySchema(prior, err.Error())
	}

	next, err := decodeVerdict(doc)
	if err != nil {
		return retrySchema(prior, err.Error())
	}
	next.Signature = prior.Signature
	next.Source = ir.SourceLLM
	next.Pinned = prior.Pinned
	next.Pinned.Prompt = promptVersion
	next.IsHumanVerified = prior.IsHumanVerified

	if violations := artifact.Validate(next.Taxonomy); len(violations) > 0 {
		next.Status = ir.StatusNeedsReview
		next.ErrorKind = ir.ErrorKindSchemaViolation
		next.ErrorReason = fmt.Sprintf("%d taxonomy violation(s): %s", len(violations), violations[0].Message)
		next.FailureCount = prior.FailureCount + 1
		return next
	}

	next.Status = ir.StatusActive
	next.ErrorKind = ir.ErrorKindNone
	next.ErrorReason = ""
	next.RetryAfter = nil
	next.FailureCount = 0
	return next
}

func retrySchema(prior ir.Classification, reason string) ir.Classification {
	next := prior
	next.FailureCount = prior.FailureCount + 1
	next.ErrorKind = ir.ErrorKindSchemaViolation
	next.ErrorReason = reason
	if next.FailureCount >= maxSchemaAttempts {
		next.Status = ir.StatusNeedsReview
		return next
	}
	next.Status = ir.StatusActive
	return next
}

// ApplyError drives the state machine when the analyzer call itself fails
// (transport/API error, not a malformed body). Permanent errors skip the
// signature for good; transient errors leave it active with retry_after
// set; schema-kind transport errors (rare — a provider that 400s on a
// malformed request we sent) fall back to the same retry/needs_review path
// as a body-level schema violation.
func ApplyError(prior ir.Classification, err error) ir.Classification {
	next := prior
	kind := ir.ErrorKindNetwork
	reason := err.Error()
	var retryAfterHint string
	if ae, ok := asAnalyzerError(err); ok {
		kind = ae.Kind
		reason = ae.Error()
		retryAfterHint = ae.RetryAfter
	}

	switch {
	case errs.IsPermanent(err):
		next.Status = ir.StatusSkipped
		next.ErrorKind = kind
		next.ErrorReason = reason
		return next
	case errs.IsSchemaError(err):
		return retrySchema(prior, reason)
	case errs.IsTransient(err):
		next.Status = ir.StatusActive
		next.ErrorKind = kind
		next.ErrorReason = reason
		retryAt := time.Now().Add(backoffFor(prior.FailureCount, retryAfterHint))
		next.RetryAfter = &retryAt
		next.FailureCount = prior.FailureCount + 1
		return next
	default:
		next.Status = ir.StatusNeedsReview
		next.ErrorKind = kind
		next.ErrorReason = reason
		return next
	}
}

func asAnalyzerError(err error) (*errs.AnalyzerError, bool) {
	type unwrapper interface{ Unwrap() error }
	for e := err; e != nil; {
		if ae, ok := e.(*errs.AnalyzerError); ok {
			return ae, true
		}
		u, ok := e.(unwrapper)
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return nil, false
}

func decodeVerdict(doc map[string]any) (ir.Classification, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return ir.Classification{}, err
	}
	var c ir.Classification
	if err := json.Unmarshal(b, &c); err != nil {
		return ir.Classification{}, err
	}
	return c, nil
}
