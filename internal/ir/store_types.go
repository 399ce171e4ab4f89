package ir

import "time"

// PIIAudit is one append-only redaction event row (§3). Uses an
// auto-increment store ID since, unlike CanonicalEvent/Signature, PII audit
// rows have no content-addressed identity of their own — only the run and
// signature they belong to.
type PIIAudit struct {
	ID               int64     `json:"id"` // auto-increment (store-layer only)
	RunID            string    `json:"run_id"`
	Signature        string    `json:"signature"`
	Kind             PIIKind   `json:"kind"`
	FieldSource      string    `json:"field_source"`
	RedactionToken   string    `json:"redaction_token"`
	OriginalHash     string    `json:"original_hash"` // for audit traceability, not reversal
	OccurrenceCount  int64     `json:"occurrence_count"`
	RecordedAt       time.Time `json:"recorded_at"`
}
