package writer

// Op names the mutation kind carried by an Intent. Every op maps to a
// single UPSERT or INSERT statement in the canonical store (§4.1); there
// is no DELETE op — the pipeline is append/update only.
type Op string

const (
	OpUpsertEvent          Op = "upsert_event"
	OpUpsertSignature      Op = "upsert_signature"
	OpUpsertClassification Op = "upsert_classification"
	OpUpsertSignatureStats Op = "upsert_signature_stats"
	OpInsertPIIAudit       Op = "insert_pii_audit"
	OpCheckpointRun        Op = "checkpoint_run"
)

// Intent is one queued mutation. Record holds the typed payload (e.g.
// ir.CanonicalEvent, ir.Signature) for the given Op; the sink type-asserts
// it back out when applying.
type Intent struct {
	RunID   string
	BatchID string
	Op      Op
	Record  any
}
