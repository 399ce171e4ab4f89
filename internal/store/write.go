package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/shadowai/internal/ir"
	"github.com/roach88/shadowai/internal/writer"
)

// EventRecord pairs a canonical event with the signature it produced, the
// payload carried by an OpUpsertEvent intent — ir.CanonicalEvent itself
// has no signature field since a signature is derived, not intrinsic to
// the event.
type EventRecord struct {
	Event     ir.CanonicalEvent
	Signature string
}

// ApplyBatch implements writer.Sink: every intent in batch is applied in
// one transaction, in enqueue order except that same-key duplicates are
// pre-deduplicated to their last occurrence (§4.1 rule 4) before the loop
// runs.
func (s *Store) ApplyBatch(ctx context.Context, batch []writer.Intent) error {
	deduped := dedupeByKey(batch)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("apply batch: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, intent := range deduped {
		if err := applyIntent(ctx, tx, intent); err != nil {
			return fmt.Errorf("apply batch: %s: %w", intent.Op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("apply batch: commit: %w", err)
	}
	return nil
}

func applyIntent(ctx context.Context, tx *sql.Tx, intent writer.Intent) error {
	switch intent.Op {
	case writer.OpUpsertEvent:
		rec, ok := intent.Record.(EventRecord)
		if !ok {
			return fmt.Errorf("record is %T, want EventRecord", intent.Record)
		}
		return upsertEvent(ctx, tx, intent.RunID, rec)
	case writer.OpUpsertSignature:
		sig, ok := intent.Record.(ir.Signature)
		if !ok {
			return fmt.Errorf("record is %T, want ir.Signature", intent.Record)
		}
		return upsertSignature(ctx, tx, sig)
	case writer.OpUpsertClassification:
		c, ok := intent.Record.(ir.Classification)
		if !ok {
			return fmt.Errorf("record is %T, want ir.Classification", intent.Record)
		}
		return upsertClassification(ctx, tx, c)
	case writer.OpUpsertSignatureStats:
		stats, ok := intent.Record.(ir.SignatureStats)
		if !ok {
			return fmt.Errorf("record is %T, want ir.SignatureStats", intent.Record)
		}
		return upsertSignatureStats(ctx, tx, stats)
	case writer.OpInsertPIIAudit:
		audit, ok := intent.Record.(ir.PIIAudit)
		if !ok {
			return fmt.Errorf("record is %T, want ir.PIIAudit", intent.Record)
		}
		return insertPIIAudit(ctx, tx, audit)
	case writer.OpCheckpointRun:
		run, ok := intent.Record.(ir.Run)
		if !ok {
			return fmt.Errorf("record is %T, want ir.Run", intent.Record)
		}
		return upsertRun(ctx, tx, run)
	default:
		return fmt.Errorf("unknown op %q", intent.Op)
	}
}

// conflictKey returns the conflict-target key for an intent so batch-level
// deduplication (§4.1 rule 4) can keep only the last occurrence per key.
// Ops with no natural single-row key (none currently) would fall through
// to the zero value, which is intentionally never reached.
func conflictKey(intent writer.Intent) (op writer.Op, key string) {
	switch rec := intent.Record.(type) {
	case EventRecord:
		return intent.Op, rec.Event.LineageHash
	case ir.Signature:
		return intent.Op, rec.Value
	case ir.Classification:
		return intent.Op, rec.Signature
	case ir.SignatureStats:
		return intent.Op, rec.RunID + "/" + rec.Signature
	case ir.PIIAudit:
		// append-only; every row is its own "key" via batch position so
		// none collapse into each other.
		return intent.Op, fmt.Sprintf("%p", &rec)
	case ir.Run:
		return intent.Op, rec.RunID
	default:
		return intent.Op, ""
	}
}

func dedupeByKey(batch []writer.Intent) []writer.Intent {
	type keyed struct {
		op  writer.Op
		key string
	}
	lastIndex := make(map[keyed]int, len(batch))
	for i, intent := range batch {
		op, key := conflictKey(intent)
		if _, isAudit := intent.Record.(ir.PIIAudit); isAudit {
			continue // append-only, never collapsed
		}
		lastIndex[keyed{op, key}] = i
	}

	keep := make(map[int]bool, len(lastIndex))
	for _, i := range lastIndex {
		keep[i] = true
	}

	out := make([]writer.Intent, 0, len(batch))
	for i, intent := range batch {
		if _, isAudit := intent.Record.(ir.PIIAudit); isAudit || keep[i] {
			out = append(out, intent)
		}
	}
	return out
}

func upsertEvent(ctx context.Context, tx *sql.Tx, runID string, rec EventRecord) error {
	ev := rec.Event
	_, err := tx.ExecContext(ctx, `
		INSERT INTO canonical_events
		(lineage_hash, run_id, timestamp, vendor, user_id, source_addr, dest_host,
		 dest_registrable_domain, url, normalized_path, normalized_query, method,
		 action, bytes_up, bytes_down, category_hint, signature)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(lineage_hash) DO NOTHING
	`,
		ev.LineageHash, runID, ev.Timestamp, ev.Vendor, ev.UserID, ev.SourceAddr, ev.DestHost,
		ev.DestRegistrable, ev.URL, ev.NormalizedPath, ev.NormalizedQuery, ev.Method,
		ev.Action, ev.BytesUp, ev.BytesDown, ev.CategoryHint, rec.Signature,
	)
	if err != nil {
		return fmt.Errorf("upsert event: %w", err)
	}
	return nil
}

func upsertSignature(ctx context.Context, tx *sql.Tx, sig ir.Signature) error {
	flagsJSON, err := marshalCandidateFlags(sig.CandidateFlags)
	if err != nil {
		return fmt.Errorf("upsert signature: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO signatures
		(value, scheme_version, normalized_host, path_template, path_depth,
		 param_count, auth_token_like, bytes_bucket, candidate_flags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(value) DO NOTHING
	`,
		sig.Value, sig.SchemeVersion, sig.NormalizedHost, sig.PathTemplate, sig.PathDepth,
		sig.ParamCount, sig.AuthTokenLike, string(sig.BytesBucket), flagsJSON,
	)
	if err != nil {
		return fmt.Errorf("upsert signature: %w", err)
	}
	return nil
}

// classificationUpdatableColumns is the allow-list from which an UPSERT's
// SET clause is built (§4.1 rule 2) — everything except the primary key
// (signature) and the immutable columns (is_human_verified, usage_type).
var classificationUpdatableColumns = []string{
	"service_name", "risk_level", "category", "confidence", "rationale",
	"source", "pinned_versions", "status", "error_kind", "error_reason",
	"retry_after", "failure_count", "taxonomy",
}

func upsertClassification(ctx context.Context, tx *sql.Tx, c ir.Classification) error {
	var existingHumanVerified bool
	err := tx.QueryRowContext(ctx, `SELECT is_human_verified FROM classifications WHERE signature = ?`, c.Signature).Scan(&existingHumanVerified)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("upsert classification: check human-verified: %w", err)
	}
	if existingHumanVerified {
		slog.Warn("upsert skipped: row is human-verified", "signature", c.Signature, "table", "classifications")
		return nil
	}

	pinnedJSON, err := marshalPinnedVersions(c.Pinned)
	if err != nil {
		return fmt.Errorf("upsert classification: %w", err)
	}
	taxonomyJSON, err := marshalTaxonomy(c.Taxonomy.Canonicalize())
	if err != nil {
		return fmt.Errorf("upsert classification: %w", err)
	}

	setClause := ""
	for i, col := range classificationUpdatableColumns {
		if i > 0 {
			setClause += ", "
		}
		setClause += col + " = excluded." + col
	}

	var retryAfter any
	if c.RetryAfter != nil {
		retryAfter = *c.RetryAfter
	}

	query := fmt.Sprintf(`
		INSERT INTO classifications
		(signature, service_name, usage_type, risk_level, category, confidence,
		 rationale, source, pinned_versions, status, is_human_verified,
		 error_kind, error_reason, retry_after, failure_count, taxonomy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(signature) DO UPDATE SET %s
	`, setClause)

	_, err = tx.ExecContext(ctx, query,
		c.Signature, c.ServiceName, c.UsageType, c.RiskLevel, c.Category, c.Confidence,
		c.Rationale, string(c.Source), pinnedJSON, string(c.Status), c.IsHumanVerified,
		string(c.ErrorKind), c.ErrorReason, retryAfter, c.FailureCount, taxonomyJSON,
	)
	if err != nil {
		return fmt.Errorf("upsert classification: %w", err)
	}
	return nil
}

func upsertSignatureStats(ctx context.Context, tx *sql.Tx, stats ir.SignatureStats) error {
	flagsJSON, err := marshalCandidateFlags(stats.CandidateFlags)
	if err != nil {
		return fmt.Errorf("upsert signature stats: %w", err)
	}
	echoJSON, err := marshalTaxonomy(stats.TaxonomyEcho.Canonicalize())
	if err != nil {
		return fmt.Errorf("upsert signature stats: %w", err)
	}
	// Signature statistics are never updated after the run finishes (§3):
	// insert-only, conflicts are silently ignored rather than merged.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO signature_stats
		(run_id, signature, access_count, unique_user_count, bytes_up_sum,
		 bytes_up_max, bytes_up_p95, burst_max_5min, daily_cumulative_max,
		 candidate_flags, sampled, taxonomy_echo)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, signature) DO NOTHING
	`,
		stats.RunID, stats.Signature, stats.AccessCount, stats.UniqueUserCount, stats.BytesUpSum,
		stats.BytesUpMax, stats.BytesUpP95, stats.BurstMax5Min, stats.DailyCumulativeMax,
		flagsJSON, stats.Sampled, echoJSON,
	)
	if err != nil {
		return fmt.Errorf("upsert signature stats: %w", err)
	}
	return nil
}

func insertPIIAudit(ctx context.Context, tx *sql.Tx, audit ir.PIIAudit) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO pii_audit
		(run_id, signature, kind, field_source, redaction_token, original_hash,
		 occurrence_count, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		audit.RunID, audit.Signature, string(audit.Kind), audit.FieldSource, audit.RedactionToken,
		audit.OriginalHash, audit.OccurrenceCount, audit.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pii audit: %w", err)
	}
	return nil
}

// runUpdatableColumns excludes the immutable "status" and "started_at"
// columns named in §4.1's immutable-columns rule.
var runUpdatableColumns = []string{
	"finished_at", "last_completed_stage", "input_manifest_hash",
	"pinned_versions", "taxonomy_artifact_version", "taxonomy_artifact_commit",
	"aggregate_counters",
}

func upsertRun(ctx context.Context, tx *sql.Tx, run ir.Run) error {
	var existingStatus string
	err := tx.QueryRowContext(ctx, `SELECT status FROM runs WHERE run_id = ?`, run.RunID).Scan(&existingStatus)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("checkpoint run: check existing: %w", err)
	}
	isNew := err == sql.ErrNoRows

	pinnedJSON, err := marshalPinnedVersions(run.Pinned)
	if err != nil {
		return fmt.Errorf("checkpoint run: %w", err)
	}
	countersJSON, err := marshalAggregateCounters(run.AggregateCounters)
	if err != nil {
		return fmt.Errorf("checkpoint run: %w", err)
	}

	var finishedAt any
	if run.FinishedAt != nil {
		finishedAt = *run.FinishedAt
	}

	status := string(run.Status)
	if !isNew {
		// status is immutable via UPSERT; only the orchestrator's explicit
		// terminal-transition call changes it (see runStatusTransition).
		status = existingStatus
	}

	setClause := ""
	for i, col := range runUpdatableColumns {
		if i > 0 {
			setClause += ", "
		}
		setClause += col + " = excluded." + col
	}

	query := fmt.Sprintf(`
		INSERT INTO runs
		(run_id, run_key, started_at, finished_at, status, last_completed_stage,
		 input_manifest_hash, pinned_versions, taxonomy_artifact_version,
		 taxonomy_artifact_commit, aggregate_counters)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET %s
	`, setClause)

	_, err = tx.ExecContext(ctx, query,
		run.RunID, run.RunKey, run.StartedAt, finishedAt, status, string(run.LastCompletedStage),
		run.InputManifestHash, pinnedJSON, run.TaxonomyArtifactVersion, run.TaxonomyArtifactCommit,
		countersJSON,
	)
	if err != nil {
		return fmt.Errorf("checkpoint run: %w", err)
	}
	return nil
}

// TransitionRunStatus is the one path allowed to change runs.status, since
// status is immutable under the general UPSERT contract — the orchestrator
// calls this explicitly at a run's terminal transition, never through the
// writer queue's checkpoint intent. finishedAt is recorded alongside a
// terminal status; pass nil for a non-terminal transition.
func (s *Store) TransitionRunStatus(ctx context.Context, runID string, status ir.RunStatus, finishedAt *time.Time) error {
	var finished any
	if finishedAt != nil {
		finished = *finishedAt
	}
	_, err := s.db.ExecContext(ctx, `UPDATE runs SET status = ?, finished_at = COALESCE(?, finished_at) WHERE run_id = ?`,
		string(status), finished, runID)
	if err != nil {
		return fmt.Errorf("transition run status: %w", err)
	}
	return nil
}
