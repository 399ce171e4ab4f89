package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/shadowai/internal/ir"
)

// GetClassification returns the classification for a signature, or
// (Classification{}, false, nil) if none exists yet.
func (s *Store) GetClassification(ctx context.Context, signature string) (ir.Classification, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT signature, service_name, usage_type, risk_level, category, confidence,
		       rationale, source, pinned_versions, status, is_human_verified,
		       error_kind, error_reason, retry_after, failure_count, taxonomy
		FROM classifications WHERE signature = ?
	`, signature)

	c, err := scanClassification(row)
	if err == sql.ErrNoRows {
		return ir.Classification{}, false, nil
	}
	if err != nil {
		return ir.Classification{}, false, fmt.Errorf("get classification: %w", err)
	}
	return c, true, nil
}

// ListPendingForLLM returns every classification eligible for the LLM
// analyzer (§4.6): status=active, not human-verified, and whose
// retry_after (if any) has elapsed. Ordered by signature for deterministic
// batch composition across runs given the same underlying table state.
func (s *Store) ListPendingForLLM(ctx context.Context, asOf time.Time) ([]ir.Classification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT signature, service_name, usage_type, risk_level, category, confidence,
		       rationale, source, pinned_versions, status, is_human_verified,
		       error_kind, error_reason, retry_after, failure_count, taxonomy
		FROM classifications
		WHERE status = ? AND is_human_verified = 0
		  AND (retry_after IS NULL OR retry_after <= ?)
		ORDER BY signature ASC
	`, string(ir.StatusActive), asOf)
	if err != nil {
		return nil, fmt.Errorf("list pending for llm: %w", err)
	}
	defer rows.Close()

	out := []ir.Classification{}
	for rows.Next() {
		c, err := scanClassification(rows)
		if err != nil {
			return nil, fmt.Errorf("list pending for llm: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetSignature returns a signature record by its value, or
// (Signature{}, false, nil) if none exists. Every later stage that needs a
// signature's host/path/bucket fields reads it back through here rather
// than carrying it in memory from the stage that first derived it, since a
// resumed run re-enters a later stage in a fresh process with no shared
// state from the one that committed it.
func (s *Store) GetSignature(ctx context.Context, value string) (ir.Signature, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT value, scheme_version, normalized_host, path_template, path_depth,
		       param_count, auth_token_like, bytes_bucket, candidate_flags
		FROM signatures WHERE value = ?
	`, value)

	var sig ir.Signature
	var bytesBucket, flagsJSON string
	err := row.Scan(&sig.Value, &sig.SchemeVersion, &sig.NormalizedHost, &sig.PathTemplate,
		&sig.PathDepth, &sig.ParamCount, &sig.AuthTokenLike, &bytesBucket, &flagsJSON)
	if err == sql.ErrNoRows {
		return ir.Signature{}, false, nil
	}
	if err != nil {
		return ir.Signature{}, false, fmt.Errorf("get signature: %w", err)
	}
	sig.BytesBucket = ir.BytesBucket(bytesBucket)

	flags, err := unmarshalCandidateFlags(flagsJSON)
	if err != nil {
		return ir.Signature{}, false, fmt.Errorf("get signature: %w", err)
	}
	sig.CandidateFlags = flags

	return sig, true, nil
}

// EventMeta is the subset of a canonical event a later stage needs to build
// an LLM payload item or match a rule, without pulling the full event
// record (dest host, bytes, user id) back out of the store.
type EventMeta struct {
	DestRegistrable string
	CategoryHint    string
}

// RepresentativeEventMeta returns one representative EventMeta for a
// signature within a run — any row suffices, since destination domain and
// category hint are treated as constant across every event sharing a
// signature. Returns (EventMeta{}, false, nil) if the run recorded no event
// for this signature.
func (s *Store) RepresentativeEventMeta(ctx context.Context, runID, signature string) (EventMeta, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT dest_registrable_domain, category_hint
		FROM canonical_events WHERE run_id = ? AND signature = ? LIMIT 1
	`, runID, signature)

	var meta EventMeta
	err := row.Scan(&meta.DestRegistrable, &meta.CategoryHint)
	if err == sql.ErrNoRows {
		return EventMeta{}, false, nil
	}
	if err != nil {
		return EventMeta{}, false, fmt.Errorf("representative event meta: %w", err)
	}
	return meta, true, nil
}

// SelectionEventRow is the subset of a canonical event the candidate
// selector needs, read back from the store rather than threaded through
// in-process state so the selection stage is resumable on its own.
type SelectionEventRow struct {
	Signature       string
	UserID          string
	DestRegistrable string
	Timestamp       time.Time
	Method          string
	BytesUp         int64
	CategoryHint    string
}

// ListEventsForSelection returns every canonical event recorded for a run,
// in the shape the candidate selector consumes. Order is not significant —
// Select's aggregation is defined to be order-independent.
func (s *Store) ListEventsForSelection(ctx context.Context, runID string) ([]SelectionEventRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT signature, user_id, dest_registrable_domain, timestamp, method, bytes_up, category_hint
		FROM canonical_events WHERE run_id = ?
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list events for selection: %w", err)
	}
	defer rows.Close()

	out := []SelectionEventRow{}
	for rows.Next() {
		var r SelectionEventRow
		if err := rows.Scan(&r.Signature, &r.UserID, &r.DestRegistrable, &r.Timestamp, &r.Method, &r.BytesUp, &r.CategoryHint); err != nil {
			return nil, fmt.Errorf("list events for selection: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRun returns a run record, or (Run{}, false, nil) if none exists.
func (s *Store) GetRun(ctx context.Context, runID string) (ir.Run, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, run_key, started_at, finished_at, status, last_completed_stage,
		       input_manifest_hash, pinned_versions, taxonomy_artifact_version,
		       taxonomy_artifact_commit, aggregate_counters
		FROM runs WHERE run_id = ?
	`, runID)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return ir.Run{}, false, nil
	}
	if err != nil {
		return ir.Run{}, false, fmt.Errorf("get run: %w", err)
	}
	return run, true, nil
}

// GetRunByKey returns the run with the given run key, supporting the
// orchestrator's idempotent-resume lookup (§4.8): two runs with the same
// key are interchangeable, so a prior run under this key means resume,
// not recreate.
func (s *Store) GetRunByKey(ctx context.Context, runKey string) (ir.Run, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, run_key, started_at, finished_at, status, last_completed_stage,
		       input_manifest_hash, pinned_versions, taxonomy_artifact_version,
		       taxonomy_artifact_commit, aggregate_counters
		FROM runs WHERE run_key = ?
	`, runKey)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return ir.Run{}, false, nil
	}
	if err != nil {
		return ir.Run{}, false, fmt.Errorf("get run by key: %w", err)
	}
	return run, true, nil
}

// ListSignatureStats returns every signature-statistics row recorded for
// a run, ordered by signature.
func (s *Store) ListSignatureStats(ctx context.Context, runID string) ([]ir.SignatureStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, signature, access_count, unique_user_count, bytes_up_sum,
		       bytes_up_max, bytes_up_p95, burst_max_5min, daily_cumulative_max,
		       candidate_flags, sampled, taxonomy_echo
		FROM signature_stats WHERE run_id = ? ORDER BY signature ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list signature stats: %w", err)
	}
	defer rows.Close()

	out := []ir.SignatureStats{}
	for rows.Next() {
		var stats ir.SignatureStats
		var flagsJSON, echoJSON string
		if err := rows.Scan(&stats.RunID, &stats.Signature, &stats.AccessCount, &stats.UniqueUserCount,
			&stats.BytesUpSum, &stats.BytesUpMax, &stats.BytesUpP95, &stats.BurstMax5Min,
			&stats.DailyCumulativeMax, &flagsJSON, &stats.Sampled, &echoJSON); err != nil {
			return nil, fmt.Errorf("list signature stats: scan: %w", err)
		}
		flags, err := unmarshalCandidateFlags(flagsJSON)
		if err != nil {
			return nil, fmt.Errorf("list signature stats: %w", err)
		}
		echo, err := unmarshalTaxonomy(echoJSON)
		if err != nil {
			return nil, fmt.Errorf("list signature stats: %w", err)
		}
		stats.CandidateFlags = flags
		stats.TaxonomyEcho = echo
		out = append(out, stats)
	}
	return out, rows.Err()
}

// PIIAuditCount returns the number of PII audit rows recorded for a run,
// used by the evidence emitter's self-validation pass.
func (s *Store) PIIAuditCount(ctx context.Context, runID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pii_audit WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pii audit count: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClassification(row rowScanner) (ir.Classification, error) {
	var c ir.Classification
	var source, status, errorKind string
	var pinnedJSON, taxonomyJSON string
	var retryAfter sql.NullTime
	var isHumanVerified bool

	err := row.Scan(&c.Signature, &c.ServiceName, &c.UsageType, &c.RiskLevel, &c.Category,
		&c.Confidence, &c.Rationale, &source, &pinnedJSON, &status, &isHumanVerified,
		&errorKind, &c.ErrorReason, &retryAfter, &c.FailureCount, &taxonomyJSON)
	if err != nil {
		return ir.Classification{}, err
	}

	c.Source = ir.SourceTag(source)
	c.Status = ir.ClassificationStatus(status)
	c.ErrorKind = ir.ErrorKind(errorKind)
	c.IsHumanVerified = isHumanVerified
	if retryAfter.Valid {
		c.RetryAfter = &retryAfter.Time
	}

	pinned, err := unmarshalPinnedVersions(pinnedJSON)
	if err != nil {
		return ir.Classification{}, fmt.Errorf("unmarshal pinned versions: %w", err)
	}
	c.Pinned = pinned

	taxonomy, err := unmarshalTaxonomy(taxonomyJSON)
	if err != nil {
		return ir.Classification{}, fmt.Errorf("unmarshal taxonomy: %w", err)
	}
	c.Taxonomy = taxonomy

	return c, nil
}

func scanRun(row rowScanner) (ir.Run, error) {
	var run ir.Run
	var status, stage string
	var finishedAt sql.NullTime
	var pinnedJSON, countersJSON string

	err := row.Scan(&run.RunID, &run.RunKey, &run.StartedAt, &finishedAt, &status, &stage,
		&run.InputManifestHash, &pinnedJSON, &run.TaxonomyArtifactVersion,
		&run.TaxonomyArtifactCommit, &countersJSON)
	if err != nil {
		return ir.Run{}, err
	}

	run.Status = ir.RunStatus(status)
	run.LastCompletedStage = ir.Stage(stage)
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}

	pinned, err := unmarshalPinnedVersions(pinnedJSON)
	if err != nil {
		return ir.Run{}, fmt.Errorf("unmarshal pinned versions: %w", err)
	}
	run.Pinned = pinned

	counters, err := unmarshalAggregateCounters(countersJSON)
	if err != nil {
		return ir.Run{}, fmt.Errorf("unmarshal aggregate counters: %w", err)
	}
	run.AggregateCounters = counters

	return run, nil
}
