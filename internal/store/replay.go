package store

import (
	"context"
	"fmt"

	"github.com/roach88/shadowai/internal/ir"
)

// ListRunsNeedingResume returns every run whose status indicates the
// orchestrator did not reach a terminal state — "running" (crashed
// mid-pipeline) or "partial" (a write-queue shutdown during a batch, per
// §4.1's failure modes) — ordered by start time so the oldest stalled run
// resumes first.
func (s *Store) ListRunsNeedingResume(ctx context.Context) ([]ir.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, run_key, started_at, finished_at, status, last_completed_stage,
		       input_manifest_hash, pinned_versions, taxonomy_artifact_version,
		       taxonomy_artifact_commit, aggregate_counters
		FROM runs
		WHERE status IN (?, ?)
		ORDER BY started_at ASC
	`, string(ir.RunStatusRunning), string(ir.RunStatusPartial))
	if err != nil {
		return nil, fmt.Errorf("list runs needing resume: %w", err)
	}
	defer rows.Close()

	out := []ir.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs needing resume: scan: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// ReplayRun returns every canonical event recorded for a run, ordered by
// timestamp then lineage hash, reproducing the order canonicalization
// would assign on a from-scratch run over the same input (§4.8 replay
// determinism). Used by the replay CLI subcommand to verify that two
// runs over the same manifest produce an identical event stream.
func (s *Store) ReplayRun(ctx context.Context, runID string) ([]ir.CanonicalEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, vendor, user_id, source_addr, dest_host, dest_registrable_domain,
		       url, normalized_path, normalized_query, method, action, bytes_up, bytes_down,
		       category_hint, lineage_hash
		FROM canonical_events
		WHERE run_id = ?
		ORDER BY timestamp ASC, lineage_hash COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("replay run: %w", err)
	}
	defer rows.Close()

	out := []ir.CanonicalEvent{}
	for rows.Next() {
		var ev ir.CanonicalEvent
		var action string
		if err := rows.Scan(&ev.Timestamp, &ev.Vendor, &ev.UserID, &ev.SourceAddr, &ev.DestHost,
			&ev.DestRegistrable, &ev.URL, &ev.NormalizedPath, &ev.NormalizedQuery, &ev.Method,
			&action, &ev.BytesUp, &ev.BytesDown, &ev.CategoryHint, &ev.LineageHash); err != nil {
			return nil, fmt.Errorf("replay run: scan: %w", err)
		}
		ev.Action = ir.ActionTag(action)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// EventCountForRun returns the number of canonical events recorded for a
// run, used by the orchestrator to compare a resumed run's ingestion
// stage output against the input manifest's line count.
func (s *Store) EventCountForRun(ctx context.Context, runID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM canonical_events WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("event count for run: %w", err)
	}
	return n, nil
}

// ListRuns returns every run in the store, most recently started first.
// Used by the inspect CLI subcommand.
func (s *Store) ListRuns(ctx context.Context) ([]ir.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, run_key, started_at, finished_at, status, last_completed_stage,
		       input_manifest_hash, pinned_versions, taxonomy_artifact_version,
		       taxonomy_artifact_commit, aggregate_counters
		FROM runs
		ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := []ir.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: scan: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
