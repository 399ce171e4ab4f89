package store

import (
	"context"
	"testing"
	"time"

	"github.com/roach88/shadowai/internal/ir"
	"github.com/roach88/shadowai/internal/writer"
)

func TestGetClassification_NotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, found, err := s.GetClassification(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("GetClassification() failed: %v", err)
	}
	if found {
		t.Error("expected not found")
	}
}

func TestListPendingForLLM_ExcludesHumanVerifiedAndSkipped(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	active := testClassification("sig-active")
	humanVerified := testClassification("sig-hv")
	humanVerified.IsHumanVerified = true
	skipped := testClassification("sig-skipped")
	skipped.Status = ir.StatusSkipped

	for _, c := range []ir.Classification{active, humanVerified, skipped} {
		sig := testSignature(c.Signature)
		batch := []writer.Intent{
			intent(writer.OpUpsertSignature, "", sig),
			intent(writer.OpUpsertClassification, "", c),
		}
		if err := s.ApplyBatch(ctx, batch); err != nil {
			t.Fatalf("ApplyBatch() for %q failed: %v", c.Signature, err)
		}
	}

	pending, err := s.ListPendingForLLM(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("ListPendingForLLM() failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Signature != "sig-active" {
		t.Errorf("ListPendingForLLM() = %+v, want only sig-active", pending)
	}
}

func TestListPendingForLLM_ExcludesFutureRetryAfter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	future := time.Now().UTC().Add(time.Hour)
	waiting := testClassification("sig-waiting")
	waiting.RetryAfter = &future

	ready := testClassification("sig-ready")
	past := time.Now().UTC().Add(-time.Minute)
	ready.RetryAfter = &past

	for _, c := range []ir.Classification{waiting, ready} {
		sig := testSignature(c.Signature)
		batch := []writer.Intent{
			intent(writer.OpUpsertSignature, "", sig),
			intent(writer.OpUpsertClassification, "", c),
		}
		if err := s.ApplyBatch(ctx, batch); err != nil {
			t.Fatalf("ApplyBatch() for %q failed: %v", c.Signature, err)
		}
	}

	pending, err := s.ListPendingForLLM(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("ListPendingForLLM() failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Signature != "sig-ready" {
		t.Errorf("ListPendingForLLM() = %+v, want only sig-ready", pending)
	}
}

func TestListPendingForLLM_OrderedBySignature(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, sigValue := range []string{"sig-c", "sig-a", "sig-b"} {
		sig := testSignature(sigValue)
		c := testClassification(sigValue)
		batch := []writer.Intent{
			intent(writer.OpUpsertSignature, "", sig),
			intent(writer.OpUpsertClassification, "", c),
		}
		if err := s.ApplyBatch(ctx, batch); err != nil {
			t.Fatalf("ApplyBatch() for %q failed: %v", sigValue, err)
		}
	}

	pending, err := s.ListPendingForLLM(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("ListPendingForLLM() failed: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("ListPendingForLLM() returned %d, want 3", len(pending))
	}
	want := []string{"sig-a", "sig-b", "sig-c"}
	for i, c := range pending {
		if c.Signature != want[i] {
			t.Errorf("pending[%d] = %q, want %q", i, c.Signature, want[i])
		}
	}
}

func TestGetRun_NotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, found, err := s.GetRun(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	if found {
		t.Error("expected not found")
	}
}

func TestGetRunByKey_FindsResumeCandidate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := testRun("run-resume")
	if err := s.ApplyBatch(ctx, []writer.Intent{intent(writer.OpCheckpointRun, run.RunID, run)}); err != nil {
		t.Fatalf("ApplyBatch() failed: %v", err)
	}

	got, found, err := s.GetRunByKey(ctx, run.RunKey)
	if err != nil || !found {
		t.Fatalf("GetRunByKey() = %v, %v, %v", got, found, err)
	}
	if got.RunID != run.RunID {
		t.Errorf("RunID = %q, want %q", got.RunID, run.RunID)
	}
}

func TestListSignatureStats_Empty(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stats, err := s.ListSignatureStats(ctx, "no-such-run")
	if err != nil {
		t.Fatalf("ListSignatureStats() failed: %v", err)
	}
	if len(stats) != 0 {
		t.Errorf("ListSignatureStats() = %+v, want empty", stats)
	}
}

func TestPIIAuditCount_Zero(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n, err := s.PIIAuditCount(ctx, "no-such-run")
	if err != nil {
		t.Fatalf("PIIAuditCount() failed: %v", err)
	}
	if n != 0 {
		t.Errorf("PIIAuditCount() = %d, want 0", n)
	}
}

func TestGetSignature_NotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, found, err := s.GetSignature(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("GetSignature() failed: %v", err)
	}
	if found {
		t.Error("expected not found")
	}
}

func TestGetSignature_RoundTrips(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sig := testSignature("sig-round-trip")
	sig.CandidateFlags = []ir.CandidateFlag{ir.CandidateA, ir.CandidateC}
	if err := s.ApplyBatch(ctx, []writer.Intent{intent(writer.OpUpsertSignature, "", sig)}); err != nil {
		t.Fatalf("ApplyBatch() failed: %v", err)
	}

	got, found, err := s.GetSignature(ctx, sig.Value)
	if err != nil || !found {
		t.Fatalf("GetSignature() = %v, %v, %v", got, found, err)
	}
	if got.NormalizedHost != sig.NormalizedHost || got.PathTemplate != sig.PathTemplate {
		t.Errorf("GetSignature() = %+v, want host/path from %+v", got, sig)
	}
	if len(got.CandidateFlags) != 2 {
		t.Errorf("GetSignature() CandidateFlags = %v, want 2 flags", got.CandidateFlags)
	}
}

func TestRepresentativeEventMeta_NotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, found, err := s.RepresentativeEventMeta(ctx, "no-such-run", "no-such-sig")
	if err != nil {
		t.Fatalf("RepresentativeEventMeta() failed: %v", err)
	}
	if found {
		t.Error("expected not found")
	}
}

func TestListEventsForSelection_Empty(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rows, err := s.ListEventsForSelection(ctx, "no-such-run")
	if err != nil {
		t.Fatalf("ListEventsForSelection() failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("ListEventsForSelection() = %+v, want empty", rows)
	}
}

func TestListEventsForSelection_ReturnsSelectorShapedRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := testRun("run-selection")
	sig := testSignature("sig-selection")
	ts := time.Now().UTC().Truncate(time.Second)
	ev := EventRecord{
		Event: ir.CanonicalEvent{
			Timestamp:       ts,
			Vendor:          "zscaler",
			UserID:          "u-1",
			DestHost:        "api.example.com",
			DestRegistrable: "example.com",
			Method:          "POST",
			BytesUp:         4096,
			CategoryHint:    "AI",
			LineageHash:     "lineage-selection",
		},
		Signature: sig.Value,
	}

	batch := []writer.Intent{
		intent(writer.OpCheckpointRun, run.RunID, run),
		intent(writer.OpUpsertSignature, run.RunID, sig),
		intent(writer.OpUpsertEvent, run.RunID, ev),
	}
	if err := s.ApplyBatch(ctx, batch); err != nil {
		t.Fatalf("ApplyBatch() failed: %v", err)
	}

	rows, err := s.ListEventsForSelection(ctx, run.RunID)
	if err != nil {
		t.Fatalf("ListEventsForSelection() failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("ListEventsForSelection() = %+v, want 1 row", rows)
	}
	got := rows[0]
	if got.Signature != sig.Value || got.UserID != "u-1" || got.DestRegistrable != "example.com" ||
		got.Method != "POST" || got.BytesUp != 4096 || got.CategoryHint != "AI" || !got.Timestamp.Equal(ts) {
		t.Errorf("ListEventsForSelection() row = %+v, want fields from %+v", got, ev.Event)
	}
}

func TestRepresentativeEventMeta_ReturnsDestAndHint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := testRun("run-meta")
	sig := testSignature("sig-meta")
	ev := EventRecord{
		Event: ir.CanonicalEvent{
			Timestamp:       time.Now().UTC(),
			Vendor:          "zscaler",
			DestHost:        "api.example.com",
			DestRegistrable: "example.com",
			CategoryHint:    "AI",
			LineageHash:     "lineage-meta",
		},
		Signature: sig.Value,
	}

	batch := []writer.Intent{
		intent(writer.OpCheckpointRun, run.RunID, run),
		intent(writer.OpUpsertSignature, run.RunID, sig),
		intent(writer.OpUpsertEvent, run.RunID, ev),
	}
	if err := s.ApplyBatch(ctx, batch); err != nil {
		t.Fatalf("ApplyBatch() failed: %v", err)
	}

	meta, found, err := s.RepresentativeEventMeta(ctx, run.RunID, sig.Value)
	if err != nil || !found {
		t.Fatalf("RepresentativeEventMeta() = %v, %v, %v", meta, found, err)
	}
	if meta.DestRegistrable != "example.com" || meta.CategoryHint != "AI" {
		t.Errorf("RepresentativeEventMeta() = %+v, want example.com/AI", meta)
	}
}
