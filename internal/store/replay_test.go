package store

import (
	"context"
	"testing"
	"time"

	"github.com/roach88/shadowai/internal/ir"
	"github.com/roach88/shadowai/internal/writer"
)

func TestListRunsNeedingResume_FindsRunningAndPartial(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	running := testRun("run-running")
	running.StartedAt = time.Now().UTC().Add(-time.Hour)

	partial := testRun("run-partial")
	partial.Status = ir.RunStatusPartial
	partial.StartedAt = time.Now().UTC().Add(-time.Minute)

	succeeded := testRun("run-succeeded")

	for _, run := range []ir.Run{running, partial, succeeded} {
		if err := s.ApplyBatch(ctx, []writer.Intent{intent(writer.OpCheckpointRun, run.RunID, run)}); err != nil {
			t.Fatalf("ApplyBatch() for %q failed: %v", run.RunID, err)
		}
	}
	finishedAt := time.Now().UTC()
	if err := s.TransitionRunStatus(ctx, succeeded.RunID, ir.RunStatusSucceeded, &finishedAt); err != nil {
		t.Fatalf("TransitionRunStatus() failed: %v", err)
	}

	needsResume, err := s.ListRunsNeedingResume(ctx)
	if err != nil {
		t.Fatalf("ListRunsNeedingResume() failed: %v", err)
	}
	if len(needsResume) != 2 {
		t.Fatalf("ListRunsNeedingResume() = %+v, want 2 runs", needsResume)
	}
	if needsResume[0].RunID != "run-running" {
		t.Errorf("ListRunsNeedingResume()[0] = %q, want oldest run first", needsResume[0].RunID)
	}
}

func TestReplayRun_OrdersByTimestampThenLineageHash(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := testRun("run-replay")
	base := time.Now().UTC().Truncate(time.Second)

	events := []EventRecord{
		{Event: ir.CanonicalEvent{Timestamp: base.Add(2 * time.Second), LineageHash: "h-later"}},
		{Event: ir.CanonicalEvent{Timestamp: base, LineageHash: "h-b"}},
		{Event: ir.CanonicalEvent{Timestamp: base, LineageHash: "h-a"}},
	}

	batch := []writer.Intent{intent(writer.OpCheckpointRun, run.RunID, run)}
	for _, ev := range events {
		batch = append(batch, intent(writer.OpUpsertEvent, run.RunID, ev))
	}
	if err := s.ApplyBatch(ctx, batch); err != nil {
		t.Fatalf("ApplyBatch() failed: %v", err)
	}

	replayed, err := s.ReplayRun(ctx, run.RunID)
	if err != nil {
		t.Fatalf("ReplayRun() failed: %v", err)
	}
	if len(replayed) != 3 {
		t.Fatalf("ReplayRun() returned %d events, want 3", len(replayed))
	}
	want := []string{"h-a", "h-b", "h-later"}
	for i, ev := range replayed {
		if ev.LineageHash != want[i] {
			t.Errorf("replayed[%d].LineageHash = %q, want %q", i, ev.LineageHash, want[i])
		}
	}
}

func TestEventCountForRun_Zero(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n, err := s.EventCountForRun(ctx, "no-such-run")
	if err != nil {
		t.Fatalf("EventCountForRun() failed: %v", err)
	}
	if n != 0 {
		t.Errorf("EventCountForRun() = %d, want 0", n)
	}
}

func TestListRuns_MostRecentFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	older := testRun("run-older")
	older.StartedAt = time.Now().UTC().Add(-time.Hour)
	newer := testRun("run-newer")
	newer.StartedAt = time.Now().UTC()

	for _, run := range []ir.Run{older, newer} {
		if err := s.ApplyBatch(ctx, []writer.Intent{intent(writer.OpCheckpointRun, run.RunID, run)}); err != nil {
			t.Fatalf("ApplyBatch() for %q failed: %v", run.RunID, err)
		}
	}

	runs, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "run-newer" {
		t.Errorf("ListRuns() = %+v, want run-newer first", runs)
	}
}
