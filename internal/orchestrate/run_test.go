package orchestrate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roach88/shadowai/internal/ir"
	"github.com/roach88/shadowai/internal/writer"
)

type fakeStore struct {
	runs map[string]ir.Run
}

func newFakeStore() *fakeStore {
	return &fakeStore{runs: map[string]ir.Run{}}
}

func (f *fakeStore) GetRunByKey(ctx context.Context, runKey string) (ir.Run, bool, error) {
	for _, run := range f.runs {
		if run.RunKey == runKey {
			return run, true, nil
		}
	}
	return ir.Run{}, false, nil
}

func (f *fakeStore) TransitionRunStatus(ctx context.Context, runID string, status ir.RunStatus, finishedAt *time.Time) error {
	run, ok := f.runs[runID]
	if !ok {
		return errors.New("run not found")
	}
	run.Status = status
	run.FinishedAt = finishedAt
	f.runs[runID] = run
	return nil
}

func drainCheckpoints(queue *writer.Queue[writer.Intent], store *fakeStore) {
	for {
		item, ok := queue.TryDequeue()
		if !ok {
			return
		}
		if item.Op != writer.OpCheckpointRun {
			continue
		}
		run := item.Record.(ir.Run)
		store.runs[run.RunID] = run
	}
}

func TestResume_NewRunWhenNoneExists(t *testing.T) {
	store := newFakeStore()
	queue := writer.NewQueue[writer.Intent]()
	orch := NewOrchestrator(store, queue, Pipeline{})

	run, err := orch.Resume(context.Background(), "run-key-1", ir.PinnedVersions{}, "manifest-hash")
	if err != nil {
		t.Fatalf("Resume() failed: %v", err)
	}
	if run.Status != ir.RunStatusRunning {
		t.Errorf("Status = %q, want running", run.Status)
	}
	if run.RunID == "" {
		t.Error("RunID is empty")
	}

	drainCheckpoints(queue, store)
	if _, ok := store.runs[run.RunID]; !ok {
		t.Error("new run was not checkpointed onto the queue")
	}
}

func TestResume_ReturnsExistingRunForSameKey(t *testing.T) {
	store := newFakeStore()
	queue := writer.NewQueue[writer.Intent]()
	orch := NewOrchestrator(store, queue, Pipeline{})

	existing := ir.Run{RunID: "run-existing", RunKey: "run-key-1", LastCompletedStage: ir.StageCanonicalize}
	store.runs[existing.RunID] = existing

	run, err := orch.Resume(context.Background(), "run-key-1", ir.PinnedVersions{}, "manifest-hash")
	if err != nil {
		t.Fatalf("Resume() failed: %v", err)
	}
	if run.RunID != "run-existing" {
		t.Errorf("RunID = %q, want run-existing (should resume, not recreate)", run.RunID)
	}
}

func TestExecute_RunsEveryStageInOrderAndCheckpoints(t *testing.T) {
	store := newFakeStore()
	queue := writer.NewQueue[writer.Intent]()

	var executed []ir.Stage
	stages := Pipeline{}
	for _, stage := range ir.Stages {
		s := stage
		stages[s] = func(ctx context.Context, run ir.Run) error {
			executed = append(executed, s)
			return nil
		}
	}
	orch := NewOrchestrator(store, queue, stages)

	run := ir.Run{RunID: "run-1", RunKey: "key-1", Status: ir.RunStatusRunning}
	store.runs[run.RunID] = run

	if err := orch.Execute(context.Background(), run); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if len(executed) != len(ir.Stages) {
		t.Fatalf("executed %d stages, want %d", len(executed), len(ir.Stages))
	}
	for i, stage := range ir.Stages {
		if executed[i] != stage {
			t.Errorf("executed[%d] = %q, want %q", i, executed[i], stage)
		}
	}

	drainCheckpoints(queue, store)
	if store.runs[run.RunID].LastCompletedStage != ir.StageEvidence {
		t.Errorf("LastCompletedStage = %q, want %q", store.runs[run.RunID].LastCompletedStage, ir.StageEvidence)
	}
}

func TestExecute_ResumeSkipsAlreadyCompletedStages(t *testing.T) {
	store := newFakeStore()
	queue := writer.NewQueue[writer.Intent]()

	var executed []ir.Stage
	stages := Pipeline{}
	for _, stage := range ir.Stages {
		s := stage
		stages[s] = func(ctx context.Context, run ir.Run) error {
			executed = append(executed, s)
			return nil
		}
	}
	orch := NewOrchestrator(store, queue, stages)

	run := ir.Run{RunID: "run-1", RunKey: "key-1", Status: ir.RunStatusRunning, LastCompletedStage: ir.StageSignature}

	if err := orch.Execute(context.Background(), run); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if len(executed) != 4 {
		t.Fatalf("executed %d stages, want 4 (selection, rule_classify, llm_analysis, evidence)", len(executed))
	}
	if executed[0] != ir.StageSelection {
		t.Errorf("first executed stage = %q, want %q", executed[0], ir.StageSelection)
	}
}

func TestExecute_StageErrorStopsWithoutAdvancingCheckpoint(t *testing.T) {
	store := newFakeStore()
	queue := writer.NewQueue[writer.Intent]()

	boom := errors.New("boom")
	stages := Pipeline{
		ir.StageIngestion:    func(ctx context.Context, run ir.Run) error { return nil },
		ir.StageCanonicalize: func(ctx context.Context, run ir.Run) error { return boom },
	}
	orch := NewOrchestrator(store, queue, stages)

	run := ir.Run{RunID: "run-1", RunKey: "key-1", Status: ir.RunStatusRunning}
	err := orch.Execute(context.Background(), run)
	if err == nil {
		t.Fatal("expected error from failing stage")
	}

	drainCheckpoints(queue, store)
	got := store.runs[run.RunID]
	if got.LastCompletedStage != ir.StageIngestion {
		t.Errorf("LastCompletedStage = %q, want %q (checkpoint should stop before the failed stage)", got.LastCompletedStage, ir.StageIngestion)
	}
}

func TestFinish_TransitionsToTerminalStatus(t *testing.T) {
	store := newFakeStore()
	queue := writer.NewQueue[writer.Intent]()
	orch := NewOrchestrator(store, queue, Pipeline{})

	store.runs["run-1"] = ir.Run{RunID: "run-1", Status: ir.RunStatusRunning}

	if err := orch.Finish(context.Background(), "run-1", ir.RunStatusSucceeded); err != nil {
		t.Fatalf("Finish() failed: %v", err)
	}
	if store.runs["run-1"].Status != ir.RunStatusSucceeded {
		t.Errorf("Status = %q, want succeeded", store.runs["run-1"].Status)
	}
	if store.runs["run-1"].FinishedAt == nil {
		t.Error("FinishedAt was not set")
	}
}
