package orchestrate

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/shadowai/internal/ir"
	"github.com/roach88/shadowai/internal/writer"
)

// Store is the subset of internal/store.Store the orchestrator depends
// on, kept narrow so orchestrate can be tested against a fake.
type Store interface {
	GetRunByKey(ctx context.Context, runKey string) (ir.Run, bool, error)
	TransitionRunStatus(ctx context.Context, runID string, status ir.RunStatus, finishedAt *time.Time) error
}

// StageFunc runs one pipeline stage. It receives the run so it can read
// pinned versions, the run id, and must be idempotent against partial
// prior execution (a resumed run may re-enter a stage that started but
// never committed a checkpoint).
type StageFunc func(ctx context.Context, run ir.Run) error

// Pipeline pairs every stage with its StageFunc, in execution order.
type Pipeline map[ir.Stage]StageFunc

// Orchestrator drives one run through Pipeline, checkpointing
// runs.last_completed_stage via the writer queue after each stage
// commits and resuming from the next stage on a prior partial run.
type Orchestrator struct {
	store  Store
	queue  *writer.Queue[writer.Intent]
	stages Pipeline
}

// NewOrchestrator builds an Orchestrator. queue is the writer's
// producer-facing intent queue; every checkpoint is enqueued onto it,
// never written directly, so stage checkpoints and data writes share the
// writer's single-transaction-per-batch ordering.
func NewOrchestrator(store Store, queue *writer.Queue[writer.Intent], stages Pipeline) *Orchestrator {
	return &Orchestrator{store: store, queue: queue, stages: stages}
}

// Resume returns the run to execute: an existing run under runKey if one
// exists (resuming from its LastCompletedStage), or a freshly initialized
// run starting from the first stage.
func (o *Orchestrator) Resume(ctx context.Context, runKey string, pinned ir.PinnedVersions, inputManifestHash string) (ir.Run, error) {
	existing, found, err := o.store.GetRunByKey(ctx, runKey)
	if err != nil {
		return ir.Run{}, fmt.Errorf("resume: %w", err)
	}
	if found {
		return existing, nil
	}

	run := ir.Run{
		RunID:             RunID(runKey),
		RunKey:            runKey,
		StartedAt:         time.Now().UTC(),
		Status:            ir.RunStatusRunning,
		Pinned:            pinned,
		InputManifestHash: inputManifestHash,
		AggregateCounters: map[string]int64{},
	}
	o.queue.Enqueue(writer.Intent{Op: writer.OpCheckpointRun, RunID: run.RunID, Record: run})
	return run, nil
}

// Execute runs every stage that has not yet completed, in spec order,
// checkpointing after each one commits. A stage error stops execution
// without advancing the checkpoint past it, so a subsequent Resume
// re-enters the same failed stage.
func (o *Orchestrator) Execute(ctx context.Context, run ir.Run) error {
	resuming := run.LastCompletedStage != ""
	for _, stage := range ir.Stages {
		if resuming && !isAfter(stage, run.LastCompletedStage) {
			continue
		}

		fn, ok := o.stages[stage]
		if !ok {
			continue
		}
		if err := fn(ctx, run); err != nil {
			return fmt.Errorf("execute stage %q: %w", stage, err)
		}

		run.LastCompletedStage = stage
		o.queue.Enqueue(writer.Intent{Op: writer.OpCheckpointRun, RunID: run.RunID, Record: run})
	}
	return nil
}

// isAfter reports whether stage comes strictly after lastCompleted in
// execution order — used to skip stages a resumed run already committed.
func isAfter(stage, lastCompleted ir.Stage) bool {
	stageIdx, lastIdx := -1, -1
	for i, s := range ir.Stages {
		if s == stage {
			stageIdx = i
		}
		if s == lastCompleted {
			lastIdx = i
		}
	}
	return stageIdx > lastIdx
}

// Finish transitions the run to a terminal status. status must be
// succeeded, partial, or failed — the orchestrator's responsibility, not
// the general checkpoint UPSERT's (runs.status is immutable there).
func (o *Orchestrator) Finish(ctx context.Context, runID string, status ir.RunStatus) error {
	finishedAt := time.Now().UTC()
	if err := o.store.TransitionRunStatus(ctx, runID, status, &finishedAt); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}
