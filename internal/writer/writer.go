package writer

import (
	"context"
	"fmt"
	"time"
)

// Sink applies one batch of intents atomically — a single store
// transaction per batch, so a batch either fully commits or fully rolls
// back. Implemented by internal/store.
type Sink interface {
	ApplyBatch(ctx context.Context, batch []Intent) error
}

// Writer drains a Queue[Intent] on a single goroutine, batching up to
// MaxBatch intents or FlushInterval, whichever comes first, and commits
// each batch through Sink. This is the only goroutine permitted to mutate
// the canonical store (§5).
type Writer struct {
	queue         *Queue[Intent]
	sink          Sink
	maxBatch      int
	flushInterval time.Duration
}

// NewWriter builds a Writer. maxBatch and flushInterval must both be
// positive; producers enqueue onto Queue() from any goroutine.
func NewWriter(sink Sink, maxBatch int, flushInterval time.Duration) *Writer {
	return &Writer{
		queue:         NewQueue[Intent](),
		sink:          sink,
		maxBatch:      maxBatch,
		flushInterval: flushInterval,
	}
}

// Queue exposes the producer-facing enqueue surface.
func (w *Writer) Queue() *Queue[Intent] {
	return w.queue
}

// Run drains the queue until it is closed and empty, or ctx is canceled.
// Each flushed batch is applied via a single Sink.ApplyBatch call; a
// failed batch aborts Run with the sink's error — the caller decides
// whether that fails the run or is retried (rule classifier/LLM analyzer
// failures never abort the writer itself; store-level failures do).
func (w *Writer) Run(ctx context.Context) error {
	batch := make([]Intent, 0, w.maxBatch)
	timer := time.NewTimer(w.flushInterval)
	defer timer.Stop()

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := w.sink.ApplyBatch(ctx, batch); err != nil {
			return fmt.Errorf("writer: apply batch of %d: %w", len(batch), err)
		}
		batch = batch[:0]
		return nil
	}

	for {
		for len(batch) < w.maxBatch {
			item, ok := w.queue.TryDequeue()
			if !ok {
				break
			}
			batch = append(batch, item)
		}

		if len(batch) >= w.maxBatch {
			if err := flush(); err != nil {
				return err
			}
			resetTimer(timer, w.flushInterval)
			continue
		}

		select {
		case <-ctx.Done():
			_ = flush()
			return ctx.Err()
		case <-timer.C:
			if err := flush(); err != nil {
				return err
			}
			resetTimer(timer, w.flushInterval)
		case <-w.queue.Wait():
			if w.queue.Closed() && w.queue.Len() == 0 {
				return flush()
			}
		}
	}
}

// Drain synchronously applies every intent currently queued, in batches of
// at most maxBatch, blocking until the queue is empty. Unlike Run it does
// not wait on the flush timer or for further enqueues; the orchestrator
// calls it as a stage-boundary barrier so a later stage's reads always see
// everything an earlier stage just wrote, with no background goroutine in
// between.
func (w *Writer) Drain(ctx context.Context) error {
	for {
		batch := make([]Intent, 0, w.maxBatch)
		for len(batch) < w.maxBatch {
			item, ok := w.queue.TryDequeue()
			if !ok {
				break
			}
			batch = append(batch, item)
		}
		if len(batch) == 0 {
			return nil
		}
		if err := w.sink.ApplyBatch(ctx, batch); err != nil {
			return fmt.Errorf("writer: drain: apply batch of %d: %w", len(batch), err)
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
