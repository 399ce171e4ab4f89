package llm

import (
	"encoding/json"

	"github.com/roach88/shadowai/internal/ir"
)

const (
	minBatchSize = 10
	maxBatchSize = 20
)

// Candidate is one signature queued for analysis, carrying enough of its
// selector verdict to let BuildBatches prefer A/B candidates over C when a
// batch must be trimmed to fit the character budget.
type Candidate struct {
	Item  PayloadItem
	Flags []ir.CandidateFlag
}

func (c Candidate) isCoverageOnly() bool {
	if len(c.Flags) == 0 {
		return true
	}
	for _, f := range c.Flags {
		if f != ir.CandidateC {
			return false
		}
	}
	return true
}

// BuildBatches groups candidates into requests of 10-20 signatures or up to
// charBudget serialized bytes, whichever is smaller (§4.6). When a batch
// would exceed the budget, coverage-only (C) candidates are dropped first,
// preserving A/B candidates; any candidate that alone exceeds the budget is
// returned in its own single-item batch rather than silently skipped. A
// trailing batch that falls under minBatchSize is topped up by borrowing
// items off the previous batch's tail, so only a remainder that genuinely
// cannot fit charBudget any other way is shipped under the floor.
func BuildBatches(candidates []Candidate, charBudget int) [][]PayloadItem {
	ordered := stablePartition(candidates)

	var batches [][]Candidate
	var current []Candidate
	currentSize := 2 // "[]"

	flush := func() {
		if len(current) == 0 {
			return
		}
		batches = append(batches, current)
		current = nil
		currentSize = 2
	}

	for _, c := range ordered {
		itemSize := estimateSize(c.Item)
		sep := 0
		if len(current) > 0 {
			sep = 1 // comma
		}

		if len(current) >= maxBatchSize || (len(current) > 0 && currentSize+sep+itemSize > charBudget) {
			flush()
			sep = 0
		}

		current = append(current, c)
		currentSize += sep + itemSize
	}
	flush()

	batches = mergeUndersizedTail(batches, charBudget)

	result := make([][]PayloadItem, len(batches))
	for i, b := range batches {
		items := make([]PayloadItem, len(b))
		for j, c := range b {
			items[j] = c.Item
		}
		result[i] = items
	}
	return result
}

// mergeUndersizedTail tops up a trailing batch below minBatchSize by
// borrowing items one at a time off the tail of the previous batch. A
// straight merge of the two batches is never attempted: whatever flush
// produced the split already proves the combined batch overflows either
// maxBatchSize (the previous batch hit the count cap) or charBudget (the
// flush was budget-triggered, so the running size at that point already
// exceeded it) — borrowing piecemeal is the only move that can actually
// land both batches within bounds. Borrowing stops, leaving the remainder
// under the floor, once it would push the receiving batch past charBudget.
func mergeUndersizedTail(batches [][]Candidate, charBudget int) [][]Candidate {
	if len(batches) < 2 {
		return batches
	}
	last := batches[len(batches)-1]
	if len(last) >= minBatchSize {
		return batches
	}
	prevIdx := len(batches) - 2
	prev := batches[prevIdx]

	for len(last) < minBatchSize && len(prev) > minBatchSize {
		candidate := append([]Candidate{prev[len(prev)-1]}, last...)
		if batchSize(candidate) > charBudget {
			break
		}
		prev = prev[:len(prev)-1]
		last = candidate
	}
	batches[prevIdx] = prev
	batches[len(batches)-1] = last
	return batches
}

func batchSize(batch []Candidate) int {
	size := 2 // "[]"
	for i, c := range batch {
		if i > 0 {
			size++ // comma
		}
		size += estimateSize(c.Item)
	}
	return size
}

func stablePartition(candidates []Candidate) []Candidate {
	preferred := make([]Candidate, 0, len(candidates))
	coverage := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.isCoverageOnly() {
			coverage = append(coverage, c)
		} else {
			preferred = append(preferred, c)
		}
	}
	return append(preferred, coverage...)
}

func estimateSize(item PayloadItem) int {
	b, err := json.Marshal(item)
	if err != nil {
		return 0
	}
	return len(b)
}
