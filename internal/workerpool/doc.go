// Package workerpool provides a small bounded-concurrency fan-out helper
// used by the ingestion and analysis stages (§5): N worker goroutines pull
// from a fixed item slice, honoring context cancellation, with results
// collected in input order.
//
// It generalizes the single-purpose event loop in the sync engine this
// module grew out of into a reusable generic pool, built on
// golang.org/x/sync/errgroup rather than a hand-rolled WaitGroup+channel
// loop.
package workerpool
