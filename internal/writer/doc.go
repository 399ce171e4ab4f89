// Package writer implements the single-writer mutation queue (§4.7, §5):
// every store mutation in a run — canonical events, signatures,
// classifications, signature stats, PII audit rows, run checkpoints —
// flows through one multi-producer/single-consumer queue so the canonical
// store is never written to from more than one goroutine at a time.
package writer
