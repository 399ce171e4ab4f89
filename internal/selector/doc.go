// Package selector implements the A/B/C risk-candidate selection pass
// (§4.4): a pure, order-independent aggregation over a run's canonical
// event stream that produces per-signature candidate flags and per-run
// signature statistics.
package selector
