// Package canon implements URL canonicalization: scheme/host/path/query
// normalization, IDN handling, tracking-parameter stripping, PII token
// abstraction, and Public Suffix List-based registrable-domain extraction
// (§4.2).
//
// Canonicalization never fails the run. A malformed input URL degrades the
// row to a parse error for the caller to count; only the absence or
// load-failure of the PSL snapshot is fatal, and that happens once at
// Canonicalizer construction, not per-row.
package canon
