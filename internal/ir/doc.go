// Package ir provides the canonical intermediate representation types shared
// across the run pipeline: canonical events, URL signatures, classification
// records, taxonomy assignments, signature statistics, run records, and PII
// audit rows.
//
// This package contains type definitions and the canonical-JSON marshaling
// machinery only. Every other internal package imports ir; ir imports
// nothing internal, so it stays the foundational, dependency-free layer.
//
// Key design constraints:
//   - No float types anywhere — use int64 for all numeric fields so that
//     content-addressed hashing never depends on floating-point formatting.
//   - All JSON tags use snake_case.
//   - Timestamps are UTC and truncated to the second before hashing.
package ir
