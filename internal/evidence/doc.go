// Package evidence emits and validates the deterministic per-run evidence
// bundle: manifest, object/payload indices, hash chain, and signature.
package evidence
