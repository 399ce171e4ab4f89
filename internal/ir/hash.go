package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity. Every hash in this system
// is domain-separated: SHA256(domain + 0x00 + data). The null byte prevents
// a crafted domain/data boundary from colliding with a different split of
// the same bytes. The version suffix on each domain lets a future scheme
// change define a disjoint hash space without colliding with existing rows.
const (
	DomainSignature        = "shadowai/signature/v1"
	DomainRun              = "shadowai/run/v1"
	DomainBundleEntry      = "shadowai/evidence-entry/v1"
	DomainPIIToken         = "shadowai/pii-token/v1"
	DomainTaxonomyArtifact = "shadowai/taxonomy-artifact/v1"
	DomainLineage          = "shadowai/lineage/v1"
)

// hashWithDomain computes a SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00}) // null separator - prevents boundary ambiguity
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CanonicalHash marshals v to canonical JSON and hashes it with the given
// domain prefix. Returns an error if v cannot be canonically marshaled
// (e.g. it contains a float or a null).
func CanonicalHash(domain string, v any) (string, error) {
	data, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("canonical hash: %w", err)
	}
	return hashWithDomain(domain, data), nil
}

// HashOriginal hashes a one-way, non-reversible digest of a PII source
// value for audit traceability. Not intended to permit recovery of the
// original value; exists only so two audit rows can be correlated without
// storing the PII itself.
func HashOriginal(original string) string {
	return hashWithDomain(DomainPIIToken, []byte(original))
}

// MustCanonicalHash is like CanonicalHash but panics on error. Use only in
// tests or when v is known to be canonically marshalable.
func MustCanonicalHash(domain string, v any) string {
	h, err := CanonicalHash(domain, v)
	if err != nil {
		panic(err)
	}
	return h
}
