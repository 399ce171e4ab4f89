package sig

import (
	"strings"

	"github.com/roach88/shadowai/internal/canon"
	"github.com/roach88/shadowai/internal/ir"
)

// Build derives the request signature for one canonicalized event. The
// formula is fixed by scheme version: domain-separated SHA-256 over
// host, path template, the retained query-key subset (keys only — values
// are per-request noise, not part of the pattern), method group, and
// bytes bucket.
func Build(c canon.Result, method string, bytesSent int64, schemeVersion string) (ir.Signature, error) {
	mg := MethodGroup(method)
	bb := BytesBucket(bytesSent)
	keys := keySubset(c.NormalizedQuery)

	payload := strings.Join([]string{
		c.NormalizedHost,
		c.NormalizedPath,
		keys,
		string(mg),
		string(bb),
	}, "|")

	domain := ir.DomainSignature + "/" + schemeVersion
	value, err := ir.CanonicalHash(domain, map[string]any{"payload": payload})
	if err != nil {
		return ir.Signature{}, err
	}

	return ir.Signature{
		Value:          value,
		SchemeVersion:  schemeVersion,
		NormalizedHost: c.NormalizedHost,
		PathTemplate:   c.NormalizedPath,
		PathDepth:      c.PathDepth,
		ParamCount:     c.ParamCount,
		AuthTokenLike:  c.AuthTokenLike,
		BytesBucket:    bb,
	}, nil
}

// keySubset extracts the sorted, "&"-joined list of query keys from a
// normalized query string, discarding values — the signature groups by
// request shape, not per-request parameter values.
func keySubset(normalizedQuery string) string {
	if normalizedQuery == "" {
		return ""
	}
	pairs := strings.Split(normalizedQuery, "&")
	keys := make([]string, 0, len(pairs))
	for _, p := range pairs {
		k, _, _ := strings.Cut(p, "=")
		keys = append(keys, k)
	}
	return strings.Join(keys, ",")
}

// MethodGroup buckets an HTTP method into GET, WRITE (mutating), or OTHER.
func MethodGroup(method string) ir.MethodGroup {
	switch strings.ToUpper(method) {
	case "GET", "HEAD":
		return ir.MethodGroupGET
	case "POST", "PUT", "PATCH", "DELETE":
		return ir.MethodGroupWRITE
	default:
		return ir.MethodGroupOTHER
	}
}

// BytesBucket buckets an upload size. Boundaries: <1KiB tiny, <16KiB low,
// <256KiB medium, <4MiB high, else max.
func BytesBucket(bytesSent int64) ir.BytesBucket {
	const (
		kib = 1024
		mib = 1024 * kib
	)
	switch {
	case bytesSent < 1*kib:
		return ir.BytesBucketTiny
	case bytesSent < 16*kib:
		return ir.BytesBucketLow
	case bytesSent < 256*kib:
		return ir.BytesBucketMedium
	case bytesSent < 4*mib:
		return ir.BytesBucketHigh
	default:
		return ir.BytesBucketMax
	}
}
