package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/shadowai/internal/ir"
)

// These columns are storage-only JSON, not content-addressed identity —
// the signature and run-key hashes are computed upstream in internal/sig
// and the orchestrator before a record ever reaches the store — so plain
// encoding/json is used rather than ir.MarshalCanonical's RFC 8785 path,
// mirroring the teacher's own marshalSecurityContext (a plain struct, not
// an IRObject) rather than marshalArgs/marshalResult (which wrap IRObject).
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func unmarshalJSON[T any](data string) (T, error) {
	var v T
	if data == "" {
		return v, nil
	}
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return v, fmt.Errorf("unmarshal: %w", err)
	}
	return v, nil
}

func marshalPinnedVersions(p ir.PinnedVersions) (string, error) {
	return marshalJSON(p)
}

func unmarshalPinnedVersions(data string) (ir.PinnedVersions, error) {
	return unmarshalJSON[ir.PinnedVersions](data)
}

func marshalTaxonomy(t ir.TaxonomyAssignment) (string, error) {
	return marshalJSON(t)
}

func unmarshalTaxonomy(data string) (ir.TaxonomyAssignment, error) {
	return unmarshalJSON[ir.TaxonomyAssignment](data)
}

func marshalCandidateFlags(flags []ir.CandidateFlag) (string, error) {
	return marshalJSON(flags)
}

func unmarshalCandidateFlags(data string) ([]ir.CandidateFlag, error) {
	return unmarshalJSON[[]ir.CandidateFlag](data)
}

func marshalAggregateCounters(counters map[string]int64) (string, error) {
	if counters == nil {
		counters = map[string]int64{}
	}
	return marshalJSON(counters)
}

func unmarshalAggregateCounters(data string) (map[string]int64, error) {
	v, err := unmarshalJSON[map[string]int64](data)
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = map[string]int64{}
	}
	return v, nil
}
