package orchestrate

import (
	"encoding/base32"
	"strings"

	"github.com/roach88/shadowai/internal/ir"
)

// RunKeyInput names every value that participates in a run's identity
// (§4.8). Two invocations with identical RunKeyInput are the same
// logical run — the orchestrator resumes the existing run rather than
// starting a new one.
type RunKeyInput struct {
	InputManifestHash string            `json:"input_manifest_hash"`
	RangeStart        string            `json:"range_start"`
	RangeEnd          string            `json:"range_end"`
	Pinned            ir.PinnedVersions `json:"pinned_versions"`
}

// RunKey computes the content-addressed run key: a domain-separated hash
// of every identity-bearing input, so a run is only ever "the same run"
// if the manifest, date range, and every pinned version match exactly.
//
// ir.MarshalCanonical only understands primitives, []any, and
// map[string]any — not arbitrary structs — so RunKeyInput is flattened
// into a map before hashing, the same way every other canonical hash in
// this module is computed.
func RunKey(in RunKeyInput) string {
	return ir.MustCanonicalHash(ir.DomainRun, map[string]any{
		"input_manifest_hash": in.InputManifestHash,
		"range_start":         in.RangeStart,
		"range_end":           in.RangeEnd,
		"pinned_versions": map[string]any{
			"signature_scheme_version": in.Pinned.SignatureScheme,
			"rule_version":             in.Pinned.Rule,
			"prompt_version":           in.Pinned.Prompt,
			"taxonomy_version":         in.Pinned.Taxonomy,
			"taxonomy_artifact_hash":   in.Pinned.TaxonomyArtifactHash,
			"engine_spec_version":      in.Pinned.EngineSpec,
		},
	})
}

// runIDEncoding is unpadded base32 (RFC 4648) truncated to 16 characters,
// matching spec.md §4.8's run_id formula. Unpadded so run ids are safe as
// bare filesystem path components and SQL values with no escaping.
var runIDEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// RunID derives the short, filesystem-safe run identifier from a run key.
func RunID(runKey string) string {
	encoded := runIDEncoding.EncodeToString([]byte(runKey))
	encoded = strings.ToLower(encoded)
	if len(encoded) > 16 {
		encoded = encoded[:16]
	}
	return encoded
}
