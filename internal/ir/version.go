package ir

// Pinned version identifiers that together determine a run's run key
// (see Orchestrator, §4.8). Bumping any of these defines a run key space
// disjoint from runs executed under the previous value.
const (
	// SignatureSchemeVersion identifies the signature derivation algorithm
	// (§4.3). A change here intentionally produces a non-colliding
	// signature space.
	SignatureSchemeVersion = "1.0"

	// RuleVersion identifies the compiled rule-set version consumed by the
	// rule classifier (§4.5).
	RuleVersion = "1.0"

	// PromptVersion identifies the LLM analyzer's prompt template version
	// (§4.6).
	PromptVersion = "1.0"

	// TaxonomyVersion identifies the taxonomy dimension/cardinality schema
	// understood by the taxonomy adapter (§4.10), independent of the
	// pinned taxonomy artifact's own content hash.
	TaxonomyVersion = "1.0"

	// EngineSpecVersion identifies this run pipeline's overall engine
	// specification version.
	EngineSpecVersion = "0.1.0"
)
