// Package taxonomy loads the pinned external taxonomy artifact (§4.10): a
// version-addressed directory of allowed codes and cardinality rules per
// dimension, hashed deterministically for pin verification, plus the
// legacy single-value-column lift used when reading pre-taxonomy-v2
// classification rows.
package taxonomy
