package taxonomy

// LiftLegacy converts a pre-taxonomy-v2 single-value column into the
// singleton-array form every dimension now stores. A classification
// record touched by this lift must be marked needs_review by the caller
// (§4.10) — the lift itself does not know about ir.Classification, it is
// a pure string transform.
func LiftLegacy(value string) []string {
	if value == "" {
		return nil
	}
	return []string{value}
}
