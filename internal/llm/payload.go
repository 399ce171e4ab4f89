package llm

import "github.com/roach88/shadowai/internal/ir"

// PayloadItem is the only information that ever leaves the process for a
// signature (§4.6 payload invariant). No user id, source address, device
// identifier, or raw URL may be added to this type — every field here is
// already an aggregate or a template, never a per-event value.
type PayloadItem struct {
	Signature      string `json:"signature"`
	NormalizedHost string `json:"normalized_host"`
	PathTemplate   string `json:"path_template"`
	AccessCount    int64  `json:"access_count"`
	UniqueUsers    int64  `json:"unique_user_count"`
	BytesUpP95     int64  `json:"bytes_up_p95"`
	BurstMax5Min   int64  `json:"burst_max_5min"`
	CategoryHint   string `json:"category_hint,omitempty"`
}

// BuildPayloadItem projects a signature and its run stats down to the
// payload-safe subset. It is the single choke point new fields must pass
// through, so a future caller cannot accidentally smuggle an identifier
// into an outgoing request.
func BuildPayloadItem(sig ir.Signature, stats ir.SignatureStats, categoryHint string) PayloadItem {
	return PayloadItem{
		Signature:      sig.Value,
		NormalizedHost: sig.NormalizedHost,
		PathTemplate:   sig.PathTemplate,
		AccessCount:    stats.AccessCount,
		UniqueUsers:    stats.UniqueUserCount,
		BytesUpP95:     stats.BytesUpP95,
		BurstMax5Min:   stats.BurstMax5Min,
		CategoryHint:   categoryHint,
	}
}

// Eligible reports whether a classification should be sent to the
// analyzer: only status=active signatures that are not human-verified
// (§4.6).
func Eligible(c ir.Classification) bool {
	if c.IsHumanVerified {
		return false
	}
	return c.Status == ir.StatusActive
}
