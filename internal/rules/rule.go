package rules

import "github.com/roach88/shadowai/internal/ir"

// Rule is one declarative classification rule: a pattern over host,
// registrable domain, and path, carrying the verdict it contributes when
// matched.
type Rule struct {
	ID       string
	Version  string
	Priority int

	HostPattern   string // glob, e.g. "*.openai.com"; "" matches any
	DomainPattern string // glob over the registrable domain; "" matches any
	PathPattern   string // glob over the normalized path template; "" matches any

	ServiceName string
	Category    string
	DefaultRisk string
	UsageType   string
	Taxonomy    ir.TaxonomyAssignment
}

// Ref returns the rule's typed reference for attribution in audit output.
func (r Rule) Ref() ir.RuleRef {
	return ir.RuleRef{ID: r.ID, Version: r.Version}
}
