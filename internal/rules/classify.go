package rules

import (
	"sort"

	"github.com/roach88/shadowai/internal/ir"
)

// Classify applies the rule set to one signature: "longest-match wins,
// then highest priority, then stable rule order" (§4.5). destRegistrable
// is the signature's event's registrable domain (not part of Signature
// itself, which only carries the normalized host). Returns
// (Classification{}, false) when no rule matches.
//
// Dimensions the winning rule leaves unset are filled from fallback so the
// taxonomy never omits a column.
func Classify(s ir.Signature, destRegistrable string, rs []Rule, fallback map[ir.TaxonomyDimension]string) (ir.Classification, bool) {
	type candidate struct {
		rule  Rule
		order int
		spec  int
	}

	var candidates []candidate
	for i, r := range rs {
		if !matchGlob(r.HostPattern, s.NormalizedHost) {
			continue
		}
		if !matchGlob(r.DomainPattern, destRegistrable) {
			continue
		}
		if !matchGlob(r.PathPattern, s.PathTemplate) {
			continue
		}
		candidates = append(candidates, candidate{rule: r, order: i, spec: specificity(r)})
	}
	if len(candidates) == 0 {
		return ir.Classification{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].spec != candidates[j].spec {
			return candidates[i].spec > candidates[j].spec
		}
		if candidates[i].rule.Priority != candidates[j].rule.Priority {
			return candidates[i].rule.Priority > candidates[j].rule.Priority
		}
		return candidates[i].order < candidates[j].order
	})

	best := candidates[0].rule
	return ir.Classification{
		Signature:   s.Value,
		ServiceName: best.ServiceName,
		UsageType:   best.UsageType,
		RiskLevel:   best.DefaultRisk,
		Category:    best.Category,
		Source:      ir.SourceRule,
		Status:      ir.StatusActive,
		Taxonomy:    fillFallback(best.Taxonomy, fallback).Canonicalize(),
	}, true
}

// fillFallback fills any empty taxonomy dimension with the configured
// fallback code, so a rule that under-specifies a dimension never leaves
// it absent from stored output.
func fillFallback(t ir.TaxonomyAssignment, fallback map[ir.TaxonomyDimension]string) ir.TaxonomyAssignment {
	apply := func(dim ir.TaxonomyDimension, cur []string) []string {
		if len(cur) > 0 {
			return cur
		}
		if v, ok := fallback[dim]; ok {
			return []string{v}
		}
		return cur
	}

	out := t
	out.FunctionalScope = apply(ir.DimFunctionalScope, out.FunctionalScope)
	out.IntegrationMode = apply(ir.DimIntegrationMode, out.IntegrationMode)
	out.UseCaseClass = apply(ir.DimUseCaseClass, out.UseCaseClass)
	out.DataType = apply(ir.DimDataType, out.DataType)
	out.Channel = apply(ir.DimChannel, out.Channel)
	out.RiskSurface = apply(ir.DimRiskSurface, out.RiskSurface)
	out.LogEventType = apply(ir.DimLogEventType, out.LogEventType)
	out.OutcomeBenefit = apply(ir.DimOutcomeBenefit, out.OutcomeBenefit)
	return out
}
