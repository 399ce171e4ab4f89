package rules

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/shadowai/internal/ir"
)

// CompileError is a structured rule-document error, mirroring the
// teacher's compiler.CompileError shape (field + message).
type CompileError struct {
	Field   string
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CompileRule parses one CUE rule struct (the value at `rule.<id>`) into a
// Rule. Mirrors the teacher's CompileConcept/CompileSync: CUE's Go API
// used directly, not a CLI subprocess round-trip.
func CompileRule(id string, v cue.Value) (*Rule, error) {
	if err := v.Err(); err != nil {
		return nil, &CompileError{Field: id, Message: err.Error()}
	}

	r := &Rule{ID: id}

	if s, err := lookupString(v, "host"); err == nil {
		r.HostPattern = s
	}
	if s, err := lookupString(v, "domain"); err == nil {
		r.DomainPattern = s
	}
	if s, err := lookupString(v, "path"); err == nil {
		r.PathPattern = s
	}

	serviceName, err := lookupString(v, "service_name")
	if err != nil {
		return nil, &CompileError{Field: id + ".service_name", Message: "service_name is required"}
	}
	r.ServiceName = serviceName

	if s, err := lookupString(v, "category"); err == nil {
		r.Category = s
	}
	if s, err := lookupString(v, "default_risk"); err == nil {
		r.DefaultRisk = s
	}
	if s, err := lookupString(v, "usage_type"); err == nil {
		r.UsageType = s
	}
	if s, err := lookupString(v, "version"); err == nil {
		r.Version = s
	}

	if priority := v.LookupPath(cue.ParsePath("priority")); priority.Exists() {
		n, err := priority.Int64()
		if err != nil {
			return nil, &CompileError{Field: id + ".priority", Message: err.Error()}
		}
		r.Priority = int(n)
	}

	tax := v.LookupPath(cue.ParsePath("taxonomy"))
	if tax.Exists() {
		taxonomy, err := compileTaxonomy(tax)
		if err != nil {
			return nil, &CompileError{Field: id + ".taxonomy", Message: err.Error()}
		}
		r.Taxonomy = taxonomy
	}

	return r, nil
}

func compileTaxonomy(v cue.Value) (ir.TaxonomyAssignment, error) {
	var t ir.TaxonomyAssignment
	var err error

	if t.FunctionalScope, err = stringList(v, "functional_scope"); err != nil {
		return t, err
	}
	if t.IntegrationMode, err = stringList(v, "integration_mode"); err != nil {
		return t, err
	}
	if t.UseCaseClass, err = stringList(v, "use_case_class"); err != nil {
		return t, err
	}
	if t.DataType, err = stringList(v, "data_type"); err != nil {
		return t, err
	}
	if t.Channel, err = stringList(v, "channel"); err != nil {
		return t, err
	}
	if t.RiskSurface, err = stringList(v, "risk_surface"); err != nil {
		return t, err
	}
	if t.LogEventType, err = stringList(v, "log_event_type"); err != nil {
		return t, err
	}
	if t.OutcomeBenefit, err = stringList(v, "outcome_benefit"); err != nil {
		return t, err
	}
	return t, nil
}

func lookupString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", fmt.Errorf("%s not set", field)
	}
	return fv.String()
}

func stringList(v cue.Value, field string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.List()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		out = append(out, s)
	}
	return out, nil
}
