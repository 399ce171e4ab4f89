package ingest

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/shadowai/internal/ir"
)

// MappingError reports a field-level problem while compiling a CUE
// vendor-mapping document, with a CUE source position when one is
// available.
type MappingError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *MappingError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadMappingCUE reads and compiles a single-file CUE vendor-mapping
// document.
func LoadMappingCUE(path string) (VendorMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return VendorMapping{}, fmt.Errorf("ingest: read mapping %s: %w", path, err)
	}

	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return VendorMapping{}, formatMappingCUEError(err)
	}
	return CompileVendorMapping(v)
}

// CompileVendorMapping extracts a VendorMapping from a CUE value shaped
// like:
//
//	vendor:    "acme-proxy"
//	delimiter: ","
//	fields: {
//		url: columns: ["url", "uri"]
//		dest_host: columns: ["host"]
//	}
//	action_values: {
//		PERMIT: "allow"
//		DENY:   "block"
//	}
func CompileVendorMapping(v cue.Value) (VendorMapping, error) {
	if err := v.Err(); err != nil {
		return VendorMapping{}, formatMappingCUEError(err)
	}

	m := VendorMapping{Fields: map[CanonicalField]FieldMapping{}, ActionValues: map[string]ir.ActionTag{}}

	vendorVal := v.LookupPath(cue.ParsePath("vendor"))
	if !vendorVal.Exists() {
		return VendorMapping{}, &MappingError{Field: "vendor", Message: "vendor is required", Pos: v.Pos()}
	}
	vendor, err := vendorVal.String()
	if err != nil {
		return VendorMapping{}, formatMappingCUEError(err)
	}
	m.Vendor = vendor

	if delimVal := v.LookupPath(cue.ParsePath("delimiter")); delimVal.Exists() {
		delim, err := delimVal.String()
		if err != nil {
			return VendorMapping{}, formatMappingCUEError(err)
		}
		m.DelimiterStr = delim
	}
	if layoutVal := v.LookupPath(cue.ParsePath("timestamp_layout")); layoutVal.Exists() {
		layout, err := layoutVal.String()
		if err != nil {
			return VendorMapping{}, formatMappingCUEError(err)
		}
		m.TimestampLayout = layout
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if fieldsVal.Exists() {
		iter, err := fieldsVal.Fields()
		if err != nil {
			return VendorMapping{}, formatMappingCUEError(err)
		}
		for iter.Next() {
			field := CanonicalField(iter.Label())
			columnsVal := iter.Value().LookupPath(cue.ParsePath("columns"))
			if !columnsVal.Exists() {
				continue
			}
			columns, err := decodeStringList(columnsVal)
			if err != nil {
				return VendorMapping{}, formatMappingCUEError(err)
			}
			m.Fields[field] = FieldMapping{Columns: columns}
		}
	}

	actionsVal := v.LookupPath(cue.ParsePath("action_values"))
	if actionsVal.Exists() {
		iter, err := actionsVal.Fields()
		if err != nil {
			return VendorMapping{}, formatMappingCUEError(err)
		}
		for iter.Next() {
			raw := iter.Label()
			canonical, err := iter.Value().String()
			if err != nil {
				return VendorMapping{}, formatMappingCUEError(err)
			}
			m.ActionValues[raw] = ir.ActionTag(canonical)
		}
	}

	for _, required := range RequiredFields {
		if _, ok := m.Fields[required]; !ok {
			return VendorMapping{}, &MappingError{
				Field:   string(required),
				Message: "no candidate columns configured for a required field",
				Pos:     v.Pos(),
			}
		}
	}

	return m, nil
}

func decodeStringList(v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, err
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// formatMappingCUEError extracts position info from CUE errors, mirroring
// the rule compiler's own error-formatting convention.
func formatMappingCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	return &MappingError{Field: "cue", Message: first.Error(), Pos: first.Position()}
}
