package ingest

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/roach88/shadowai/internal/ir"
)

// CanonicalField names one of CanonicalEvent's ingestion-time fields — the
// ones a vendor mapping can supply a source column for. Normalized
// fields (path, query, registrable domain) are filled by the
// canonicalize stage, not by ingestion.
type CanonicalField string

const (
	FieldTimestamp    CanonicalField = "timestamp"
	FieldUserID       CanonicalField = "user_id"
	FieldSourceAddr   CanonicalField = "source_addr"
	FieldDestHost     CanonicalField = "dest_host"
	FieldURL          CanonicalField = "url"
	FieldMethod       CanonicalField = "method"
	FieldAction       CanonicalField = "action"
	FieldBytesUp      CanonicalField = "bytes_up"
	FieldBytesDown    CanonicalField = "bytes_down"
	FieldCategoryHint CanonicalField = "category_hint"
)

// RequiredFields must resolve to a non-empty value for a row to parse;
// any other field is best-effort and left at its zero value when no
// candidate column matches or the column is blank.
var RequiredFields = []CanonicalField{FieldTimestamp, FieldDestHost, FieldURL}

// FieldMapping is the ordered list of source column names a vendor might
// use for one canonical field — first match in the header wins.
type FieldMapping struct {
	Columns []string `json:"columns" yaml:"columns"`
}

// VendorMapping is the declarative translation from one vendor's raw
// column layout to CanonicalEvent fields (§6).
type VendorMapping struct {
	Vendor          string                          `json:"vendor" yaml:"vendor"`
	Delimiter       rune                            `json:"-" yaml:"-"`
	DelimiterStr    string                          `json:"delimiter" yaml:"delimiter"`
	TimestampLayout string                          `json:"timestamp_layout" yaml:"timestamp_layout"`
	Fields          map[CanonicalField]FieldMapping `json:"fields" yaml:"fields"`
	ActionValues    map[string]ir.ActionTag         `json:"action_values" yaml:"action_values"`
}

// resolveDelimiter turns the mapping's configured delimiter string into a
// rune for encoding/csv, defaulting to ',' when unset.
func (m VendorMapping) resolveDelimiter() rune {
	if m.Delimiter != 0 {
		return m.Delimiter
	}
	if m.DelimiterStr == "" {
		return ','
	}
	r := []rune(m.DelimiterStr)
	if m.DelimiterStr == "\\t" {
		return '\t'
	}
	return r[0]
}

// columnIndex finds the first candidate column present in header,
// case-insensitively, and returns its position. ok is false when none of
// the candidates appear in this file's header.
func (f FieldMapping) columnIndex(header []string) (idx int, ok bool) {
	for _, candidate := range f.Columns {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), candidate) {
				return i, true
			}
		}
	}
	return -1, false
}

// LoadMapping reads a vendor mapping document, dispatching on file
// extension: ".cue" uses the CUE loader, ".yaml"/".yml" the legacy YAML
// loader carried from the teacher's go.mod dependency.
func LoadMapping(path string) (VendorMapping, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".cue":
		return LoadMappingCUE(path)
	case ".yaml", ".yml":
		return LoadMappingYAML(path)
	default:
		return VendorMapping{}, fmt.Errorf("ingest: unsupported mapping extension %q", ext)
	}
}
