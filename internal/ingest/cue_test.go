package ingest

import "testing"

const testCUEMapping = `
vendor:    "acme-proxy"
delimiter: ","
fields: {
	timestamp: columns: ["ts", "timestamp"]
	dest_host: columns: ["host"]
	url:       columns: ["url", "uri"]
	action:    columns: ["verdict"]
}
action_values: {
	PERMIT: "allow"
	DENY:   "block"
}
`

func TestLoadMappingCUE_ParsesFields(t *testing.T) {
	path := writeTempFile(t, "mapping.cue", testCUEMapping)

	m, err := LoadMappingCUE(path)
	if err != nil {
		t.Fatalf("LoadMappingCUE() failed: %v", err)
	}
	if m.Vendor != "acme-proxy" {
		t.Errorf("Vendor = %q, want acme-proxy", m.Vendor)
	}
	if got := m.Fields[FieldURL].Columns; len(got) != 2 || got[0] != "url" || got[1] != "uri" {
		t.Errorf("Fields[url].Columns = %v, want [url uri]", got)
	}
	if m.ActionValues["DENY"] != "block" {
		t.Errorf("ActionValues[DENY] = %q, want block", m.ActionValues["DENY"])
	}
}

func TestLoadMappingCUE_MissingVendorIsError(t *testing.T) {
	path := writeTempFile(t, "mapping.cue", `fields: { url: columns: ["url"] }`)

	if _, err := LoadMappingCUE(path); err == nil {
		t.Error("expected an error when vendor is missing")
	}
}

func TestLoadMappingCUE_MissingRequiredFieldIsError(t *testing.T) {
	path := writeTempFile(t, "mapping.cue", `vendor: "acme-proxy"
fields: { url: columns: ["url"] }`)

	if _, err := LoadMappingCUE(path); err == nil {
		t.Error("expected an error when a required field has no column mapping")
	}
}
