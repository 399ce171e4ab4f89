package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// responseSchema is the contract a chat-completion response body must
// satisfy for one signature's verdict before it is accepted: the eight
// taxonomy dimensions as arrays with the cardinality rules from §4.10
// (functional_scope and integration_mode exactly one code, outcome_benefit
// optional, the rest at least one), plus the scalar classification fields.
const responseSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["signature", "service_name", "usage_type", "risk_level", "category", "confidence", "rationale", "taxonomy"],
	"properties": {
		"signature": {"type": "string", "minLength": 1},
		"service_name": {"type": "string"},
		"usage_type": {"type": "string"},
		"risk_level": {"type": "string"},
		"category": {"type": "string"},
		"confidence": {"type": "integer", "minimum": 0, "maximum": 100},
		"rationale": {"type": "string"},
		"taxonomy": {
			"type": "object",
			"required": ["functional_scope", "integration_mode", "use_case_class", "data_type", "channel", "risk_surface", "log_event_type"],
			"properties": {
				"functional_scope": {"type": "array", "items": {"type": "string"}, "minItems": 1, "maxItems": 1},
				"integration_mode": {"type": "array", "items": {"type": "string"}, "minItems": 1, "maxItems": 1},
				"use_case_class": {"type": "array", "items": {"type": "string"}, "minItems": 1},
				"data_type": {"type": "array", "items": {"type": "string"}, "minItems": 1},
				"channel": {"type": "array", "items": {"type": "string"}, "minItems": 1},
				"risk_surface": {"type": "array", "items": {"type": "string"}, "minItems": 1},
				"log_event_type": {"type": "array", "items": {"type": "string"}, "minItems": 1},
				"outcome_benefit": {"type": "array", "items": {"type": "string"}}
			}
		}
	}
}`

const responseSchemaURL = "https://shadowai.internal/schema/llm-response.json"

// SchemaValidator compiles and holds the response schema once so repeated
// validations avoid recompiling on every signature.
type SchemaValidator struct {
	schema *jsonschema.Schema
}

// NewSchemaValidator compiles the response schema, mirroring the
// compiler-setup shape used elsewhere in the pack for per-tool JSON Schema
// validation (draft 2020-12, URL-keyed resource registration).
func NewSchemaValidator() (*SchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(responseSchemaURL, strings.NewReader(responseSchema)); err != nil {
		return nil, fmt.Errorf("llm: add schema resource: %w", err)
	}
	compiled, err := c.Compile(responseSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("llm: compile schema: %w", err)
	}
	return &SchemaValidator{schema: compiled}, nil
}

// Validate parses raw as JSON and checks it against the response schema.
// It returns the decoded document on success so the caller can map it
// straight into an ir.Classification without a second unmarshal pass.
func (v *SchemaValidator) Validate(raw []byte) (map[string]any, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("llm: parse response json: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("llm: schema validation: %w", err)
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("llm: response is not a JSON object")
	}
	return m, nil
}
