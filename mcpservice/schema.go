package mcpservice

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	invopop "github.com/invopop/jsonschema"
)

// reflectInputSchema reflects a Go type A into a JSON Schema document with
// the struct expanded at the root and all definitions inlined.
func reflectInputSchema[A any](allowAdditional bool) json.RawMessage {
	r := &invopop.Reflector{
		Anonymous:                 true,
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: allowAdditional,
	}
	s := r.Reflect(new(A))
	if s == nil || s.Type != "object" {
		return json.RawMessage(`{"type":"object"}`)
	}
	s.Version = ""
	b, err := json.Marshal(s)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return b
}

// compileSchema resolves a raw JSON Schema for validation. A nil schema
// compiles to nil, which validates everything.
func compileSchema(raw json.RawMessage) (*jsonschema.Resolved, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve schema: %w", err)
	}
	return resolved, nil
}

// ObjectSchema builds a minimal object schema from property types; it is a
// convenience for descriptors that are not reflected from a Go type.
func ObjectSchema(required []string, props map[string]string) json.RawMessage {
	type prop struct {
		Type string `json:"type"`
	}
	doc := struct {
		Type       string          `json:"type"`
		Properties map[string]prop `json:"properties"`
		Required   []string        `json:"required,omitempty"`
	}{Type: "object", Properties: make(map[string]prop, len(props)), Required: required}
	for k, t := range props {
		doc.Properties[k] = prop{Type: t}
	}
	b, _ := json.Marshal(doc)
	return b
}
