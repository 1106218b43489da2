// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package wire

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// Field is the schema-relevant view of one callable parameter.
type Field struct {
	Name       string
	Type       Primitive
	Optional   bool
	HasDefault bool
	Default    any
}

// Schema returns the JSON Schema for a single primitive. Any yields the empty
// schema, which accepts every value.
func (p Primitive) Schema() *jsonschema.Schema {
	switch p {
	case Integer, Number, String, Boolean, Array, Object:
		return &jsonschema.Schema{Type: string(p)}
	default:
		return &jsonschema.Schema{}
	}
}

// ForParameters builds the object schema describing a callable's named
// arguments. Optional parameters also accept null; parameters that are
// neither optional nor defaulted are required. Unknown properties are
// rejected.
func ForParameters(fields []Field) *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:                 "object",
		Properties:           jsonschema.NewProperties(),
		AdditionalProperties: jsonschema.FalseSchema,
	}
	for _, f := range fields {
		prop := f.Type.Schema()
		if f.Optional && f.Type != Any {
			prop = &jsonschema.Schema{AnyOf: []*jsonschema.Schema{prop, {Type: "null"}}}
		}
		if f.HasDefault {
			prop.Default = f.Default
		}
		s.Properties.Set(f.Name, prop)
		if !f.Optional && !f.HasDefault {
			s.Required = append(s.Required, f.Name)
		}
	}
	return s
}

// ValidateArguments checks a named-argument map against the schema built by
// ForParameters.
func ValidateArguments(fields []Field, args map[string]any) error {
	sch, err := compile(ForParameters(fields))
	if err != nil {
		return oops.In("wire").Wrapf(err, "compile parameter schema")
	}
	if args == nil {
		args = map[string]any{}
	}
	inst, err := toInstance(args)
	if err != nil {
		return oops.In("wire").Code("INVALID_ARGUMENTS").Wrapf(err, "encode arguments")
	}
	if err := sch.Validate(inst); err != nil {
		return oops.In("wire").Code("INVALID_ARGUMENTS").Wrapf(err, "invalid arguments")
	}
	return nil
}

func compile(s *jsonschema.Schema) (*jschema.Schema, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	c := jschema.NewCompiler()
	if err := c.AddResource("params.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile("params.json")
}

// toInstance converts arbitrary Go values into the JSON value model the
// validator expects.
func toInstance(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jschema.UnmarshalJSON(bytes.NewReader(raw))
}
