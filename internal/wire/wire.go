// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

// Package wire maps declared parameter types onto the closed set of wire
// schema primitives and builds JSON Schemas for callable parameters.
//
// Declared types may be written in Lua annotation style ("integer",
// "string[]", "table<string, integer>", "integer?"), Go style ("int64",
// "[]string", "map[string]any", "*int") or Python typing style
// ("list[int]", "Optional[str]"). Anything the grammar does not understand
// degrades to Any.
package wire

import (
	"github.com/invopop/jsonschema"
)

// Primitive is a wire schema type tag.
type Primitive string

// Wire primitives. This set is closed.
const (
	Integer Primitive = "integer"
	Number  Primitive = "number"
	String  Primitive = "string"
	Boolean Primitive = "boolean"
	Array   Primitive = "array"
	Object  Primitive = "object"
	Any     Primitive = "any"
)

// Primitives lists every primitive in a stable order.
var Primitives = []Primitive{Integer, Number, String, Boolean, Array, Object, Any}

// JSONSchema describes Primitive as a string enum.
func (Primitive) JSONSchema() *jsonschema.Schema {
	enum := make([]any, len(Primitives))
	for i, p := range Primitives {
		enum[i] = string(p)
	}
	return &jsonschema.Schema{Type: "string", Enum: enum}
}

var namedPrimitives = map[string]Primitive{
	"int": Integer, "int8": Integer, "int16": Integer, "int32": Integer, "int64": Integer,
	"uint": Integer, "uint8": Integer, "uint16": Integer, "uint32": Integer, "uint64": Integer,
	"uintptr": Integer, "integer": Integer, "long": Integer,

	"float": Number, "float32": Number, "float64": Number, "number": Number, "double": Number,

	"str": String, "string": String, "text": String,

	"bool": Boolean, "boolean": Boolean,

	"list": Array, "array": Array, "sequence": Array, "tuple": Array, "set": Array, "slice": Array,

	"dict": Object, "map": Object, "mapping": Object, "table": Object, "object": Object, "record": Object,
}

// bracketNames are names whose square brackets take type arguments. With
// empty brackets they are incomplete, not arrays.
var bracketNames = map[string]bool{"optional": true, "union": true, "map": true}

// nilNames are the spellings of the null type across annotation styles.
var nilNames = map[string]bool{"nil": true, "none": true, "nonetype": true, "null": true}

// MapType maps a declared type to its wire primitive. It never fails: empty,
// unknown or unparseable input maps to Any. Nullable wrappers (T?, *T,
// Optional[T], unions) are not unwrapped here and also map to Any; callers
// unwrap first with Unwrap.
func MapType(declared string) Primitive {
	expr, err := ParseType(declared)
	if err != nil {
		return Any
	}
	return classifyExpr(expr)
}

func classifyExpr(e *TypeExpr) Primitive {
	if len(e.Alternatives) != 1 {
		return Any
	}
	return classifyTerm(e.Alternatives[0])
}

func classifyTerm(t *TypeTerm) Primitive {
	if t.Optional || len(t.Pointers) > 0 {
		return Any
	}
	if t.Named != nil && len(t.Named.Args) == 0 && len(t.Suffixes) > 0 && bracketNames[t.Named.baseName()] {
		return Any
	}
	if len(t.Sequences) > 0 || len(t.Suffixes) > 0 {
		return Array
	}
	switch {
	case t.Map != nil:
		return Object
	case t.Group != nil:
		return classifyExpr(t.Group)
	case t.Named != nil:
		if p, ok := namedPrimitives[t.Named.baseName()]; ok {
			return p
		}
	}
	return Any
}

// Unwrap strips top-level nullable wrappers from a declared type and reports
// whether one was present. Nested wrappers collapse: "(int|nil)?" and
// "**int" both unwrap to "int". The returned inner type is rendered in
// canonical form. Recognized wrappers:
//
//   - Lua optional suffix: "integer?"
//   - Go pointer: "*int"
//   - Python typing: "Optional[int]", "Union[int, None]"
//   - unions with a null member: "string|nil"
//
// For unions the inner type is the first non-null alternative. A union with
// no null member is returned unchanged and is not optional.
func Unwrap(declared string) (inner string, optional bool) {
	inner, optional = unwrapOnce(declared)
	if !optional {
		return declared, false
	}
	for {
		next, ok := unwrapOnce(inner)
		if !ok {
			return inner, true
		}
		inner = next
	}
}

func unwrapOnce(declared string) (string, bool) {
	expr, err := ParseType(declared)
	if err != nil {
		return declared, false
	}
	if len(expr.Alternatives) > 1 {
		return unwrapUnion(expr.Alternatives, declared)
	}

	t := expr.Alternatives[0]
	switch {
	case t.Optional:
		clone := *t
		clone.Optional = false
		return clone.String(), true
	case len(t.Pointers) > 0:
		clone := *t
		clone.Pointers = t.Pointers[1:]
		return clone.String(), true
	case t.bare() && t.Named.baseName() == "optional" && len(t.Named.Args) == 1:
		return t.Named.Args[0].String(), true
	case t.bare() && t.Named.baseName() == "union" && len(t.Named.Args) > 0:
		var alts []*TypeTerm
		for _, a := range t.Named.Args {
			alts = append(alts, a.Alternatives...)
		}
		return unwrapUnion(alts, declared)
	case t.Group != nil && len(t.Suffixes) == 0 && len(t.Sequences) == 0:
		return Unwrap(t.Group.String())
	}
	return declared, false
}

func unwrapUnion(alts []*TypeTerm, declared string) (string, bool) {
	var rest []*TypeTerm
	hasNil := false
	for _, a := range alts {
		if a.bare() && nilNames[a.Named.baseName()] {
			hasNil = true
			continue
		}
		rest = append(rest, a)
	}
	if !hasNil {
		return declared, false
	}
	if len(rest) == 0 {
		return string(Any), true
	}
	return rest[0].String(), true
}
