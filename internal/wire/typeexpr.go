// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package wire

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// typeLexer tokenizes declared type annotations. The trailing Other rule keeps
// the lexer total so that free text after a type (annotation descriptions, Go
// syntax we do not model) surfaces as a parse error instead of a lexer error.
var typeLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Slice", Pattern: `\[\s*\]`},
	{Name: "Ident", Pattern: `[a-zA-Z_][\w.]*`},
	{Name: "Number", Pattern: `\d+`},
	{Name: "Punct", Pattern: `[|?*\[\]<>(),]`},
	{Name: "whitespace", Pattern: `\s+`},
	{Name: "Other", Pattern: `.`},
})

// TypeExpr is a union of one or more alternatives, e.g. "string|nil".
//
// Grammar: term ( "|" term )*
type TypeExpr struct {
	Alternatives []*TypeTerm `parser:"@@ ( '|' @@ )*"`
}

// TypeTerm is one alternative together with its modifiers.
//
// Grammar: "*"* ( "[]" | "[" N "]" )* ( map | "(" expr ")" | named ) "[]"* "?"?
type TypeTerm struct {
	Pointers  []string   `parser:"@'*'*"`
	Sequences []string   `parser:"( @Slice | '[' @Number ']' )*"`
	Map       *MapExpr   `parser:"( @@"`
	Group     *TypeExpr  `parser:"| '(' @@ ')'"`
	Named     *NamedType `parser:"| @@ )"`
	Suffixes  []string   `parser:"@Slice*"`
	Optional  bool       `parser:"@'?'?"`
}

// MapExpr is a Go map type: map[K]V.
type MapExpr struct {
	Key   *TypeExpr `parser:"'map' '[' @@ ']'"`
	Value *TypeTerm `parser:"@@"`
}

// NamedType is a possibly qualified, possibly parameterized type name:
// "integer", "typing.List[int]", "table<string, integer>".
type NamedType struct {
	Name string      `parser:"@Ident"`
	Args []*TypeExpr `parser:"( '<' @@ ( ',' @@ )* '>' | '[' @@ ( ',' @@ )* ']' )?"`
}

var typeParser = participle.MustBuild[TypeExpr](
	participle.Lexer(typeLexer),
	participle.Elide("whitespace"),
	participle.UseLookahead(3),
)

// ParseType parses a complete declared type. Any trailing input is an error.
func ParseType(declared string) (*TypeExpr, error) {
	if strings.TrimSpace(declared) == "" {
		return nil, fmt.Errorf("empty type")
	}
	expr, err := typeParser.ParseString("", declared)
	if err != nil {
		return nil, fmt.Errorf("parse type %q: %w", declared, err)
	}
	return expr, nil
}

// ParsePrefix parses the longest type expression at the start of s and
// ignores whatever follows it. Annotation lines use this to separate the type
// from free-form text.
func ParsePrefix(s string) (*TypeExpr, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("empty type")
	}
	expr, err := typeParser.ParseString("", s, participle.AllowTrailing(true))
	if err != nil {
		return nil, fmt.Errorf("parse type prefix %q: %w", s, err)
	}
	return expr, nil
}

// String renders the expression in canonical form.
func (e *TypeExpr) String() string {
	parts := make([]string, len(e.Alternatives))
	for i, alt := range e.Alternatives {
		parts[i] = alt.String()
	}
	return strings.Join(parts, "|")
}

// String renders the term in canonical form.
func (t *TypeTerm) String() string {
	var b strings.Builder
	for range t.Pointers {
		b.WriteString("*")
	}
	for _, seq := range t.Sequences {
		if seq == "" || strings.HasPrefix(seq, "[") {
			b.WriteString("[]")
		} else {
			b.WriteString("[" + seq + "]")
		}
	}
	switch {
	case t.Map != nil:
		b.WriteString("map[" + t.Map.Key.String() + "]" + t.Map.Value.String())
	case t.Group != nil:
		b.WriteString("(" + t.Group.String() + ")")
	case t.Named != nil:
		b.WriteString(t.Named.String())
	}
	for range t.Suffixes {
		b.WriteString("[]")
	}
	if t.Optional {
		b.WriteString("?")
	}
	return b.String()
}

// String renders the named type in canonical form. Lua-style generics keep
// their angle brackets; everything else uses square brackets.
func (n *NamedType) String() string {
	if len(n.Args) == 0 {
		return n.Name
	}
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = a.String()
	}
	if strings.EqualFold(n.Name, "table") {
		return n.Name + "<" + strings.Join(args, ", ") + ">"
	}
	return n.Name + "[" + strings.Join(args, ", ") + "]"
}

// bare reports whether the term is a plain name with no modifiers.
func (t *TypeTerm) bare() bool {
	return t.Named != nil && len(t.Pointers) == 0 && len(t.Sequences) == 0 &&
		len(t.Suffixes) == 0 && !t.Optional
}

// baseName returns the lower-cased, unqualified name of a named type.
func (n *NamedType) baseName() string {
	name := n.Name
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToLower(name)
}
