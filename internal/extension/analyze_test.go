// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package extension_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exthost/exthost/internal/extension"
	"github.com/exthost/exthost/internal/wire"
)

func TestAnalyze_DefaultMakesOptional(t *testing.T) {
	d := extension.Analyze(extension.Signature{
		Name: "f",
		Params: []extension.Param{
			{Name: "a", DeclaredType: "int"},
			{Name: "b", DeclaredType: "int", HasDefault: true, Default: 0},
		},
	})

	require.Len(t, d.Parameters, 2)
	a := d.Parameters["a"]
	assert.Equal(t, wire.Integer, a.WireSchema)
	assert.False(t, a.HasDefault)
	assert.False(t, a.IsOptional)
	assert.Nil(t, a.DefaultValue)

	b := d.Parameters["b"]
	assert.Equal(t, wire.Integer, b.WireSchema)
	assert.True(t, b.HasDefault)
	assert.True(t, b.IsOptional)
	assert.Equal(t, 0, b.DefaultValue)
}

func TestAnalyze_Parameters(t *testing.T) {
	tests := []struct {
		name         string
		param        extension.Param
		wantType     string
		wantSchema   wire.Primitive
		wantOptional bool
	}{
		{"plain", extension.Param{Name: "x", DeclaredType: "string"}, "string", wire.String, false},
		{"lua optional", extension.Param{Name: "x", DeclaredType: "integer?"}, "integer?", wire.Integer, true},
		{"union with nil", extension.Param{Name: "x", DeclaredType: "table|nil"}, "table|nil", wire.Object, true},
		{"pointer", extension.Param{Name: "x", DeclaredType: "*float64"}, "*float64", wire.Number, true},
		{"typing optional", extension.Param{Name: "x", DeclaredType: "Optional[list[int]]"}, "Optional[list[int]]", wire.Array, true},
		{"untyped", extension.Param{Name: "x"}, "any", wire.Any, false},
		{"unknown", extension.Param{Name: "x", DeclaredType: "Widget"}, "Widget", wire.Any, false},
		{"optional with default", extension.Param{Name: "x", DeclaredType: "string?", HasDefault: true, Default: "hi"}, "string?", wire.String, true},
		{"union without nil", extension.Param{Name: "x", DeclaredType: "string|integer"}, "string|integer", wire.Any, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := extension.Analyze(extension.Signature{Name: "f", Params: []extension.Param{tt.param}})
			p, ok := d.Parameters["x"]
			require.True(t, ok)
			assert.Equal(t, tt.wantType, p.DeclaredType)
			assert.Equal(t, tt.wantSchema, p.WireSchema)
			assert.Equal(t, tt.wantOptional, p.IsOptional)
			assert.Empty(t, p.Description)
		})
	}
}

func TestAnalyze_ExcludesSelf(t *testing.T) {
	d := extension.Analyze(extension.Signature{
		Name: "method",
		Params: []extension.Param{
			{Name: "self"},
			{Name: "value", DeclaredType: "number"},
		},
	})
	assert.NotContains(t, d.Parameters, "self")
	assert.Contains(t, d.Parameters, "value")
	assert.Equal(t, "method", d.FunctionName)
	assert.Empty(t, d.ID)
}

func TestParseDescription(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"empty", "", ""},
		{"single line", "Adds two numbers", "Adds two numbers"},
		{"stops at args", "Adds two numbers\n\nArgs:\n  a: first", "Adds two numbers"},
		{"multi line summary", "  Adds two\n  numbers together  \nReturns: the sum", "Adds two numbers together"},
		{"arguments header", "Summary\narguments: none", "Summary"},
		{"case insensitive", "Summary\nRETURNS: x", "Summary"},
		{"header first", "Args:\n  a: first", ""},
		{"header must lead", "Takes args: a and b", "Takes args: a and b"},
		{"blank lines kept as spaces", "First\n\nSecond", "First  Second"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extension.ParseDescription(tt.doc))
		})
	}
}
