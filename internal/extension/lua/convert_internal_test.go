// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package lua

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	luavm "github.com/yuin/gopher-lua"
)

func eval(t *testing.T, L *luavm.LState, expr string) luavm.LValue {
	t.Helper()
	require.NoError(t, L.DoString("__v = "+expr))
	return L.GetGlobal("__v")
}

func TestToGo(t *testing.T) {
	L := luavm.NewState()
	defer L.Close()

	tests := []struct {
		expr string
		want any
	}{
		{"nil", nil},
		{"true", true},
		{"'x'", "x"},
		{"3", int64(3)},
		{"3.5", 3.5},
		{"-0", int64(0)},
		{"{}", []any{}},
		{"{1, 'two', false}", []any{int64(1), "two", false}},
		{"{a = 1, b = {c = 'd'}}", map[string]any{"a": int64(1), "b": map[string]any{"c": "d"}}},
		{"{1, 2, x = 3}", map[string]any{"1": int64(1), "2": int64(2), "x": int64(3)}},
		{"{[5] = 'five'}", map[string]any{"5": "five"}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := toGo(eval(t, L, tt.expr))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToGo_Errors(t *testing.T) {
	L := luavm.NewState()
	defer L.Close()

	_, err := toGo(eval(t, L, "function() end"))
	assert.ErrorContains(t, err, "cannot encode Lua function")

	_, err = toGo(eval(t, L, "(function() local t = {}; t.self = t; return t end)()"))
	assert.ErrorContains(t, err, "nested deeper")

	_, err = toGo(eval(t, L, "{[true] = 1}"))
	assert.ErrorContains(t, err, "table key")
}

func TestToLua_RoundTrip(t *testing.T) {
	L := luavm.NewState()
	defer L.Close()

	in := map[string]any{
		"n":    int64(7),
		"f":    1.5,
		"s":    "str",
		"b":    true,
		"list": []any{"a", int64(2)},
		"obj":  map[string]any{"k": "v"},
		"num":  json.Number("12"),
	}
	got, err := toGo(toLua(L, in))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"n":    int64(7),
		"f":    1.5,
		"s":    "str",
		"b":    true,
		"list": []any{"a", int64(2)},
		"obj":  map[string]any{"k": "v"},
		"num":  int64(12),
	}, got)
}

func TestToLua_Structs(t *testing.T) {
	L := luavm.NewState()
	defer L.Close()

	type point struct {
		X int `json:"x"`
		Y int `json:"y"`
	}
	got, err := toGo(toLua(L, point{X: 1, Y: 2}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": int64(1), "y": int64(2)}, got)
}
