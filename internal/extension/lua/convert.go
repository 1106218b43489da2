// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package lua

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	lua "github.com/yuin/gopher-lua"
)

// maxDepth bounds table nesting during conversion; self-referencing tables
// hit it instead of recursing forever.
const maxDepth = 64

// toGo converts a Lua value into the JSON value model: nil, bool, int64,
// float64, string, []any and map[string]any.
//
// Tables with keys 1..n are arrays, other tables are objects. The empty
// table is an empty array. Integral numbers become int64.
func toGo(v lua.LValue) (any, error) {
	return toGoDepth(v, 0)
}

func toGoDepth(v lua.LValue, depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("value nested deeper than %d levels", maxDepth)
	}
	switch val := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(val), nil
	case lua.LString:
		return string(val), nil
	case lua.LNumber:
		return numberToGo(val), nil
	case *lua.LTable:
		if isArray(val) {
			return tableToSlice(val, depth)
		}
		return tableToMap(val, depth)
	default:
		return nil, fmt.Errorf("cannot encode Lua %s value", v.Type().String())
	}
}

func numberToGo(n lua.LNumber) any {
	f := float64(n)
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f)
	}
	return f
}

// isArray reports whether every key of tbl is in 1..MaxN.
func isArray(tbl *lua.LTable) bool {
	count := 0
	tbl.ForEach(func(_, _ lua.LValue) {
		count++
	})
	return count == tbl.MaxN()
}

func tableToSlice(tbl *lua.LTable, depth int) ([]any, error) {
	n := tbl.MaxN()
	out := make([]any, 0, n)
	for i := 1; i <= n; i++ {
		v, err := toGoDepth(tbl.RawGetInt(i), depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func tableToMap(tbl *lua.LTable, depth int) (map[string]any, error) {
	out := make(map[string]any)
	var convErr error
	tbl.ForEach(func(k, v lua.LValue) {
		if convErr != nil {
			return
		}
		var key string
		switch kv := k.(type) {
		case lua.LString:
			key = string(kv)
		case lua.LNumber:
			key = kv.String()
		default:
			convErr = fmt.Errorf("cannot encode table key of type %s", k.Type().String())
			return
		}
		gv, err := toGoDepth(v, depth+1)
		if err != nil {
			convErr = err
			return
		}
		out[key] = gv
	})
	if convErr != nil {
		return nil, convErr
	}
	return out, nil
}

// toLua converts a JSON-model Go value into a Lua value. Values outside the
// model are round-tripped through encoding/json first.
func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return lua.LString(val.String())
		}
		return lua.LNumber(f)
	case []any:
		tbl := L.CreateTable(len(val), 0)
		for i, item := range val {
			tbl.RawSetInt(i+1, toLua(L, item))
		}
		return tbl
	case map[string]any:
		tbl := L.CreateTable(0, len(val))
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			tbl.RawSetString(k, toLua(L, val[k]))
		}
		return tbl
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return lua.LString(fmt.Sprint(val))
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return lua.LString(string(raw))
		}
		return toLua(L, generic)
	}
}
