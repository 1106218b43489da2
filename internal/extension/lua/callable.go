// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package lua

import (
	"context"
	"errors"
	"sort"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/exthost/exthost/internal/extension"
)

// callable is a Lua function resolved by name.
type callable struct {
	m    *module
	name string
	fn   *lua.LFunction
}

func (c *callable) Signature() extension.Signature {
	return c.m.signature(c.name, c.fn)
}

// Call runs the function. Named arguments are placed by parameter name; a
// leading self parameter receives the module namespace. A result of
// (nil, "message") is reported as an error carrying the message.
func (c *callable) Call(ctx context.Context, args extension.Args) (any, error) {
	L := c.m.L

	var params []string
	if c.fn.Proto != nil {
		params = paramNames(c.fn.Proto)
	}
	method := len(params) > 0 && params[0] == "self"

	var values []lua.LValue
	if args.Named != nil {
		var err error
		if values, err = c.namedValues(L, params, args.Named); err != nil {
			return nil, err
		}
	} else {
		if method {
			values = append(values, c.m.ns)
		}
		for _, v := range args.Positional {
			values = append(values, toLua(L, v))
		}
	}

	L.SetContext(ctx)
	base := L.GetTop()
	if err := L.CallByParam(lua.P{Fn: c.fn, NRet: lua.MultRet, Protect: true}, values...); err != nil {
		return nil, luaError(err)
	}
	n := L.GetTop() - base
	results := make([]lua.LValue, n)
	for i := 0; i < n; i++ {
		results[i] = L.Get(base + i + 1)
	}
	L.Pop(n)

	if n == 0 {
		return nil, nil
	}
	if n >= 2 && results[0] == lua.LNil {
		if msg, ok := results[1].(lua.LString); ok {
			return nil, errors.New(string(msg))
		}
	}
	out, err := toGo(results[0])
	if err != nil {
		return nil, oops.In("lua").With("function", c.name).Wrapf(err, "encode result")
	}
	return out, nil
}

func (c *callable) namedValues(L *lua.LState, params []string, named map[string]any) ([]lua.LValue, error) {
	sig := c.Signature()
	defaults := make(map[string]extension.Param, len(sig.Params))
	for _, p := range sig.Params {
		defaults[p.Name] = p
	}

	known := make(map[string]bool, len(params))
	values := make([]lua.LValue, len(params))
	for i, name := range params {
		known[name] = true
		if i == 0 && name == "self" {
			values[i] = c.m.ns
			continue
		}
		if v, ok := named[name]; ok {
			values[i] = toLua(L, v)
		} else if p := defaults[name]; p.HasDefault {
			values[i] = toLua(L, p.Default)
		} else {
			values[i] = lua.LNil
		}
	}

	var unexpected []string
	for name := range named {
		if !known[name] || name == "self" {
			unexpected = append(unexpected, name)
		}
	}
	if len(unexpected) > 0 {
		sort.Strings(unexpected)
		return nil, oops.In("lua").Code(extension.CodeInvalidArguments).With("function", c.name).
			Errorf("unexpected argument %q", unexpected[0])
	}
	return values, nil
}
