// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package lua

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/exthost/exthost/internal/extension"
)

// entryPoint is the registration function every extension defines.
const entryPoint = "main"

// module is one loaded Lua extension. It owns its state.
type module struct {
	L         *lua.LState
	ns        *lua.LTable
	builtins  map[string]lua.LValue
	source    string
	chunkName string
	lines     []string
}

// Register calls main() and converts the returned table.
func (m *module) Register(ctx context.Context) (*extension.Registration, error) {
	fn, ok := m.function(entryPoint)
	if !ok {
		return nil, extension.ErrNoEntryPoint
	}

	m.L.SetContext(ctx)
	if err := m.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}); err != nil {
		return nil, oops.In("lua").With("source", m.source).With("function", entryPoint).Wrap(luaError(err))
	}
	ret := m.L.Get(-1)
	m.L.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return nil, oops.In("lua").With("source", m.source).
			Errorf("%s() must return a table, got %s", entryPoint, ret.Type().String())
	}

	return &extension.Registration{
		ID:          stringField(tbl, "id"),
		Description: stringField(tbl, "description"),
		Author:      stringField(tbl, "author"),
		Version:     stringField(tbl, "version"),
		Tools:       m.entries(tbl, extension.RoleTool),
		Resources:   m.entries(tbl, extension.RoleResource),
		Prompts:     m.entries(tbl, extension.RolePrompt),
	}, nil
}

// Lookup resolves name in the namespace, then in the globals. Globals the
// state started with (print, pcall, the exthost table) are not extension
// functions unless the chunk rebound them.
func (m *module) Lookup(name string) (extension.Callable, bool) {
	fn, ok := m.function(name)
	if !ok {
		return nil, false
	}
	return &callable{m: m, name: name, fn: fn}, true
}

// Close releases the Lua state.
func (m *module) Close() error {
	m.L.Close()
	return nil
}

func (m *module) function(name string) (*lua.LFunction, bool) {
	if fn, ok := m.field(m.ns, name); ok {
		return fn, true
	}
	if m.ns != m.L.G.Global {
		return m.field(m.L.G.Global, name)
	}
	return nil, false
}

func (m *module) field(tbl *lua.LTable, name string) (*lua.LFunction, bool) {
	fn, ok := tbl.RawGetString(name).(*lua.LFunction)
	if !ok || m.builtin(tbl, name, fn) {
		return nil, false
	}
	return fn, true
}

// builtin reports whether tbl[name] still holds the value the state was
// created with.
func (m *module) builtin(tbl *lua.LTable, name string, v lua.LValue) bool {
	if tbl != m.L.G.Global {
		return false
	}
	orig, ok := m.builtins[name]
	return ok && orig == v
}

// snapshotGlobals records the globals of a state before any extension code
// runs.
func snapshotGlobals(L *lua.LState) map[string]lua.LValue {
	out := make(map[string]lua.LValue)
	L.G.Global.ForEach(func(k, v lua.LValue) {
		if key, ok := k.(lua.LString); ok {
			out[string(key)] = v
		}
	})
	return out
}

func stringField(tbl *lua.LTable, key string) string {
	switch v := tbl.RawGetString(key).(type) {
	case lua.LString:
		return string(v)
	case lua.LNumber:
		return v.String()
	}
	return ""
}

// entries converts one registration list. Functions are named by looking
// them up in the namespace; anything else is kept as a non-callable entry.
func (m *module) entries(reg *lua.LTable, role extension.Role) []extension.Entry {
	list, ok := reg.RawGetString(string(role) + "s").(*lua.LTable)
	if !ok {
		return nil
	}
	var out []extension.Entry
	for i := 1; i <= list.MaxN(); i++ {
		v := list.RawGetInt(i)
		fn, ok := v.(*lua.LFunction)
		if !ok {
			out = append(out, extension.Entry{Desc: describe(v)})
			continue
		}
		name, ok := m.nameOf(fn, role)
		if !ok {
			out = append(out, extension.Entry{Desc: fmt.Sprintf("function without a name%s", m.where(fn))})
			continue
		}
		sig := m.signature(name, fn)
		out = append(out, extension.Entry{Signature: &sig, Desc: "function " + name})
	}
	return out
}

// nameOf finds the names fn is bound to. With several aliases, a name
// carrying the role prefix wins, then the lexically smallest.
func (m *module) nameOf(fn *lua.LFunction, role extension.Role) (string, bool) {
	var names []string
	collect := func(tbl *lua.LTable) {
		tbl.ForEach(func(k, v lua.LValue) {
			key, ok := k.(lua.LString)
			if ok && v == fn && !m.builtin(tbl, string(key), v) {
				names = append(names, string(key))
			}
		})
	}
	collect(m.ns)
	if len(names) == 0 && m.ns != m.L.G.Global {
		collect(m.L.G.Global)
	}
	if len(names) == 0 {
		return "", false
	}
	sort.Slice(names, func(i, j int) bool {
		pi := strings.HasPrefix(names[i], role.Prefix())
		pj := strings.HasPrefix(names[j], role.Prefix())
		if pi != pj {
			return pi
		}
		return names[i] < names[j]
	})
	return names[0], true
}

func (m *module) where(fn *lua.LFunction) string {
	if fn.Proto == nil {
		return ""
	}
	return fmt.Sprintf(" (line %d)", fn.Proto.LineDefined)
}

func describe(v lua.LValue) string {
	switch v.Type() {
	case lua.LTString:
		return fmt.Sprintf("string %q", v.String())
	case lua.LTNil:
		return "nil"
	default:
		return v.Type().String() + " " + v.String()
	}
}

// signature extracts parameter names from the prototype's debug locals and
// types, defaults and documentation from the comment block above it.
func (m *module) signature(name string, fn *lua.LFunction) extension.Signature {
	sig := extension.Signature{Name: name}
	if fn.IsG || fn.Proto == nil {
		return sig
	}
	proto := fn.Proto

	var doc docBlock
	if proto.SourceName == m.chunkName {
		doc = readDocBlock(m.lines, proto.LineDefined)
	} else {
		doc = readDocBlock(nil, 0)
	}
	sig.Doc = doc.text

	for _, pname := range paramNames(proto) {
		p := extension.Param{Name: pname, DeclaredType: doc.types[pname]}
		if v, ok := doc.defaults[pname]; ok {
			p.HasDefault = true
			p.Default = v
		}
		sig.Params = append(sig.Params, p)
	}
	return sig
}

// paramNames returns the names of the fixed parameters in order. Methods
// defined with ':' start with self.
func paramNames(proto *lua.FunctionProto) []string {
	n := int(proto.NumParameters)
	if n > len(proto.DbgLocals) {
		n = len(proto.DbgLocals)
	}
	names := make([]string, 0, n)
	for _, local := range proto.DbgLocals[:n] {
		names = append(names, local.Name)
	}
	return names
}
