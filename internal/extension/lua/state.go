// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

// Package lua runs extensions written in Lua on gopher-lua.
//
// Parameter names come from the compiled function prototype and declared
// types from LuaLS-style annotations in the comment block above each
// function:
//
//	--- Adds two numbers together and returns the result
//	---@param number1 integer
//	---@param number2? integer
//	---@default number2 0
//	function tool_add_numbers(number1, number2) ... end
package lua

import (
	"context"
	"fmt"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
)

// library is a Lua library opened into new states.
type library struct {
	name string
	fn   lua.LGFunction
}

// defaultLibraries returns the libraries every extension state gets.
// package is included so extensions can require modules next to them.
// os, io and debug are never opened here.
func defaultLibraries() []library {
	return []library{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
		{lua.LoadLibName, lua.OpenPackage},
	}
}

func unsafeLibraries() []library {
	return []library{
		{lua.OsLibName, lua.OpenOs},
		{lua.IoLibName, lua.OpenIo},
	}
}

// blockedBaseFunctions load code from outside the extension's resolution
// path and are removed from every state.
var blockedBaseFunctions = []string{"dofile", "loadfile", "loadstring", "load"}

// StateFactory creates Lua states for extension modules.
type StateFactory struct {
	libraries []library
}

// NewStateFactory creates a factory. With unsafe set, states also get the
// os and io libraries.
func NewStateFactory(unsafe bool) *StateFactory {
	libs := defaultLibraries()
	if unsafe {
		libs = append(libs, unsafeLibraries()...)
	}
	return &StateFactory{libraries: libs}
}

// NewState creates a fresh state whose package.path resolves modules in dir.
// The state inherits ctx for cancellation.
func (f *StateFactory) NewState(ctx context.Context, dir string) (*lua.LState, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})

	for _, lib := range f.libraries {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("failed to open library %s: %w", lib.name, err)
		}
	}

	for _, fn := range blockedBaseFunctions {
		L.SetGlobal(fn, lua.LNil)
	}

	if pkg, ok := L.GetGlobal(lua.LoadLibName).(*lua.LTable); ok && dir != "" {
		L.SetField(pkg, "path", lua.LString(packagePath(dir)))
		L.SetField(pkg, "cpath", lua.LString(""))
	}

	if ctx != nil {
		L.SetContext(ctx)
	}
	return L, nil
}

func packagePath(dir string) string {
	return filepath.Join(dir, "?.lua") + ";" + filepath.Join(dir, "?", "init.lua")
}
