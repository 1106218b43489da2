// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package lua

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/exthost/exthost/internal/extension"
)

// RuntimeName identifies this runtime in manifests.
const RuntimeName = "lua"

// Compile-time interface check.
var _ extension.Runtime = (*Runtime)(nil)

// Options configures the Lua runtime.
type Options struct {
	// UnsafeLibraries opens the os and io libraries.
	UnsafeLibraries bool
}

// Runtime opens .lua extension files.
type Runtime struct {
	factory *StateFactory
}

// NewRuntime creates a Lua runtime.
func NewRuntime(opts Options) *Runtime {
	return &Runtime{factory: NewStateFactory(opts.UnsafeLibraries)}
}

// Name implements extension.Runtime.
func (r *Runtime) Name() string { return RuntimeName }

// Open runs the chunk at path in a fresh state. If the chunk returns a
// table, that table is the module namespace; otherwise the global table is.
func (r *Runtime) Open(ctx context.Context, path string) (extension.Module, error) {
	code, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, oops.In("lua").With("source", path).Hint("failed to read extension file").Wrap(err)
	}

	chunkName := filepath.Base(path)
	proto, err := compile(code, chunkName)
	if err != nil {
		return nil, oops.In("lua").With("source", path).Hint("syntax error").Wrap(err)
	}

	L, err := r.factory.NewState(ctx, filepath.Dir(path))
	if err != nil {
		return nil, oops.In("lua").With("source", path).Hint("failed to create state").Wrap(err)
	}
	registerHostAPI(L, path)
	builtins := snapshotGlobals(L)

	if err := L.CallByParam(lua.P{
		Fn:      L.NewFunctionFromProto(proto),
		NRet:    1,
		Protect: true,
	}); err != nil {
		L.Close()
		return nil, oops.In("lua").With("source", path).Hint("failed to run chunk").Wrap(luaError(err))
	}
	ret := L.Get(-1)
	L.Pop(1)

	ns := L.G.Global
	if tbl, ok := ret.(*lua.LTable); ok {
		ns = tbl
	}

	return &module{
		L:         L,
		ns:        ns,
		builtins:  builtins,
		source:    path,
		chunkName: chunkName,
		lines:     strings.Split(string(code), "\n"),
	}, nil
}

func compile(code []byte, name string) (*lua.FunctionProto, error) {
	chunk, err := parse.Parse(bytes.NewReader(code), name)
	if err != nil {
		return nil, err
	}
	return lua.Compile(chunk, name)
}

// luaError drops the stack traceback gopher-lua appends to runtime errors,
// keeping the error object's text.
func luaError(err error) error {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		return errors.New(apiErr.Object.String())
	}
	return err
}
