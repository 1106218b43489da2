// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

//nolint:gocritic // captLocal: L is the idiomatic name for lua.LState
package lua

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/oklog/ulid/v2"
	lua "github.com/yuin/gopher-lua"
)

// hostTableName is the global through which extensions reach the host.
const hostTableName = "exthost"

// registerHostAPI installs the exthost table:
//
//	exthost.log(level, message)
//	exthost.request_id() -> string
//	exthost.json_encode(value) -> string | nil, err
//	exthost.json_decode(text) -> value | nil, err
func registerHostAPI(L *lua.LState, source string) {
	mod := L.NewTable()
	L.SetField(mod, "log", L.NewFunction(logFn(source)))
	L.SetField(mod, "request_id", L.NewFunction(requestIDFn))
	L.SetField(mod, "json_encode", L.NewFunction(jsonEncodeFn))
	L.SetField(mod, "json_decode", L.NewFunction(jsonDecodeFn))
	L.SetGlobal(hostTableName, mod)
}

// pushError pushes nil followed by an error string and returns 2.
func pushError(L *lua.LState, msg string) int {
	L.Push(lua.LNil)
	L.Push(lua.LString(msg))
	return 2
}

func logFn(source string) lua.LGFunction {
	return func(L *lua.LState) int {
		level := L.CheckString(1)
		message := L.CheckString(2)

		ctx := L.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		logger := slog.Default().With("extension", source)
		switch level {
		case "debug":
			logger.DebugContext(ctx, message)
		case "warn":
			logger.WarnContext(ctx, message)
		case "error":
			logger.ErrorContext(ctx, message)
		default:
			logger.InfoContext(ctx, message)
		}
		return 0
	}
}

func requestIDFn(L *lua.LState) int {
	L.Push(lua.LString(ulid.Make().String()))
	return 1
}

func jsonEncodeFn(L *lua.LState) int {
	v, err := toGo(L.CheckAny(1))
	if err != nil {
		return pushError(L, err.Error())
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return pushError(L, err.Error())
	}
	L.Push(lua.LString(raw))
	return 1
}

func jsonDecodeFn(L *lua.LState) int {
	text := L.CheckString(1)
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return pushError(L, err.Error())
	}
	L.Push(toLua(L, v))
	return 1
}
