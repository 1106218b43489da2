// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

// Package extension loads extension files, introspects the callables they
// register and invokes a single callable from a serialized request.
//
// A Runtime knows how to open one kind of extension file (Lua source, a
// go-plugin binary) into an isolated Module. Everything above the Module
// interface is runtime independent: Load turns a module's registration into
// a Manifest and Invoke resolves and calls one function.
package extension

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// Runtime opens extension files of one kind.
type Runtime interface {
	// Name identifies the runtime ("lua", "binary").
	Name() string

	// Open loads the file at path into a fresh, isolated module instance.
	// The module's directory must be on its resolution path.
	Open(ctx context.Context, path string) (Module, error)
}

// Module is one loaded extension instance. A Module is used by a single
// goroutine and discarded after one load or invocation.
type Module interface {
	// Register runs the zero-argument entry point and returns what it
	// declared. Modules without an entry point return ErrNoEntryPoint.
	Register(ctx context.Context) (*Registration, error)

	// Lookup resolves a function by name in the module's namespace.
	Lookup(name string) (Callable, bool)

	// Close releases the module and any process backing it.
	Close() error
}

// Callable is a resolved extension function.
type Callable interface {
	Signature() Signature
	Call(ctx context.Context, args Args) (any, error)
}

// Args carries call arguments. Exactly one of Positional or Named is used.
type Args struct {
	Positional []any
	Named      map[string]any
}

// Signature holds the raw facts a runtime extracts from a function.
type Signature struct {
	Name   string
	Doc    string
	Params []Param
}

// Param is one declared parameter, in declaration order.
type Param struct {
	Name         string
	DeclaredType string
	HasDefault   bool
	Default      any
}

// Registration is the value returned by an extension's entry point.
type Registration struct {
	ID          string
	Description string
	Author      string
	Version     string
	Tools       []Entry
	Resources   []Entry
	Prompts     []Entry
}

// Entry is one element of a registration list.
type Entry struct {
	// Signature is nil when the entry is not a function that can be
	// resolved by name.
	Signature *Signature
	// Desc describes the raw entry for diagnostics.
	Desc string
}

// ErrNoEntryPoint is returned by Module.Register when the module does not
// define main.
var ErrNoEntryPoint = errors.New("extension has no main entry point")

// RuntimeSet selects a runtime by file name.
type RuntimeSet struct {
	Lua    Runtime
	Binary Runtime
}

// For returns the runtime responsible for path: Lua for ".lua" files and
// the binary runtime for everything else.
func (s RuntimeSet) For(path string) (Runtime, error) {
	rt := s.Binary
	if strings.EqualFold(filepath.Ext(path), ".lua") {
		rt = s.Lua
	}
	if rt == nil {
		return nil, errNoRuntime(path)
	}
	return rt, nil
}
