// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package extension_test

import (
	"context"
	"errors"

	"github.com/exthost/exthost/internal/extension"
)

// fakeRuntime serves a prepared module for any path.
type fakeRuntime struct {
	module  *fakeModule
	openErr error
	opened  []string
}

func (r *fakeRuntime) Name() string { return "lua" }

func (r *fakeRuntime) Open(_ context.Context, path string) (extension.Module, error) {
	r.opened = append(r.opened, path)
	if r.openErr != nil {
		return nil, r.openErr
	}
	return r.module, nil
}

type fakeModule struct {
	reg       *extension.Registration
	regErr    error
	functions map[string]*fakeCallable
	closed    bool
}

func (m *fakeModule) Register(context.Context) (*extension.Registration, error) {
	if m.regErr != nil {
		return nil, m.regErr
	}
	if m.reg == nil {
		return nil, extension.ErrNoEntryPoint
	}
	return m.reg, nil
}

func (m *fakeModule) Lookup(name string) (extension.Callable, bool) {
	fn, ok := m.functions[name]
	if !ok {
		return nil, false
	}
	return fn, true
}

func (m *fakeModule) Close() error {
	m.closed = true
	return nil
}

type fakeCallable struct {
	sig   extension.Signature
	fn    func(args extension.Args) (any, error)
	calls []extension.Args
}

func (c *fakeCallable) Signature() extension.Signature { return c.sig }

func (c *fakeCallable) Call(_ context.Context, args extension.Args) (any, error) {
	c.calls = append(c.calls, args)
	if c.fn == nil {
		return nil, errors.New("no implementation")
	}
	return c.fn(args)
}

func sig(name, doc string, params ...extension.Param) *extension.Signature {
	return &extension.Signature{Name: name, Doc: doc, Params: params}
}

func entry(s *extension.Signature) extension.Entry {
	return extension.Entry{Signature: s, Desc: "function " + s.Name}
}

// mathModule mirrors a small arithmetic extension.
func mathModule(id string) *fakeModule {
	add := sig("tool_add_numbers", "Adds two numbers together and returns the result\n\nArgs:\n    number1: first\n",
		extension.Param{Name: "number1", DeclaredType: "integer"},
		extension.Param{Name: "number2", DeclaredType: "integer"},
	)
	sub := sig("tool_subtract_numbers", "Subtracts numbers from each other",
		extension.Param{Name: "number1", DeclaredType: "integer"},
		extension.Param{Name: "number2", DeclaredType: "integer"},
		extension.Param{Name: "number3", DeclaredType: "integer", HasDefault: true, Default: int64(0)},
	)
	formula := sig("resource_math_formula", "Provides common mathematical formulas",
		extension.Param{Name: "uri", DeclaredType: "string"},
		extension.Param{Name: "params", DeclaredType: "table"},
	)
	professor := sig("prompt_math_professor", "Creates a prompt for a math professor persona\nReturns: a prompt")

	return &fakeModule{
		reg: &extension.Registration{
			ID:          id,
			Description: "Mathematical tools and formulas",
			Author:      "Clay",
			Version:     "1.0.0",
			Tools:       []extension.Entry{entry(add), entry(sub)},
			Resources:   []extension.Entry{entry(formula)},
			Prompts:     []extension.Entry{entry(professor)},
		},
		functions: map[string]*fakeCallable{
			"tool_add_numbers": {sig: *add, fn: func(a extension.Args) (any, error) {
				return toInt(a.Named["number1"]) + toInt(a.Named["number2"]), nil
			}},
			"tool_subtract_numbers": {sig: *sub, fn: func(a extension.Args) (any, error) {
				return toInt(a.Named["number1"]) - toInt(a.Named["number2"]) - toInt(a.Named["number3"]), nil
			}},
			"resource_math_formula": {sig: *formula, fn: func(a extension.Args) (any, error) {
				return map[string]any{"uri": a.Positional[0], "params": a.Positional[1]}, nil
			}},
			"prompt_math_professor": {sig: *professor, fn: func(extension.Args) (any, error) {
				return nil, errors.New("professor is out")
			}},
		},
	}
}

func toInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
