// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package extsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// NewProvider returns a Provider that serves the extension main builds.
// main runs at most once, on first use.
func NewProvider(main func() *Extension) Provider {
	return &funcProvider{main: main}
}

type funcProvider struct {
	main func() *Extension

	once  sync.Once
	ext   *Extension
	funcs map[string]*Func
	err   error
}

func (p *funcProvider) build() {
	p.once.Do(func() {
		if p.main == nil {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				p.err = fmt.Errorf("%v", r)
			}
		}()
		ext := p.main()
		if ext == nil {
			p.err = fmt.Errorf("entry point returned no registration")
			return
		}
		p.ext = ext
		p.funcs = make(map[string]*Func)
		for _, list := range [][]*Func{ext.Tools, ext.Resources, ext.Prompts} {
			for _, f := range list {
				if f != nil && f.name != "" {
					p.funcs[f.name] = f
				}
			}
		}
	})
}

func (p *funcProvider) Describe(_ context.Context) (*Description, error) {
	p.build()
	if p.err != nil {
		return nil, p.err
	}
	if p.ext == nil {
		return &Description{}, nil
	}
	return &Description{
		EntryPoint:  true,
		ID:          p.ext.ID,
		Description: p.ext.Description,
		Author:      p.ext.Author,
		Version:     p.ext.Version,
		Tools:       describeAll(p.ext.Tools),
		Resources:   describeAll(p.ext.Resources),
		Prompts:     describeAll(p.ext.Prompts),
	}, nil
}

func describeAll(funcs []*Func) []FuncDescription {
	out := make([]FuncDescription, 0, len(funcs))
	for i, f := range funcs {
		switch {
		case f == nil:
			out = append(out, FuncDescription{Skip: fmt.Sprintf("nil entry at index %d", i)})
		case f.name == "":
			out = append(out, FuncDescription{Skip: fmt.Sprintf("function without a name at index %d", i)})
		default:
			out = append(out, f.describe())
		}
	}
	return out
}

func (f *Func) describe() FuncDescription {
	d := FuncDescription{Name: f.name, Doc: f.doc}
	for _, p := range f.params {
		pd := ParamDescription{Name: p.name, Type: p.declared, HasDefault: p.hasDefault}
		if p.optional && !strings.HasSuffix(pd.Type, "?") {
			pd.Type += "?"
		}
		if p.hasDefault {
			raw, err := json.Marshal(p.def)
			if err != nil {
				raw = []byte("null")
			}
			pd.Default = raw
		}
		d.Params = append(d.Params, pd)
	}
	return d
}

func (p *funcProvider) Call(ctx context.Context, req *CallRequest) (*CallResponse, error) {
	p.build()
	if p.err != nil {
		return nil, p.err
	}
	f, ok := p.funcs[req.Function]
	if !ok {
		return &CallResponse{NotFound: true}, nil
	}

	result, err := f.call(ctx, req)
	if err != nil {
		return &CallResponse{Error: err.Error()}, nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return &CallResponse{Error: fmt.Sprintf("encode result: %v", err)}, nil
	}
	return &CallResponse{Result: raw}, nil
}

// call decodes the arguments into the Go parameter types and runs the
// function. Panics are reported as errors.
func (f *Func) call(ctx context.Context, req *CallRequest) (result any, err error) {
	var raws []json.RawMessage
	if req.Named != nil {
		if raws, err = f.placeNamed(req.Named); err != nil {
			return nil, err
		}
	} else {
		if len(req.Positional) > len(f.params) {
			return nil, fmt.Errorf("%s takes %d arguments, got %d", f.name, len(f.params), len(req.Positional))
		}
		raws = req.Positional
	}

	in := make([]reflect.Value, 0, len(f.params)+1)
	if f.withContext {
		in = append(in, reflect.ValueOf(ctx))
	}
	for i, p := range f.params {
		v := reflect.New(p.typ)
		if i < len(raws) && raws[i] != nil {
			if err := json.Unmarshal(raws[i], v.Interface()); err != nil {
				return nil, fmt.Errorf("argument %s: %w", p.name, err)
			}
		} else if p.hasDefault {
			if err := assignDefault(v, p.def); err != nil {
				return nil, fmt.Errorf("argument %s: %w", p.name, err)
			}
		}
		in = append(in, v.Elem())
	}

	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("%v", r)
		}
	}()
	out := f.fn.Call(in)

	if f.withError {
		if e := out[len(out)-1]; !e.IsNil() {
			return nil, e.Interface().(error)
		}
	}
	if f.hasValue {
		return out[0].Interface(), nil
	}
	return nil, nil
}

func (f *Func) placeNamed(named map[string]json.RawMessage) ([]json.RawMessage, error) {
	raws := make([]json.RawMessage, len(f.params))
	known := make(map[string]bool, len(f.params))
	for i, p := range f.params {
		known[p.name] = true
		raws[i] = named[p.name]
	}
	var unexpected []string
	for name := range named {
		if !known[name] {
			unexpected = append(unexpected, name)
		}
	}
	if len(unexpected) > 0 {
		sort.Strings(unexpected)
		return nil, fmt.Errorf("unexpected argument %q", unexpected[0])
	}
	return raws, nil
}

// assignDefault stores def into the value v points to, converting through
// JSON when the types differ.
func assignDefault(v reflect.Value, def any) error {
	if def == nil {
		return nil
	}
	dv := reflect.ValueOf(def)
	if dv.Type().AssignableTo(v.Elem().Type()) {
		v.Elem().Set(dv)
		return nil
	}
	raw, err := json.Marshal(def)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v.Interface())
}
