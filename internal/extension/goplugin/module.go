// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package goplugin

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/samber/oops"

	"github.com/exthost/exthost/internal/extension"
	"github.com/exthost/exthost/pkg/extsdk"
)

// module is one running extension process.
type module struct {
	client   PluginClient
	provider extsdk.Provider
	desc     *extsdk.Description
	source   string
}

// Register converts the description the process reported at Open.
func (m *module) Register(_ context.Context) (*extension.Registration, error) {
	if !m.desc.EntryPoint {
		return nil, extension.ErrNoEntryPoint
	}
	return &extension.Registration{
		ID:          m.desc.ID,
		Description: m.desc.Description,
		Author:      m.desc.Author,
		Version:     m.desc.Version,
		Tools:       entries(m.desc.Tools),
		Resources:   entries(m.desc.Resources),
		Prompts:     entries(m.desc.Prompts),
	}, nil
}

func entries(funcs []extsdk.FuncDescription) []extension.Entry {
	out := make([]extension.Entry, 0, len(funcs))
	for _, fd := range funcs {
		if fd.Name == "" {
			out = append(out, extension.Entry{Desc: fd.Skip})
			continue
		}
		sig := signature(fd)
		out = append(out, extension.Entry{Signature: &sig, Desc: "function " + fd.Name})
	}
	return out
}

func signature(fd extsdk.FuncDescription) extension.Signature {
	sig := extension.Signature{Name: fd.Name, Doc: fd.Doc}
	for _, pd := range fd.Params {
		p := extension.Param{Name: pd.Name, DeclaredType: pd.Type, HasDefault: pd.HasDefault}
		if pd.HasDefault {
			var v any
			if err := json.Unmarshal(pd.Default, &v); err == nil {
				p.Default = v
			}
		}
		sig.Params = append(sig.Params, p)
	}
	return sig
}

// Lookup resolves name among the registered functions.
func (m *module) Lookup(name string) (extension.Callable, bool) {
	for _, list := range [][]extsdk.FuncDescription{m.desc.Tools, m.desc.Resources, m.desc.Prompts} {
		for _, fd := range list {
			if fd.Name != "" && fd.Name == name {
				return &callable{m: m, sig: signature(fd)}, true
			}
		}
	}
	return nil, false
}

// Close terminates the extension process.
func (m *module) Close() error {
	m.client.Kill()
	return nil
}

type callable struct {
	m   *module
	sig extension.Signature
}

func (c *callable) Signature() extension.Signature { return c.sig }

// Call sends the arguments as JSON. Errors the function returned come back
// with their message only.
func (c *callable) Call(ctx context.Context, args extension.Args) (any, error) {
	req := &extsdk.CallRequest{Function: c.sig.Name}
	if args.Named != nil {
		req.Named = make(map[string]json.RawMessage, len(args.Named))
		names := make([]string, 0, len(args.Named))
		for name := range args.Named {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			raw, err := json.Marshal(args.Named[name])
			if err != nil {
				return nil, oops.In("goplugin").With("function", c.sig.Name).With("argument", name).Wrap(err)
			}
			req.Named[name] = raw
		}
	} else {
		for i, v := range args.Positional {
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, oops.In("goplugin").With("function", c.sig.Name).With("position", i).Wrap(err)
			}
			req.Positional = append(req.Positional, raw)
		}
	}

	resp, err := c.m.provider.Call(ctx, req)
	if err != nil {
		return nil, oops.In("goplugin").With("source", c.m.source).With("function", c.sig.Name).Wrap(err)
	}
	if resp.NotFound {
		return nil, extension.NotFound(c.sig.Name)
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	if len(resp.Result) == 0 {
		return nil, nil
	}

	var result any
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, oops.In("goplugin").With("function", c.sig.Name).Hint("malformed result").Wrap(err)
	}
	return result, nil
}
