// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

// Package extsdk provides the SDK for building binary exthost extensions.
//
// A binary extension is an executable that registers its functions with an
// explicit schema-builder API and serves them to the host over gRPC using
// the HashiCorp go-plugin framework. Declared parameter types are the Go
// types of the registered functions.
//
// Example usage:
//
//	package main
//
//	import "github.com/exthost/exthost/pkg/extsdk"
//
//	func addNumbers(a, b int) int { return a + b }
//
//	func main() {
//		extsdk.Serve(func() *extsdk.Extension {
//			return &extsdk.Extension{
//				ID:      "math-tools",
//				Version: "1.0.0",
//				Tools: []*extsdk.Func{
//					extsdk.NewFunc("tool_add_numbers", addNumbers).
//						Doc("Adds two numbers together").
//						Param("a").
//						Param("b", extsdk.Default(0)),
//				},
//			}
//		})
//	}
package extsdk

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	hashiplug "github.com/hashicorp/go-plugin"
)

// HandshakeConfig is the go-plugin handshake configuration.
// Both host and extensions must use the same values.
var HandshakeConfig = hashiplug.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "EXTHOST_EXTENSION",
	MagicCookieValue: "exthost-v1",
}

// PluginName is the go-plugin name under which extensions are dispensed.
const PluginName = "extension"

// Extension is the registration an extension's entry point returns.
type Extension struct {
	ID          string
	Description string
	Author      string
	Version     string
	Tools       []*Func
	Resources   []*Func
	Prompts     []*Func
}

// Func is a registered Go function together with its parameter metadata.
type Func struct {
	name   string
	doc    string
	fn     reflect.Value
	params []paramSpec
	// withContext is set when the first Go parameter is a context.Context.
	withContext bool
	// withError is set when the last Go result is an error.
	withError bool
	// hasValue is set when the function returns a value besides the error.
	hasValue bool
}

type paramSpec struct {
	name       string
	typ        reflect.Type
	declared   string
	hasDefault bool
	def        any
	optional   bool
}

// ParamOption configures one parameter.
type ParamOption func(*paramSpec)

// Default gives the parameter a default value, which also makes it optional.
func Default(v any) ParamOption {
	return func(p *paramSpec) {
		p.hasDefault = true
		p.def = v
	}
}

// Type overrides the declared type reported for the parameter. Optional
// still applies, whichever order the two are given in.
func Type(declared string) ParamOption {
	return func(p *paramSpec) {
		p.declared = declared
	}
}

// Optional marks the parameter as optional without a default. The
// parameter receives its zero value when omitted.
func Optional() ParamOption {
	return func(p *paramSpec) {
		p.optional = true
	}
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// NewFunc registers fn under name. fn may take a leading context.Context and
// may return (T), (T, error), (error) or nothing. Parameters are named
// "arg0", "arg1", ... until Param names them. NewFunc panics if fn is not a
// function or has an unsupported result list.
func NewFunc(name string, fn any) *Func {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		panic(fmt.Sprintf("extsdk: %s: expected a function, got %T", name, fn))
	}
	t := v.Type()

	f := &Func{name: name, fn: v}
	first := 0
	if t.NumIn() > 0 && t.In(0) == contextType {
		f.withContext = true
		first = 1
	}
	for i := first; i < t.NumIn(); i++ {
		pt := t.In(i)
		f.params = append(f.params, paramSpec{
			name:     fmt.Sprintf("arg%d", i-first),
			typ:      pt,
			declared: declaredType(pt),
		})
	}

	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errorType {
			f.withError = true
		} else {
			f.hasValue = true
		}
	case 2:
		if t.Out(1) != errorType {
			panic(fmt.Sprintf("extsdk: %s: second result must be error", name))
		}
		f.hasValue = true
		f.withError = true
	default:
		panic(fmt.Sprintf("extsdk: %s: too many results", name))
	}
	return f
}

// Doc sets the documentation text. Lines before an "Args:", "Arguments:" or
// "Returns:" header become the callable's description.
func (f *Func) Doc(text string) *Func {
	f.doc = text
	return f
}

// Param names the next unnamed parameter and applies opts to it. It panics
// when every parameter is already named.
func (f *Func) Param(name string, opts ...ParamOption) *Func {
	idx := -1
	for i := range f.params {
		if f.params[i].name == fmt.Sprintf("arg%d", i) {
			idx = i
			break
		}
	}
	if idx < 0 {
		panic(fmt.Sprintf("extsdk: %s: no parameter left to name %q", f.name, name))
	}
	p := &f.params[idx]
	p.name = name
	for _, opt := range opts {
		opt(p)
	}
	return f
}

// Name returns the registered function name.
func (f *Func) Name() string { return f.name }

// declaredType renders a Go type the way it is written in source, with
// interface{} spelled any.
func declaredType(t reflect.Type) string {
	return strings.ReplaceAll(t.String(), "interface {}", "any")
}

// Serve starts the extension server. main is the extension's entry point;
// a nil main serves an extension without one. Serve blocks and never
// returns under normal operation.
func Serve(main func() *Extension) {
	hashiplug.Serve(&hashiplug.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins: map[string]hashiplug.Plugin{
			PluginName: &GRPCPlugin{Impl: NewProvider(main)},
		},
		GRPCServer: hashiplug.DefaultGRPCServer,
	})
}
