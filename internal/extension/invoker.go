// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package extension

import (
	"context"
	"encoding/json"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/exthost/exthost/pkg/errutil"
)

// FunctionNameKey is the request field naming the function to call.
const FunctionNameKey = "functionName"

// Request is one invocation payload: the function name plus its arguments.
// On the wire it is a single JSON object with a functionName field.
type Request struct {
	FunctionName string
	Args         map[string]any
}

// MarshalJSON encodes the request as a flat object.
func (r Request) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(r.Args)+1)
	for k, v := range r.Args {
		obj[k] = v
	}
	obj[FunctionNameKey] = r.FunctionName
	return json.Marshal(obj)
}

// DecodeRequest parses an invocation payload and removes functionName from
// the remaining arguments.
func DecodeRequest(payload []byte) (*Request, error) {
	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err != nil {
		return nil, oops.In("invoker").Code(CodeInvalidRequest).Wrapf(err, "decode request")
	}
	if obj == nil {
		return nil, oops.In("invoker").Code(CodeInvalidRequest).Errorf("request must be a JSON object")
	}
	name, ok := obj[FunctionNameKey].(string)
	if !ok || name == "" {
		return nil, oops.In("invoker").Code(CodeInvalidRequest).Errorf("request is missing %s", FunctionNameKey)
	}
	delete(obj, FunctionNameKey)
	return &Request{FunctionName: name, Args: obj}, nil
}

// Invoke opens a fresh module from path, resolves the requested function and
// calls it. Resource kinds receive (uri, params) positionally; every other
// kind receives the remaining request fields as named arguments, after
// defaults are applied and the arguments are checked against the function's
// parameter schema.
func Invoke(ctx context.Context, rt Runtime, path string, kind Kind, payload []byte) (any, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, loadError(path, err)
	}
	mod, err := rt.Open(ctx, abs)
	if err != nil {
		return nil, loadError(abs, err)
	}
	defer closeModule(ctx, mod, abs)

	req, err := DecodeRequest(payload)
	if err != nil {
		return nil, err
	}

	fn, ok := mod.Lookup(req.FunctionName)
	if !ok {
		return nil, NotFound(req.FunctionName)
	}

	args, err := prepareArgs(fn, kind, req)
	if err != nil {
		return nil, err
	}

	result, err := fn.Call(ctx, args)
	if err != nil {
		if errutil.Code(err) != "" {
			return nil, err
		}
		return nil, ExecutionError(req.FunctionName, err)
	}
	return result, nil
}

func prepareArgs(fn Callable, kind Kind, req *Request) (Args, error) {
	if kind == KindResource {
		uri, hasURI := req.Args["uri"]
		params, hasParams := req.Args["params"]
		if !hasURI || !hasParams {
			return Args{}, oops.In("invoker").Code(CodeInvalidRequest).With("function", req.FunctionName).
				Errorf("resource request requires uri and params")
		}
		return Args{Positional: []any{uri, params}}, nil
	}

	desc := Analyze(fn.Signature())
	named := make(map[string]any, len(desc.Parameters))
	for k, v := range req.Args {
		named[k] = v
	}
	for name, p := range desc.Parameters {
		if _, set := named[name]; !set && p.HasDefault {
			named[name] = p.DefaultValue
		}
	}
	if err := desc.ValidateArguments(named); err != nil {
		return Args{}, oops.In("invoker").Code(CodeInvalidArguments).With("function", req.FunctionName).Wrap(err)
	}
	return Args{Named: named}, nil
}
