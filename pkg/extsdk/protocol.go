// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package extsdk

import (
	"context"
	"encoding/json"
)

// Provider is the interface an extension process serves to the host.
type Provider interface {
	// Describe runs the entry point and reports the registration.
	Describe(ctx context.Context) (*Description, error)
	// Call runs one function. Function errors are carried in the response;
	// a returned error means the call could not be made at all.
	Call(ctx context.Context, req *CallRequest) (*CallResponse, error)
}

// Description is the registration reported by Describe.
type Description struct {
	// EntryPoint is false when the extension has no entry point.
	EntryPoint  bool              `json:"entryPoint"`
	ID          string            `json:"id,omitempty"`
	Description string            `json:"description,omitempty"`
	Author      string            `json:"author,omitempty"`
	Version     string            `json:"version,omitempty"`
	Tools       []FuncDescription `json:"tools,omitempty"`
	Resources   []FuncDescription `json:"resources,omitempty"`
	Prompts     []FuncDescription `json:"prompts,omitempty"`
}

// FuncDescription describes one registered function.
type FuncDescription struct {
	Name   string             `json:"name"`
	Doc    string             `json:"doc,omitempty"`
	Params []ParamDescription `json:"params,omitempty"`
	// Skip describes an entry that is not callable; Name is empty then.
	Skip string `json:"skip,omitempty"`
}

// ParamDescription describes one parameter.
type ParamDescription struct {
	Name       string          `json:"name"`
	Type       string          `json:"type,omitempty"`
	HasDefault bool            `json:"hasDefault,omitempty"`
	Default    json.RawMessage `json:"default,omitempty"`
}

// CallRequest asks the extension to run Function. Exactly one of
// Positional and Named is used; Named is used when non-nil.
type CallRequest struct {
	Function   string                     `json:"function"`
	Positional []json.RawMessage          `json:"positional,omitempty"`
	Named      map[string]json.RawMessage `json:"named,omitempty"`
}

// CallResponse carries the result of a call.
type CallResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	// NotFound is set when no function is registered under the name.
	NotFound bool `json:"notFound,omitempty"`
}
