// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package extension

import (
	"github.com/exthost/exthost/internal/wire"
)

// Role is the part a callable plays in an extension.
type Role string

// Callable roles.
const (
	RoleTool     Role = "tool"
	RoleResource Role = "resource"
	RolePrompt   Role = "prompt"
)

// Prefix returns the function-name prefix stripped from callables of this role.
func (r Role) Prefix() string {
	return string(r) + "_"
}

// Kind selects how the invocation handler passes arguments. KindResource
// passes (uri, params) positionally; any other value passes named arguments.
type Kind string

// KindResource is the only kind with special dispatch.
const KindResource Kind = "resource"

// Manifest is the catalog of everything one extension registers. A Manifest
// is not modified after Load returns it.
type Manifest struct {
	ID          string               `json:"id" jsonschema:"description=Extension identifier; may be empty"`
	Description string               `json:"description"`
	Author      string               `json:"author"`
	Version     string               `json:"version"`
	Runtime     string               `json:"runtime,omitempty" jsonschema:"enum=lua,enum=binary"`
	Source      string               `json:"source,omitempty" jsonschema:"description=Absolute path of the extension file"`
	Digest      string               `json:"digest,omitempty" jsonschema:"description=BLAKE2b-256 digest of the extension file at install time"`
	Tools       []CallableDescriptor `json:"tools"`
	Resources   []ResourceDescriptor `json:"resources"`
	Prompts     []CallableDescriptor `json:"prompts"`
	Warnings    []string             `json:"warnings,omitempty"`
}

// CallableDescriptor describes one registered function.
type CallableDescriptor struct {
	ID           string                         `json:"id" jsonschema:"minLength=1"`
	FunctionName string                         `json:"functionName" jsonschema:"minLength=1"`
	Description  string                         `json:"description"`
	Parameters   map[string]ParameterDescriptor `json:"parameters"`
}

// ResourceDescriptor is a callable addressed by URI.
type ResourceDescriptor struct {
	CallableDescriptor
	Template string `json:"template" jsonschema:"pattern=^.*://\\{path\\}$"`
}

// ParameterDescriptor describes one parameter of a callable.
type ParameterDescriptor struct {
	DeclaredType string         `json:"declaredType"`
	WireSchema   wire.Primitive `json:"wireSchema"`
	HasDefault   bool           `json:"hasDefault"`
	DefaultValue any            `json:"defaultValue"`
	IsOptional   bool           `json:"isOptional"`
	Description  string         `json:"description"`
}

// Fields converts the descriptor's parameters for schema generation and
// argument validation.
func (d CallableDescriptor) Fields() []wire.Field {
	fields := make([]wire.Field, 0, len(d.Parameters))
	for name, p := range d.Parameters {
		fields = append(fields, wire.Field{
			Name:       name,
			Type:       p.WireSchema,
			Optional:   p.IsOptional,
			HasDefault: p.HasDefault,
			Default:    p.DefaultValue,
		})
	}
	return fields
}

// ValidateArguments checks named arguments against the descriptor.
func (d CallableDescriptor) ValidateArguments(args map[string]any) error {
	return wire.ValidateArguments(d.Fields(), args)
}

// Empty returns a manifest with every list initialized, as produced for
// extensions without an entry point.
func Empty() *Manifest {
	return &Manifest{
		Tools:     []CallableDescriptor{},
		Resources: []ResourceDescriptor{},
		Prompts:   []CallableDescriptor{},
	}
}

// Callable finds a callable by ID and reports its role.
func (m *Manifest) Callable(id string) (CallableDescriptor, Role, bool) {
	for _, t := range m.Tools {
		if t.ID == id {
			return t, RoleTool, true
		}
	}
	for _, r := range m.Resources {
		if r.ID == id {
			return r.CallableDescriptor, RoleResource, true
		}
	}
	for _, p := range m.Prompts {
		if p.ID == id {
			return p, RolePrompt, true
		}
	}
	return CallableDescriptor{}, "", false
}

// CallableIDs lists every callable ID in registration order.
func (m *Manifest) CallableIDs() []string {
	ids := make([]string, 0, len(m.Tools)+len(m.Resources)+len(m.Prompts))
	for _, t := range m.Tools {
		ids = append(ids, t.ID)
	}
	for _, r := range m.Resources {
		ids = append(ids, r.ID)
	}
	for _, p := range m.Prompts {
		ids = append(ids, p.ID)
	}
	return ids
}
