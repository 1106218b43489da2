// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/samber/oops"
)

// Load opens the extension at path with rt, runs its entry point and builds
// the manifest. An extension without an entry point yields an empty manifest
// and no error. Any other failure is returned with code LOAD_FAILED.
func Load(ctx context.Context, rt Runtime, path string) (*Manifest, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, loadError(path, err)
	}

	mod, err := rt.Open(ctx, abs)
	if err != nil {
		return nil, loadError(abs, err)
	}
	defer closeModule(ctx, mod, abs)

	reg, err := mod.Register(ctx)
	if errors.Is(err, ErrNoEntryPoint) {
		slog.DebugContext(ctx, "extension has no entry point, using empty manifest", "source", abs)
		m := Empty()
		m.Runtime = rt.Name()
		m.Source = abs
		return m, nil
	}
	if err != nil {
		return nil, loadError(abs, err)
	}

	m := buildManifest(reg)
	m.Runtime = rt.Name()
	m.Source = abs
	for _, w := range m.Warnings {
		slog.WarnContext(ctx, "extension registration entry skipped", "source", abs, "reason", w)
	}
	return m, nil
}

func buildManifest(reg *Registration) *Manifest {
	m := Empty()
	m.ID = reg.ID
	m.Description = reg.Description
	m.Author = reg.Author
	m.Version = reg.Version

	seen := make(map[string]bool)
	each := func(role Role, entries []Entry, add func(d CallableDescriptor, bare string)) {
		for i, e := range entries {
			if e.Signature == nil {
				m.Warnings = append(m.Warnings, fmt.Sprintf("%ss[%d]: not a callable function: %s", role, i+1, e.Desc))
				continue
			}
			d := Analyze(*e.Signature)
			bare := bareName(role, d.FunctionName)
			d.ID = callableID(reg.ID, bare)
			if seen[d.ID] {
				m.Warnings = append(m.Warnings, fmt.Sprintf("%ss[%d]: duplicate id %q from %s dropped", role, i+1, d.ID, d.FunctionName))
				continue
			}
			seen[d.ID] = true
			add(d, bare)
		}
	}

	each(RoleTool, reg.Tools, func(d CallableDescriptor, _ string) {
		m.Tools = append(m.Tools, d)
	})
	each(RoleResource, reg.Resources, func(d CallableDescriptor, bare string) {
		m.Resources = append(m.Resources, ResourceDescriptor{
			CallableDescriptor: d,
			Template:           bare + "://{path}",
		})
	})
	each(RolePrompt, reg.Prompts, func(d CallableDescriptor, _ string) {
		m.Prompts = append(m.Prompts, d)
	})
	return m
}

func loadError(source string, err error) error {
	return oops.In("loader").Code(CodeLoadFailed).With("source", source).Wrap(err)
}

func closeModule(ctx context.Context, mod Module, source string) {
	if err := mod.Close(); err != nil {
		slog.DebugContext(ctx, "closing extension module", "source", source, "error", err)
	}
}
