// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

// Package registry persists installed extension manifests.
//
// Manifests are keyed by their absolute source path. Three backends share
// the Store interface: bbolt (the default, a single file under the XDG data
// directory), PostgreSQL (JSONB rows, schema managed by golang-migrate) and
// an in-memory map for tests and throwaway sessions.
package registry

import (
	"context"
	"errors"
	"sort"

	"github.com/samber/oops"

	"github.com/exthost/exthost/internal/extension"
)

// Sentinel errors for programmatic error checking.
var (
	// ErrNotFound is returned when no manifest or callable matches.
	ErrNotFound = errors.New("not found in registry")
	// ErrNoSource is returned when storing a manifest without a source path.
	ErrNoSource = errors.New("manifest has no source path")
)

// Store holds installed manifests. Implementations are safe for concurrent use.
type Store interface {
	// Put inserts or replaces the manifest stored under m.Source.
	Put(ctx context.Context, m *extension.Manifest) error
	// Get returns the manifest installed from source.
	Get(ctx context.Context, source string) (*extension.Manifest, error)
	// Delete removes the manifest installed from source. Deleting an absent
	// source is not an error.
	Delete(ctx context.Context, source string) error
	// List returns every manifest ordered by source.
	List(ctx context.Context) ([]*extension.Manifest, error)
	// FindCallable returns the manifest declaring callable id and the
	// callable's role. When several extensions declare the same id the one
	// with the smallest source path wins.
	FindCallable(ctx context.Context, id string) (*extension.Manifest, extension.Role, error)
	// Close releases the backend.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	// Path is the bbolt database file.
	Path string
	// DSN is the PostgreSQL connection string.
	DSN string
}

// Open creates the store selected by opts.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendBolt, "":
		return OpenBolt(opts.Path)
	case BackendPostgres:
		return OpenPostgres(ctx, opts.DSN)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, oops.In("registry").Code("UNKNOWN_BACKEND").With("backend", opts.Backend).
			Errorf("unknown registry backend %q", opts.Backend)
	}
}

// findCallable scans manifests in source order.
func findCallable(manifests []*extension.Manifest, id string) (*extension.Manifest, extension.Role, error) {
	for _, m := range manifests {
		if _, role, ok := m.Callable(id); ok {
			return m, role, nil
		}
	}
	return nil, "", oops.In("registry").With("callable", id).Wrapf(ErrNotFound, "callable %s", id)
}

func sortBySource(manifests []*extension.Manifest) {
	sort.Slice(manifests, func(i, j int) bool { return manifests[i].Source < manifests[j].Source })
}

func checkSource(m *extension.Manifest) error {
	if m == nil || m.Source == "" {
		return oops.In("registry").Wrap(ErrNoSource)
	}
	return nil
}

func notFound(source string) error {
	return oops.In("registry").With("source", source).Wrapf(ErrNotFound, "extension %s", source)
}
