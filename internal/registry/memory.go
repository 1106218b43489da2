// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package registry

import (
	"context"
	"sync"

	"github.com/exthost/exthost/internal/extension"
)

// MemoryStore keeps manifests in a map. Stored manifests are shared with
// callers; treat them as read-only.
type MemoryStore struct {
	mu        sync.RWMutex
	manifests map[string]*extension.Manifest
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{manifests: make(map[string]*extension.Manifest)}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, m *extension.Manifest) error {
	if err := checkSource(m); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifests[m.Source] = m
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, source string) (*extension.Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.manifests[source]
	if !ok {
		return nil, notFound(source)
	}
	return m, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.manifests, source)
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context) ([]*extension.Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*extension.Manifest, 0, len(s.manifests))
	for _, m := range s.manifests {
		out = append(out, m)
	}
	sortBySource(out)
	return out, nil
}

// FindCallable implements Store.
func (s *MemoryStore) FindCallable(ctx context.Context, id string) (*extension.Manifest, extension.Role, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, "", err
	}
	return findCallable(all, id)
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
