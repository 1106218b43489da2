// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package registry

import (
	"context"
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/samber/oops"
	bolt "go.etcd.io/bbolt"

	"github.com/exthost/exthost/internal/extension"
	"github.com/exthost/exthost/internal/xdg"
)

var manifestsBucket = []byte("manifests")

// BoltStore keeps manifests as JSON values in a bbolt file.
type BoltStore struct {
	db *bolt.DB
}

// Compile-time interface check.
var _ Store = (*BoltStore)(nil)

// OpenBolt opens (creating if needed) the bbolt registry at path. An empty
// path uses the XDG data directory.
func OpenBolt(path string) (*BoltStore, error) {
	if path == "" {
		var err error
		if path, err = xdg.RegistryFile(); err != nil {
			return nil, oops.In("registry").Code("REGISTRY_OPEN_FAILED").Wrap(err)
		}
	}
	if err := xdg.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, oops.In("registry").Code("REGISTRY_OPEN_FAILED").With("path", path).Wrap(err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, oops.In("registry").Code("REGISTRY_OPEN_FAILED").With("path", path).
			Hint("another exthost process may hold the registry lock").Wrap(err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(manifestsBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, oops.In("registry").Code("REGISTRY_OPEN_FAILED").With("path", path).Wrap(err)
	}
	return &BoltStore{db: db}, nil
}

// Put implements Store.
func (s *BoltStore) Put(_ context.Context, m *extension.Manifest) error {
	if err := checkSource(m); err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return oops.In("registry").With("source", m.Source).Wrap(err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(manifestsBucket).Put([]byte(m.Source), data)
	})
	if err != nil {
		return oops.In("registry").With("operation", "put manifest").With("source", m.Source).Wrap(err)
	}
	return nil
}

// Get implements Store.
func (s *BoltStore) Get(_ context.Context, source string) (*extension.Manifest, error) {
	var m *extension.Manifest
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(manifestsBucket).Get([]byte(source))
		if data == nil {
			return notFound(source)
		}
		var err error
		m, err = decodeManifest(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Delete implements Store.
func (s *BoltStore) Delete(_ context.Context, source string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(manifestsBucket).Delete([]byte(source))
	})
	if err != nil {
		return oops.In("registry").With("operation", "delete manifest").With("source", source).Wrap(err)
	}
	return nil
}

// List implements Store. bbolt iterates keys in byte order, which is the
// source order List promises.
func (s *BoltStore) List(_ context.Context) ([]*extension.Manifest, error) {
	var out []*extension.Manifest
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(manifestsBucket).ForEach(func(_, v []byte) error {
			m, err := decodeManifest(v)
			if err != nil {
				return err
			}
			out = append(out, m)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FindCallable implements Store.
func (s *BoltStore) FindCallable(ctx context.Context, id string) (*extension.Manifest, extension.Role, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, "", err
	}
	return findCallable(all, id)
}

// Close implements Store.
func (s *BoltStore) Close() error {
	if err := s.db.Close(); err != nil {
		return oops.In("registry").With("operation", "close").Wrap(err)
	}
	return nil
}

func decodeManifest(data []byte) (*extension.Manifest, error) {
	var m extension.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, oops.In("registry").Code("REGISTRY_CORRUPT").Hint("stored manifest is not valid JSON").Wrap(err)
	}
	return &m, nil
}
