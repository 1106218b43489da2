// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package host

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"golang.org/x/crypto/blake2b"

	"github.com/exthost/exthost/internal/extension"
	"github.com/exthost/exthost/internal/registry"
)

// fileDigest returns the hex BLAKE2b-256 digest of the file at path.
func fileDigest(path string) (string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", oops.In("host").With("source", path).Wrapf(err, "open extension")
	}
	defer func() { _ = f.Close() }()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", oops.In("host").Wrap(err)
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", oops.In("host").With("source", path).Wrapf(err, "hash extension")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Sync installs the extension at path unless the installed manifest was
// loaded from identical file contents, in which case that manifest is
// returned and no unit is spawned. changed reports whether a load ran.
func (h *Host) Sync(ctx context.Context, path string) (m *extension.Manifest, changed bool, err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false, oops.In("host").With("source", path).Wrap(err)
	}
	digest, err := fileDigest(abs)
	if err != nil {
		return nil, false, err
	}

	prev, err := h.store.Get(ctx, abs)
	switch {
	case err == nil && prev.Digest != "" && prev.Digest == digest:
		h.logger.DebugContext(ctx, "extension unchanged", "source", abs, "digest", digest)
		return prev, false, nil
	case err != nil && !errors.Is(err, registry.ErrNotFound):
		return nil, false, err
	}

	m, err = h.Install(ctx, abs)
	if err != nil {
		return nil, false, err
	}
	return m, true, nil
}
