// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/exthost/exthost/internal/extension"
	"github.com/exthost/exthost/internal/registry"
	"github.com/exthost/exthost/pkg/errutil"
)

// CodeInvalidManifest marks load output that does not match the manifest schema.
const CodeInvalidManifest = "INVALID_MANIFEST"

// Install loads the extension at path in a worker unit and stores its
// manifest, replacing any manifest installed from the same path.
func (h *Host) Install(ctx context.Context, path string) (m *extension.Manifest, err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, oops.In("host").With("source", path).Wrap(err)
	}

	ctx, span := tracer.Start(ctx, "extension.install",
		trace.WithAttributes(attribute.String("extension.source", abs)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		h.recordInstall(err)
	}()

	digest, err := fileDigest(abs)
	if err != nil {
		return nil, oops.In("host").Code(extension.CodeLoadFailed).With("source", abs).Wrap(err)
	}

	dir, cleanup, err := h.unitDir()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	out := filepath.Join(dir, "manifest.json")
	if err := h.spawn(ctx, out, UnitLoad, abs, out); err != nil {
		return nil, oops.In("host").Code(extension.CodeLoadFailed).With("source", abs).Wrap(err)
	}

	data, err := os.ReadFile(filepath.Clean(out))
	if err != nil {
		return nil, oops.In("host").With("source", abs).Wrapf(err, "read manifest")
	}
	if msg, ok := errorDocument(data); ok {
		return nil, oops.In("host").Code(extension.CodeLoadFailed).With("source", abs).Wrap(errors.New(msg))
	}
	if err := extension.ValidateSchema(data); err != nil {
		return nil, oops.In("host").Code(CodeInvalidManifest).With("source", abs).
			Hint(extension.FormatSchemaError(err)).Wrap(err)
	}

	m = &extension.Manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, oops.In("host").Code(CodeInvalidManifest).With("source", abs).Wrap(err)
	}
	m.Source = abs
	m.Digest = digest
	h.checkVersion(ctx, m)

	if err := h.store.Put(ctx, m); err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("extension.id", m.ID),
		attribute.Int("extension.callables", len(m.CallableIDs())),
	)
	h.logger.InfoContext(ctx, "extension installed",
		"source", abs, "id", m.ID, "version", m.Version, "callables", len(m.CallableIDs()))
	h.refreshInstalled(ctx)
	return m, nil
}

// checkVersion appends warnings for versions that are not semantic versions
// and for versions older than the one already installed.
func (h *Host) checkVersion(ctx context.Context, m *extension.Manifest) {
	if m.Version == "" {
		return
	}
	v, err := semver.NewVersion(m.Version)
	if err != nil {
		h.warn(ctx, m, fmt.Sprintf("version %q is not a semantic version", m.Version))
		return
	}

	prev, err := h.store.Get(ctx, m.Source)
	if err != nil {
		if !errors.Is(err, registry.ErrNotFound) {
			errutil.LogError(h.logger, "reading installed manifest", err)
		}
		return
	}
	pv, err := semver.NewVersion(prev.Version)
	if err != nil {
		return
	}
	if v.LessThan(pv) {
		h.warn(ctx, m, fmt.Sprintf("version %s replaces newer installed version %s", v, pv))
	}
}

func (h *Host) warn(ctx context.Context, m *extension.Manifest, msg string) {
	m.Warnings = append(m.Warnings, msg)
	h.logger.WarnContext(ctx, "extension version", "source", m.Source, "warning", msg)
}

// Uninstall removes the manifest installed from path.
func (h *Host) Uninstall(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return oops.In("host").With("source", path).Wrap(err)
	}
	if err := h.store.Delete(ctx, abs); err != nil {
		return err
	}
	h.logger.InfoContext(ctx, "extension removed", "source", abs)
	h.refreshInstalled(ctx)
	return nil
}

// List returns every installed manifest ordered by source.
func (h *Host) List(ctx context.Context) ([]*extension.Manifest, error) {
	return h.store.List(ctx)
}

// Scan syncs every matching file in the extensions directory and drops
// manifests whose files have disappeared from it. Files whose contents are
// unchanged since they were installed are not reloaded. Files that fail to
// load are logged and skipped.
func (h *Host) Scan(ctx context.Context) ([]*extension.Manifest, error) {
	if h.dir == "" {
		return nil, oops.In("host").Errorf("no extensions directory configured")
	}
	dir, err := filepath.Abs(h.dir)
	if err != nil {
		return nil, oops.In("host").With("dir", h.dir).Wrap(err)
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		h.logger.InfoContext(ctx, "extensions directory does not exist", "dir", dir)
		entries = nil
	} else if err != nil {
		return nil, oops.In("host").With("dir", dir).Wrapf(err, "read extensions directory")
	}

	var installed []*extension.Manifest
	for _, e := range entries {
		if ctx.Err() != nil {
			return installed, ctx.Err()
		}
		path := filepath.Join(dir, e.Name())
		if !h.Matches(path) || !isRegularFile(path) {
			continue
		}
		m, _, err := h.Sync(ctx, path)
		if err != nil {
			errutil.LogError(h.logger, "extension install failed", err)
			continue
		}
		installed = append(installed, m)
	}

	if err := h.prune(ctx, dir); err != nil {
		return installed, err
	}
	return installed, nil
}

// prune removes manifests installed from dir whose files no longer exist.
func (h *Host) prune(ctx context.Context, dir string) error {
	all, err := h.store.List(ctx)
	if err != nil {
		return err
	}
	for _, m := range all {
		if filepath.Dir(m.Source) != dir || isRegularFile(m.Source) {
			continue
		}
		if err := h.Uninstall(ctx, m.Source); err != nil {
			return err
		}
	}
	return nil
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// errorDocument recognizes the {"error": "<message>"} document a unit writes
// in place of its output.
func errorDocument(data []byte) (string, bool) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil || len(doc) != 1 {
		return "", false
	}
	raw, ok := doc["error"]
	if !ok {
		return "", false
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", false
	}
	return msg, true
}

func (h *Host) recordInstall(err error) {
	if h.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	h.metrics.InstallsTotal.WithLabelValues(status).Inc()
}

func (h *Host) refreshInstalled(ctx context.Context) {
	if h.metrics == nil {
		return
	}
	all, err := h.store.List(ctx)
	if err != nil {
		errutil.LogError(h.logger, "counting installed extensions", err)
		return
	}
	h.metrics.InstalledExtensions.Set(float64(len(all)))
}
