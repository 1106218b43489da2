// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

// Package host drives extensions from the outside. It installs extensions
// by spawning load units, keeps their manifests in a registry, and calls
// their functions by spawning invoke units. Parameters and results travel
// through files in a per-unit work directory named by a ULID.
package host

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gobwas/glob"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"

	"github.com/exthost/exthost/internal/observability"
	"github.com/exthost/exthost/internal/registry"
	"github.com/exthost/exthost/internal/xdg"
)

var tracer = otel.Tracer("exthost/host")

// Unit names understood by the worker executable.
const (
	UnitLoad   = "load"
	UnitInvoke = "invoke"
)

// errNoOutput marks a unit that exited without producing its output file.
var errNoOutput = errors.New("worker produced no output")

// Options configures a Host.
type Options struct {
	// Registry stores installed manifests. Required.
	Registry registry.Store
	// Launcher runs worker units. Required.
	Launcher Launcher
	// Dir is the extensions directory used by Scan and Watch.
	Dir string
	// Include and Exclude are glob patterns matched against file names.
	// Empty Include matches everything.
	Include []string
	Exclude []string
	// WorkDir holds per-unit directories. Empty means $XDG_RUNTIME_DIR/exthost/work.
	WorkDir string
	// Retries is how many times a unit is respawned when it produced no output.
	Retries int
	// RetryBackoff is the wait between respawns.
	RetryBackoff time.Duration
	// Metrics is optional.
	Metrics *observability.Metrics
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Host installs and calls extensions.
type Host struct {
	store    registry.Store
	launcher Launcher
	dir      string
	include  []glob.Glob
	exclude  []glob.Glob
	workDir  string
	retries  int
	backoff  time.Duration
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// New validates opts and creates a Host.
func New(opts Options) (*Host, error) {
	if opts.Registry == nil {
		return nil, oops.In("host").Errorf("registry is required")
	}
	if opts.Launcher == nil {
		return nil, oops.In("host").Errorf("launcher is required")
	}
	if opts.Retries < 0 {
		return nil, oops.In("host").With("retries", opts.Retries).Errorf("retries must not be negative")
	}

	include, err := compileGlobs(opts.Include)
	if err != nil {
		return nil, err
	}
	exclude, err := compileGlobs(opts.Exclude)
	if err != nil {
		return nil, err
	}

	workDir := opts.WorkDir
	if workDir == "" {
		runtimeDir, err := xdg.RuntimeDir()
		if err != nil {
			runtimeDir = filepath.Join(os.TempDir(), "exthost")
		}
		workDir = filepath.Join(runtimeDir, "work")
	}

	backoff := opts.RetryBackoff
	if backoff <= 0 {
		backoff = time.Millisecond
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Host{
		store:    opts.Registry,
		launcher: opts.Launcher,
		dir:      opts.Dir,
		include:  include,
		exclude:  exclude,
		workDir:  workDir,
		retries:  opts.Retries,
		backoff:  backoff,
		metrics:  opts.Metrics,
		logger:   logger,
	}, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, oops.In("host").Code("INVALID_PATTERN").With("pattern", p).Wrap(err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Matches reports whether a file name is selected by the include and
// exclude patterns. Only the base name is matched.
func (h *Host) Matches(path string) bool {
	name := filepath.Base(path)
	for _, g := range h.exclude {
		if g.Match(name) {
			return false
		}
	}
	if len(h.include) == 0 {
		return true
	}
	for _, g := range h.include {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Registry returns the manifest store.
func (h *Host) Registry() registry.Store {
	return h.store
}

// unitDir creates a fresh work directory. The returned cleanup removes it.
func (h *Host) unitDir() (string, func(), error) {
	if err := xdg.EnsureDir(h.workDir); err != nil {
		return "", nil, oops.In("host").With("work_dir", h.workDir).Wrap(err)
	}
	dir := filepath.Join(h.workDir, ulid.Make().String())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return "", nil, oops.In("host").With("dir", dir).Wrapf(err, "create unit directory")
	}
	return dir, func() {
		if err := os.RemoveAll(dir); err != nil {
			h.logger.Debug("removing unit directory", "dir", dir, "error", err)
		}
	}, nil
}

// spawn runs a unit until it writes output. A unit that exits without
// output is respawned up to h.retries times; once output exists the unit is
// never run again, whatever its exit status.
func (h *Host) spawn(ctx context.Context, output string, args ...string) error {
	unit := unitName(args)
	attempt := 0
	b := retry.WithMaxRetries(uint64(h.retries), retry.NewConstant(h.backoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		launchErr := h.launcher.Launch(ctx, args...)
		if _, err := os.Stat(output); err == nil {
			return nil
		}

		observability.RecordSpawnFailure(unit)
		err := errNoOutput
		if launchErr != nil {
			err = errors.Join(errNoOutput, launchErr)
		}
		h.logger.WarnContext(ctx, "worker unit produced no output",
			"unit", unit, "attempt", attempt, "error", launchErr)
		return retry.RetryableError(oops.In("host").With("unit", unit).With("attempts", attempt).Wrap(err))
	})
}
