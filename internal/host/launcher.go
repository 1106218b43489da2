// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package host

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Launcher starts one worker unit and waits for it to exit. args begin with
// the unit name ("load" or "invoke") followed by its positional arguments.
type Launcher interface {
	Launch(ctx context.Context, args ...string) error
}

// DefaultUnitTimeout bounds a single unit when ExecLauncher.Timeout is zero.
const DefaultUnitTimeout = 30 * time.Second

// ExecLauncher runs units as child processes of a worker executable.
type ExecLauncher struct {
	// Executable is the worker binary. Empty means the running executable.
	Executable string
	// Flags are appended to every unit command line, e.g. --lua-unsafe.
	Flags []string
	// Timeout kills a unit that runs longer.
	Timeout time.Duration
	// Stderr receives the unit's standard error. Nil discards it after
	// logging its tail at debug level.
	Stderr io.Writer
}

// Launch runs the unit and returns its exit error, if any.
func (l *ExecLauncher) Launch(ctx context.Context, args ...string) error {
	exe := l.Executable
	if exe == "" {
		self, err := os.Executable()
		if err != nil {
			return oops.In("launcher").Wrapf(err, "locate worker executable")
		}
		exe = self
	}

	timeout := l.Timeout
	if timeout <= 0 {
		timeout = DefaultUnitTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	//nolint:gosec // exe and args come from configuration and the registry
	cmd := exec.CommandContext(ctx, exe, append(append([]string{}, args...), l.Flags...)...)
	var stderr bytes.Buffer
	if l.Stderr != nil {
		cmd.Stderr = l.Stderr
	} else {
		cmd.Stderr = &stderr
	}

	err := cmd.Run()
	if stderr.Len() > 0 {
		slog.DebugContext(ctx, "worker stderr", "unit", unitName(args), "output", tail(stderr.String(), 2048))
	}
	if err != nil {
		if ctx.Err() != nil {
			return oops.In("launcher").With("unit", unitName(args)).With("timeout", timeout).
				Wrapf(ctx.Err(), "worker unit did not finish")
		}
		return oops.In("launcher").With("unit", unitName(args)).Wrap(err)
	}
	return nil
}

func unitName(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
