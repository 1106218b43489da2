// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package host

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/oops"

	"github.com/exthost/exthost/pkg/errutil"
)

// DefaultDebounce is the quiet period Watch waits for before reloading.
const DefaultDebounce = 250 * time.Millisecond

// Watch reloads extensions as files in the extensions directory change.
// Changed files that still exist are synced; removed or renamed files
// are uninstalled. Events are batched until debounce passes without new
// ones. Watch blocks until ctx is done and then returns nil.
func (h *Host) Watch(ctx context.Context, debounce time.Duration) error {
	if h.dir == "" {
		return oops.In("watcher").Errorf("no extensions directory configured")
	}
	dir, err := filepath.Abs(h.dir)
	if err != nil {
		return oops.In("watcher").With("dir", h.dir).Wrap(err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return oops.In("watcher").Wrapf(err, "create watcher")
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(dir); err != nil {
		return oops.In("watcher").With("dir", dir).Wrapf(err, "watch extensions directory")
	}
	h.logger.InfoContext(ctx, "watching extensions directory", "dir", dir)

	pending := make(map[string]struct{})
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			h.logger.WarnContext(ctx, "extension watcher error", "error", err)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op == fsnotify.Chmod || !h.Matches(event.Name) {
				continue
			}
			pending[filepath.Clean(event.Name)] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(debounce)
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(debounce)
		case <-timerChan(timer):
			timer = nil
			h.reload(ctx, pending)
			pending = make(map[string]struct{})
		}
	}
}

// reload applies a batch of changed paths.
func (h *Host) reload(ctx context.Context, paths map[string]struct{}) {
	for path := range paths {
		if ctx.Err() != nil {
			return
		}
		if isRegularFile(path) {
			if _, _, err := h.Sync(ctx, path); err != nil {
				errutil.LogError(h.logger, "extension reload failed", err)
			}
			continue
		}
		if err := h.Uninstall(ctx, path); err != nil {
			errutil.LogError(h.logger, "extension removal failed", err)
		}
	}
}

func timerChan(timer *time.Timer) <-chan time.Time {
	if timer == nil {
		return nil
	}
	return timer.C
}
