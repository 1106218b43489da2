// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/exthost/exthost/internal/observability"
	"github.com/exthost/exthost/internal/xdg"
	"github.com/exthost/exthost/pkg/errutil"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Scan the extensions directory and keep the registry in sync",
		Long: `Install every extension in the extensions directory, then watch the
directory and reinstall or remove extensions as their files change. Metrics
and health probes are served on --metrics-addr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, a)
		},
	}
}

func runServe(ctx context.Context, cmd *cobra.Command, a *app) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ready atomic.Bool
	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if a.cfg.Metrics.Addr != "" {
		obsServer = a.deps.ObservabilityServerFactory(a.cfg.Metrics.Addr, ready.Load)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		metrics = obsServer.Metrics()
		slog.Info("observability server started", "addr", obsServer.Addr())
	}
	defer func() {
		if obsServer == nil {
			return
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}()

	h, closeStore, err := a.newHost(ctx, metrics)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := xdg.EnsureDir(a.cfg.Extensions.Dir); err != nil {
		return err
	}
	installed, err := h.Scan(ctx)
	if err != nil {
		errutil.LogError(slog.Default(), "initial scan failed", err)
	}
	ready.Store(true)

	cmd.Printf("serving %d extensions from %s\n", len(installed), a.cfg.Extensions.Dir)
	slog.Info("extension host ready", "dir", a.cfg.Extensions.Dir, "extensions", len(installed))

	if err := h.Watch(ctx, a.cfg.Extensions.Debounce); err != nil {
		return err
	}
	slog.Info("shutdown complete")
	return nil
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
