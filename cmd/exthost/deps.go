// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package main

import (
	"context"

	"github.com/exthost/exthost/internal/config"
	"github.com/exthost/exthost/internal/host"
	"github.com/exthost/exthost/internal/observability"
	"github.com/exthost/exthost/internal/registry"
)

// Deps contains injectable dependencies for the host commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// RegistryOpener opens the manifest store.
	// Default: registry.Open
	RegistryOpener func(ctx context.Context, opts registry.Options) (registry.Store, error)

	// LauncherFactory creates the launcher that runs worker units.
	// Default: an ExecLauncher running the configured worker executable
	LauncherFactory func(cfg *config.Config, flags []string) host.Launcher

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// MigratorFactory creates a schema migrator for the PostgreSQL registry.
	// Default: registry.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.RegistryOpener == nil {
		out.RegistryOpener = registry.Open
	}
	if out.LauncherFactory == nil {
		out.LauncherFactory = func(cfg *config.Config, flags []string) host.Launcher {
			return &host.ExecLauncher{
				Executable: cfg.Worker.Executable,
				Flags:      flags,
				Timeout:    cfg.Worker.Timeout,
			}
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return registry.NewMigrator(databaseURL)
		}
	}
	return &out
}
