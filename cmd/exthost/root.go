// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/exthost/exthost/internal/config"
	"github.com/exthost/exthost/internal/extension"
	"github.com/exthost/exthost/internal/extension/goplugin"
	extlua "github.com/exthost/exthost/internal/extension/lua"
	"github.com/exthost/exthost/internal/host"
	"github.com/exthost/exthost/internal/logging"
	"github.com/exthost/exthost/internal/observability"
	"github.com/exthost/exthost/internal/registry"
)

// app carries the loaded configuration to subcommands.
type app struct {
	deps       *Deps
	cfg        *config.Config
	configFile string
}

// NewRootCmd creates the root command for the exthost CLI. deps may be nil.
func NewRootCmd(deps *Deps) *cobra.Command {
	a := &app{deps: deps.withDefaults()}

	cmd := &cobra.Command{
		Use:   "exthost",
		Short: "exthost - a host for Lua and binary extensions",
		Long: `exthost loads extension files, catalogs the tools, resources and prompts
they register, and invokes them in isolated single-shot worker processes.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	config.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(newLoadCmd(a))
	cmd.AddCommand(newInvokeCmd(a))
	cmd.AddCommand(newInstallCmd(a))
	cmd.AddCommand(newUninstallCmd(a))
	cmd.AddCommand(newScanCmd(a))
	cmd.AddCommand(newListCmd(a))
	cmd.AddCommand(newCallCmd(a))
	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newMigrateCmd(a))

	return cmd
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logging.SetDefault("exthost", version, cfg.Log.Format, level)

	if f := cmd.Flags().Lookup("config"); f != nil {
		a.configFile = f.Value.String()
	}
	a.cfg = cfg
	return nil
}

// runtimes builds the runtimes used by the worker units.
func (a *app) runtimes() extension.RuntimeSet {
	level, _ := logging.ParseLevel(a.cfg.Log.Level)
	return extension.RuntimeSet{
		Lua: extlua.NewRuntime(extlua.Options{UnsafeLibraries: a.cfg.Lua.UnsafeLibraries}),
		Binary: goplugin.NewRuntime(goplugin.Options{
			Logger:       logging.HCLog("plugin", a.cfg.Log.Format, level, os.Stderr),
			StartTimeout: a.cfg.Binary.StartTimeout,
		}),
	}
}

// workerFlags are passed to every spawned unit. Units never open the
// registry, so they always get the memory backend.
func (a *app) workerFlags() []string {
	flags := []string{
		"--log-format=" + a.cfg.Log.Format,
		"--log-level=" + a.cfg.Log.Level,
		"--lua-unsafe=" + strconv.FormatBool(a.cfg.Lua.UnsafeLibraries),
		"--registry=" + registry.BackendMemory,
	}
	if a.configFile != "" {
		flags = append(flags, "--config="+a.configFile)
	}
	return flags
}

// newHost opens the registry and builds a host. The returned function closes
// the registry.
func (a *app) newHost(ctx context.Context, metrics *observability.Metrics) (*host.Host, func(), error) {
	store, err := a.deps.RegistryOpener(ctx, registry.Options{
		Backend: a.cfg.Registry.Backend,
		Path:    a.cfg.Registry.Path,
		DSN:     a.cfg.Registry.DSN,
	})
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() {
		if err := store.Close(); err != nil {
			slog.Debug("closing registry", "error", err)
		}
	}

	h, err := host.New(host.Options{
		Registry:     store,
		Launcher:     a.deps.LauncherFactory(a.cfg, a.workerFlags()),
		Dir:          a.cfg.Extensions.Dir,
		Include:      a.cfg.Extensions.Include,
		Exclude:      a.cfg.Extensions.Exclude,
		WorkDir:      a.cfg.Worker.WorkDir,
		Retries:      a.cfg.Worker.Retries,
		RetryBackoff: a.cfg.Worker.RetryBackoff,
		Metrics:      metrics,
		Logger:       slog.Default(),
	})
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return h, closeStore, nil
}
