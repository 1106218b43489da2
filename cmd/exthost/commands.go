// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/exthost/exthost/internal/extension"
	"github.com/exthost/exthost/pkg/errutil"
)

func newInstallCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "install <path>...",
		Short: "Install extension files into the registry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, closeStore, err := a.newHost(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer closeStore()

			var failed []error
			for _, path := range args {
				m, err := h.Install(cmd.Context(), path)
				if err != nil {
					cmd.PrintErrf("%s: %s\n", path, errutil.Message(err))
					failed = append(failed, err)
					continue
				}
				printInstalled(cmd, m)
			}
			if len(failed) > 0 {
				return oops.In("cli").With("failed", len(failed)).Errorf("%d of %d extensions failed to install", len(failed), len(args))
			}
			return nil
		},
	}
}

func printInstalled(cmd *cobra.Command, m *extension.Manifest) {
	name := m.ID
	if name == "" {
		name = "(no id)"
	}
	cmd.Printf("installed %s %s from %s: %d callables\n", name, m.Version, m.Source, len(m.CallableIDs()))
	for _, w := range m.Warnings {
		cmd.Printf("  warning: %s\n", w)
	}
}

func newUninstallCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <path>...",
		Short: "Remove extensions from the registry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, closeStore, err := a.newHost(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer closeStore()

			for _, path := range args {
				if err := h.Uninstall(cmd.Context(), path); err != nil {
					return err
				}
				cmd.Printf("removed %s\n", path)
			}
			return nil
		},
	}
}

func newScanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Install every extension in the extensions directory",
		Long: `Install every file in the extensions directory that matches the include
patterns and none of the exclude patterns. Files that fail to load are
reported in the log and skipped. Registry entries for files that no longer
exist are removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, closeStore, err := a.newHost(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer closeStore()

			installed, err := h.Scan(cmd.Context())
			for _, m := range installed {
				printInstalled(cmd, m)
			}
			if err != nil {
				return err
			}
			cmd.Printf("%d extensions installed from %s\n", len(installed), a.cfg.Extensions.Dir)
			return nil
		},
	}
}

// listConfig holds configuration for the list command.
type listConfig struct {
	format string
}

func newListCmd(a *app) *cobra.Command {
	cfg := &listConfig{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed extensions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, closeStore, err := a.newHost(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer closeStore()

			manifests, err := h.List(cmd.Context())
			if err != nil {
				return err
			}
			out, err := formatManifests(manifests, cfg.format)
			if err != nil {
				return err
			}
			cmd.Print(out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&cfg.format, "output", "o", "table", "output format (table, json or yaml)")
	return cmd
}

// formatManifests renders manifests in the requested format.
func formatManifests(manifests []*extension.Manifest, format string) (string, error) {
	if manifests == nil {
		manifests = []*extension.Manifest{}
	}
	switch format {
	case "table", "":
		return formatManifestTable(manifests), nil
	case "json":
		data, err := json.MarshalIndent(manifests, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal manifests: %w", err)
		}
		return string(data) + "\n", nil
	case "yaml":
		// Go through JSON so keys keep their manifest names.
		data, err := json.Marshal(manifests)
		if err != nil {
			return "", fmt.Errorf("failed to marshal manifests: %w", err)
		}
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return "", fmt.Errorf("failed to marshal manifests: %w", err)
		}
		out, err := yaml.Marshal(doc)
		if err != nil {
			return "", fmt.Errorf("failed to marshal manifests: %w", err)
		}
		return string(out), nil
	default:
		return "", oops.In("cli").Code("INVALID_FORMAT").With("format", format).
			Errorf("output format must be table, json or yaml, got %q", format)
	}
}

func formatManifestTable(manifests []*extension.Manifest) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "ID\tVERSION\tRUNTIME\tCALLABLES\tSOURCE")
	for _, m := range manifests {
		id := m.ID
		if id == "" {
			id = "-"
		}
		version := m.Version
		if version == "" {
			version = "-"
		}
		callables := "-"
		if ids := m.CallableIDs(); len(ids) > 0 {
			callables = strings.Join(ids, ",")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", id, version, m.Runtime, callables, m.Source)
	}

	_ = w.Flush()
	return b.String()
}

// callConfig holds configuration for the call command.
type callConfig struct {
	args string
}

func newCallCmd(a *app) *cobra.Command {
	cfg := &callConfig{}

	cmd := &cobra.Command{
		Use:   "call <callable-id> [name=value...]",
		Short: "Call an installed tool, resource or prompt",
		Long: `Call the callable with the given ID. Arguments are given as a JSON object
with --args, as name=value pairs, or both; pairs win. Values that parse as
JSON are passed as such, anything else as a string. Resources take uri and
params arguments.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			callArgs, err := parseCallArgs(cfg.args, args[1:])
			if err != nil {
				return err
			}

			h, closeStore, err := a.newHost(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer closeStore()

			result, err := h.Call(cmd.Context(), args[0], callArgs)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal result: %w", err)
			}
			cmd.Println(string(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.args, "args", "", "arguments as a JSON object")
	return cmd
}

// parseCallArgs merges a JSON object with name=value pairs.
func parseCallArgs(raw string, pairs []string) (map[string]any, error) {
	args := map[string]any{}
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return nil, oops.In("cli").Code(extension.CodeInvalidRequest).Wrapf(err, "--args must be a JSON object")
		}
		if args == nil {
			return nil, oops.In("cli").Code(extension.CodeInvalidRequest).Errorf("--args must be a JSON object")
		}
	}
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, oops.In("cli").Code(extension.CodeInvalidRequest).With("argument", pair).
				Errorf("argument %q is not name=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		args[name] = v
	}
	return args, nil
}
