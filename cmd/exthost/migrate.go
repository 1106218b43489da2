// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/exthost/exthost/internal/registry"
)

// Migrator wraps the methods used from registry.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	Close() error
}

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL registry schema",
		Long: `Run, roll back or inspect the migrations of the PostgreSQL registry. The
database is taken from --database-url, registry.dsn or DATABASE_URL.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(a, func(m Migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(a, func(m Migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("Migrations rolled back")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the schema version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(a, func(m Migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				pending, err := m.PendingMigrations()
				if err != nil {
					return err
				}
				cmd.Println(formatMigrationStatus(version, dirty, pending))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations",
		Long: `Set the recorded schema version and clear the dirty flag. Use it to
recover after a failed migration once the database has been fixed by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(a, func(m Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Schema version forced to %d\n", version)
				return nil
			})
		},
	})

	return cmd
}

// withMigrator opens a migrator for the configured database and closes it after fn.
func withMigrator(a *app, fn func(Migrator) error) (err error) {
	databaseURL, err := getDatabaseURL(a)
	if err != nil {
		return err
	}
	m, err := a.deps.MigratorFactory(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(m)
}

// getDatabaseURL returns the configured PostgreSQL URL.
func getDatabaseURL(a *app) (string, error) {
	if a.cfg == nil || a.cfg.Registry.DSN == "" {
		return "", oops.Code("CONFIG_INVALID").
			Errorf("a database URL is required: set --database-url, registry.dsn or DATABASE_URL")
	}
	return a.cfg.Registry.DSN, nil
}

// parseForceVersion parses the version argument of migrate force.
func parseForceVersion(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, oops.Code("INVALID_VERSION").Errorf("version is required")
	}
	var version int
	if _, err := fmt.Sscanf(s, "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Wrapf(err, "version must be an integer")
	}
	return version, nil
}

func formatMigrationStatus(version uint, dirty bool, pending []uint) string {
	var b strings.Builder
	if version == 0 {
		b.WriteString("Schema version: none")
	} else {
		fmt.Fprintf(&b, "Schema version: %d", version)
	}
	if dirty {
		b.WriteString(" (dirty)")
	}
	if len(pending) == 0 {
		b.WriteString("\nNo pending migrations")
		return b.String()
	}
	parts := make([]string, len(pending))
	for i, v := range pending {
		parts[i] = fmt.Sprintf("%d", v)
	}
	fmt.Fprintf(&b, "\nPending migrations: %s", strings.Join(parts, ", "))
	return b.String()
}

var _ Migrator = (*registry.Migrator)(nil)
