// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exthost/exthost/internal/registry"
)

// isolate points the XDG directories at a temporary tree.
func isolate(t *testing.T) (configHome, dataHome string) {
	t.Helper()
	configHome = t.TempDir()
	dataHome = t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)
	t.Setenv("XDG_DATA_HOME", dataHome)
	t.Setenv("DATABASE_URL", "")
	return configHome, dataHome
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad_Defaults(t *testing.T) {
	_, dataHome := isolate(t)

	cfg, err := Load(newFlags(t))
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, filepath.Join(dataHome, "exthost", "extensions"), cfg.Extensions.Dir)
	assert.Equal(t, DefaultInclude, cfg.Extensions.Include)
	assert.Equal(t, DefaultExclude, cfg.Extensions.Exclude)
	assert.Equal(t, registry.BackendBolt, cfg.Registry.Backend)
	assert.Equal(t, 30*time.Second, cfg.Worker.Timeout)
	assert.Equal(t, 2, cfg.Worker.Retries)
	assert.Equal(t, 10*time.Second, cfg.Binary.StartTimeout)
}

func TestLoad_NilFlagSet(t *testing.T) {
	isolate(t)
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_XDGConfigFile(t *testing.T) {
	configHome, _ := isolate(t)
	writeFile(t, filepath.Join(configHome, "exthost", "config.yaml"), `
log:
  level: debug
extensions:
  dir: /srv/ext
  include: ["*.lua"]
worker:
  timeout: 5s
`)

	cfg, err := Load(newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format, "unset keys keep their defaults")
	assert.Equal(t, "/srv/ext", cfg.Extensions.Dir)
	assert.Equal(t, []string{"*.lua"}, cfg.Extensions.Include)
	assert.Equal(t, DefaultExclude, cfg.Extensions.Exclude)
	assert.Equal(t, 5*time.Second, cfg.Worker.Timeout)
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	writeFile(t, path, `
log:
  format: text
  level: warn
worker:
  retries: 5
`)

	cfg, err := Load(newFlags(t, "--config", path, "--log-level", "error", "--exclude", "*.bak"))
	require.NoError(t, err)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Worker.Retries, "an unchanged flag does not override the file")
	assert.Equal(t, []string{"*.bak"}, cfg.Extensions.Exclude)
}

func TestLoad_ExplicitConfigMissing(t *testing.T) {
	isolate(t)
	_, err := Load(newFlags(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	require.Error(t, err)
}

func TestLoad_InvalidFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, path, "log: [unclosed")

	_, err := Load(newFlags(t, "--config", path))
	require.Error(t, err)
}

func TestLoad_DatabaseURLFallback(t *testing.T) {
	isolate(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/exthost")

	cfg, err := Load(newFlags(t, "--registry", "postgres"))
	require.NoError(t, err)
	assert.Equal(t, registry.BackendPostgres, cfg.Registry.Backend)
	assert.Equal(t, "postgres://localhost/exthost", cfg.Registry.DSN)
}

func TestLoad_DatabaseURLFlagWins(t *testing.T) {
	isolate(t)
	t.Setenv("DATABASE_URL", "postgres://env/exthost")

	cfg, err := Load(newFlags(t, "--registry", "postgres", "--database-url", "postgres://flag/exthost"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag/exthost", cfg.Registry.DSN)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Default()
		c.Extensions.Dir = "/ext"
		c.Extensions.Include = DefaultInclude
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: "log.format"},
		{name: "bad level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: "loud"},
		{name: "unknown backend", mutate: func(c *Config) { c.Registry.Backend = "redis" }, wantErr: "registry.backend"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Registry.Backend = registry.BackendPostgres }, wantErr: "registry.dsn"},
		{
			name: "postgres with dsn",
			mutate: func(c *Config) {
				c.Registry.Backend = registry.BackendPostgres
				c.Registry.DSN = "postgres://localhost/db"
			},
		},
		{name: "memory", mutate: func(c *Config) { c.Registry.Backend = registry.BackendMemory }},
		{name: "zero timeout", mutate: func(c *Config) { c.Worker.Timeout = 0 }, wantErr: "worker.timeout"},
		{name: "negative retries", mutate: func(c *Config) { c.Worker.Retries = -1 }, wantErr: "worker.retries"},
		{name: "no include", mutate: func(c *Config) { c.Extensions.Include = nil }, wantErr: "extensions.include"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
