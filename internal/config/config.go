// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

// Package config loads exthost configuration.
//
// Values are layered: built-in defaults, then a YAML file, then command-line
// flags that were set explicitly. The file is the one named by --config, or
// $XDG_CONFIG_HOME/exthost/config.yaml when that exists.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/exthost/exthost/internal/logging"
	"github.com/exthost/exthost/internal/registry"
	"github.com/exthost/exthost/internal/xdg"
)

// Config is the complete exthost configuration.
type Config struct {
	Log        LogConfig       `koanf:"log" yaml:"log"`
	Extensions DiscoveryConfig `koanf:"extensions" yaml:"extensions"`
	Registry   RegistryConfig  `koanf:"registry" yaml:"registry"`
	Worker     WorkerConfig    `koanf:"worker" yaml:"worker"`
	Lua        LuaConfig       `koanf:"lua" yaml:"lua"`
	Binary     BinaryConfig    `koanf:"binary" yaml:"binary"`
	Metrics    MetricsConfig   `koanf:"metrics" yaml:"metrics"`
}

// LogConfig configures slog.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format"`
	Level  string `koanf:"level" yaml:"level"`
}

// DiscoveryConfig configures where extensions are found.
type DiscoveryConfig struct {
	Dir      string        `koanf:"dir" yaml:"dir"`
	Include  []string      `koanf:"include" yaml:"include"`
	Exclude  []string      `koanf:"exclude" yaml:"exclude"`
	Debounce time.Duration `koanf:"debounce" yaml:"debounce"`
}

// RegistryConfig selects the manifest store.
type RegistryConfig struct {
	Backend string `koanf:"backend" yaml:"backend"`
	Path    string `koanf:"path" yaml:"path"`
	DSN     string `koanf:"dsn" yaml:"dsn"`
}

// WorkerConfig configures spawned worker units.
type WorkerConfig struct {
	// Executable is the binary run with the load and invoke subcommands.
	// Empty means the running executable.
	Executable   string        `koanf:"executable" yaml:"executable"`
	Timeout      time.Duration `koanf:"timeout" yaml:"timeout"`
	Retries      int           `koanf:"retries" yaml:"retries"`
	RetryBackoff time.Duration `koanf:"retry_backoff" yaml:"retry_backoff"`
	// WorkDir holds per-unit directories. Empty means the XDG runtime directory.
	WorkDir string `koanf:"work_dir" yaml:"work_dir"`
}

// LuaConfig configures the Lua runtime.
type LuaConfig struct {
	UnsafeLibraries bool `koanf:"unsafe_libraries" yaml:"unsafe_libraries"`
}

// BinaryConfig configures the go-plugin runtime.
type BinaryConfig struct {
	StartTimeout time.Duration `koanf:"start_timeout" yaml:"start_timeout"`
}

// MetricsConfig configures the observability server of exthost serve.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// Default discovery patterns. They apply when the configuration names none;
// a configured list replaces them entirely.
var (
	DefaultInclude = []string{"*.lua", "*"}
	DefaultExclude = []string{".*", "*.md", "*.txt", "*.json", "*.yaml", "*.yml"}
)

// Default returns the built-in configuration. Discovery patterns are left
// empty and filled by Load.
func Default() Config {
	return Config{
		Log: LogConfig{Format: "json", Level: "info"},
		Extensions: DiscoveryConfig{
			Debounce: 250 * time.Millisecond,
		},
		Registry: RegistryConfig{Backend: registry.BackendBolt},
		Worker: WorkerConfig{
			Timeout:      30 * time.Second,
			Retries:      2,
			RetryBackoff: 200 * time.Millisecond,
		},
		Binary:  BinaryConfig{StartTimeout: 10 * time.Second},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
	}
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"log-format":     "log.format",
	"log-level":      "log.level",
	"extensions-dir": "extensions.dir",
	"include":        "extensions.include",
	"exclude":        "extensions.exclude",
	"registry":       "registry.backend",
	"registry-path":  "registry.path",
	"database-url":   "registry.dsn",
	"worker":         "worker.executable",
	"timeout":        "worker.timeout",
	"retries":        "worker.retries",
	"lua-unsafe":     "lua.unsafe_libraries",
	"metrics-addr":   "metrics.addr",
}

// BindFlags registers the configuration flags on fs with the built-in
// defaults.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "config file (default: $XDG_CONFIG_HOME/exthost/config.yaml)")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("extensions-dir", "", "directory scanned for extensions (default: $XDG_DATA_HOME/exthost/extensions)")
	fs.StringSlice("include", DefaultInclude, "glob patterns of extension files to include")
	fs.StringSlice("exclude", DefaultExclude, "glob patterns of extension files to exclude")
	fs.String("registry", d.Registry.Backend, "registry backend (bolt, postgres or memory)")
	fs.String("registry-path", "", "bolt registry file (default: $XDG_DATA_HOME/exthost/registry.db)")
	fs.String("database-url", "", "PostgreSQL URL for the postgres registry (default: $DATABASE_URL)")
	fs.String("worker", "", "worker executable (default: this binary)")
	fs.Duration("timeout", d.Worker.Timeout, "timeout for one load or invoke unit")
	fs.Int("retries", d.Worker.Retries, "spawn retries when a unit produces no output")
	fs.Bool("lua-unsafe", false, "open the os and io libraries in Lua extensions")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address for serve (empty = disabled)")
}

// Load builds the configuration from defaults, the config file and the
// flags in fs that were set. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	path, explicit, err := configPath(fs)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil || explicit {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, oops.In("config").Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
			}
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.In("config").Code("CONFIG_LOAD_FAILED").Hint("invalid flag value").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.In("config").Code("CONFIG_INVALID").Wrap(err)
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, oops.In("config").Code("CONFIG_INVALID").Wrap(err)
	}
	return &cfg, nil
}

func configPath(fs *pflag.FlagSet) (path string, explicit bool, err error) {
	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			return f.Value.String(), true, nil
		}
	}
	path, err = xdg.ConfigFile()
	if errors.Is(err, xdg.ErrNoHome) {
		return "", false, nil
	}
	return path, false, err
}

// resolve fills values that default to environment-dependent locations.
func (c *Config) resolve() error {
	if c.Extensions.Dir == "" {
		dir, err := xdg.ExtensionsDir()
		if err != nil {
			return oops.In("config").Hint("set extensions.dir or HOME").Wrap(err)
		}
		c.Extensions.Dir = dir
	}
	if c.Extensions.Include == nil {
		c.Extensions.Include = append([]string(nil), DefaultInclude...)
	}
	if c.Extensions.Exclude == nil {
		c.Extensions.Exclude = append([]string(nil), DefaultExclude...)
	}
	if c.Registry.DSN == "" {
		c.Registry.DSN = os.Getenv("DATABASE_URL")
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Registry.Backend {
	case registry.BackendBolt, registry.BackendMemory:
	case registry.BackendPostgres:
		if c.Registry.DSN == "" {
			return fmt.Errorf("registry.dsn (or DATABASE_URL) is required for the postgres registry")
		}
	default:
		return fmt.Errorf("registry.backend must be bolt, postgres or memory, got %q", c.Registry.Backend)
	}
	if c.Worker.Timeout <= 0 {
		return fmt.Errorf("worker.timeout must be positive, got %s", c.Worker.Timeout)
	}
	if c.Worker.Retries < 0 {
		return fmt.Errorf("worker.retries must not be negative, got %d", c.Worker.Retries)
	}
	if len(c.Extensions.Include) == 0 {
		return fmt.Errorf("extensions.include must list at least one pattern")
	}
	return nil
}
