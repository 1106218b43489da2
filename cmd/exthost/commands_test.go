// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/exthost/exthost/internal/config"
	"github.com/exthost/exthost/internal/extension"
	"github.com/exthost/exthost/internal/host"
	"github.com/exthost/exthost/internal/registry"
	"github.com/exthost/exthost/pkg/errutil"
)

const greeter = `
---Greets someone
---@param name string
---@param greeting? string
---@default greeting "Hello"
function tool_greet(name, greeting)
  return greeting .. ", " .. name
end

function tool_fail()
  error("no greeting today", 0)
end

function main()
  return { id = "greeter", version = "1.0.0", tools = { tool_greet, tool_fail } }
end
`

// cliLauncher runs worker units through a fresh root command in-process.
type cliLauncher struct {
	flags []string
}

func (l cliLauncher) Launch(ctx context.Context, args ...string) error {
	cmd := NewRootCmd(nil)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(append([]string{}, args...), l.flags...))
	return cmd.ExecuteContext(ctx)
}

type harness struct {
	store registry.Store
	dir   string
	deps  *Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	isolate(t)
	h := &harness{
		store: registry.NewMemoryStore(),
		dir:   t.TempDir(),
	}
	h.deps = &Deps{
		RegistryOpener: func(context.Context, registry.Options) (registry.Store, error) {
			return h.store, nil
		},
		LauncherFactory: func(_ *config.Config, flags []string) host.Launcher {
			return cliLauncher{flags: flags}
		},
	}
	return h
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(h.deps)
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(append([]string{"--extensions-dir", h.dir, "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (h *harness) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestInstallListCall(t *testing.T) {
	h := newHarness(t)
	path := h.write(t, "greeter.lua", greeter)

	out, err := h.run(t, "install", path)
	require.NoError(t, err)
	assert.Contains(t, out, "installed greeter 1.0.0")

	out, err = h.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "greeter-greet,greeter-fail")

	out, err = h.run(t, "call", "greeter-greet", "name=Ada")
	require.NoError(t, err)
	assert.Contains(t, out, `"Hello, Ada"`)

	out, err = h.run(t, "call", "greeter-greet", "--args", `{"name": "Ada", "greeting": "Hi"}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"Hi, Ada"`)

	_, err = h.run(t, "call", "greeter-fail")
	require.Error(t, err)
	assert.Equal(t, "no greeting today", err.Error())

	_, err = h.run(t, "call", "greeter-greet")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, extension.CodeInvalidArguments)
}

func TestInstall_ReportsFailures(t *testing.T) {
	h := newHarness(t)
	good := h.write(t, "greeter.lua", greeter)
	bad := h.write(t, "bad.lua", "function main( end")

	out, err := h.run(t, "install", good, bad)
	require.Error(t, err)
	assert.Contains(t, out, "installed greeter")
	assert.Contains(t, out, "bad.lua")

	all, err := h.store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestScanAndUninstall(t *testing.T) {
	h := newHarness(t)
	path := h.write(t, "greeter.lua", greeter)
	h.write(t, "README.md", "# readme")

	out, err := h.run(t, "scan")
	require.NoError(t, err)
	assert.Contains(t, out, "1 extensions installed")

	_, err = h.run(t, "uninstall", path)
	require.NoError(t, err)
	all, err := h.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestLoadAndInvokeUnits(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	source := filepath.Join(dir, "greeter.lua")
	require.NoError(t, os.WriteFile(source, []byte(greeter), 0o600))
	manifest := filepath.Join(dir, "manifest.json")

	require.NoError(t, cliLauncher{}.Launch(context.Background(), "load", source, manifest))
	data, err := os.ReadFile(manifest)
	require.NoError(t, err)
	require.NoError(t, extension.ValidateSchema(data))

	params := filepath.Join(dir, "params.json")
	result := filepath.Join(dir, "result.json")
	require.NoError(t, os.WriteFile(params, []byte(`{"functionName": "tool_missing"}`), 0o600))
	require.NoError(t, cliLauncher{}.Launch(context.Background(), "invoke", source, "tool", params, result))
	data, err = os.ReadFile(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error": "Function tool_missing not found"}`, string(data))
}

func TestFormatManifests(t *testing.T) {
	m := extension.Empty()
	m.ID = "greeter"
	m.Version = "1.0.0"
	m.Runtime = "lua"
	m.Source = "/ext/greeter.lua"
	m.Tools = append(m.Tools, extension.CallableDescriptor{
		ID: "greeter-greet", FunctionName: "tool_greet", Parameters: map[string]extension.ParameterDescriptor{},
	})
	manifests := []*extension.Manifest{m}

	table, err := formatManifests(manifests, "table")
	require.NoError(t, err)
	assert.Contains(t, table, "ID")
	assert.Contains(t, table, "greeter-greet")
	assert.Contains(t, table, "/ext/greeter.lua")

	js, err := formatManifests(manifests, "json")
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(js), &decoded))
	assert.Equal(t, "greeter", decoded[0]["id"])

	ym, err := formatManifests(manifests, "yaml")
	require.NoError(t, err)
	var fromYAML []map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(ym), &fromYAML))
	assert.Equal(t, "tool_greet", fromYAML[0]["tools"].([]any)[0].(map[string]any)["functionName"])

	empty, err := formatManifests(nil, "json")
	require.NoError(t, err)
	assert.Equal(t, "[]\n", empty)

	_, err = formatManifests(manifests, "xml")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "INVALID_FORMAT")
}

func TestParseCallArgs(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		pairs   []string
		want    map[string]any
		wantErr bool
	}{
		{name: "empty", want: map[string]any{}},
		{name: "json object", raw: `{"a": 1}`, want: map[string]any{"a": float64(1)}},
		{name: "pairs parse json values", pairs: []string{"n=2", "b=true", "s=text"}, want: map[string]any{"n": float64(2), "b": true, "s": "text"}},
		{name: "pairs win", raw: `{"a": 1}`, pairs: []string{"a=2"}, want: map[string]any{"a": float64(2)}},
		{name: "json array", raw: `[1]`, wantErr: true},
		{name: "json null", raw: `null`, wantErr: true},
		{name: "bad pair", pairs: []string{"novalue"}, wantErr: true},
		{name: "empty name", pairs: []string{"=1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCallArgs(tt.raw, tt.pairs)
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, extension.CodeInvalidRequest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
