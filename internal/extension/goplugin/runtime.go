// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

// Package goplugin provides the extension runtime for binary extensions
// built with pkg/extsdk and served over gRPC by HashiCorp's go-plugin.
package goplugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	hashiplug "github.com/hashicorp/go-plugin"
	"github.com/samber/oops"

	"github.com/exthost/exthost/internal/extension"
	"github.com/exthost/exthost/pkg/extsdk"
)

// RuntimeName identifies this runtime in manifests.
const RuntimeName = "binary"

// DefaultStartTimeout bounds the handshake with a starting extension.
const DefaultStartTimeout = 10 * time.Second

// Sentinel errors for programmatic error checking.
var (
	// ErrNotExecutable is returned when the extension path is a directory.
	ErrNotExecutable = errors.New("extension path is not a file")
	// ErrUnexpectedClient is returned when the dispensed client is not an extension.
	ErrUnexpectedClient = errors.New("dispensed client does not implement the extension protocol")
)

// Compile-time interface check.
var _ extension.Runtime = (*Runtime)(nil)

// PluginClient wraps go-plugin client for testability.
type PluginClient interface {
	// Client returns the gRPC client protocol.
	Client() (hashiplug.ClientProtocol, error)
	// Kill terminates the extension process.
	Kill()
}

// ClientFactory creates plugin clients.
type ClientFactory interface {
	// NewClient creates a client for the given executable path.
	NewClient(execPath string) PluginClient
}

// DefaultClientFactory creates real go-plugin clients. The extension
// process runs in the directory of its executable.
type DefaultClientFactory struct {
	Logger       hclog.Logger
	StartTimeout time.Duration
}

// NewClient creates a real go-plugin client.
func (f *DefaultClientFactory) NewClient(execPath string) PluginClient {
	cmd := exec.Command(execPath) // #nosec G204 -- execPath is the extension file the caller asked to load
	cmd.Dir = filepath.Dir(execPath)

	timeout := f.StartTimeout
	if timeout <= 0 {
		timeout = DefaultStartTimeout
	}
	return hashiplug.NewClient(&hashiplug.ClientConfig{
		HandshakeConfig: extsdk.HandshakeConfig,
		Plugins: map[string]hashiplug.Plugin{
			extsdk.PluginName: &extsdk.GRPCPlugin{},
		},
		Cmd:              cmd,
		AllowedProtocols: []hashiplug.Protocol{hashiplug.ProtocolGRPC},
		Logger:           f.Logger,
		StartTimeout:     timeout,
		SyncStderr:       os.Stderr,
	})
}

// Options configures the binary runtime.
type Options struct {
	// Logger receives go-plugin's own logs. Defaults to warnings on stderr.
	Logger       hclog.Logger
	StartTimeout time.Duration
}

// Runtime starts binary extensions as go-plugin processes.
type Runtime struct {
	factory ClientFactory
}

// NewRuntime creates a binary runtime using real go-plugin clients.
func NewRuntime(opts Options) *Runtime {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.New(&hclog.LoggerOptions{
			Name:   "extension",
			Level:  hclog.Warn,
			Output: os.Stderr,
		})
	}
	return &Runtime{factory: &DefaultClientFactory{Logger: logger, StartTimeout: opts.StartTimeout}}
}

// NewRuntimeWithFactory creates a runtime with a custom client factory (for testing).
// Panics if factory is nil.
func NewRuntimeWithFactory(factory ClientFactory) *Runtime {
	if factory == nil {
		panic("goplugin: factory cannot be nil")
	}
	return &Runtime{factory: factory}
}

// Name implements extension.Runtime.
func (r *Runtime) Name() string { return RuntimeName }

// Open starts the extension process and asks it to describe itself. The
// registration is what binary extensions resolve functions against, so a
// failing entry point fails Open.
func (r *Runtime) Open(ctx context.Context, path string) (extension.Module, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, oops.In("goplugin").With("source", path).Hint("cannot access extension executable").Wrap(err)
	}
	if info.IsDir() {
		return nil, oops.In("goplugin").With("source", path).Wrap(ErrNotExecutable)
	}

	client := r.factory.NewClient(path)

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, oops.In("goplugin").With("source", path).Hint("failed to start extension").Wrap(err)
	}

	raw, err := rpcClient.Dispense(extsdk.PluginName)
	if err != nil {
		client.Kill()
		return nil, oops.In("goplugin").With("source", path).Hint("failed to dispense extension").Wrap(err)
	}

	provider, ok := raw.(extsdk.Provider)
	if !ok {
		client.Kill()
		return nil, oops.In("goplugin").With("source", path).With("type", fmt.Sprintf("%T", raw)).Wrap(ErrUnexpectedClient)
	}

	desc, err := provider.Describe(ctx)
	if err != nil {
		client.Kill()
		return nil, oops.In("goplugin").With("source", path).With("function", "main").Wrap(err)
	}

	return &module{client: client, provider: provider, desc: desc, source: path}, nil
}
