// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

// Package worker implements the two single-shot units of work the host
// spawns: loading an extension into a manifest file and invoking one of its
// functions into a result file.
//
// Both units convert every failure, panics included, into an
// {"error": "<message>"} document at the designated output path. A load
// failure still makes RunLoad return an error so the process exits non-zero;
// RunInvoke fails only when the result cannot be written at all.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/exthost/exthost/internal/extension"
	"github.com/exthost/exthost/pkg/errutil"
)

// ErrorResult is the document written in place of a manifest or result.
type ErrorResult struct {
	Error string `json:"error"`
}

// RunLoad loads source with the runtime responsible for it and writes the
// manifest to output.
func RunLoad(ctx context.Context, runtimes extension.RuntimeSet, source, output string) error {
	manifest, loadErr := guard(func() (*extension.Manifest, error) {
		rt, err := runtimes.For(source)
		if err != nil {
			return nil, err
		}
		return extension.Load(ctx, rt, source)
	})

	if loadErr != nil {
		errutil.LogError(slog.Default(), "extension load failed", loadErr)
		if err := writeJSON(output, ErrorResult{Error: errutil.Message(loadErr)}); err != nil {
			return oops.In("worker").With("output", output).Wrapf(err, "write error result")
		}
		return loadErr
	}

	if err := writeJSON(output, manifest); err != nil {
		return oops.In("worker").With("output", output).Wrapf(err, "write manifest")
	}
	return nil
}

// RunInvoke reads the request payload from params, invokes the named
// function and writes its return value, or an error document, to result.
func RunInvoke(ctx context.Context, runtimes extension.RuntimeSet, source string, kind extension.Kind, params, result string) error {
	value, callErr := guard(func() (any, error) {
		payload, err := os.ReadFile(filepath.Clean(params))
		if err != nil {
			return nil, oops.In("worker").Code(extension.CodeInvalidRequest).With("params", params).
				Wrapf(err, "read request")
		}
		rt, err := runtimes.For(source)
		if err != nil {
			return nil, err
		}
		return extension.Invoke(ctx, rt, source, kind, payload)
	})

	var doc any = value
	if callErr != nil {
		slog.DebugContext(ctx, "extension invocation failed",
			"source", source, "code", errutil.Code(callErr), "error", callErr)
		doc = ErrorResult{Error: errutil.Message(callErr)}
	}

	if err := writeJSON(result, doc); err != nil {
		// The value may not be encodable; report that instead.
		if callErr == nil {
			if werr := writeJSON(result, ErrorResult{Error: err.Error()}); werr == nil {
				return nil
			}
		}
		return oops.In("worker").With("result", result).Wrapf(err, "write result")
	}
	return nil
}

// guard runs fn, converting a panic into an error.
func guard[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			out = zero
			if e, ok := r.(error); ok {
				err = oops.In("worker").Code(extension.CodeExecutionFailed).Wrap(e)
				return
			}
			err = oops.In("worker").Code(extension.CodeExecutionFailed).Errorf("%v", r)
		}
	}()
	return fn()
}

// writeJSON encodes v and replaces path atomically, so readers never see a
// partial document.
func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
