// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package host

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/exthost/exthost/internal/extension"
	"github.com/exthost/exthost/internal/registry"
)

// CallError is an error reported by an extension call through the result
// file. Message is the text the unit wrote, unchanged.
type CallError struct {
	CallableID string
	Message    string
}

func (e *CallError) Error() string {
	return e.Message
}

// Call runs the callable with the given ID in an invoke unit and returns its
// decoded result. Tool and prompt arguments are checked against the
// callable's parameters before anything is spawned; resources expect uri and
// params keys.
func (h *Host) Call(ctx context.Context, id string, args map[string]any) (result any, err error) {
	requestID := ulid.Make().String()
	ctx, span := tracer.Start(ctx, "extension.call", trace.WithAttributes(
		attribute.String("callable.id", id),
		attribute.String("exthost.request_id", requestID),
	))
	start := time.Now()
	var role extension.Role
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		h.recordCall(role, start, err)
	}()

	m, role, err := h.store.FindCallable(ctx, id)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, oops.In("host").Code(extension.CodeFunctionNotFound).With("callable", id).
			Errorf("callable %s is not installed", id)
	}
	if err != nil {
		return nil, err
	}
	desc, _, _ := m.Callable(id)
	span.SetAttributes(
		attribute.String("callable.role", string(role)),
		attribute.String("extension.source", m.Source),
	)

	if args == nil {
		args = map[string]any{}
	}
	kind := extension.Kind(role)
	if role != extension.RoleResource {
		if err := desc.ValidateArguments(args); err != nil {
			return nil, oops.In("host").Code(extension.CodeInvalidArguments).With("callable", id).Wrap(err)
		}
	}

	payload, err := json.Marshal(extension.Request{FunctionName: desc.FunctionName, Args: args})
	if err != nil {
		return nil, oops.In("host").Code(extension.CodeInvalidRequest).With("callable", id).Wrap(err)
	}

	dir, cleanup, err := h.unitDir()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	params := filepath.Join(dir, "params.json")
	out := filepath.Join(dir, "result.json")
	if err := os.WriteFile(params, payload, 0o600); err != nil {
		return nil, oops.In("host").With("params", params).Wrapf(err, "write request")
	}

	h.logger.DebugContext(ctx, "calling extension",
		"callable", id, "function", desc.FunctionName, "source", m.Source, "request_id", requestID)
	if err := h.spawn(ctx, out, UnitInvoke, m.Source, string(kind), params, out); err != nil {
		return nil, oops.In("host").Code(extension.CodeExecutionFailed).With("callable", id).Wrap(err)
	}

	data, err := os.ReadFile(filepath.Clean(out))
	if err != nil {
		return nil, oops.In("host").With("callable", id).Wrapf(err, "read result")
	}
	if msg, ok := errorDocument(data); ok {
		return nil, &CallError{CallableID: id, Message: msg}
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, oops.In("host").With("callable", id).Wrapf(err, "decode result")
	}
	return result, nil
}

func (h *Host) recordCall(role extension.Role, start time.Time, err error) {
	if h.metrics == nil {
		return
	}
	status := "ok"
	var callErr *CallError
	switch {
	case errors.As(err, &callErr):
		status = "error"
	case err != nil:
		status = "failed"
	}
	label := string(role)
	if label == "" {
		label = "unknown"
	}
	h.metrics.CallsTotal.WithLabelValues(label, status).Inc()
	h.metrics.CallDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
}
