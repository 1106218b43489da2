// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package extension

import (
	"github.com/samber/oops"
)

// Error codes attached to oops errors returned by this package.
const (
	CodeLoadFailed       = "LOAD_FAILED"
	CodeNoEntryPoint     = "NO_ENTRY_POINT"
	CodeFunctionNotFound = "FUNCTION_NOT_FOUND"
	CodeExecutionFailed  = "EXECUTION_FAILED"
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeInvalidArguments = "INVALID_ARGUMENTS"
)

// NotFound builds the resolution error for a function missing from a module.
// Its message is part of the wire contract.
func NotFound(name string) error {
	return oops.In("invoker").Code(CodeFunctionNotFound).With("function", name).
		Errorf("Function %s not found", name)
}

// ExecutionError wraps an error raised by the extension function itself.
// The message of the wrapped error is kept as is.
func ExecutionError(name string, err error) error {
	return oops.In("invoker").Code(CodeExecutionFailed).With("function", name).Wrap(err)
}

func errNoRuntime(path string) error {
	return oops.In("extension").Code(CodeLoadFailed).With("source", path).
		Errorf("no runtime available for %s", path)
}
