// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package extension

import (
	"strings"

	"github.com/exthost/exthost/internal/wire"
)

// receiverName is the parameter name of a method receiver. It is never part
// of a callable's schema.
const receiverName = "self"

// sectionHeaders end the free-text part of a function's documentation.
var sectionHeaders = []string{"args:", "arguments:", "returns:"}

// Analyze turns a runtime signature into a descriptor without an ID.
// FunctionName is the signature name.
func Analyze(sig Signature) CallableDescriptor {
	params := make(map[string]ParameterDescriptor, len(sig.Params))
	for _, p := range sig.Params {
		if p.Name == receiverName {
			continue
		}
		params[p.Name] = analyzeParam(p)
	}
	return CallableDescriptor{
		FunctionName: sig.Name,
		Description:  ParseDescription(sig.Doc),
		Parameters:   params,
	}
}

func analyzeParam(p Param) ParameterDescriptor {
	declared := strings.TrimSpace(p.DeclaredType)
	if declared == "" {
		declared = string(wire.Any)
	}
	inner, optional := wire.Unwrap(declared)

	d := ParameterDescriptor{
		DeclaredType: declared,
		WireSchema:   wire.MapType(inner),
		IsOptional:   optional,
	}
	if p.HasDefault {
		d.HasDefault = true
		d.IsOptional = true
		d.DefaultValue = p.Default
	}
	return d
}

// ParseDescription extracts the summary from a documentation block: the
// trimmed lines before the first "Args:", "Arguments:" or "Returns:" header,
// joined with single spaces.
func ParseDescription(doc string) string {
	var lines []string
	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimSpace(line)
		if isSectionHeader(line) {
			break
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, " "))
}

func isSectionHeader(line string) bool {
	lower := strings.ToLower(line)
	for _, h := range sectionHeaders {
		if strings.HasPrefix(lower, h) {
			return true
		}
	}
	return false
}

// bareName strips the role prefix from a function name.
func bareName(role Role, functionName string) string {
	return strings.TrimPrefix(functionName, role.Prefix())
}

// callableID derives a callable ID from the extension ID and bare name.
func callableID(extensionID, bare string) string {
	if extensionID == "" {
		return bare
	}
	return extensionID + "-" + bare
}
