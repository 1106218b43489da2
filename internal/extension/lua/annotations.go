// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package lua

import (
	"encoding/json"
	"strings"

	"github.com/exthost/exthost/internal/wire"
)

// docBlock is the comment block directly above a function definition.
type docBlock struct {
	// text is the documentation with annotation lines removed.
	text     string
	types    map[string]string
	defaults map[string]any
}

// readDocBlock collects the contiguous "--" comment lines ending on the line
// before defLine (1-based).
func readDocBlock(lines []string, defLine int) docBlock {
	block := docBlock{
		types:    make(map[string]string),
		defaults: make(map[string]any),
	}
	if defLine < 2 || defLine-1 > len(lines) {
		return block
	}

	start := defLine - 1
	for start > 0 && isComment(lines[start-1]) {
		start--
	}

	var text []string
	for _, raw := range lines[start : defLine-1] {
		line := stripCommentMarker(raw)
		if strings.HasPrefix(line, "@") {
			block.annotate(line)
			continue
		}
		text = append(text, line)
	}
	block.text = strings.Join(text, "\n")
	return block
}

func isComment(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "--") && !strings.HasPrefix(trimmed, "--[[") && !strings.HasPrefix(trimmed, "--]]")
}

func stripCommentMarker(line string) string {
	return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-"))
}

// annotate records one annotation line. Unknown tags are ignored.
//
//	@param name[?] type [text]
//	@default name <json>
func (b *docBlock) annotate(line string) {
	tag, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch tag {
	case "@param":
		name, typ, _ := strings.Cut(rest, " ")
		if name == "" {
			return
		}
		optional := strings.HasSuffix(name, "?")
		name = strings.TrimSuffix(name, "?")
		declared := declaredTypePrefix(strings.TrimSpace(typ))
		if optional && declared != "" && !strings.HasSuffix(declared, "?") {
			declared += "?"
		}
		b.types[name] = declared
	case "@default":
		name, value, _ := strings.Cut(rest, " ")
		if name == "" {
			return
		}
		b.defaults[name] = parseDefault(strings.TrimSpace(value))
	}
}

// declaredTypePrefix returns the type expression at the start of text,
// dropping any trailing description.
func declaredTypePrefix(text string) string {
	if text == "" {
		return ""
	}
	if expr, err := wire.ParsePrefix(text); err == nil {
		return expr.String()
	}
	first, _, _ := strings.Cut(text, " ")
	return first
}

// parseDefault decodes a default value written as JSON. Anything that is
// not valid JSON is taken as a literal string.
func parseDefault(text string) any {
	if text == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return text
	}
	return normalizeNumbers(v)
}

// normalizeNumbers turns integral float64 values into int64 so defaults
// match the values Lua code returns.
func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
		return val
	case []any:
		for i := range val {
			val[i] = normalizeNumbers(val[i])
		}
		return val
	case map[string]any:
		for k := range val {
			val[k] = normalizeNumbers(val[k])
		}
		return val
	}
	return v
}
