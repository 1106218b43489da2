// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

// Package main implements a binary exthost extension with math tools.
//
// Build it and drop the executable into the extensions directory:
//
//	go build -o "$XDG_DATA_HOME/exthost/extensions/mathtools" ./plugins/mathtools
package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/exthost/exthost/pkg/extsdk"
)

var formulas = map[string]string{
	"pythagorean": "a² + b² = c²",
	"area_circle": "A = πr²",
}

func addNumbers(number1, number2 int) int {
	return number1 + number2
}

func subtractNumbers(number1, number2, number3 int) int {
	return number1 - number2 - number3
}

func divide(_ context.Context, a, b float64) (float64, error) {
	if b == 0 {
		return 0, errors.New("division by zero")
	}
	return a / b, nil
}

func mathFormula(uri string, _ map[string]any) map[string]any {
	name := strings.TrimPrefix(uri, "math://")
	text, ok := formulas[name]
	if !ok {
		text = fmt.Sprintf("Formula %q not found", name)
	}
	return map[string]any{
		"contents": []map[string]any{{"uri": uri, "text": text}},
	}
}

func mathProfessor(topic string) map[string]any {
	text := "You are a math professor who explains concepts clearly and concisely."
	if topic != "" {
		text += " Today's topic is " + topic + "."
	}
	return map[string]any{
		"messages": []map[string]any{{
			"role":    "user",
			"content": map[string]any{"type": "text", "text": text},
		}},
	}
}

func newExtension() *extsdk.Extension {
	return &extsdk.Extension{
		ID:          "mathtools",
		Description: "Arithmetic tools, formulas and a tutoring prompt",
		Author:      "Exthost Contributors",
		Version:     "1.0.0",
		Tools: []*extsdk.Func{
			extsdk.NewFunc("tool_add_numbers", addNumbers).
				Doc("Adds two numbers together and returns the result").
				Param("number1").
				Param("number2"),
			extsdk.NewFunc("tool_subtract_numbers", subtractNumbers).
				Doc("Subtracts numbers from each other and returns the result").
				Param("number1").
				Param("number2").
				Param("number3", extsdk.Optional(), extsdk.Default(0)),
			extsdk.NewFunc("tool_divide", divide).
				Doc("Divides a by b").
				Param("a").
				Param("b"),
		},
		Resources: []*extsdk.Func{
			extsdk.NewFunc("resource_math_formula", mathFormula).
				Doc("Provides common mathematical formulas").
				Param("uri").
				Param("params"),
		},
		Prompts: []*extsdk.Func{
			extsdk.NewFunc("prompt_math_professor", mathProfessor).
				Doc("Creates a prompt for a math professor persona").
				Param("topic", extsdk.Default("")),
		},
	}
}

func main() {
	extsdk.Serve(newExtension)
}
