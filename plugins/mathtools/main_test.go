// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exthost/exthost/pkg/extsdk"
)

func call(t *testing.T, name string, named map[string]any) *extsdk.CallResponse {
	t.Helper()
	req := &extsdk.CallRequest{Function: name, Named: map[string]json.RawMessage{}}
	for k, v := range named {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		req.Named[k] = data
	}
	resp, err := extsdk.NewProvider(newExtension).Call(context.Background(), req)
	require.NoError(t, err)
	return resp
}

func TestDescribe(t *testing.T) {
	desc, err := extsdk.NewProvider(newExtension).Describe(context.Background())
	require.NoError(t, err)
	assert.True(t, desc.EntryPoint)
	assert.Equal(t, "mathtools", desc.ID)
	require.Len(t, desc.Tools, 3)
	require.Len(t, desc.Resources, 1)
	require.Len(t, desc.Prompts, 1)

	sub := desc.Tools[1]
	require.Len(t, sub.Params, 3)
	assert.Equal(t, "number3", sub.Params[2].Name)
	assert.True(t, sub.Params[2].HasDefault)
}

func TestTools(t *testing.T) {
	tests := []struct {
		name    string
		fn      string
		args    map[string]any
		want    string
		wantErr string
	}{
		{name: "add", fn: "tool_add_numbers", args: map[string]any{"number1": 2, "number2": 3}, want: "5"},
		{name: "subtract with default", fn: "tool_subtract_numbers", args: map[string]any{"number1": 10, "number2": 3}, want: "7"},
		{name: "subtract all", fn: "tool_subtract_numbers", args: map[string]any{"number1": 10, "number2": 3, "number3": 2}, want: "5"},
		{name: "divide", fn: "tool_divide", args: map[string]any{"a": 7, "b": 2}, want: "3.5"},
		{name: "divide by zero", fn: "tool_divide", args: map[string]any{"a": 1, "b": 0}, wantErr: "division by zero"},
		{name: "prompt", fn: "prompt_math_professor", args: map[string]any{"topic": "limits"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := call(t, tt.fn, tt.args)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, resp.Error)
				return
			}
			assert.Empty(t, resp.Error)
			if tt.want != "" {
				assert.JSONEq(t, tt.want, string(resp.Result))
			}
		})
	}
}

func TestMathFormula(t *testing.T) {
	got := mathFormula("math://pythagorean", nil)
	contents := got["contents"].([]map[string]any)
	assert.Equal(t, "a² + b² = c²", contents[0]["text"])

	got = mathFormula("math://unknown", nil)
	contents = got["contents"].([]map[string]any)
	assert.Contains(t, contents[0]["text"], "not found")
}
