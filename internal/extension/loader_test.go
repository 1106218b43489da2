// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package extension_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exthost/exthost/internal/extension"
	"github.com/exthost/exthost/internal/wire"
	"github.com/exthost/exthost/pkg/errutil"
)

func TestLoad_MathTools(t *testing.T) {
	rt := &fakeRuntime{module: mathModule("math-tools")}

	m, err := extension.Load(context.Background(), rt, "math_tools.ext")
	require.NoError(t, err)

	assert.Equal(t, "math-tools", m.ID)
	assert.Equal(t, "Mathematical tools and formulas", m.Description)
	assert.Equal(t, "Clay", m.Author)
	assert.Equal(t, "1.0.0", m.Version)
	assert.Equal(t, "lua", m.Runtime)
	assert.True(t, filepath.IsAbs(m.Source))
	assert.Empty(t, m.Warnings)
	assert.True(t, rt.module.closed)

	require.Len(t, m.Tools, 2)
	add := m.Tools[0]
	assert.Equal(t, "math-tools-add_numbers", add.ID)
	assert.Equal(t, "tool_add_numbers", add.FunctionName)
	assert.Equal(t, "Adds two numbers together and returns the result", add.Description)
	assert.Equal(t, wire.Integer, add.Parameters["number1"].WireSchema)

	sub := m.Tools[1]
	assert.Equal(t, "math-tools-subtract_numbers", sub.ID)
	assert.True(t, sub.Parameters["number3"].HasDefault)
	assert.True(t, sub.Parameters["number3"].IsOptional)
	assert.Equal(t, int64(0), sub.Parameters["number3"].DefaultValue)

	require.Len(t, m.Resources, 1)
	assert.Equal(t, "math-tools-math_formula", m.Resources[0].ID)
	assert.Equal(t, "math_formula://{path}", m.Resources[0].Template)

	require.Len(t, m.Prompts, 1)
	assert.Equal(t, "math-tools-math_professor", m.Prompts[0].ID)
	assert.Equal(t, "Creates a prompt for a math professor persona", m.Prompts[0].Description)
	assert.NotNil(t, m.Prompts[0].Parameters)
}

func TestLoad_EmptyIDUsesBareName(t *testing.T) {
	rt := &fakeRuntime{module: mathModule("")}

	m, err := extension.Load(context.Background(), rt, "math.ext")
	require.NoError(t, err)

	assert.Equal(t, []string{"add_numbers", "subtract_numbers", "math_formula", "math_professor"}, m.CallableIDs())
}

func TestLoad_NoEntryPoint(t *testing.T) {
	rt := &fakeRuntime{module: &fakeModule{}}

	m, err := extension.Load(context.Background(), rt, "legacy.ext")
	require.NoError(t, err)

	assert.Empty(t, m.ID)
	assert.NotNil(t, m.Tools)
	assert.NotNil(t, m.Resources)
	assert.NotNil(t, m.Prompts)
	assert.Empty(t, m.Tools)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("open fails", func(t *testing.T) {
		rt := &fakeRuntime{openErr: errors.New("syntax error near 'end'")}
		_, err := extension.Load(context.Background(), rt, "broken.ext")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, extension.CodeLoadFailed)
		assert.Contains(t, err.Error(), "syntax error near 'end'")
	})

	t.Run("entry point raises", func(t *testing.T) {
		rt := &fakeRuntime{module: &fakeModule{regErr: errors.New("boom")}}
		_, err := extension.Load(context.Background(), rt, "raises.ext")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, extension.CodeLoadFailed)
		assert.Equal(t, "boom", errutil.Message(err))
		assert.True(t, rt.module.closed)
	})
}

func TestLoad_SkipsNonCallableEntries(t *testing.T) {
	good := sig("tool_ok", "")
	rt := &fakeRuntime{module: &fakeModule{reg: &extension.Registration{
		ID:    "x",
		Tools: []extension.Entry{{Desc: "string \"tool_typo\""}, entry(good)},
	}}}

	m, err := extension.Load(context.Background(), rt, "x.ext")
	require.NoError(t, err)

	require.Len(t, m.Tools, 1)
	assert.Equal(t, "x-ok", m.Tools[0].ID)
	require.Len(t, m.Warnings, 1)
	assert.Contains(t, m.Warnings[0], "tools[1]")
	assert.Contains(t, m.Warnings[0], "tool_typo")
}

func TestLoad_DropsDuplicateIDs(t *testing.T) {
	rt := &fakeRuntime{module: &fakeModule{reg: &extension.Registration{
		ID:    "dup",
		Tools: []extension.Entry{entry(sig("tool_echo", "first")), entry(sig("echo", "second"))},
	}}}

	m, err := extension.Load(context.Background(), rt, "dup.ext")
	require.NoError(t, err)

	require.Len(t, m.Tools, 1)
	assert.Equal(t, "first", m.Tools[0].Description)
	require.Len(t, m.Warnings, 1)
	assert.Contains(t, m.Warnings[0], `"dup-echo"`)
}

func TestManifest_Callable(t *testing.T) {
	m, err := extension.Load(context.Background(), &fakeRuntime{module: mathModule("math-tools")}, "m.ext")
	require.NoError(t, err)

	d, role, ok := m.Callable("math-tools-math_formula")
	require.True(t, ok)
	assert.Equal(t, extension.RoleResource, role)
	assert.Equal(t, "resource_math_formula", d.FunctionName)

	_, role, ok = m.Callable("math-tools-math_professor")
	require.True(t, ok)
	assert.Equal(t, extension.RolePrompt, role)

	_, _, ok = m.Callable("nope")
	assert.False(t, ok)
}

func TestRuntimeSet_For(t *testing.T) {
	lua := &fakeRuntime{}
	bin := &fakeRuntime{}
	set := extension.RuntimeSet{Lua: lua, Binary: bin}

	rt, err := set.For("/ext/math.lua")
	require.NoError(t, err)
	assert.Same(t, lua, rt)

	rt, err = set.For("/ext/MATH.LUA")
	require.NoError(t, err)
	assert.Same(t, lua, rt)

	rt, err = set.For("/ext/mathtools")
	require.NoError(t, err)
	assert.Same(t, bin, rt)

	_, err = extension.RuntimeSet{Binary: bin}.For("x.lua")
	errutil.AssertErrorCode(t, err, extension.CodeLoadFailed)
}
