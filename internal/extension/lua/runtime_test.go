// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package lua_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/exthost/exthost/internal/extension"
	extlua "github.com/exthost/exthost/internal/extension/lua"
	"github.com/exthost/exthost/internal/wire"
	"github.com/exthost/exthost/pkg/errutil"
)

func testdata(name string) string {
	p, err := filepath.Abs(filepath.Join("testdata", name))
	Expect(err).NotTo(HaveOccurred())
	return p
}

var _ = Describe("Runtime", func() {
	var (
		ctx context.Context
		rt  *extlua.Runtime
	)

	BeforeEach(func() {
		ctx = context.Background()
		rt = extlua.NewRuntime(extlua.Options{})
	})

	Describe("Load", func() {
		It("builds the manifest of a global-style extension", func() {
			m, err := extension.Load(ctx, rt, testdata("math_tools.lua"))
			Expect(err).NotTo(HaveOccurred())

			Expect(m.ID).To(Equal("math-tools"))
			Expect(m.Author).To(Equal("Clay"))
			Expect(m.Version).To(Equal("1.0.0"))
			Expect(m.Runtime).To(Equal("lua"))
			Expect(m.Warnings).To(BeEmpty())
			Expect(m.CallableIDs()).To(Equal([]string{
				"math-tools-add_numbers",
				"math-tools-subtract_numbers",
				"math-tools-divide",
				"math-tools-fail",
				"math-tools-math_formula",
				"math-tools-math_professor",
			}))

			add := m.Tools[0]
			Expect(add.FunctionName).To(Equal("tool_add_numbers"))
			Expect(add.Description).To(Equal("Adds two numbers together and returns the result"))
			Expect(add.Parameters).To(HaveLen(2))
			Expect(add.Parameters["number1"]).To(Equal(extension.ParameterDescriptor{
				DeclaredType: "integer",
				WireSchema:   wire.Integer,
			}))

			sub := m.Tools[1]
			Expect(sub.Parameters["number3"].DeclaredType).To(Equal("integer?"))
			Expect(sub.Parameters["number3"].WireSchema).To(Equal(wire.Integer))
			Expect(sub.Parameters["number3"].HasDefault).To(BeTrue())
			Expect(sub.Parameters["number3"].IsOptional).To(BeTrue())
			Expect(sub.Parameters["number3"].DefaultValue).To(Equal(int64(0)))

			divide := m.Tools[2]
			Expect(divide.Description).To(BeEmpty())
			Expect(divide.Parameters["a"].WireSchema).To(Equal(wire.Any))

			Expect(m.Resources[0].Template).To(Equal("math_formula://{path}"))
			Expect(m.Resources[0].Parameters["params"].WireSchema).To(Equal(wire.Object))
			Expect(m.Prompts[0].Parameters).To(BeEmpty())
		})

		It("uses a returned table as namespace and resolves relative requires", func() {
			m, err := extension.Load(ctx, rt, testdata("text_formatter.lua"))
			Expect(err).NotTo(HaveOccurred())

			Expect(m.ID).To(BeEmpty())
			Expect(m.CallableIDs()).To(Equal([]string{"shout", "repeat", "wrap"}))

			shout := m.Tools[0]
			Expect(shout.FunctionName).To(Equal("tool_shout"))
			Expect(shout.Parameters).To(HaveKey("text"))
			Expect(shout.Parameters).NotTo(HaveKey("self"))

			repeat := m.Tools[1]
			Expect(repeat.Parameters["times"].IsOptional).To(BeTrue())
			Expect(repeat.Parameters["times"].HasDefault).To(BeFalse())
			Expect(repeat.Parameters["times"].WireSchema).To(Equal(wire.Integer))

			wrap := m.Tools[2]
			Expect(wrap.FunctionName).To(Equal("tool_wrap"))
			Expect(wrap.Description).To(Equal("Wraps text in a fence"))
			Expect(wrap.Parameters["fence"].DefaultValue).To(Equal("```"))

			Expect(m.Warnings).To(HaveLen(2))
			Expect(m.Warnings[0]).To(ContainSubstring(`"tool_typo"`))
			Expect(m.Warnings[1]).To(ContainSubstring("without a name"))
		})

		It("returns an empty manifest without an entry point", func() {
			m, err := extension.Load(ctx, rt, testdata("no_main.lua"))
			Expect(err).NotTo(HaveOccurred())
			Expect(m.ID).To(BeEmpty())
			Expect(m.Tools).To(BeEmpty())
			Expect(m.Tools).NotTo(BeNil())
		})

		It("reports an entry point that raises", func() {
			_, err := extension.Load(ctx, rt, testdata("raises.lua"))
			Expect(err).To(HaveOccurred())
			Expect(errutil.Code(err)).To(Equal(extension.CodeLoadFailed))
			Expect(err.Error()).To(ContainSubstring("registration failed"))
			Expect(err.Error()).NotTo(ContainSubstring("stack traceback"))
		})

		It("reports syntax errors", func() {
			_, err := extension.Load(ctx, rt, testdata("bad_syntax.lua"))
			Expect(err).To(HaveOccurred())
			Expect(errutil.Code(err)).To(Equal(extension.CodeLoadFailed))
		})

		It("reports missing files", func() {
			_, err := extension.Load(ctx, rt, testdata("missing.lua"))
			Expect(err).To(HaveOccurred())
		})

		It("keeps two loads of the same file independent", func() {
			path := filepath.Join(GinkgoT().TempDir(), "counter.lua")
			Expect(os.WriteFile(path, []byte(`
count = (count or 0) + 1
function main() return { id = "c" .. count } end
`), 0o600)).To(Succeed())

			first, err := extension.Load(ctx, rt, path)
			Expect(err).NotTo(HaveOccurred())
			second, err := extension.Load(ctx, rt, path)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.ID).To(Equal("c1"))
			Expect(second.ID).To(Equal("c1"))
		})
	})

	Describe("Invoke", func() {
		invoke := func(file string, kind extension.Kind, payload string) (any, error) {
			return extension.Invoke(ctx, rt, testdata(file), kind, []byte(payload))
		}

		It("passes named arguments", func() {
			got, err := invoke("math_tools.lua", "tool", `{"functionName": "tool_add_numbers", "number1": 2, "number2": 3}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(int64(5)))
		})

		It("fills defaults", func() {
			got, err := invoke("math_tools.lua", "tool", `{"functionName": "tool_subtract_numbers", "number1": 10, "number2": 3}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(int64(7)))
		})

		It("passes resources positionally", func() {
			got, err := invoke("math_tools.lua", extension.KindResource,
				`{"functionName": "resource_math_formula", "uri": "math://pythagorean", "params": {}}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(map[string]any{
				"contents": []any{
					map[string]any{"uri": "math://pythagorean", "text": "a² + b² = c²"},
				},
			}))
		})

		It("returns tables as objects", func() {
			got, err := invoke("math_tools.lua", "prompt", `{"functionName": "prompt_math_professor"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveKey("messages"))
		})

		It("reports a missing function", func() {
			_, err := invoke("math_tools.lua", "tool", `{"functionName": "bogus_fn"}`)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(Equal("Function bogus_fn not found"))
		})

		It("does not resolve built-in globals as extension functions", func() {
			for _, name := range []string{"collectgarbage", "print", "pcall", "require"} {
				_, err := invoke("math_tools.lua", "tool", `{"functionName": "`+name+`"}`)
				Expect(err).To(HaveOccurred(), name)
				Expect(err.Error()).To(Equal("Function " + name + " not found"))
			}
		})

		It("treats nil, message as an error", func() {
			_, err := invoke("math_tools.lua", "tool", `{"functionName": "tool_divide", "a": 1, "b": 0}`)
			Expect(err).To(HaveOccurred())
			Expect(errutil.Code(err)).To(Equal(extension.CodeExecutionFailed))
			Expect(err.Error()).To(Equal("division by zero"))
		})

		It("reports errors raised by the function", func() {
			_, err := invoke("math_tools.lua", "tool", `{"functionName": "tool_fail"}`)
			Expect(err).To(HaveOccurred())
			Expect(errutil.Code(err)).To(Equal(extension.CodeExecutionFailed))
			Expect(err.Error()).To(ContainSubstring("kaboom"))
		})

		It("rejects mistyped arguments", func() {
			_, err := invoke("math_tools.lua", "tool", `{"functionName": "tool_add_numbers", "number1": "2", "number2": 3}`)
			Expect(err).To(HaveOccurred())
			Expect(errutil.Code(err)).To(Equal(extension.CodeInvalidArguments))
		})

		It("binds self for methods", func() {
			got, err := invoke("text_formatter.lua", "tool", `{"functionName": "tool_shout", "text": "hi"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal("HI!."))
		})

		It("calls local functions registered under a namespace name", func() {
			got, err := invoke("text_formatter.lua", "tool", `{"functionName": "tool_wrap", "text": "x"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal("```x```"))
		})

		It("invokes functions of extensions without an entry point", func() {
			got, err := invoke("no_main.lua", "tool", `{"functionName": "tool_increment", "n": 41}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(int64(42)))
		})
	})

	Describe("host API", func() {
		invoke := func(payload string) (any, error) {
			return extension.Invoke(ctx, rt, testdata("host_api.lua"), "tool", []byte(payload))
		}

		It("round-trips JSON", func() {
			got, err := invoke(`{"functionName": "tool_roundtrip", "value": {"a": [1, 2.5, "x"], "b": true}}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(map[string]any{"a": []any{int64(1), 2.5, "x"}, "b": true}))
		})

		It("generates request ids", func() {
			got, err := invoke(`{"functionName": "tool_request_id"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(26))
		})

		It("logs through the host", func() {
			got, err := invoke(`{"functionName": "tool_log", "message": "hello"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeTrue())
		})

		It("keeps os closed unless unsafe libraries are enabled", func() {
			got, err := invoke(`{"functionName": "tool_has_os"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeFalse())

			unsafe := extlua.NewRuntime(extlua.Options{UnsafeLibraries: true})
			got, err = extension.Invoke(ctx, unsafe, testdata("host_api.lua"), "tool", []byte(`{"functionName": "tool_has_os"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeTrue())
		})
	})
})
