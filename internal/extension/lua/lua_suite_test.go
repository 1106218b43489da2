// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package lua_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

func TestLuaRuntime(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Lua Runtime Suite")
}
