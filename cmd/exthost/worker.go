// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/exthost/exthost/internal/extension"
	"github.com/exthost/exthost/internal/worker"
)

func newLoadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "load <source> <output>",
		Short: "Load an extension and write its manifest",
		Long: `Load the extension file at <source>, run its entry point and write the
manifest JSON to <output>. On failure {"error": "<message>"} is written
instead and the command exits non-zero.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return worker.RunLoad(cmd.Context(), a.runtimes(), args[0], args[1])
		},
	}
}

func newInvokeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "invoke <source> <kind> <params> <result>",
		Short: "Invoke one extension function and write its result",
		Long: `Read the request object from <params>, call the function named by its
functionName field and write the JSON result to <result>. Errors are written
as {"error": "<message>"}. The command exits non-zero only when the result
file cannot be written. A <kind> of "resource" passes uri and params
positionally.`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return worker.RunInvoke(cmd.Context(), a.runtimes(), args[0], extension.Kind(args[1]), args[2], args[3])
		},
	}
}
