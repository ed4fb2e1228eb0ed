// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package completion

import (
	"github.com/spf13/cobra"

	"github.com/tombee/zktrace/pkg/zookeeper"
)

// SafeCompletionWrapper runs fn, turning a panic or nil result into an
// empty completion list.
func SafeCompletionWrapper(fn func() ([]string, cobra.ShellCompDirective)) (results []string, directive cobra.ShellCompDirective) {
	results = []string{}
	directive = cobra.ShellCompDirectiveNoFileComp

	defer func() {
		if r := recover(); r != nil {
			results = []string{}
			directive = cobra.ShellCompDirectiveNoFileComp
		}
	}()

	results, directive = fn()
	if results == nil {
		return []string{}, cobra.ShellCompDirectiveNoFileComp
	}
	return results, directive
}

// CompleteCreateModes provides completion for the create --mode flag.
func CompleteCreateModes(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		return []string{
			zookeeper.Persistent.String() + "\tSurvives the session",
			zookeeper.PersistentSequential.String() + "\tPersistent with a sequence suffix",
			zookeeper.Ephemeral.String() + "\tDeleted when the session ends",
			zookeeper.EphemeralSequential.String() + "\tEphemeral with a sequence suffix",
		}, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteExporters provides completion for --exporter.
func CompleteExporters(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		return []string{
			"none\tDo not export spans",
			"console\tPrint spans to stdout",
			"otlp\tOTLP over gRPC",
			"otlp-http\tOTLP over HTTP",
		}, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteLogLevels provides completion for --log-level.
func CompleteLogLevels(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		return []string{"trace", "debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteLogFormats provides completion for --log-format.
func CompleteLogFormats(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		return []string{"json", "text"}, cobra.ShellCompDirectiveNoFileComp
	})
}

// Register attaches the flag completions to root and its subcommands.
// Flags that are not defined are skipped.
func Register(root *cobra.Command) {
	register := func(cmd *cobra.Command, flag string, fn func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective)) {
		if cmd.Flags().Lookup(flag) == nil && cmd.PersistentFlags().Lookup(flag) == nil {
			return
		}
		_ = cmd.RegisterFlagCompletionFunc(flag, fn)
	}

	register(root, "exporter", CompleteExporters)
	register(root, "log-level", CompleteLogLevels)
	register(root, "log-format", CompleteLogFormats)
	for _, sub := range root.Commands() {
		if sub.Name() == "create" {
			register(sub, "mode", CompleteCreateModes)
		}
	}
}
