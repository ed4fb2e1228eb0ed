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

package cli

import (
	"github.com/spf13/cobra"

	"github.com/tombee/zktrace/internal/commands/completion"
	"github.com/tombee/zktrace/internal/commands/node"
	"github.com/tombee/zktrace/internal/commands/session"
	"github.com/tombee/zktrace/internal/commands/shared"
	versioncmd "github.com/tombee/zktrace/internal/commands/version"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// NewRootCommand creates the root Cobra command for zkctl
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zkctl",
		Short: "zkctl - traced ZooKeeper client",
		Long: `zkctl reads and writes ZooKeeper znodes through the zktrace client.

Every command runs in its own root span. Each ZooKeeper call is recorded as
a child span and exported with --exporter. Pass --traceparent to continue
a trace started elsewhere.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return shared.ApplyProperties(shared.Flags().Properties)
		},
	}

	shared.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		node.NewGetCommand(),
		node.NewSetCommand(),
		node.NewListCommand(),
		node.NewCreateCommand(),
		node.NewRemoveCommand(),
		node.NewStatCommand(),
		session.NewCommand(),
		versioncmd.NewVersionCommand(),
		completion.NewCommand(),
	)
	cmd.SetHelpCommand(NewHelpCommand(cmd))
	completion.Register(cmd)

	return cmd
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
