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

package node

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/zktrace/internal/commands/shared"
	"github.com/tombee/zktrace/pkg/zookeeper"
)

// NewCreateCommand creates the create command
func NewCreateCommand() *cobra.Command {
	var (
		mode      string
		parents   bool
		protected bool
	)

	cmd := &cobra.Command{
		Use:   "create <path> [data]",
		Short: "Create a znode",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			createMode, ok := zookeeper.ParseCreateMode(strings.ToLower(mode))
			if !ok {
				return shared.NewUsageError(fmt.Sprintf("unknown create mode %q", mode), nil)
			}
			var data []byte
			if len(args) == 2 {
				data = []byte(args[1])
			}
			return runCreate(cmd, args[0], data, createMode, parents, protected)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", zookeeper.Persistent.String(),
		"Create mode: persistent, persistent_sequential, ephemeral, ephemeral_sequential")
	cmd.Flags().BoolVarP(&parents, "parents", "p", false, "Create missing parent znodes")
	cmd.Flags().BoolVar(&protected, "protected", false, "Prefix the node name with a unique id")

	return cmd
}

func runCreate(cmd *cobra.Command, path string, data []byte, mode zookeeper.CreateMode, parents, protected bool) error {
	return shared.Run(cmd, "create", path, func(s *shared.Session) error {
		b := s.Framework.Create().WithContext(s.Context()).WithMode(mode)
		if parents {
			b = b.CreatingParentsIfNeeded()
		}
		if protected {
			b = b.WithProtection()
		}
		created, err := b.ForPath(path, data)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if shared.GetJSON() {
			return shared.EmitJSON(out, respond("create", created))
		}
		fmt.Fprintln(out, created)
		return nil
	})
}
