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

	"github.com/spf13/cobra"

	"github.com/tombee/zktrace/internal/commands/shared"
)

// NewRemoveCommand creates the rm command
func NewRemoveCommand() *cobra.Command {
	var (
		recursive bool
		version   int32
	)

	cmd := &cobra.Command{
		Use:     "rm <path>",
		Aliases: []string{"delete"},
		Short:   "Delete a znode",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd, args[0], recursive, version)
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Delete children first")
	cmd.Flags().Int32Var(&version, "version", -1, "Expected data version (-1 matches any)")

	return cmd
}

func runRemove(cmd *cobra.Command, path string, recursive bool, version int32) error {
	return shared.Run(cmd, "rm", path, func(s *shared.Session) error {
		b := s.Framework.Delete().WithContext(s.Context()).WithVersion(version)
		if recursive {
			b = b.DeletingChildrenIfNeeded()
		}
		if err := b.ForPath(path); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if shared.GetJSON() {
			return shared.EmitJSON(out, respond("rm", path))
		}
		fmt.Fprintf(out, "deleted %s\n", path)
		return nil
	})
}
