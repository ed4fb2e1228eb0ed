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

// NewSetCommand creates the set command
func NewSetCommand() *cobra.Command {
	var version int32

	cmd := &cobra.Command{
		Use:   "set <path> <data>",
		Short: "Replace the data of a znode",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSet(cmd, args[0], []byte(args[1]), version)
		},
	}
	cmd.Flags().Int32Var(&version, "version", -1, "Expected data version (-1 matches any)")

	return cmd
}

func runSet(cmd *cobra.Command, path string, data []byte, version int32) error {
	return shared.Run(cmd, "set", path, func(s *shared.Session) error {
		stat, err := s.Framework.SetData().
			WithContext(s.Context()).
			WithVersion(version).
			ForPath(path, data)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if shared.GetJSON() {
			return shared.EmitJSON(out, withStat(respond("set", path), stat))
		}
		fmt.Fprintf(out, "%s version %d\n", path, stat.Version)
		return nil
	})
}
