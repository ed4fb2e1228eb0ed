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

	"github.com/go-zookeeper/zk"
	"github.com/spf13/cobra"

	"github.com/tombee/zktrace/internal/commands/shared"
)

// NewStatCommand creates the stat command
func NewStatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Print the stat of a znode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStat(cmd, args[0])
		},
	}
}

func runStat(cmd *cobra.Command, path string) error {
	return shared.Run(cmd, "stat", path, func(s *shared.Session) error {
		stat, err := s.Framework.CheckExists().WithContext(s.Context()).ForPath(path)
		if err != nil {
			return err
		}
		if stat == nil {
			return fmt.Errorf("%s: %w", path, zk.ErrNoNode)
		}

		out := cmd.OutOrStdout()
		if shared.GetJSON() {
			return shared.EmitJSON(out, withStat(respond("stat", path), stat))
		}
		printStat(out, stat)
		return nil
	})
}
