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

// NewGetCommand creates the get command
func NewGetCommand() *cobra.Command {
	var showStat bool

	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Print the data of a znode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd, args[0], showStat)
		},
	}
	cmd.Flags().BoolVar(&showStat, "stat", false, "Also print the znode stat")

	return cmd
}

func runGet(cmd *cobra.Command, path string, showStat bool) error {
	return shared.Run(cmd, "get", path, func(s *shared.Session) error {
		var stat zk.Stat
		data, err := s.Framework.GetData().
			WithContext(s.Context()).
			StoringStatIn(&stat).
			ForPath(path)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if shared.GetJSON() {
			resp := respond("get", path)
			text := string(data)
			resp.Data = &text
			if showStat {
				resp = withStat(resp, &stat)
			}
			return shared.EmitJSON(out, resp)
		}

		fmt.Fprintln(out, string(data))
		if showStat {
			printStat(out, &stat)
		}
		return nil
	})
}
