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
	"sort"

	"github.com/spf13/cobra"

	"github.com/tombee/zktrace/internal/commands/shared"
	"github.com/tombee/zktrace/pkg/framework"
)

// NewListCommand creates the ls command
func NewListCommand() *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:     "ls <path>",
		Aliases: []string{"list"},
		Short:   "List the children of a znode",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, args[0], recursive)
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "R", false, "List the whole subtree as full paths")

	return cmd
}

func runList(cmd *cobra.Command, path string, recursive bool) error {
	return shared.Run(cmd, "ls", path, func(s *shared.Session) error {
		var (
			children []string
			err      error
		)
		if recursive {
			children, err = walk(s, path)
		} else {
			children, err = s.Framework.GetChildren().WithContext(s.Context()).ForPath(path)
			sort.Strings(children)
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if shared.GetJSON() {
			resp := respond("ls", path)
			resp.Children = children
			return shared.EmitJSON(out, resp)
		}
		for _, c := range children {
			fmt.Fprintln(out, c)
		}
		return nil
	})
}

// walk returns every descendant of root in depth-first order.
func walk(s *shared.Session, root string) ([]string, error) {
	children, err := s.Framework.GetChildren().WithContext(s.Context()).ForPath(root)
	if err != nil {
		return nil, err
	}
	sort.Strings(children)

	var out []string
	for _, c := range children {
		full := framework.MakePath(root, c)
		out = append(out, full)
		sub, err := walk(s, full)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}
