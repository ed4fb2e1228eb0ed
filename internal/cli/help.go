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
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tombee/zktrace/internal/commands/shared"
	"github.com/tombee/zktrace/pkg/zktrace"
)

const docsURL = "https://github.com/tombee/zktrace#zkctl"

// CommandInfo describes one zkctl command in help --json output.
type CommandInfo struct {
	Name        string     `json:"name"`
	Short       string     `json:"short"`
	Usage       string     `json:"usage"`
	Aliases     []string   `json:"aliases,omitempty"`
	Flags       []FlagInfo `json:"flags,omitempty"`
	Subcommands []string   `json:"subcommands,omitempty"`
}

type FlagInfo struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
}

// PropertyInfo is a process property settable with -D and its effective
// value in milliseconds.
type PropertyInfo struct {
	Name  string `json:"name"`
	Value int64  `json:"value_ms"`
}

type ExitCodeInfo struct {
	Code        int    `json:"code"`
	Description string `json:"description"`
}

// HelpResponse is the JSON form of zkctl help.
type HelpResponse struct {
	shared.JSONResponse
	Commands    []CommandInfo  `json:"commands,omitempty"`
	Command     *CommandInfo   `json:"command,omitempty"`
	GlobalFlags []FlagInfo     `json:"global_flags"`
	Properties  []PropertyInfo `json:"properties"`
	ExitCodes   []ExitCodeInfo `json:"exit_codes"`
	DocsURL     string         `json:"docs_url"`
}

var exitCodes = []ExitCodeInfo{
	{shared.ExitSuccess, "success"},
	{shared.ExitFailed, "command failed"},
	{shared.ExitUsage, "invalid arguments or flags"},
	{shared.ExitNoNode, "znode does not exist"},
	{shared.ExitConnection, "ensemble unreachable"},
}

// NewHelpCommand creates the help command. With the global --json flag it
// prints a HelpResponse instead of the usual text.
func NewHelpCommand(rootCmd *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "help [command]",
		Short: "Help about any command",
		Long: `Help prints usage for zkctl or one of its commands.

With --json the output also lists the -D process properties with their
effective values and the exit codes zkctl uses.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := rootCmd
			if len(args) > 0 {
				found, rest, err := rootCmd.Find(args)
				if err != nil || len(rest) > 0 {
					return shared.NewUsageError(fmt.Sprintf("unknown command %q", args[0]), err)
				}
				target = found
			}
			if !shared.GetJSON() {
				return target.Help()
			}

			resp := HelpResponse{
				JSONResponse: shared.JSONResponse{Version: "1.0", Command: "help", Success: true},
				GlobalFlags:  flagInfo(rootCmd.PersistentFlags()),
				Properties:   properties(),
				ExitCodes:    exitCodes,
				DocsURL:      docsURL,
			}
			if target == rootCmd {
				for _, c := range rootCmd.Commands() {
					if !c.Hidden {
						resp.Commands = append(resp.Commands, commandInfo(c))
					}
				}
			} else {
				info := commandInfo(target)
				resp.Command = &info
				resp.JSONResponse.Command = "help " + target.Name()
			}
			return shared.EmitJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func commandInfo(cmd *cobra.Command) CommandInfo {
	info := CommandInfo{
		Name:    cmd.Name(),
		Short:   cmd.Short,
		Usage:   cmd.UseLine(),
		Aliases: cmd.Aliases,
		Flags:   flagInfo(cmd.LocalNonPersistentFlags()),
	}
	for _, sub := range cmd.Commands() {
		if !sub.Hidden {
			info.Subcommands = append(info.Subcommands, sub.Name())
		}
	}
	return info
}

func flagInfo(fs *pflag.FlagSet) []FlagInfo {
	var flags []FlagInfo
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		flags = append(flags, FlagInfo{
			Name:      f.Name,
			Shorthand: f.Shorthand,
			Usage:     f.Usage,
			Default:   f.DefValue,
		})
	})
	return flags
}

func properties() []PropertyInfo {
	return []PropertyInfo{
		{zktrace.PropertyDefaultSessionTimeout, zktrace.DefaultSessionTimeout().Milliseconds()},
		{zktrace.PropertyDefaultConnectionTimeout, zktrace.DefaultConnectionTimeout().Milliseconds()},
	}
}
