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

// Package session implements the zkctl session command, which clones the
// client's session through the tracing proxy.
package session

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tombee/zktrace/internal/commands/shared"
	"github.com/tombee/zktrace/pkg/zktrace"
)

// Info describes one traced clone.
type Info struct {
	Index         int    `json:"index"`
	DonorID       int64  `json:"donor_session_id"`
	SessionID     int64  `json:"session_id"`
	Resumed       bool   `json:"resumed"`
	ConnectString string `json:"connect_string"`
}

type response struct {
	shared.JSONResponse
	Sessions []Info `json:"sessions"`
}

// NewCommand creates the session command
func NewCommand() *cobra.Command {
	var parallel int

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Print the session id of a traced clone of the client's session",
		Long: `Connects, then replaces the client's session with a traced clone and
prints the clone's session id. The clone resumes the original session when
it is still live.

With --parallel N, N clients connect and clone concurrently.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if parallel < 1 {
				return shared.NewUsageError("--parallel must be at least 1", nil)
			}
			return runSession(cmd, parallel)
		},
	}
	cmd.Flags().IntVar(&parallel, "parallel", 1, "Number of clients to connect and clone concurrently")

	return cmd
}

func runSession(cmd *cobra.Command, parallel int) error {
	return shared.Run(cmd, "session", "", func(s *shared.Session) error {
		infos := make([]Info, parallel)

		g, _ := errgroup.WithContext(s.Context())
		g.Go(func() error {
			info, err := clone(s.Framework)
			infos[0] = info
			return err
		})
		for i := 1; i < parallel; i++ {
			g.Go(func() error {
				fw, err := s.NewFramework()
				if err != nil {
					return err
				}
				defer fw.Close()
				info, err := clone(fw)
				info.Index = i
				infos[i] = info
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if shared.GetJSON() {
			return shared.EmitJSON(out, response{
				JSONResponse: shared.JSONResponse{Version: "1.0", Command: "session", Success: true},
				Sessions:     infos,
			})
		}
		for _, info := range infos {
			fmt.Fprintf(out, "session 0x%x resumed=%t\n", info.SessionID, info.Resumed)
		}
		return nil
	})
}

// clone replaces fw's session with a traced clone, records its identity
// and closes it.
func clone(fw *zktrace.FrameworkProxy) (Info, error) {
	var info Info
	if conn, err := fw.Delegate().ZookeeperClient().ZooKeeper(); err == nil {
		info.DonorID = conn.SessionID()
	}

	client, err := fw.TracedZookeeperClient()
	if err != nil {
		return info, fmt.Errorf("clone session: %w", err)
	}
	defer client.Close()

	info.SessionID = client.SessionID()
	info.Resumed = info.DonorID != 0 && info.SessionID == info.DonorID
	info.ConnectString = client.CurrentConnectionString()
	return info, nil
}
