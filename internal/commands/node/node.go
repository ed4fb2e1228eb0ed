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

// Package node implements the zkctl commands that read and write znodes.
package node

import (
	"fmt"
	"io"
	"time"

	"github.com/go-zookeeper/zk"

	"github.com/tombee/zktrace/internal/commands/shared"
)

// nodeResponse is the JSON output of the node commands.
type nodeResponse struct {
	shared.JSONResponse
	Path     string           `json:"path"`
	Data     *string          `json:"data,omitempty"`
	Children []string         `json:"children,omitempty"`
	Stat     *shared.StatJSON `json:"stat,omitempty"`
}

func respond(command, path string) nodeResponse {
	return nodeResponse{
		JSONResponse: shared.JSONResponse{Version: "1.0", Command: command, Success: true},
		Path:         path,
	}
}

func withStat(r nodeResponse, stat *zk.Stat) nodeResponse {
	if stat != nil {
		s := shared.NewStatJSON(stat)
		r.Stat = &s
	}
	return r
}

func printStat(w io.Writer, stat *zk.Stat) {
	fmt.Fprintf(w, "cZxid = 0x%x\n", stat.Czxid)
	fmt.Fprintf(w, "ctime = %s\n", formatMillis(stat.Ctime))
	fmt.Fprintf(w, "mZxid = 0x%x\n", stat.Mzxid)
	fmt.Fprintf(w, "mtime = %s\n", formatMillis(stat.Mtime))
	fmt.Fprintf(w, "pZxid = 0x%x\n", stat.Pzxid)
	fmt.Fprintf(w, "cversion = %d\n", stat.Cversion)
	fmt.Fprintf(w, "dataVersion = %d\n", stat.Version)
	fmt.Fprintf(w, "aclVersion = %d\n", stat.Aversion)
	fmt.Fprintf(w, "ephemeralOwner = 0x%x\n", stat.EphemeralOwner)
	fmt.Fprintf(w, "dataLength = %d\n", stat.DataLength)
	fmt.Fprintf(w, "numChildren = %d\n", stat.NumChildren)
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
