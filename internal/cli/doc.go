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

/*
Package cli provides the root command for zkctl.

This package creates the Cobra command tree and handles global concerns like
version information, persistent flags, and exit codes. Individual commands
are implemented in the internal/commands subpackages.

# Command Tree

	zkctl
	├── get       Print the data of a znode
	├── set       Replace the data of a znode
	├── ls        List children
	├── create    Create a znode
	├── rm        Delete a znode
	├── stat      Print a znode's stat
	├── session   Clone the session through the tracing proxy
	├── version   Show version
	├── completion  Generate shell completion scripts
	└── help      Show help

# Global Flags

	-s, --server              ZooKeeper ensemble (env: ZOOKEEPER_SERVERS)
	    --session-timeout     Session timeout
	    --connection-timeout  Connection timeout
	    --namespace           Namespace applied to every path
	-D, --define key=value    Set a process property
	    --exporter            none, console, otlp, otlp-http
	    --endpoint            Collector endpoint
	    --metrics-addr        Serve Prometheus metrics while running
	    --traceparent         Continue an existing trace
	    --log-level           trace, debug, info, warn, error
	    --log-format          json, text
	    --json                JSON output

# Exit Codes

	0  success
	1  command failed
	2  invalid arguments or flags
	3  znode does not exist
	4  ensemble unreachable
*/
package cli
