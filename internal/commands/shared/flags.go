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

package shared

import (
	"time"

	"github.com/spf13/pflag"
)

// GlobalFlags holds the persistent flags shared by every zkctl command.
type GlobalFlags struct {
	Servers           string
	SessionTimeout    time.Duration
	ConnectionTimeout time.Duration
	Namespace         string
	Properties        []string

	Exporter    string
	Endpoint    string
	Insecure    bool
	MetricsAddr string
	TraceParent string

	LogLevel  string
	LogFormat string

	JSON bool
}

var (
	globals GlobalFlags

	// Build-time version information
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// DefaultServers is used when neither --server nor ZOOKEEPER_SERVERS is set.
const DefaultServers = "127.0.0.1:2181"

// RegisterFlags binds the global flags to fs. Called by the root command.
func RegisterFlags(fs *pflag.FlagSet) *GlobalFlags {
	fs.StringVarP(&globals.Servers, "server", "s", "", "Comma separated ZooKeeper ensemble (env: ZOOKEEPER_SERVERS)")
	fs.DurationVar(&globals.SessionTimeout, "session-timeout", 0, "Session timeout (default: curator-default-session-timeout property)")
	fs.DurationVar(&globals.ConnectionTimeout, "connection-timeout", 0, "Connection timeout (default: curator-default-connection-timeout property)")
	fs.StringVar(&globals.Namespace, "namespace", "", "Namespace applied to every path")
	fs.StringArrayVarP(&globals.Properties, "define", "D", nil, "Set a process property (key=value, repeatable)")

	fs.StringVar(&globals.Exporter, "exporter", "none", "Span exporter: none, console, otlp, otlp-http")
	fs.StringVar(&globals.Endpoint, "endpoint", "", "Collector endpoint (host:port) for otlp exporters")
	fs.BoolVar(&globals.Insecure, "insecure", false, "Disable TLS for the collector connection")
	fs.StringVar(&globals.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the command runs")
	fs.StringVar(&globals.TraceParent, "traceparent", "", "W3C traceparent to continue an existing trace")

	fs.StringVar(&globals.LogLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	fs.StringVar(&globals.LogFormat, "log-format", "", "Log format: json, text (default: text on a terminal)")

	fs.BoolVar(&globals.JSON, "json", false, "Output in JSON format")
	return &globals
}

// Flags returns the current global flag values.
func Flags() *GlobalFlags {
	return &globals
}

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	version = v
	commit = c
	buildDate = b
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// GetJSON returns the JSON output flag value
func GetJSON() bool {
	return globals.JSON
}
