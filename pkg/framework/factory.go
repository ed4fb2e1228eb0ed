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

package framework

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"

	zklog "github.com/tombee/zktrace/internal/log"
	"github.com/tombee/zktrace/pkg/zookeeper"
)

// ZookeeperFactory opens sessions.
type ZookeeperFactory interface {
	NewZooKeeper(connectString string, sessionTimeout time.Duration, watcher zookeeper.Watcher, canBeReadOnly bool) (zookeeper.Conn, error)
}

// SessionResumer is implemented by factories that can reattach to an
// existing session given its id and password.
type SessionResumer interface {
	ResumeZooKeeper(connectString string, sessionTimeout time.Duration, watcher zookeeper.Watcher, canBeReadOnly bool, sessionID int64, passwd []byte) (zookeeper.Conn, error)
}

// DefaultZookeeperFactory opens sessions with zk.Connect.
//
// go-zookeeper has no read-only mode, so canBeReadOnly is accepted and ignored.
type DefaultZookeeperFactory struct {
	// Dialer overrides the TCP dialer (optional).
	Dialer zk.Dialer

	// Logger receives the library's internal log lines at debug level (optional).
	Logger *slog.Logger
}

// NewZooKeeper implements ZookeeperFactory.
func (f DefaultZookeeperFactory) NewZooKeeper(connectString string, sessionTimeout time.Duration, watcher zookeeper.Watcher, canBeReadOnly bool) (zookeeper.Conn, error) {
	servers := SplitConnectString(connectString)
	if len(servers) == 0 {
		return nil, fmt.Errorf("no servers in connect string %q", connectString)
	}

	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := connOptions(zk.WithLogger(zklog.Printer{Logger: zklog.WithComponent(logger, "go-zookeeper")}))
	if watcher != nil {
		opts = append(opts, zk.WithEventCallback(watcher.Process))
	}
	if f.Dialer != nil {
		opts = append(opts, zk.WithDialer(f.Dialer))
	}

	conn, _, err := zk.Connect(servers, sessionTimeout, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", connectString, err)
	}
	return conn, nil
}

// connOptions collects zk connect options; the option type is unexported
// upstream so the slice type has to be inferred.
func connOptions[O any](opts ...O) []O {
	return opts
}

// SplitConnectString splits "host1:2181,host2:2181" into its servers.
func SplitConnectString(connectString string) []string {
	var servers []string
	for _, s := range strings.Split(connectString, ",") {
		if s = strings.TrimSpace(s); s != "" {
			servers = append(servers, s)
		}
	}
	return servers
}
