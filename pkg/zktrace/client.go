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

package zktrace

import (
	"context"

	"github.com/tombee/zktrace/pkg/framework"
	"github.com/tombee/zktrace/pkg/zookeeper"
)

// TracedClient is a session client whose connections are traced. It is
// produced by CloneClient and FrameworkProxy.ZookeeperClient.
type TracedClient struct {
	*framework.ZookeeperClient

	ctx context.Context
	in  *instruments
}

var _ framework.SessionClient = (*TracedClient)(nil)

// ZooKeeper returns the current session bound to the client's context.
func (c *TracedClient) ZooKeeper() (zookeeper.Conn, error) {
	conn, err := c.ZookeeperClient.ZooKeeper()
	if err != nil {
		return nil, err
	}
	return zookeeper.WithContext(conn, c.ctx), nil
}

// WithContext returns a copy of c whose sessions record spans under ctx.
func (c *TracedClient) WithContext(ctx context.Context) *TracedClient {
	if ctx == nil {
		ctx = context.Background()
	}
	cp := *c
	cp.ctx = ctx
	return &cp
}

// SessionID returns the id of the current session, or 0 when there is none.
func (c *TracedClient) SessionID() int64 {
	conn, err := c.ZookeeperClient.ZooKeeper()
	if err != nil || conn == nil {
		return 0
	}
	return conn.SessionID()
}
