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
	"sync"

	"github.com/go-zookeeper/zk"

	"github.com/tombee/zktrace/pkg/zookeeper"
)

// TracedConn is a session whose every operation opens a span under the
// context it is bound to. Copies made with WithContext share the session.
type TracedConn struct {
	conn    zookeeper.Conn
	ctx     context.Context
	in      *instruments
	session *tracedSession
}

// tracedSession is the state shared by every copy of a TracedConn.
type tracedSession struct {
	callbacks *zookeeper.Dispatcher
	closeOnce sync.Once
}

var (
	_ zookeeper.Conn          = (*TracedConn)(nil)
	_ zookeeper.ContextBinder = (*TracedConn)(nil)
)

// NewTracedConn wraps conn. The result is bound to context.Background().
func NewTracedConn(conn zookeeper.Conn, opts ...Option) *TracedConn {
	return newTracedConn(conn, newInstruments(opts))
}

func newTracedConn(conn zookeeper.Conn, in *instruments) *TracedConn {
	if in.metrics != nil {
		in.metrics.RecordSessionOpen(context.Background())
	}
	return &TracedConn{
		conn:    conn,
		ctx:     context.Background(),
		in:      in,
		session: &tracedSession{callbacks: zookeeper.NewDispatcher()},
	}
}

// WithContext returns a copy of c bound to ctx. Operations on the copy are
// recorded as children of the span in ctx.
func (c *TracedConn) WithContext(ctx context.Context) *TracedConn {
	if ctx == nil {
		ctx = context.Background()
	}
	cp := *c
	cp.ctx = ctx
	return &cp
}

// BindContext implements zookeeper.ContextBinder.
func (c *TracedConn) BindContext(ctx context.Context) zookeeper.Conn {
	return c.WithContext(ctx)
}

// Context returns the context c is bound to.
func (c *TracedConn) Context() context.Context {
	return c.ctx
}

// Unwrap returns the underlying session.
func (c *TracedConn) Unwrap() zookeeper.Conn {
	return c.conn
}

func (c *TracedConn) start(op, path string) func(error) {
	return c.in.startOperation(c.ctx, op, path, c.conn.SessionID())
}

func (c *TracedConn) Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error) {
	end := c.start("create", path)
	name, err := c.conn.Create(path, data, flags, acl)
	end(err)
	return name, err
}

func (c *TracedConn) CreateProtectedEphemeralSequential(path string, data []byte, acl []zk.ACL) (string, error) {
	end := c.start("create", path)
	name, err := c.conn.CreateProtectedEphemeralSequential(path, data, acl)
	end(err)
	return name, err
}

func (c *TracedConn) Delete(path string, version int32) error {
	end := c.start("delete", path)
	err := c.conn.Delete(path, version)
	end(err)
	return err
}

func (c *TracedConn) Exists(path string) (bool, *zk.Stat, error) {
	end := c.start("exists", path)
	ok, stat, err := c.conn.Exists(path)
	end(err)
	return ok, stat, err
}

func (c *TracedConn) ExistsW(path string) (bool, *zk.Stat, <-chan zk.Event, error) {
	end := c.start("exists", path)
	ok, stat, ch, err := c.conn.ExistsW(path)
	end(err)
	return ok, stat, ch, err
}

func (c *TracedConn) Get(path string) ([]byte, *zk.Stat, error) {
	end := c.start("get_data", path)
	data, stat, err := c.conn.Get(path)
	end(err)
	return data, stat, err
}

func (c *TracedConn) GetW(path string) ([]byte, *zk.Stat, <-chan zk.Event, error) {
	end := c.start("get_data", path)
	data, stat, ch, err := c.conn.GetW(path)
	end(err)
	return data, stat, ch, err
}

func (c *TracedConn) Set(path string, data []byte, version int32) (*zk.Stat, error) {
	end := c.start("set_data", path)
	stat, err := c.conn.Set(path, data, version)
	end(err)
	return stat, err
}

func (c *TracedConn) Children(path string) ([]string, *zk.Stat, error) {
	end := c.start("get_children", path)
	children, stat, err := c.conn.Children(path)
	end(err)
	return children, stat, err
}

func (c *TracedConn) ChildrenW(path string) ([]string, *zk.Stat, <-chan zk.Event, error) {
	end := c.start("get_children", path)
	children, stat, ch, err := c.conn.ChildrenW(path)
	end(err)
	return children, stat, ch, err
}

func (c *TracedConn) GetACL(path string) ([]zk.ACL, *zk.Stat, error) {
	end := c.start("get_acl", path)
	acl, stat, err := c.conn.GetACL(path)
	end(err)
	return acl, stat, err
}

func (c *TracedConn) SetACL(path string, acl []zk.ACL, version int32) (*zk.Stat, error) {
	end := c.start("set_acl", path)
	stat, err := c.conn.SetACL(path, acl, version)
	end(err)
	return stat, err
}

func (c *TracedConn) Sync(path string) (string, error) {
	end := c.start("sync", path)
	p, err := c.conn.Sync(path)
	end(err)
	return p, err
}

func (c *TracedConn) Multi(ops ...interface{}) ([]zk.MultiResponse, error) {
	end := c.start("multi", "")
	res, err := c.conn.Multi(ops...)
	end(err)
	return res, err
}

func (c *TracedConn) SessionID() int64 {
	return c.conn.SessionID()
}

func (c *TracedConn) State() zk.State {
	return c.conn.State()
}

func (c *TracedConn) Server() string {
	return c.conn.Server()
}

// Close closes the session. Queued callbacks still run; callbacks
// submitted afterwards receive zk.ErrClosing.
func (c *TracedConn) Close() {
	end := c.start("close", "")
	c.session.closeOnce.Do(func() {
		if c.in.metrics != nil {
			c.in.metrics.RecordSessionClose(c.ctx)
		}
		c.session.callbacks.Close()
		c.conn.Close()
	})
	end(nil)
}
