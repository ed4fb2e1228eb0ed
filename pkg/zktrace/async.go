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
	"github.com/go-zookeeper/zk"

	"github.com/tombee/zktrace/pkg/zookeeper"
)

// submit queues fn on the session's callback dispatcher, or calls fail when
// the session is closed. The callback forms below run the synchronous
// operation there, so callbacks are invoked one at a time in submission
// order. cbCtx is passed through to the callback.
func (c *TracedConn) submit(fn func(), fail func(error)) {
	if err := c.session.callbacks.Submit(fn); err != nil {
		fail(zk.ErrClosing)
	}
}

// watch forwards the event on ch to w.
func watch(ch <-chan zk.Event, w zookeeper.Watcher) {
	if ch == nil || w == nil {
		return
	}
	go func() {
		if ev, ok := <-ch; ok {
			w.Process(ev)
		}
	}()
}

func (c *TracedConn) CreateAsync(path string, data []byte, mode zookeeper.CreateMode, acl []zk.ACL, cb zookeeper.StringCallback, cbCtx any) {
	c.submit(func() {
		name, err := c.Create(path, data, mode.Flags(), acl)
		cb(err, path, cbCtx, name)
	}, func(err error) { cb(err, path, cbCtx, "") })
}

func (c *TracedConn) DeleteAsync(path string, version int32, cb zookeeper.VoidCallback, cbCtx any) {
	c.submit(func() {
		cb(c.Delete(path, version), path, cbCtx)
	}, func(err error) { cb(err, path, cbCtx) })
}

// ExistsAsync reports a nil stat when the node does not exist.
func (c *TracedConn) ExistsAsync(path string, cb zookeeper.StatCallback, cbCtx any) {
	c.submit(func() {
		ok, stat, err := c.Exists(path)
		if !ok {
			stat = nil
		}
		cb(err, path, cbCtx, stat)
	}, func(err error) { cb(err, path, cbCtx, nil) })
}

func (c *TracedConn) ExistsWAsync(path string, w zookeeper.Watcher, cb zookeeper.StatCallback, cbCtx any) {
	c.submit(func() {
		ok, stat, ch, err := c.ExistsW(path)
		if !ok {
			stat = nil
		}
		watch(ch, w)
		cb(err, path, cbCtx, stat)
	}, func(err error) { cb(err, path, cbCtx, nil) })
}

func (c *TracedConn) GetAsync(path string, cb zookeeper.DataCallback, cbCtx any) {
	c.submit(func() {
		data, stat, err := c.Get(path)
		cb(err, path, cbCtx, data, stat)
	}, func(err error) { cb(err, path, cbCtx, nil, nil) })
}

func (c *TracedConn) GetWAsync(path string, w zookeeper.Watcher, cb zookeeper.DataCallback, cbCtx any) {
	c.submit(func() {
		data, stat, ch, err := c.GetW(path)
		watch(ch, w)
		cb(err, path, cbCtx, data, stat)
	}, func(err error) { cb(err, path, cbCtx, nil, nil) })
}

func (c *TracedConn) SetAsync(path string, data []byte, version int32, cb zookeeper.StatCallback, cbCtx any) {
	c.submit(func() {
		stat, err := c.Set(path, data, version)
		cb(err, path, cbCtx, stat)
	}, func(err error) { cb(err, path, cbCtx, nil) })
}

func (c *TracedConn) ChildrenAsync(path string, cb zookeeper.ChildrenCallback, cbCtx any) {
	c.submit(func() {
		children, stat, err := c.Children(path)
		cb(err, path, cbCtx, children, stat)
	}, func(err error) { cb(err, path, cbCtx, nil, nil) })
}

func (c *TracedConn) ChildrenWAsync(path string, w zookeeper.Watcher, cb zookeeper.ChildrenCallback, cbCtx any) {
	c.submit(func() {
		children, stat, ch, err := c.ChildrenW(path)
		watch(ch, w)
		cb(err, path, cbCtx, children, stat)
	}, func(err error) { cb(err, path, cbCtx, nil, nil) })
}

func (c *TracedConn) GetACLAsync(path string, cb zookeeper.ACLCallback, cbCtx any) {
	c.submit(func() {
		acl, stat, err := c.GetACL(path)
		cb(err, path, cbCtx, acl, stat)
	}, func(err error) { cb(err, path, cbCtx, nil, nil) })
}

func (c *TracedConn) SetACLAsync(path string, acl []zk.ACL, version int32, cb zookeeper.StatCallback, cbCtx any) {
	c.submit(func() {
		stat, err := c.SetACL(path, acl, version)
		cb(err, path, cbCtx, stat)
	}, func(err error) { cb(err, path, cbCtx, nil) })
}

func (c *TracedConn) SyncAsync(path string, cb zookeeper.StringCallback, cbCtx any) {
	c.submit(func() {
		p, err := c.Sync(path)
		cb(err, path, cbCtx, p)
	}, func(err error) { cb(err, path, cbCtx, "") })
}
