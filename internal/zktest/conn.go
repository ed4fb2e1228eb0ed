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

package zktest

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-zookeeper/zk"

	"github.com/tombee/zktrace/pkg/zookeeper"
)

// Conn is one session against a Server.
type Conn struct {
	server    *Server
	sessionID int64
	watcher   zookeeper.Watcher
	events    *zookeeper.Dispatcher
	state     atomic.Int32
	closed    atomic.Bool

	mu      sync.Mutex
	watches map[chan zk.Event]struct{}
}

var _ zookeeper.Conn = (*Conn)(nil)

func (c *Conn) emit(ev zk.Event) {
	if c.watcher == nil {
		return
	}
	w := c.watcher
	_ = c.events.Submit(func() { w.Process(ev) })
}

func (c *Conn) trackWatch(ch chan zk.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watches == nil {
		c.watches = make(map[chan zk.Event]struct{})
	}
	c.watches[ch] = struct{}{}
}

func (c *Conn) removeWatch(ch chan zk.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.watches, ch)
}

// Expire ends the session as if the ensemble had expired it.
func (c *Conn) Expire() {
	c.state.Store(int32(zk.StateExpired))
	c.emit(zk.Event{Type: zk.EventSession, State: zk.StateExpired})
	c.shutdown()
}

// Disconnect reports a transient loss of connection followed by recovery.
func (c *Conn) Disconnect() {
	c.emit(zk.Event{Type: zk.EventSession, State: zk.StateDisconnected})
	c.emit(zk.Event{Type: zk.EventSession, State: zk.StateHasSession})
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	return c.closed.Load()
}

func (c *Conn) Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error) {
	done, err := c.server.begin(c, "Create", path)
	defer done()
	if err != nil {
		return "", err
	}
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	return c.server.createLocked(c, path, data, flags, acl)
}

func (c *Conn) CreateProtectedEphemeralSequential(path string, data []byte, acl []zk.ACL) (string, error) {
	done, err := c.server.begin(c, "CreateProtectedEphemeralSequential", path)
	defer done()
	if err != nil {
		return "", err
	}
	dir := parentOf(path)
	name := "_c_" + randomGUID() + "-" + baseName(path)
	if dir != "/" {
		name = dir + "/" + name
	} else {
		name = "/" + name
	}
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	return c.server.createLocked(c, name, data, zk.FlagEphemeral|zk.FlagSequence, acl)
}

func (c *Conn) Delete(path string, version int32) error {
	done, err := c.server.begin(c, "Delete", path)
	defer done()
	if err != nil {
		return err
	}
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	return c.server.deleteLocked(path, version)
}

func (c *Conn) Exists(path string) (bool, *zk.Stat, error) {
	done, err := c.server.begin(c, "Exists", path)
	defer done()
	if err != nil {
		return false, nil, err
	}
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	n, ok := c.server.nodes[path]
	if !ok {
		return false, &zk.Stat{}, nil
	}
	stat := n.stat
	return true, &stat, nil
}

func (c *Conn) ExistsW(path string) (bool, *zk.Stat, <-chan zk.Event, error) {
	done, err := c.server.begin(c, "ExistsW", path)
	defer done()
	if err != nil {
		return false, nil, nil, err
	}
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	ch := c.server.addWatch(c.server.dataWatches, path, c)
	n, ok := c.server.nodes[path]
	if !ok {
		return false, &zk.Stat{}, ch, nil
	}
	stat := n.stat
	return true, &stat, ch, nil
}

func (c *Conn) Get(path string) ([]byte, *zk.Stat, error) {
	done, err := c.server.begin(c, "Get", path)
	defer done()
	if err != nil {
		return nil, nil, err
	}
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	n, ok := c.server.nodes[path]
	if !ok {
		return nil, nil, zk.ErrNoNode
	}
	stat := n.stat
	return append([]byte(nil), n.data...), &stat, nil
}

func (c *Conn) GetW(path string) ([]byte, *zk.Stat, <-chan zk.Event, error) {
	done, err := c.server.begin(c, "GetW", path)
	defer done()
	if err != nil {
		return nil, nil, nil, err
	}
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	n, ok := c.server.nodes[path]
	if !ok {
		return nil, nil, nil, zk.ErrNoNode
	}
	ch := c.server.addWatch(c.server.dataWatches, path, c)
	stat := n.stat
	return append([]byte(nil), n.data...), &stat, ch, nil
}

func (c *Conn) Set(path string, data []byte, version int32) (*zk.Stat, error) {
	done, err := c.server.begin(c, "Set", path)
	defer done()
	if err != nil {
		return nil, err
	}
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	return c.server.setLocked(path, data, version)
}

func (c *Conn) children(path string) ([]string, *zk.Stat, error) {
	n, ok := c.server.nodes[path]
	if !ok {
		return nil, nil, zk.ErrNoNode
	}
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	stat := n.stat
	return names, &stat, nil
}

func (c *Conn) Children(path string) ([]string, *zk.Stat, error) {
	done, err := c.server.begin(c, "Children", path)
	defer done()
	if err != nil {
		return nil, nil, err
	}
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	return c.children(path)
}

func (c *Conn) ChildrenW(path string) ([]string, *zk.Stat, <-chan zk.Event, error) {
	done, err := c.server.begin(c, "ChildrenW", path)
	defer done()
	if err != nil {
		return nil, nil, nil, err
	}
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	names, stat, err := c.children(path)
	if err != nil {
		return nil, nil, nil, err
	}
	return names, stat, c.server.addWatch(c.server.childWatches, path, c), nil
}

func (c *Conn) GetACL(path string) ([]zk.ACL, *zk.Stat, error) {
	done, err := c.server.begin(c, "GetACL", path)
	defer done()
	if err != nil {
		return nil, nil, err
	}
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	n, ok := c.server.nodes[path]
	if !ok {
		return nil, nil, zk.ErrNoNode
	}
	stat := n.stat
	return append([]zk.ACL(nil), n.acl...), &stat, nil
}

func (c *Conn) SetACL(path string, acl []zk.ACL, version int32) (*zk.Stat, error) {
	done, err := c.server.begin(c, "SetACL", path)
	defer done()
	if err != nil {
		return nil, err
	}
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	n, ok := c.server.nodes[path]
	if !ok {
		return nil, zk.ErrNoNode
	}
	if version != -1 && version != n.stat.Aversion {
		return nil, zk.ErrBadVersion
	}
	n.acl = append([]zk.ACL(nil), acl...)
	n.stat.Aversion++
	stat := n.stat
	return &stat, nil
}

func (c *Conn) Sync(path string) (string, error) {
	done, err := c.server.begin(c, "Sync", path)
	defer done()
	if err != nil {
		return "", err
	}
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if _, ok := c.server.nodes[path]; !ok {
		return "", zk.ErrNoNode
	}
	return path, nil
}

// Multi applies ops atomically. On failure the tree is left unchanged and
// every response carries the error of the first failing op.
func (c *Conn) Multi(ops ...interface{}) ([]zk.MultiResponse, error) {
	done, err := c.server.begin(c, "Multi", "")
	defer done()
	if err != nil {
		return nil, err
	}

	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.snapshot()
	s.inMulti = true
	s.deferred = nil

	res := make([]zk.MultiResponse, len(ops))
	var failed error
	for i, op := range ops {
		switch req := op.(type) {
		case *zk.CreateRequest:
			res[i].String, failed = s.createLocked(c, req.Path, req.Data, req.Flags, req.Acl)
		case *zk.DeleteRequest:
			failed = s.deleteLocked(req.Path, req.Version)
		case *zk.SetDataRequest:
			res[i].Stat, failed = s.setLocked(req.Path, req.Data, req.Version)
		case *zk.CheckVersionRequest:
			n, ok := s.nodes[req.Path]
			switch {
			case !ok:
				failed = zk.ErrNoNode
			case req.Version != -1 && n.stat.Version != req.Version:
				failed = zk.ErrBadVersion
			}
		default:
			failed = zk.ErrBadArguments
		}
		if failed != nil {
			break
		}
	}

	s.inMulti = false
	pending := s.deferred
	s.deferred = nil

	if failed != nil {
		s.nodes = before
		for i := range res {
			res[i] = zk.MultiResponse{Error: failed}
		}
		return res, failed
	}
	for _, d := range pending {
		s.fire(d.table, d.path, d.event)
	}
	return res, nil
}

func (c *Conn) SessionID() int64 {
	return c.sessionID
}

func (c *Conn) State() zk.State {
	return zk.State(c.state.Load())
}

func (c *Conn) Server() string {
	return "127.0.0.1:2181"
}

// Close ends the session, removing its ephemeral nodes.
func (c *Conn) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.shutdown()
}

func (c *Conn) shutdown() {
	c.closed.Store(true)
	if zk.State(c.state.Load()) != zk.StateExpired {
		c.state.Store(int32(zk.StateDisconnected))
	}

	c.server.mu.Lock()
	c.server.removeEphemerals(c.sessionID)
	for _, table := range []map[string][]watch{c.server.dataWatches, c.server.childWatches} {
		for path, ws := range table {
			kept := ws[:0]
			for _, w := range ws {
				if w.owner != c {
					kept = append(kept, w)
				}
			}
			if len(kept) == 0 {
				delete(table, path)
			} else {
				table[path] = kept
			}
		}
	}
	c.server.mu.Unlock()

	c.mu.Lock()
	for ch := range c.watches {
		ch <- zk.Event{Type: zk.EventNotWatching, State: zk.StateDisconnected, Err: zk.ErrClosing}
		close(ch)
	}
	c.watches = nil
	c.mu.Unlock()

	c.events.Close()
}

// Factory opens sessions against a Server. It satisfies the framework's
// session factory contract.
type Factory struct {
	Server *Server

	mu    sync.Mutex
	conns []*Conn
	err   error
}

// NewFactory returns a factory for server.
func NewFactory(server *Server) *Factory {
	return &Factory{Server: server}
}

// FailWith makes subsequent NewZooKeeper calls fail with err until reset with nil.
func (f *Factory) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// NewZooKeeper opens a session.
func (f *Factory) NewZooKeeper(connectString string, sessionTimeout time.Duration, watcher zookeeper.Watcher, canBeReadOnly bool) (zookeeper.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c := f.Server.Connect(watcher)
	f.conns = append(f.conns, c)
	return c, nil
}

// ResumeZooKeeper reattaches to an existing session.
func (f *Factory) ResumeZooKeeper(connectString string, sessionTimeout time.Duration, watcher zookeeper.Watcher, canBeReadOnly bool, sessionID int64, passwd []byte) (zookeeper.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c := f.Server.Resume(sessionID, watcher)
	f.conns = append(f.conns, c)
	return c, nil
}

// Conns returns every session opened so far.
func (f *Factory) Conns() []*Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Conn(nil), f.conns...)
}
