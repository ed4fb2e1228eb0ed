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

// Package zktest provides an in-memory ZooKeeper for tests.
//
// A Server holds a node tree shared by any number of sessions. Conn
// implements zookeeper.Conn against that tree with ZooKeeper's versioning,
// sequential naming, ephemeral ownership and one-shot watch semantics.
// Factory plugs the server into the framework as its session factory.
package zktest

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-zookeeper/zk"

	"github.com/tombee/zktrace/pkg/zookeeper"
)

type node struct {
	data     []byte
	acl      []zk.ACL
	stat     zk.Stat
	children map[string]struct{}
	seq      int32
}

type deferredFire struct {
	table map[string][]watch
	path  string
	event zk.Event
}

type watch struct {
	ch    chan zk.Event
	owner *Conn
}

// Call records one operation performed against the server.
type Call struct {
	Op      string
	Path    string
	Session int64
	Start   time.Time
	End     time.Time
}

// Server is an in-memory ensemble.
type Server struct {
	mu       sync.Mutex
	nodes    map[string]*node
	zxid     int64
	sessions int64

	dataWatches  map[string][]watch
	childWatches map[string][]watch

	failures map[string][]error
	calls    []Call
	deferred []deferredFire
	inMulti  bool

	// Latency is added to every operation.
	Latency time.Duration
}

// NewServer returns a server holding only the root node.
func NewServer() *Server {
	return &Server{
		nodes: map[string]*node{
			"/": {children: map[string]struct{}{}, acl: zk.WorldACL(zk.PermAll)},
		},
		dataWatches:  make(map[string][]watch),
		childWatches: make(map[string][]watch),
		failures:     make(map[string][]error),
		sessions:     0x100,
	}
}

// Connect opens a new session. watcher may be nil.
func (s *Server) Connect(watcher zookeeper.Watcher) *Conn {
	return s.Resume(atomic.AddInt64(&s.sessions, 1), watcher)
}

// Resume opens a connection that reattaches to the session sessionID. The
// password is not checked.
func (s *Server) Resume(sessionID int64, watcher zookeeper.Watcher) *Conn {
	c := &Conn{
		server:    s,
		sessionID: sessionID,
		watcher:   watcher,
		events:    zookeeper.NewDispatcher(),
	}
	c.state.Store(int32(zk.StateHasSession))
	c.emit(zk.Event{Type: zk.EventSession, State: zk.StateConnected})
	c.emit(zk.Event{Type: zk.EventSession, State: zk.StateHasSession})
	return c
}

// FailNext makes the next call of op fail with err. op is the Conn method
// name, e.g. "Create".
func (s *Server) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], err)
}

// Calls returns the operations performed so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Exists reports whether path is present, bypassing sessions.
func (s *Server) Exists(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.nodes[path]
	return ok
}

// Data returns the data of path, bypassing sessions.
func (s *Server) Data(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), n.data...), true
}

// begin records the call and consumes any injected failure.
func (s *Server) begin(c *Conn, op, path string) (func(), error) {
	if c.closed.Load() {
		return func() {}, zk.ErrConnectionClosed
	}
	start := time.Now()
	if s.Latency > 0 {
		time.Sleep(s.Latency)
	}

	s.mu.Lock()
	var injected error
	if errs := s.failures[op]; len(errs) > 0 {
		injected = errs[0]
		s.failures[op] = errs[1:]
	}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		s.calls = append(s.calls, Call{Op: op, Path: path, Session: c.sessionID, Start: start, End: time.Now()})
		s.mu.Unlock()
	}, injected
}

func parentOf(path string) string {
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return "/"
	}
	return path[:i]
}

func baseName(path string) string {
	return path[strings.LastIndex(path, "/")+1:]
}

func validPath(path string) bool {
	if path == "/" {
		return true
	}
	if !strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return false
	}
	return !strings.Contains(path, "//")
}

func (s *Server) nextZxid() int64 {
	s.zxid++
	return s.zxid
}

func (s *Server) fire(table map[string][]watch, path string, ev zk.Event) {
	if s.inMulti {
		s.deferred = append(s.deferred, deferredFire{table: table, path: path, event: ev})
		return
	}
	ws := table[path]
	delete(table, path)
	for _, w := range ws {
		w.owner.removeWatch(w.ch)
		w.ch <- ev
		close(w.ch)
	}
}

func (s *Server) addWatch(table map[string][]watch, path string, c *Conn) <-chan zk.Event {
	ch := make(chan zk.Event, 1)
	table[path] = append(table[path], watch{ch: ch, owner: c})
	c.trackWatch(ch)
	return ch
}

func (s *Server) createLocked(c *Conn, path string, data []byte, flags int32, acl []zk.ACL) (string, error) {
	if !validPath(path) || path == "/" {
		return "", zk.ErrBadArguments
	}
	parentPath := parentOf(path)
	parent, ok := s.nodes[parentPath]
	if !ok {
		return "", zk.ErrNoNode
	}
	if parent.stat.EphemeralOwner != 0 {
		return "", zk.ErrNoChildrenForEphemerals
	}

	name := path
	if flags&zk.FlagSequence != 0 {
		name = fmt.Sprintf("%s%010d", path, parent.seq)
	}
	if _, exists := s.nodes[name]; exists {
		return "", zk.ErrNodeExists
	}
	parent.seq++

	zxid := s.nextZxid()
	now := time.Now().UnixMilli()
	n := &node{
		data:     append([]byte(nil), data...),
		acl:      acl,
		children: map[string]struct{}{},
		stat: zk.Stat{
			Czxid:      zxid,
			Mzxid:      zxid,
			Pzxid:      zxid,
			Ctime:      now,
			Mtime:      now,
			DataLength: int32(len(data)),
		},
	}
	if flags&zk.FlagEphemeral != 0 && c != nil {
		n.stat.EphemeralOwner = c.sessionID
	}
	s.nodes[name] = n

	parent.children[baseName(name)] = struct{}{}
	parent.stat.Cversion++
	parent.stat.NumChildren = int32(len(parent.children))
	parent.stat.Pzxid = zxid

	s.fire(s.dataWatches, name, zk.Event{Type: zk.EventNodeCreated, State: zk.StateHasSession, Path: name})
	s.fire(s.childWatches, parentPath, zk.Event{Type: zk.EventNodeChildrenChanged, State: zk.StateHasSession, Path: parentPath})
	return name, nil
}

func (s *Server) deleteLocked(path string, version int32) error {
	if !validPath(path) || path == "/" {
		return zk.ErrBadArguments
	}
	n, ok := s.nodes[path]
	if !ok {
		return zk.ErrNoNode
	}
	if version != -1 && version != n.stat.Version {
		return zk.ErrBadVersion
	}
	if len(n.children) > 0 {
		return zk.ErrNotEmpty
	}
	delete(s.nodes, path)

	parentPath := parentOf(path)
	if parent, ok := s.nodes[parentPath]; ok {
		delete(parent.children, baseName(path))
		parent.stat.Cversion++
		parent.stat.NumChildren = int32(len(parent.children))
		parent.stat.Pzxid = s.nextZxid()
	}

	deleted := zk.Event{Type: zk.EventNodeDeleted, State: zk.StateHasSession, Path: path}
	s.fire(s.dataWatches, path, deleted)
	s.fire(s.childWatches, path, deleted)
	s.fire(s.childWatches, parentPath, zk.Event{Type: zk.EventNodeChildrenChanged, State: zk.StateHasSession, Path: parentPath})
	return nil
}

func (s *Server) setLocked(path string, data []byte, version int32) (*zk.Stat, error) {
	n, ok := s.nodes[path]
	if !ok {
		return nil, zk.ErrNoNode
	}
	if version != -1 && version != n.stat.Version {
		return nil, zk.ErrBadVersion
	}
	n.data = append([]byte(nil), data...)
	n.stat.Version++
	n.stat.Mzxid = s.nextZxid()
	n.stat.Mtime = time.Now().UnixMilli()
	n.stat.DataLength = int32(len(data))

	s.fire(s.dataWatches, path, zk.Event{Type: zk.EventNodeDataChanged, State: zk.StateHasSession, Path: path})
	stat := n.stat
	return &stat, nil
}

func (s *Server) removeEphemerals(owner int64) {
	var paths []string
	for p, n := range s.nodes {
		if n.stat.EphemeralOwner == owner {
			paths = append(paths, p)
		}
	}
	// deepest first so parents are empty when reached
	sort.Slice(paths, func(i, j int) bool { return len(paths[i]) > len(paths[j]) })
	for _, p := range paths {
		_ = s.deleteLocked(p, -1)
	}
}

func (s *Server) snapshot() map[string]*node {
	out := make(map[string]*node, len(s.nodes))
	for p, n := range s.nodes {
		cp := *n
		cp.children = make(map[string]struct{}, len(n.children))
		for k := range n.children {
			cp.children[k] = struct{}{}
		}
		out[p] = &cp
	}
	return out
}

func randomGUID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
