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

// Package zookeeper defines the low-level session contract shared by the
// framework and the traced session.
//
// Conn is the method set of *zk.Conn from github.com/go-zookeeper/zk, so a
// raw connection, a traced connection and test doubles are interchangeable.
// The callback types and Dispatcher give the callback forms of each
// operation a single ordered delivery goroutine per session.
package zookeeper

import (
	"context"

	"github.com/go-zookeeper/zk"
)

// Conn is a live ZooKeeper session.
type Conn interface {
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	CreateProtectedEphemeralSequential(path string, data []byte, acl []zk.ACL) (string, error)
	Delete(path string, version int32) error
	Exists(path string) (bool, *zk.Stat, error)
	ExistsW(path string) (bool, *zk.Stat, <-chan zk.Event, error)
	Get(path string) ([]byte, *zk.Stat, error)
	GetW(path string) ([]byte, *zk.Stat, <-chan zk.Event, error)
	Set(path string, data []byte, version int32) (*zk.Stat, error)
	Children(path string) ([]string, *zk.Stat, error)
	ChildrenW(path string) ([]string, *zk.Stat, <-chan zk.Event, error)
	GetACL(path string) ([]zk.ACL, *zk.Stat, error)
	SetACL(path string, acl []zk.ACL, version int32) (*zk.Stat, error)
	Sync(path string) (string, error)
	Multi(ops ...interface{}) ([]zk.MultiResponse, error)
	SessionID() int64
	State() zk.State
	Server() string
	Close()
}

var _ Conn = (*zk.Conn)(nil)

// ContextBinder is implemented by connections that carry a request context,
// such as the traced connection.
type ContextBinder interface {
	BindContext(ctx context.Context) Conn
}

// WithContext binds ctx to conn when conn supports it and returns conn
// unchanged otherwise.
func WithContext(conn Conn, ctx context.Context) Conn {
	if b, ok := conn.(ContextBinder); ok && ctx != nil {
		return b.BindContext(ctx)
	}
	return conn
}

// CreateMode selects the lifetime and naming of a created node.
type CreateMode int

const (
	Persistent CreateMode = iota
	PersistentSequential
	Ephemeral
	EphemeralSequential
)

// Flags returns the zk create flags for the mode.
func (m CreateMode) Flags() int32 {
	switch m {
	case PersistentSequential:
		return zk.FlagSequence
	case Ephemeral:
		return zk.FlagEphemeral
	case EphemeralSequential:
		return zk.FlagEphemeral | zk.FlagSequence
	default:
		return 0
	}
}

// IsEphemeral reports whether nodes of this mode die with the session.
func (m CreateMode) IsEphemeral() bool {
	return m == Ephemeral || m == EphemeralSequential
}

// IsSequential reports whether the server appends a sequence suffix.
func (m CreateMode) IsSequential() bool {
	return m == PersistentSequential || m == EphemeralSequential
}

func (m CreateMode) String() string {
	switch m {
	case Persistent:
		return "persistent"
	case PersistentSequential:
		return "persistent_sequential"
	case Ephemeral:
		return "ephemeral"
	case EphemeralSequential:
		return "ephemeral_sequential"
	default:
		return "unknown"
	}
}

// ParseCreateMode parses the String form of a CreateMode.
func ParseCreateMode(s string) (CreateMode, bool) {
	for _, m := range []CreateMode{Persistent, PersistentSequential, Ephemeral, EphemeralSequential} {
		if m.String() == s {
			return m, true
		}
	}
	return Persistent, false
}

// Callback signatures for the asynchronous forms. The ctx argument is the
// opaque value supplied by the caller when the operation was issued.
type (
	StringCallback   func(err error, path string, ctx any, name string)
	VoidCallback     func(err error, path string, ctx any)
	StatCallback     func(err error, path string, ctx any, stat *zk.Stat)
	DataCallback     func(err error, path string, ctx any, data []byte, stat *zk.Stat)
	ChildrenCallback func(err error, path string, ctx any, children []string, stat *zk.Stat)
	ACLCallback      func(err error, path string, ctx any, acl []zk.ACL, stat *zk.Stat)
)

// Watcher receives session and node events.
type Watcher interface {
	Process(event zk.Event)
}

// WatcherFunc adapts a function to Watcher.
type WatcherFunc func(event zk.Event)

// Process implements Watcher.
func (f WatcherFunc) Process(event zk.Event) {
	f(event)
}
