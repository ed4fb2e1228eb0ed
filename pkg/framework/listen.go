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
	"sort"
	"sync"

	"github.com/go-zookeeper/zk"
)

// Listenable is a registry of listeners of type T.
type Listenable[T any] struct {
	mu        sync.RWMutex
	next      int
	listeners map[int]T
}

// NewListenable returns an empty registry.
func NewListenable[T any]() *Listenable[T] {
	return &Listenable[T]{listeners: make(map[int]T)}
}

// AddListener registers listener and returns a function that removes it.
func (l *Listenable[T]) AddListener(listener T) (remove func()) {
	l.mu.Lock()
	id := l.next
	l.next++
	l.listeners[id] = listener
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.listeners, id)
			l.mu.Unlock()
		})
	}
}

// Size returns the number of registered listeners.
func (l *Listenable[T]) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.listeners)
}

// Clear removes every listener.
func (l *Listenable[T]) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = make(map[int]T)
}

// ForEach calls fn for each listener in registration order.
func (l *Listenable[T]) ForEach(fn func(T)) {
	l.mu.RLock()
	ids := make([]int, 0, len(l.listeners))
	for id := range l.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	snapshot := make([]T, 0, len(ids))
	for _, id := range ids {
		snapshot = append(snapshot, l.listeners[id])
	}
	l.mu.RUnlock()

	for _, listener := range snapshot {
		fn(listener)
	}
}

// ConnectionStateListener is notified of connection state changes.
type ConnectionStateListener interface {
	StateChanged(client Framework, state ConnectionState)
}

// ConnectionStateListenerFunc adapts a function to ConnectionStateListener.
type ConnectionStateListenerFunc func(client Framework, state ConnectionState)

func (f ConnectionStateListenerFunc) StateChanged(client Framework, state ConnectionState) {
	f(client, state)
}

// CuratorListener receives background results and watch notifications
// that have no dedicated callback.
type CuratorListener interface {
	EventReceived(client Framework, event *CuratorEvent) error
}

// CuratorListenerFunc adapts a function to CuratorListener.
type CuratorListenerFunc func(client Framework, event *CuratorEvent) error

func (f CuratorListenerFunc) EventReceived(client Framework, event *CuratorEvent) error {
	return f(client, event)
}

// UnhandledErrorListener receives errors raised by listeners and callbacks.
type UnhandledErrorListener interface {
	UnhandledError(message string, err error)
}

// UnhandledErrorListenerFunc adapts a function to UnhandledErrorListener.
type UnhandledErrorListenerFunc func(message string, err error)

func (f UnhandledErrorListenerFunc) UnhandledError(message string, err error) {
	f(message, err)
}

// CuratorEventType identifies the operation a CuratorEvent reports.
type CuratorEventType int

const (
	EventCreate CuratorEventType = iota
	EventDelete
	EventExists
	EventGetData
	EventSetData
	EventChildren
	EventSync
	EventGetACL
	EventSetACL
	EventTransaction
	EventWatched
	EventClosing
)

func (t CuratorEventType) String() string {
	names := [...]string{"CREATE", "DELETE", "EXISTS", "GET_DATA", "SET_DATA", "CHILDREN",
		"SYNC", "GET_ACL", "SET_ACL", "TRANSACTION", "WATCHED", "CLOSING"}
	if int(t) < len(names) && t >= 0 {
		return names[t]
	}
	return "UNKNOWN"
}

// CuratorEvent is the result of a background operation or a watch.
type CuratorEvent struct {
	Type         CuratorEventType
	Err          error
	Path         string
	Name         string
	Children     []string
	Data         []byte
	Stat         *zk.Stat
	ACL          []zk.ACL
	OpResults    []TransactionResult
	WatchedEvent *zk.Event
	Context      any
}

// BackgroundCallback receives the result of a background operation.
type BackgroundCallback func(client Framework, event *CuratorEvent)

// backgrounding holds a builder's background settings.
type backgrounding struct {
	enabled  bool
	callback BackgroundCallback
	context  any
}
