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
	"sync"

	"github.com/tombee/zktrace/pkg/zookeeper"
)

// watcherQueue is an ordered, append-only list of watchers. The head is
// the default watcher supplied at construction.
type watcherQueue struct {
	mu    sync.RWMutex
	items []zookeeper.Watcher
}

func newWatcherQueue(initial zookeeper.Watcher) *watcherQueue {
	q := &watcherQueue{}
	if initial != nil {
		q.items = append(q.items, initial)
	}
	return q
}

// Offer appends w.
func (q *watcherQueue) Offer(w zookeeper.Watcher) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, w)
}

// Peek returns the head of the queue, or nil when it is empty.
func (q *watcherQueue) Peek() zookeeper.Watcher {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// Len returns the number of queued watchers.
func (q *watcherQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

func (q *watcherQueue) snapshot() []zookeeper.Watcher {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]zookeeper.Watcher(nil), q.items...)
}
