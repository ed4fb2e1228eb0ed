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
	"context"

	"github.com/go-zookeeper/zk"

	"github.com/tombee/zktrace/pkg/zookeeper"
)

// watching holds a builder's watch settings.
type watching struct {
	enabled bool
	watcher zookeeper.Watcher
}

// ExistsBuilder checks whether a node exists.
type ExistsBuilder struct {
	client *Client
	ctx    context.Context
	watch  watching
	bg     backgrounding
}

func newExistsBuilder(c *Client) *ExistsBuilder {
	return &ExistsBuilder{client: c, ctx: context.Background()}
}

// WithContext sets the context the operation runs under.
func (b *ExistsBuilder) WithContext(ctx context.Context) *ExistsBuilder {
	b.ctx = ctx
	return b
}

// Watched sets a watch whose event goes to the curator listeners.
func (b *ExistsBuilder) Watched() *ExistsBuilder {
	b.watch = watching{enabled: true}
	return b
}

// UsingWatcher sets a watch whose event goes to w.
func (b *ExistsBuilder) UsingWatcher(w zookeeper.Watcher) *ExistsBuilder {
	b.watch = watching{enabled: true, watcher: w}
	return b
}

func (b *ExistsBuilder) InBackground(callback BackgroundCallback) *ExistsBuilder {
	return b.InBackgroundWithContext(callback, nil)
}

func (b *ExistsBuilder) InBackgroundWithContext(callback BackgroundCallback, bgContext any) *ExistsBuilder {
	b.bg = backgrounding{enabled: true, callback: callback, context: bgContext}
	return b
}

// ForPath returns the node's stat, or nil when it does not exist.
func (b *ExistsBuilder) ForPath(path string) (*zk.Stat, error) {
	if !b.bg.enabled {
		return b.exists(path)
	}
	b.client.runBackground(b.bg, func() *CuratorEvent {
		stat, err := b.exists(path)
		return &CuratorEvent{Type: EventExists, Err: err, Path: path, Stat: stat}
	})
	return nil, nil
}

func (b *ExistsBuilder) exists(path string) (*zk.Stat, error) {
	fixed, err := b.client.fixPath(b.ctx, path)
	if err != nil {
		return nil, err
	}

	type result struct {
		exists bool
		stat   *zk.Stat
		ch     <-chan zk.Event
	}
	r, err := callWithRetry(b.ctx, b.client.core.client, func(conn zookeeper.Conn) (result, error) {
		if b.watch.enabled {
			ok, stat, ch, err := conn.ExistsW(fixed)
			return result{ok, stat, ch}, err
		}
		ok, stat, err := conn.Exists(fixed)
		return result{exists: ok, stat: stat}, err
	})
	if err != nil {
		return nil, err
	}
	b.client.watch(r.ch, b.watch.watcher)
	if !r.exists {
		return nil, nil
	}
	return r.stat, nil
}
