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

// GetChildrenBuilder lists a node's children.
type GetChildrenBuilder struct {
	client *Client
	ctx    context.Context
	watch  watching
	stat   *zk.Stat
	bg     backgrounding
}

func newGetChildrenBuilder(c *Client) *GetChildrenBuilder {
	return &GetChildrenBuilder{client: c, ctx: context.Background()}
}

// WithContext sets the context the operation runs under.
func (b *GetChildrenBuilder) WithContext(ctx context.Context) *GetChildrenBuilder {
	b.ctx = ctx
	return b
}

// Watched sets a watch whose event goes to the curator listeners.
func (b *GetChildrenBuilder) Watched() *GetChildrenBuilder {
	b.watch = watching{enabled: true}
	return b
}

// UsingWatcher sets a watch whose event goes to w.
func (b *GetChildrenBuilder) UsingWatcher(w zookeeper.Watcher) *GetChildrenBuilder {
	b.watch = watching{enabled: true, watcher: w}
	return b
}

// StoringStatIn copies the node's stat into stat.
func (b *GetChildrenBuilder) StoringStatIn(stat *zk.Stat) *GetChildrenBuilder {
	b.stat = stat
	return b
}

func (b *GetChildrenBuilder) InBackground(callback BackgroundCallback) *GetChildrenBuilder {
	return b.InBackgroundWithContext(callback, nil)
}

func (b *GetChildrenBuilder) InBackgroundWithContext(callback BackgroundCallback, bgContext any) *GetChildrenBuilder {
	b.bg = backgrounding{enabled: true, callback: callback, context: bgContext}
	return b
}

// ForPath returns the children of path.
func (b *GetChildrenBuilder) ForPath(path string) ([]string, error) {
	if !b.bg.enabled {
		children, _, err := b.children(path)
		return children, err
	}
	b.client.runBackground(b.bg, func() *CuratorEvent {
		children, stat, err := b.children(path)
		return &CuratorEvent{Type: EventChildren, Err: err, Path: path, Children: children, Stat: stat}
	})
	return nil, nil
}

func (b *GetChildrenBuilder) children(path string) ([]string, *zk.Stat, error) {
	fixed, err := b.client.fixPath(b.ctx, path)
	if err != nil {
		return nil, nil, err
	}

	type result struct {
		children []string
		stat     *zk.Stat
		ch       <-chan zk.Event
	}
	r, err := callWithRetry(b.ctx, b.client.core.client, func(conn zookeeper.Conn) (result, error) {
		if b.watch.enabled {
			children, stat, ch, err := conn.ChildrenW(fixed)
			return result{children, stat, ch}, err
		}
		children, stat, err := conn.Children(fixed)
		return result{children: children, stat: stat}, err
	})
	if err != nil {
		return nil, nil, err
	}
	b.client.watch(r.ch, b.watch.watcher)
	if b.stat != nil && r.stat != nil {
		*b.stat = *r.stat
	}
	return r.children, r.stat, nil
}
