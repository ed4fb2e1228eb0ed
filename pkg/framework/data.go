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

// GetDataBuilder reads a node's data.
type GetDataBuilder struct {
	client *Client
	ctx    context.Context
	watch  watching
	stat   *zk.Stat
	bg     backgrounding
}

func newGetDataBuilder(c *Client) *GetDataBuilder {
	return &GetDataBuilder{client: c, ctx: context.Background()}
}

// WithContext sets the context the operation runs under.
func (b *GetDataBuilder) WithContext(ctx context.Context) *GetDataBuilder {
	b.ctx = ctx
	return b
}

// Watched sets a watch whose event goes to the curator listeners.
func (b *GetDataBuilder) Watched() *GetDataBuilder {
	b.watch = watching{enabled: true}
	return b
}

// UsingWatcher sets a watch whose event goes to w.
func (b *GetDataBuilder) UsingWatcher(w zookeeper.Watcher) *GetDataBuilder {
	b.watch = watching{enabled: true, watcher: w}
	return b
}

// StoringStatIn copies the node's stat into stat.
func (b *GetDataBuilder) StoringStatIn(stat *zk.Stat) *GetDataBuilder {
	b.stat = stat
	return b
}

func (b *GetDataBuilder) InBackground(callback BackgroundCallback) *GetDataBuilder {
	return b.InBackgroundWithContext(callback, nil)
}

func (b *GetDataBuilder) InBackgroundWithContext(callback BackgroundCallback, bgContext any) *GetDataBuilder {
	b.bg = backgrounding{enabled: true, callback: callback, context: bgContext}
	return b
}

// ForPath returns the data of path.
func (b *GetDataBuilder) ForPath(path string) ([]byte, error) {
	if !b.bg.enabled {
		data, _, err := b.get(path)
		return data, err
	}
	b.client.runBackground(b.bg, func() *CuratorEvent {
		data, stat, err := b.get(path)
		return &CuratorEvent{Type: EventGetData, Err: err, Path: path, Data: data, Stat: stat}
	})
	return nil, nil
}

func (b *GetDataBuilder) get(path string) ([]byte, *zk.Stat, error) {
	fixed, err := b.client.fixPath(b.ctx, path)
	if err != nil {
		return nil, nil, err
	}

	type result struct {
		data []byte
		stat *zk.Stat
		ch   <-chan zk.Event
	}
	r, err := callWithRetry(b.ctx, b.client.core.client, func(conn zookeeper.Conn) (result, error) {
		if b.watch.enabled {
			data, stat, ch, err := conn.GetW(fixed)
			return result{data, stat, ch}, err
		}
		data, stat, err := conn.Get(fixed)
		return result{data: data, stat: stat}, err
	})
	if err != nil {
		return nil, nil, err
	}
	b.client.watch(r.ch, b.watch.watcher)
	if b.stat != nil && r.stat != nil {
		*b.stat = *r.stat
	}
	return r.data, r.stat, nil
}

// SetDataBuilder writes a node's data.
type SetDataBuilder struct {
	client  *Client
	ctx     context.Context
	version int32
	bg      backgrounding
}

func newSetDataBuilder(c *Client) *SetDataBuilder {
	return &SetDataBuilder{client: c, ctx: context.Background(), version: -1}
}

// WithContext sets the context the operation runs under.
func (b *SetDataBuilder) WithContext(ctx context.Context) *SetDataBuilder {
	b.ctx = ctx
	return b
}

// WithVersion writes only if the node's version matches.
func (b *SetDataBuilder) WithVersion(version int32) *SetDataBuilder {
	b.version = version
	return b
}

func (b *SetDataBuilder) InBackground(callback BackgroundCallback) *SetDataBuilder {
	return b.InBackgroundWithContext(callback, nil)
}

func (b *SetDataBuilder) InBackgroundWithContext(callback BackgroundCallback, bgContext any) *SetDataBuilder {
	b.bg = backgrounding{enabled: true, callback: callback, context: bgContext}
	return b
}

// ForPath sets the data of path and returns the node's new stat.
func (b *SetDataBuilder) ForPath(path string, data []byte) (*zk.Stat, error) {
	if !b.bg.enabled {
		return b.set(path, data)
	}
	b.client.runBackground(b.bg, func() *CuratorEvent {
		stat, err := b.set(path, data)
		return &CuratorEvent{Type: EventSetData, Err: err, Path: path, Stat: stat}
	})
	return nil, nil
}

func (b *SetDataBuilder) set(path string, data []byte) (*zk.Stat, error) {
	fixed, err := b.client.fixPath(b.ctx, path)
	if err != nil {
		return nil, err
	}
	return callWithRetry(b.ctx, b.client.core.client, func(conn zookeeper.Conn) (*zk.Stat, error) {
		return conn.Set(fixed, data, b.version)
	})
}
