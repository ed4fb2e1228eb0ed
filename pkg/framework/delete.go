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
	"errors"

	"github.com/go-zookeeper/zk"

	"github.com/tombee/zktrace/pkg/zookeeper"
)

// DeleteBuilder deletes a node.
type DeleteBuilder struct {
	client   *Client
	ctx      context.Context
	version  int32
	children bool
	bg       backgrounding
}

func newDeleteBuilder(c *Client) *DeleteBuilder {
	return &DeleteBuilder{client: c, ctx: context.Background(), version: -1}
}

// WithContext sets the context the operation runs under.
func (b *DeleteBuilder) WithContext(ctx context.Context) *DeleteBuilder {
	b.ctx = ctx
	return b
}

// WithVersion deletes only if the node's version matches.
func (b *DeleteBuilder) WithVersion(version int32) *DeleteBuilder {
	b.version = version
	return b
}

// DeletingChildrenIfNeeded deletes the node's descendants first.
func (b *DeleteBuilder) DeletingChildrenIfNeeded() *DeleteBuilder {
	b.children = true
	return b
}

func (b *DeleteBuilder) InBackground(callback BackgroundCallback) *DeleteBuilder {
	return b.InBackgroundWithContext(callback, nil)
}

func (b *DeleteBuilder) InBackgroundWithContext(callback BackgroundCallback, bgContext any) *DeleteBuilder {
	b.bg = backgrounding{enabled: true, callback: callback, context: bgContext}
	return b
}

// ForPath deletes path.
func (b *DeleteBuilder) ForPath(path string) error {
	if !b.bg.enabled {
		return b.delete(path)
	}
	b.client.runBackground(b.bg, func() *CuratorEvent {
		return &CuratorEvent{Type: EventDelete, Err: b.delete(path), Path: path}
	})
	return nil
}

func (b *DeleteBuilder) delete(path string) error {
	fixed, err := b.client.fixPath(b.ctx, path)
	if err != nil {
		return err
	}
	_, err = callWithRetry(b.ctx, b.client.core.client, func(conn zookeeper.Conn) (struct{}, error) {
		err := conn.Delete(fixed, b.version)
		if errors.Is(err, zk.ErrNotEmpty) && b.children {
			if err := deleteChildren(conn, fixed, false); err != nil {
				return struct{}{}, err
			}
			err = conn.Delete(fixed, b.version)
		}
		return struct{}{}, err
	})
	return err
}
