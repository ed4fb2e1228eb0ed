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

// GetACLBuilder reads a node's ACL.
type GetACLBuilder struct {
	client *Client
	ctx    context.Context
	stat   *zk.Stat
	bg     backgrounding
}

func newGetACLBuilder(c *Client) *GetACLBuilder {
	return &GetACLBuilder{client: c, ctx: context.Background()}
}

func (b *GetACLBuilder) WithContext(ctx context.Context) *GetACLBuilder {
	b.ctx = ctx
	return b
}

// StoringStatIn copies the node's stat into stat.
func (b *GetACLBuilder) StoringStatIn(stat *zk.Stat) *GetACLBuilder {
	b.stat = stat
	return b
}

func (b *GetACLBuilder) InBackground(callback BackgroundCallback) *GetACLBuilder {
	return b.InBackgroundWithContext(callback, nil)
}

func (b *GetACLBuilder) InBackgroundWithContext(callback BackgroundCallback, bgContext any) *GetACLBuilder {
	b.bg = backgrounding{enabled: true, callback: callback, context: bgContext}
	return b
}

// ForPath returns the ACL of path.
func (b *GetACLBuilder) ForPath(path string) ([]zk.ACL, error) {
	if !b.bg.enabled {
		acl, _, err := b.get(path)
		return acl, err
	}
	b.client.runBackground(b.bg, func() *CuratorEvent {
		acl, stat, err := b.get(path)
		return &CuratorEvent{Type: EventGetACL, Err: err, Path: path, ACL: acl, Stat: stat}
	})
	return nil, nil
}

func (b *GetACLBuilder) get(path string) ([]zk.ACL, *zk.Stat, error) {
	fixed, err := b.client.fixPath(b.ctx, path)
	if err != nil {
		return nil, nil, err
	}
	type result struct {
		acl  []zk.ACL
		stat *zk.Stat
	}
	r, err := callWithRetry(b.ctx, b.client.core.client, func(conn zookeeper.Conn) (result, error) {
		acl, stat, err := conn.GetACL(fixed)
		return result{acl, stat}, err
	})
	if err != nil {
		return nil, nil, err
	}
	if b.stat != nil && r.stat != nil {
		*b.stat = *r.stat
	}
	return r.acl, r.stat, nil
}

// SetACLBuilder replaces a node's ACL.
type SetACLBuilder struct {
	client  *Client
	ctx     context.Context
	version int32
	acl     []zk.ACL
	bg      backgrounding
}

func newSetACLBuilder(c *Client) *SetACLBuilder {
	return &SetACLBuilder{client: c, ctx: context.Background(), version: -1, acl: c.core.defaultACL}
}

func (b *SetACLBuilder) WithContext(ctx context.Context) *SetACLBuilder {
	b.ctx = ctx
	return b
}

// WithVersion sets the ACL only if the node's ACL version matches.
func (b *SetACLBuilder) WithVersion(version int32) *SetACLBuilder {
	b.version = version
	return b
}

// WithACL sets the ACL to apply.
func (b *SetACLBuilder) WithACL(acl []zk.ACL) *SetACLBuilder {
	if len(acl) > 0 {
		b.acl = acl
	}
	return b
}

func (b *SetACLBuilder) InBackground(callback BackgroundCallback) *SetACLBuilder {
	return b.InBackgroundWithContext(callback, nil)
}

func (b *SetACLBuilder) InBackgroundWithContext(callback BackgroundCallback, bgContext any) *SetACLBuilder {
	b.bg = backgrounding{enabled: true, callback: callback, context: bgContext}
	return b
}

// ForPath applies the ACL to path and returns the node's new stat.
func (b *SetACLBuilder) ForPath(path string) (*zk.Stat, error) {
	if !b.bg.enabled {
		return b.set(path)
	}
	b.client.runBackground(b.bg, func() *CuratorEvent {
		stat, err := b.set(path)
		return &CuratorEvent{Type: EventSetACL, Err: err, Path: path, Stat: stat}
	})
	return nil, nil
}

func (b *SetACLBuilder) set(path string) (*zk.Stat, error) {
	fixed, err := b.client.fixPath(b.ctx, path)
	if err != nil {
		return nil, err
	}
	return callWithRetry(b.ctx, b.client.core.client, func(conn zookeeper.Conn) (*zk.Stat, error) {
		return conn.SetACL(fixed, b.acl, b.version)
	})
}
