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
	"strings"

	"github.com/go-zookeeper/zk"
	"github.com/google/uuid"

	"github.com/tombee/zktrace/pkg/zookeeper"
)

// CreateBuilder creates a node.
type CreateBuilder struct {
	client    *Client
	ctx       context.Context
	mode      zookeeper.CreateMode
	acl       []zk.ACL
	parents   bool
	protected bool
	bg        backgrounding
}

func newCreateBuilder(c *Client) *CreateBuilder {
	return &CreateBuilder{client: c, ctx: context.Background(), acl: c.core.defaultACL}
}

// WithContext sets the context the operation runs under.
func (b *CreateBuilder) WithContext(ctx context.Context) *CreateBuilder {
	b.ctx = ctx
	return b
}

// CreatingParentsIfNeeded creates missing parent nodes as persistent nodes.
func (b *CreateBuilder) CreatingParentsIfNeeded() *CreateBuilder {
	b.parents = true
	return b
}

// WithMode sets the create mode. The default is Persistent.
func (b *CreateBuilder) WithMode(mode zookeeper.CreateMode) *CreateBuilder {
	b.mode = mode
	return b
}

// WithACL sets the node's ACL.
func (b *CreateBuilder) WithACL(acl []zk.ACL) *CreateBuilder {
	if len(acl) > 0 {
		b.acl = acl
	}
	return b
}

// WithProtection prefixes the node name with a per-call GUID so a create
// that fails with a connection loss can find the node it may have made.
func (b *CreateBuilder) WithProtection() *CreateBuilder {
	b.protected = true
	return b
}

// InBackground runs the operation asynchronously and reports it to callback,
// or to the curator listeners when callback is nil.
func (b *CreateBuilder) InBackground(callback BackgroundCallback) *CreateBuilder {
	return b.InBackgroundWithContext(callback, nil)
}

// InBackgroundWithContext is InBackground with a value copied into the event's Context.
func (b *CreateBuilder) InBackgroundWithContext(callback BackgroundCallback, bgContext any) *CreateBuilder {
	b.bg = backgrounding{enabled: true, callback: callback, context: bgContext}
	return b
}

// ForPath creates path with data and returns the created path. In
// background mode it returns "" and a nil error.
func (b *CreateBuilder) ForPath(path string, data []byte) (string, error) {
	if !b.bg.enabled {
		return b.create(path, data)
	}
	b.client.runBackground(b.bg, func() *CuratorEvent {
		created, err := b.create(path, data)
		return &CuratorEvent{Type: EventCreate, Err: err, Path: path, Name: created, Data: data}
	})
	return "", nil
}

func (b *CreateBuilder) create(path string, data []byte) (string, error) {
	fixed, err := b.client.fixPath(b.ctx, path)
	if err != nil {
		return "", err
	}

	target := fixed
	var protectedID string
	if b.protected {
		protectedID = uuid.NewString()
		parent, node := SplitPath(fixed)
		target = MakePath(parent, ProtectedPrefix+protectedID+"-"+node)
	}

	attempt := 0
	created, err := callWithRetry(b.ctx, b.client.core.client, func(conn zookeeper.Conn) (string, error) {
		attempt++
		if protectedID != "" && attempt > 1 {
			if found, ok := findProtectedNode(conn, target, protectedID); ok {
				return found, nil
			}
		}
		name, err := conn.Create(target, data, b.mode.Flags(), b.acl)
		if errors.Is(err, zk.ErrNoNode) && b.parents {
			if err := mkdirs(conn, target, false, b.client.core.defaultACL); err != nil {
				return "", err
			}
			name, err = conn.Create(target, data, b.mode.Flags(), b.acl)
		}
		return name, err
	})
	if err != nil {
		return "", err
	}
	return b.client.unfixPath(created), nil
}

// findProtectedNode looks for a child of path's parent carrying id.
func findProtectedNode(conn zookeeper.Conn, path, id string) (string, bool) {
	parent, _ := SplitPath(path)
	children, _, err := conn.Children(parent)
	if err != nil {
		return "", false
	}
	for _, child := range children {
		if strings.HasPrefix(child, ProtectedPrefix+id) {
			return MakePath(parent, child), true
		}
	}
	return "", false
}
