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

	"github.com/tombee/zktrace/pkg/zookeeper"
)

// SyncBuilder flushes the leader's state to the connected server. Sync
// always runs in the background.
type SyncBuilder struct {
	client *Client
	ctx    context.Context
	bg     backgrounding
}

func newSyncBuilder(c *Client) *SyncBuilder {
	return &SyncBuilder{client: c, ctx: context.Background(), bg: backgrounding{enabled: true}}
}

func (b *SyncBuilder) WithContext(ctx context.Context) *SyncBuilder {
	b.ctx = ctx
	return b
}

func (b *SyncBuilder) InBackground(callback BackgroundCallback) *SyncBuilder {
	return b.InBackgroundWithContext(callback, nil)
}

func (b *SyncBuilder) InBackgroundWithContext(callback BackgroundCallback, bgContext any) *SyncBuilder {
	b.bg = backgrounding{enabled: true, callback: callback, context: bgContext}
	return b
}

// ForPath schedules the sync of path.
func (b *SyncBuilder) ForPath(path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	b.client.runBackground(b.bg, func() *CuratorEvent {
		return &CuratorEvent{Type: EventSync, Err: b.sync(path), Path: path}
	})
	return nil
}

func (b *SyncBuilder) sync(path string) error {
	fixed, err := b.client.fixPath(b.ctx, path)
	if err != nil {
		return err
	}
	_, err = callWithRetry(b.ctx, b.client.core.client, func(conn zookeeper.Conn) (string, error) {
		return conn.Sync(fixed)
	})
	return err
}
