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

package framework_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	zkerrors "github.com/tombee/zktrace/pkg/errors"
	"github.com/tombee/zktrace/internal/zktest"
	"github.com/tombee/zktrace/pkg/framework"
	"github.com/tombee/zktrace/pkg/zookeeper"
)

func newTestClient(t *testing.T, opts ...framework.Option) (*framework.Client, *zktest.Server, *zktest.Factory) {
	t.Helper()
	server := zktest.NewServer()
	factory := zktest.NewFactory(server)
	opts = append([]framework.Option{
		framework.WithZookeeperFactory(factory),
		framework.WithConnectionTimeout(2 * time.Second),
	}, opts...)

	client, err := framework.NewClient("127.0.0.1:2181", framework.NewRetryNTimes(3, time.Millisecond), opts...)
	require.NoError(t, err)
	require.NoError(t, client.Start())
	t.Cleanup(func() { _ = client.Close() })
	return client, server, factory
}

func TestNewClient_Validation(t *testing.T) {
	_, err := framework.NewClient("", framework.NewRetryOneTime(time.Millisecond))
	var verr *zkerrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "connectString", verr.Field)

	_, err = framework.NewClient("localhost:2181", nil)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "retryPolicy", verr.Field)

	_, err = framework.NewClient("localhost:2181", framework.NewRetryOneTime(time.Millisecond),
		framework.WithNamespace("bad/../ns"))
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "namespace", verr.Field)
}

func TestClient_Lifecycle(t *testing.T) {
	server := zktest.NewServer()
	factory := zktest.NewFactory(server)
	client, err := framework.NewClient("127.0.0.1:2181", framework.NewRetryOneTime(time.Millisecond),
		framework.WithZookeeperFactory(factory))
	require.NoError(t, err)

	assert.Equal(t, framework.Latent, client.State())
	require.NoError(t, client.Start())
	assert.True(t, client.Started())
	assert.Error(t, client.Start())

	require.NoError(t, client.Close())
	assert.Equal(t, framework.Stopped, client.State())
	require.NoError(t, client.Close())

	require.Len(t, factory.Conns(), 1)
	assert.True(t, factory.Conns()[0].Closed())
}

func TestClient_CRUD(t *testing.T) {
	client, server, _ := newTestClient(t)

	path, err := client.Create().CreatingParentsIfNeeded().ForPath("/app/config", []byte("v1"))
	require.NoError(t, err)
	assert.Equal(t, "/app/config", path)
	assert.True(t, server.Exists("/app"))

	stat, err := client.CheckExists().ForPath("/app/config")
	require.NoError(t, err)
	require.NotNil(t, stat)

	missing, err := client.CheckExists().ForPath("/nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	var got zk.Stat
	data, err := client.GetData().StoringStatIn(&got).ForPath("/app/config")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), data)
	assert.Equal(t, int32(0), got.Version)

	_, err = client.SetData().WithVersion(0).ForPath("/app/config", []byte("v2"))
	require.NoError(t, err)
	_, err = client.SetData().WithVersion(0).ForPath("/app/config", []byte("v3"))
	assert.ErrorIs(t, err, zk.ErrBadVersion)

	children, err := client.GetChildren().ForPath("/app")
	require.NoError(t, err)
	assert.Equal(t, []string{"config"}, children)

	err = client.Delete().ForPath("/app")
	assert.ErrorIs(t, err, zk.ErrNotEmpty)
	require.NoError(t, client.Delete().DeletingChildrenIfNeeded().ForPath("/app"))
	assert.False(t, server.Exists("/app"))
}

func TestClient_CreateWithoutParentsFails(t *testing.T) {
	client, _, _ := newTestClient(t)

	_, err := client.Create().ForPath("/a/b", nil)
	assert.ErrorIs(t, err, zk.ErrNoNode)
}

func TestClient_InvalidPath(t *testing.T) {
	client, _, _ := newTestClient(t)

	for _, path := range []string{"", "relative", "/trailing/", "/a//b", "/a/./b"} {
		_, err := client.GetData().ForPath(path)
		var verr *zkerrors.ValidationError
		assert.ErrorAs(t, err, &verr, "path %q", path)
	}
}

func TestClient_Namespace(t *testing.T) {
	client, server, _ := newTestClient(t, framework.WithNamespace("svc"))
	assert.Equal(t, "svc", client.Namespace())

	path, err := client.Create().ForPath("/node", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "/node", path)
	assert.True(t, server.Exists("/svc/node"))

	root := client.NonNamespaceView()
	assert.Equal(t, "", root.Namespace())
	data, err := root.GetData().ForPath("/svc/node")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)

	other := client.UsingNamespace("other")
	_, err = other.Create().ForPath("/node", nil)
	require.NoError(t, err)
	assert.True(t, server.Exists("/other/node"))
}

func TestClient_Protection(t *testing.T) {
	client, server, _ := newTestClient(t)
	_, err := client.Create().ForPath("/locks", nil)
	require.NoError(t, err)

	server.FailNext("Create", zk.ErrConnectionClosed)
	path, err := client.Create().WithProtection().WithMode(zookeeper.EphemeralSequential).ForPath("/locks/lock-", nil)
	require.NoError(t, err)

	node := framework.NodeFromPath(path)
	assert.Contains(t, node, framework.ProtectedPrefix)
	assert.Contains(t, node, "lock-")
	assert.True(t, server.Exists(path))
}

func TestClient_RetriesTransientErrors(t *testing.T) {
	client, server, _ := newTestClient(t)

	server.FailNext("Create", zk.ErrConnectionClosed)
	server.FailNext("Create", zk.ErrConnectionClosed)
	_, err := client.Create().ForPath("/retried", nil)
	require.NoError(t, err)
	assert.True(t, server.Exists("/retried"))
}

func TestClient_RetryGivesUp(t *testing.T) {
	client, server, _ := newTestClient(t)

	for range 5 {
		server.FailNext("Exists", zk.ErrConnectionClosed)
	}
	_, err := client.CheckExists().ForPath("/x")
	assert.ErrorIs(t, err, zk.ErrConnectionClosed)
}

func TestClient_Background(t *testing.T) {
	client, _, _ := newTestClient(t)

	events := make(chan *framework.CuratorEvent, 1)
	_, err := client.Create().
		InBackgroundWithContext(func(_ framework.Framework, ev *framework.CuratorEvent) {
			events <- ev
		}, "token").
		ForPath("/bg", []byte("data"))
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, framework.EventCreate, ev.Type)
		assert.NoError(t, ev.Err)
		assert.Equal(t, "/bg", ev.Name)
		assert.Equal(t, "token", ev.Context)
	case <-time.After(2 * time.Second):
		t.Fatal("background callback not called")
	}
}

func TestClient_BackgroundToListeners(t *testing.T) {
	client, _, _ := newTestClient(t)

	events := make(chan *framework.CuratorEvent, 4)
	client.CuratorListenable().AddListener(framework.CuratorListenerFunc(
		func(_ framework.Framework, ev *framework.CuratorEvent) error {
			events <- ev
			return nil
		}))

	client.SyncPath("/", "sync-ctx")

	select {
	case ev := <-events:
		assert.Equal(t, framework.EventSync, ev.Type)
		assert.Equal(t, "sync-ctx", ev.Context)
		assert.NoError(t, ev.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener not called")
	}
}

func TestClient_Watches(t *testing.T) {
	client, _, _ := newTestClient(t)
	_, err := client.Create().ForPath("/watched", nil)
	require.NoError(t, err)

	fired := make(chan zk.Event, 1)
	_, err = client.GetData().UsingWatcher(zookeeper.WatcherFunc(func(ev zk.Event) {
		fired <- ev
	})).ForPath("/watched")
	require.NoError(t, err)

	_, err = client.SetData().ForPath("/watched", []byte("changed"))
	require.NoError(t, err)

	select {
	case ev := <-fired:
		assert.Equal(t, zk.EventNodeDataChanged, ev.Type)
		assert.Equal(t, "/watched", ev.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("watch not fired")
	}
}

func TestClient_WatchedToListeners(t *testing.T) {
	client, _, _ := newTestClient(t, framework.WithNamespace("ns"))
	_, err := client.Create().ForPath("/w", nil)
	require.NoError(t, err)

	events := make(chan *framework.CuratorEvent, 1)
	client.CuratorListenable().AddListener(framework.CuratorListenerFunc(
		func(_ framework.Framework, ev *framework.CuratorEvent) error {
			if ev.Type == framework.EventWatched {
				events <- ev
			}
			return nil
		}))

	_, err = client.GetChildren().Watched().ForPath("/w")
	require.NoError(t, err)
	_, err = client.Create().ForPath("/w/child", nil)
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, "/w", ev.Path)
		require.NotNil(t, ev.WatchedEvent)
		assert.Equal(t, zk.EventNodeChildrenChanged, ev.WatchedEvent.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("watch not delivered")
	}
}

func TestClient_Transaction(t *testing.T) {
	client, server, _ := newTestClient(t)
	_, err := client.Create().ForPath("/tx", []byte("a"))
	require.NoError(t, err)

	results, err := client.InTransaction().
		Check("/tx", 0).
		Create("/tx/child", nil, zookeeper.Persistent).
		SetData("/tx", []byte("b"), 0).
		Commit()
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, framework.OpCreate, results[1].Type)
	assert.Equal(t, "/tx/child", results[1].ResultPath)
	require.NotNil(t, results[2].ResultStat)

	_, err = client.InTransaction().
		Create("/tx/other", nil, zookeeper.Persistent).
		Check("/tx", 0).
		Commit()
	assert.ErrorIs(t, err, zk.ErrBadVersion)
	assert.False(t, server.Exists("/tx/other"))

	_, err = client.InTransaction().Commit()
	assert.Error(t, err)
}

func TestClient_ACL(t *testing.T) {
	client, _, _ := newTestClient(t)
	_, err := client.Create().ForPath("/acl", nil)
	require.NoError(t, err)

	readOnly := zk.WorldACL(zk.PermRead)
	_, err = client.SetACL().WithACL(readOnly).ForPath("/acl")
	require.NoError(t, err)

	acl, err := client.GetACL().ForPath("/acl")
	require.NoError(t, err)
	assert.Equal(t, readOnly, acl)
}

type stateRecorder struct {
	mu     sync.Mutex
	states []framework.ConnectionState
	ch     chan struct{}
}

func (r *stateRecorder) StateChanged(_ framework.Framework, s framework.ConnectionState) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *stateRecorder) wait(t *testing.T, n int) []framework.ConnectionState {
	t.Helper()
	for range n {
		select {
		case <-r.ch:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for state change")
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]framework.ConnectionState(nil), r.states...)
}

func TestClient_ConnectionStates(t *testing.T) {
	server := zktest.NewServer()
	factory := zktest.NewFactory(server)
	client, err := framework.NewClient("127.0.0.1:2181", framework.NewRetryOneTime(time.Millisecond),
		framework.WithZookeeperFactory(factory))
	require.NoError(t, err)

	rec := &stateRecorder{ch: make(chan struct{}, 8)}
	client.ConnectionStateListenable().AddListener(rec)
	require.NoError(t, client.Start())
	defer client.Close()

	assert.Equal(t, []framework.ConnectionState{framework.Connected}, rec.wait(t, 1))

	factory.Conns()[0].Disconnect()
	assert.Equal(t, []framework.ConnectionState{
		framework.Connected, framework.Suspended, framework.Reconnected,
	}, rec.wait(t, 2))

	factory.Conns()[0].Expire()
	states := rec.wait(t, 2)
	assert.Equal(t, []framework.ConnectionState{framework.Lost, framework.Reconnected}, states[3:])

	require.Eventually(t, func() bool { return len(factory.Conns()) == 2 }, 2*time.Second, 10*time.Millisecond)
	_, err = client.Create().ForPath("/after-expiry", nil)
	require.NoError(t, err)
}

func TestClient_UnhandledErrors(t *testing.T) {
	client, _, _ := newTestClient(t)

	errs := make(chan error, 1)
	client.UnhandledErrorListenable().AddListener(framework.UnhandledErrorListenerFunc(
		func(_ string, err error) { errs <- err }))
	client.CuratorListenable().AddListener(framework.CuratorListenerFunc(
		func(framework.Framework, *framework.CuratorEvent) error {
			panic("boom")
		}))

	client.SyncPath("/", nil)
	select {
	case err := <-errs:
		assert.Contains(t, err.Error(), "boom")
	case <-time.After(2 * time.Second):
		t.Fatal("unhandled error not reported")
	}
}

func TestClient_ZookeeperClient(t *testing.T) {
	client, _, _ := newTestClient(t)

	zc := client.ZookeeperClient()
	assert.Equal(t, "127.0.0.1:2181", zc.CurrentConnectionString())
	assert.Equal(t, 2*time.Second, zc.ConnectionTimeout())
	require.NoError(t, zc.BlockUntilConnected(context.Background()))
	assert.True(t, zc.IsConnected())

	conn, err := zc.ZooKeeper()
	require.NoError(t, err)
	assert.NotZero(t, conn.SessionID())
}

func TestEnsurePath(t *testing.T) {
	client, server, _ := newTestClient(t, framework.WithNamespace("ns"))

	ep := client.NewNamespaceAwareEnsurePath("/a/b/c")
	assert.Equal(t, "/ns/a/b/c", ep.Path())
	require.NoError(t, ep.ExcludingLast().Ensure(context.Background(), client.ZookeeperClient()))
	assert.True(t, server.Exists("/ns/a/b"))
	assert.False(t, server.Exists("/ns/a/b/c"))

	require.NoError(t, ep.Ensure(context.Background(), client.ZookeeperClient()))
	assert.True(t, server.Exists("/ns/a/b/c"))
	require.NoError(t, ep.Ensure(context.Background(), client.ZookeeperClient()))
}
