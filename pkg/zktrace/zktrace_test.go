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

package zktrace_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"golang.org/x/sync/errgroup"

	"github.com/tombee/zktrace/internal/introspect"
	"github.com/tombee/zktrace/internal/zktest"
	zkerrors "github.com/tombee/zktrace/pkg/errors"
	"github.com/tombee/zktrace/pkg/framework"
	"github.com/tombee/zktrace/pkg/zktrace"
)

func newRecorder(t *testing.T) (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, recorder
}

func newProxy(t *testing.T, opts ...zktrace.Option) (*zktrace.FrameworkProxy, *zktest.Server, *zktest.Factory) {
	t.Helper()
	server := zktest.NewServer()
	factory := zktest.NewFactory(server)
	opts = append([]zktrace.Option{zktrace.WithZookeeperFactory(factory)}, opts...)

	proxy, err := zktrace.NewClientWithTimeouts("127.0.0.1:2181", time.Minute, 2*time.Second,
		framework.NewRetryNTimes(3, time.Millisecond), opts...)
	require.NoError(t, err)
	require.NoError(t, proxy.Start())
	t.Cleanup(func() { _ = proxy.Close() })
	return proxy, server, factory
}

func spanNames(spans []sdktrace.ReadOnlySpan) []string {
	names := make([]string, 0, len(spans))
	for _, s := range spans {
		names = append(names, s.Name())
	}
	return names
}

func findSpan(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, s := range spans {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

type quietLogger struct{}

func (quietLogger) Printf(string, ...interface{}) {}

func offlineDialer(network, address string, timeout time.Duration) (net.Conn, error) {
	return nil, errors.New("offline")
}

// newOfflineConn returns a *zk.Conn that never reaches a server but carries
// the given session identity.
func newOfflineConn(t *testing.T, sessionID int64, passwd []byte) *zk.Conn {
	t.Helper()
	conn, _, err := zk.Connect([]string{"127.0.0.1:2181"}, 10*time.Second,
		zk.WithDialer(offlineDialer), zk.WithLogger(quietLogger{}))
	require.NoError(t, err)
	require.NoError(t, introspect.Set(conn, "Conn", "sessionID", sessionID))
	require.NoError(t, introspect.Set(conn, "Conn", "passwd", passwd))
	t.Cleanup(func() {
		// the conn may already have been closed by a clone
		quit, err := introspect.Get[chan struct{}](conn, "Conn", "shouldQuit")
		if err == nil {
			select {
			case <-quit:
				return
			default:
			}
		}
		conn.Close()
	})
	return conn
}

func TestNewClient_DefaultTimeouts(t *testing.T) {
	proxy, err := zktrace.NewClient("host:2181", framework.NewRetryOneTime(time.Millisecond))
	require.NoError(t, err)

	raw, ok := proxy.Delegate().ZookeeperClient().(*framework.ZookeeperClient)
	require.True(t, ok)
	params, err := zktrace.ExtractSessionParameters(raw)
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, params.SessionTimeout)
	assert.Equal(t, 15*time.Second, params.ConnectionTimeout)
	assert.Equal(t, "host:2181", params.ConnectString)
	assert.Nil(t, params.Conn)
}

func TestNewClient_Validation(t *testing.T) {
	retry := framework.NewRetryOneTime(time.Millisecond)

	_, err := zktrace.NewClient("", retry)
	var verr *zkerrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "connectString", verr.Field)

	_, err = zktrace.NewClientWithTimeouts("host:2181", 0, time.Second, retry)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "sessionTimeout", verr.Field)

	_, err = zktrace.NewClientWithTimeouts("host:2181", time.Second, -time.Second, retry)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "connectionTimeout", verr.Field)

	_, err = zktrace.NewClient("host:2181", nil)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "retryPolicy", verr.Field)
}

func TestWrapFramework_Nil(t *testing.T) {
	_, err := zktrace.WrapFramework(nil)
	var verr *zkerrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "delegate", verr.Field)
}

func TestFrameworkProxy_Forwards(t *testing.T) {
	proxy, server, _ := newProxy(t)
	delegate := proxy.Delegate()

	assert.Equal(t, delegate.State(), proxy.State())
	assert.Equal(t, delegate.Started(), proxy.Started())
	assert.Equal(t, delegate.Namespace(), proxy.Namespace())
	assert.Same(t, delegate.ConnectionStateListenable(), proxy.ConnectionStateListenable())
	assert.Same(t, delegate.CuratorListenable(), proxy.CuratorListenable())
	assert.Same(t, delegate.UnhandledErrorListenable(), proxy.UnhandledErrorListenable())
	assert.Equal(t, delegate.UsingNamespace("app"), proxy.UsingNamespace("app"))
	assert.Equal(t, delegate.NonNamespaceView(), proxy.NonNamespaceView())
	assert.Equal(t, delegate.NewNamespaceAwareEnsurePath("/a/b").Path(), proxy.NewNamespaceAwareEnsurePath("/a/b").Path())

	_, err := proxy.Create().CreatingParentsIfNeeded().ForPath("/a/b", []byte("v1"))
	require.NoError(t, err)
	data, err := delegate.GetData().ForPath("/a/b")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), data)

	_, err = proxy.SetData().ForPath("/a/b", []byte("v2"))
	require.NoError(t, err)
	stored, ok := server.Data("/a/b")
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), stored)

	children, err := proxy.GetChildren().ForPath("/a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, children)

	_, err = proxy.Create().ForPath("/a/b", nil)
	assert.ErrorIs(t, err, zk.ErrNodeExists)

	require.NoError(t, proxy.Delete().DeletingChildrenIfNeeded().ForPath("/a"))
	stat, err := proxy.CheckExists().ForPath("/a")
	require.NoError(t, err)
	assert.Nil(t, stat)
}

func TestFrameworkProxy_DispatcherSpanPerCall(t *testing.T) {
	tp, recorder := newRecorder(t)
	proxy, _, _ := newProxy(t, zktrace.WithTracerProvider(tp))

	calls := []struct {
		name string
		call func()
	}{
		{"zookeeper.framework.state", func() { proxy.State() }},
		{"zookeeper.framework.started", func() { proxy.Started() }},
		{"zookeeper.framework.create", func() { proxy.Create() }},
		{"zookeeper.framework.delete", func() { proxy.Delete() }},
		{"zookeeper.framework.check_exists", func() { proxy.CheckExists() }},
		{"zookeeper.framework.get_data", func() { proxy.GetData() }},
		{"zookeeper.framework.set_data", func() { proxy.SetData() }},
		{"zookeeper.framework.get_children", func() { proxy.GetChildren() }},
		{"zookeeper.framework.get_acl", func() { proxy.GetACL() }},
		{"zookeeper.framework.set_acl", func() { proxy.SetACL() }},
		{"zookeeper.framework.sync", func() { proxy.Sync() }},
		{"zookeeper.framework.in_transaction", func() { proxy.InTransaction() }},
		{"zookeeper.framework.namespace", func() { proxy.Namespace() }},
		{"zookeeper.framework.using_namespace", func() { proxy.UsingNamespace("app") }},
		{"zookeeper.framework.non_namespace_view", func() { proxy.NonNamespaceView() }},
		{"zookeeper.framework.connection_state_listenable", func() { proxy.ConnectionStateListenable() }},
		{"zookeeper.framework.curator_listenable", func() { proxy.CuratorListenable() }},
		{"zookeeper.framework.unhandled_error_listenable", func() { proxy.UnhandledErrorListenable() }},
		{"zookeeper.framework.new_namespace_aware_ensure_path", func() { proxy.NewNamespaceAwareEnsurePath("/p") }},
		{"zookeeper.framework.sync_path", func() { proxy.SyncPath("/", nil) }},
		{"zookeeper.framework.zookeeper_client", func() {
			client := proxy.ZookeeperClient()
			t.Cleanup(func() { _ = client.Close() })
		}},
		{"zookeeper.framework.start", func() { _ = proxy.Start() }},
		{"zookeeper.framework.close", func() { _ = proxy.Close() }},
	}

	for _, tc := range calls {
		t.Run(tc.name, func(t *testing.T) {
			before := len(recorder.Ended())
			tc.call()
			ended := recorder.Ended()
			require.Len(t, ended, before+1)
			assert.Equal(t, tc.name, ended[len(ended)-1].Name())
		})
	}
}

func TestFrameworkProxy_DispatcherSpanStatus(t *testing.T) {
	tp, recorder := newRecorder(t)
	factory := zktest.NewFactory(zktest.NewServer())
	factory.FailWith(zk.ErrNoServer)

	proxy, err := zktrace.NewClientWithTimeouts("127.0.0.1:2181", time.Minute, 50*time.Millisecond,
		framework.NewRetryOneTime(time.Millisecond),
		zktrace.WithZookeeperFactory(factory), zktrace.WithTracerProvider(tp))
	require.NoError(t, err)
	defer proxy.Close()

	startErr := proxy.Start()
	require.Error(t, startErr)
	start := findSpan(recorder.Ended(), "zookeeper.framework.start")
	require.NotNil(t, start)
	assert.Equal(t, codes.Error, start.Status().Code)
	assert.Equal(t, startErr.Error(), start.Status().Description)
	require.NotEmpty(t, start.Events())
	assert.Equal(t, "exception", start.Events()[0].Name)

	proxy.State()
	state := findSpan(recorder.Ended(), "zookeeper.framework.state")
	require.NotNil(t, state)
	assert.Equal(t, codes.Unset, state.Status().Code)
	assert.Empty(t, state.Events())
}

func TestFrameworkProxy_CreateUnderActiveTrace(t *testing.T) {
	tp, recorder := newRecorder(t)
	proxy, server, _ := newProxy(t, zktrace.WithTracerProvider(tp))

	ctx, root := tp.Tracer("test").Start(context.Background(), "request")
	_, err := proxy.WithContext(ctx).Create().WithContext(ctx).ForPath("/x", []byte("data"))
	root.End()
	require.NoError(t, err)

	spans := recorder.Ended()
	dispatcher := findSpan(spans, "zookeeper.framework.create")
	require.NotNil(t, dispatcher, "spans: %v", spanNames(spans))
	create := findSpan(spans, "zookeeper.create")
	require.NotNil(t, create, "spans: %v", spanNames(spans))

	assert.Equal(t, root.SpanContext().SpanID(), dispatcher.Parent().SpanID())
	assert.Equal(t, root.SpanContext().SpanID(), create.Parent().SpanID())
	assert.Contains(t, create.Attributes(), zktrace.AttrPath.String("/x"))
	assert.Contains(t, create.Attributes(), zktrace.AttrDBSystem.String("zookeeper"))

	var call *zktest.Call
	for _, c := range server.Calls() {
		if c.Op == "Create" && c.Path == "/x" {
			call = &c
		}
	}
	require.NotNil(t, call)
	assert.False(t, create.StartTime().After(call.Start))
	assert.False(t, create.EndTime().Before(call.End))
}

func TestFrameworkProxy_NoOrdinarySpansWithoutParent(t *testing.T) {
	tp, recorder := newRecorder(t)
	proxy, _, _ := newProxy(t, zktrace.WithTracerProvider(tp))

	_, err := proxy.Create().ForPath("/untraced", nil)
	require.NoError(t, err)

	spans := recorder.Ended()
	assert.NotNil(t, findSpan(spans, "zookeeper.framework.create"))
	assert.Nil(t, findSpan(spans, "zookeeper.create"))
}

func TestFrameworkProxy_ZookeeperClientClones(t *testing.T) {
	proxy, _, _ := newProxy(t)

	raw, ok := proxy.Delegate().ZookeeperClient().(*framework.ZookeeperClient)
	require.True(t, ok)
	rawConn, err := raw.ZooKeeper()
	require.NoError(t, err)
	donorSession := rawConn.SessionID()

	first, ok := proxy.ZookeeperClient().(*zktrace.TracedClient)
	require.True(t, ok, "expected a traced session client")
	t.Cleanup(func() { _ = first.Close() })
	assert.NotSame(t, raw, first.ZookeeperClient)
	assert.Equal(t, donorSession, first.SessionID())
	assert.False(t, raw.Started())

	conn, err := first.ZooKeeper()
	require.NoError(t, err)
	assert.IsType(t, &zktrace.TracedConn{}, conn)

	second, ok := proxy.ZookeeperClient().(*zktrace.TracedClient)
	require.True(t, ok, "expected a traced session client")
	t.Cleanup(func() { _ = second.Close() })
	assert.NotSame(t, first, second)
	assert.NotSame(t, first.ZookeeperClient, second.ZookeeperClient)
	assert.False(t, raw.Started())
}

func TestFrameworkProxy_ZookeeperClientFallsBack(t *testing.T) {
	proxy, _, _ := newProxy(t)
	raw := proxy.Delegate().ZookeeperClient()

	restore := introspect.SetPolicy(introspect.Deny("connectionState", "parentWatchers"))
	defer restore()

	var got framework.SessionClient
	require.NotPanics(t, func() { got = proxy.ZookeeperClient() })
	assert.Same(t, raw, got)
	assert.True(t, raw.Started())

	_, err := proxy.TracedZookeeperClient()
	require.Error(t, err)
	assert.True(t, zkerrors.IsRecoverable(err))
	var drift *zkerrors.StructuralDriftError
	require.ErrorAs(t, err, &drift)
	assert.Equal(t, "parentWatchers", drift.Field)
	assert.Equal(t, zkerrors.DriftAccessDenied, drift.Reason)
}

var errEnsembleClose = errors.New("ensemble close failed")

// closeFailingEnsemble fails Close, which a clone reaches only after the
// donor's session has been closed.
type closeFailingEnsemble struct {
	*framework.FixedEnsembleProvider
}

func (closeFailingEnsemble) Close() error { return errEnsembleClose }

func TestFrameworkProxy_DonorCloseFailureSurfaces(t *testing.T) {
	tp, recorder := newRecorder(t)
	ensemble := closeFailingEnsemble{framework.NewFixedEnsembleProvider("127.0.0.1:2181")}
	proxy, _, _ := newProxy(t, zktrace.WithTracerProvider(tp),
		zktrace.WithFrameworkOptions(framework.WithEnsembleProvider(ensemble)))
	raw := proxy.Delegate().ZookeeperClient()

	_, err := proxy.TracedZookeeperClient()
	var cloneErr *zkerrors.CloneError
	require.ErrorAs(t, err, &cloneErr)
	assert.Equal(t, zktrace.StageCloseDonor, cloneErr.Stage)
	assert.True(t, cloneErr.DonorClosed)
	assert.False(t, zkerrors.IsRecoverable(err))
	assert.ErrorIs(t, err, errEnsembleClose)
	assert.False(t, raw.Started())

	span := findSpan(recorder.Ended(), "zookeeper.framework.zookeeper_client")
	require.NotNil(t, span)
	assert.Equal(t, codes.Error, span.Status().Code)
}

func TestFrameworkProxy_FallbackSpanAttribute(t *testing.T) {
	tp, recorder := newRecorder(t)
	proxy, _, _ := newProxy(t, zktrace.WithTracerProvider(tp))

	restore := introspect.SetPolicy(introspect.Deny("connectionState", "parentWatchers"))
	defer restore()

	assert.Same(t, proxy.Delegate().ZookeeperClient(), proxy.ZookeeperClient())
	span := findSpan(recorder.Ended(), "zookeeper.framework.zookeeper_client")
	require.NotNil(t, span)
	assert.Equal(t, codes.Unset, span.Status().Code)
	assert.Contains(t, span.Attributes(), zktrace.AttrFallback.Bool(true))
}

func TestFrameworkProxy_ConcurrentZookeeperClient(t *testing.T) {
	proxy, _, _ := newProxy(t)
	raw := proxy.Delegate().ZookeeperClient()

	const workers = 8
	clients := make([]framework.SessionClient, workers)
	var g errgroup.Group
	for i := range workers {
		g.Go(func() error {
			clients[i] = proxy.ZookeeperClient()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[framework.SessionClient]bool, workers)
	for _, client := range clients {
		require.NotNil(t, client)
		t.Cleanup(func() { _ = client.Close() })
		traced, ok := client.(*zktrace.TracedClient)
		require.True(t, ok, "expected a traced session client, got %T", client)
		assert.False(t, seen[traced], "clients must be distinct")
		seen[traced] = true
	}
	assert.False(t, raw.Started())
}

func TestCloneClient_EmptyParentWatchers(t *testing.T) {
	server := zktest.NewServer()
	factory := zktest.NewFactory(server)
	donor, err := framework.NewZookeeperClientWithFactory(factory, framework.NewFixedEnsembleProvider("127.0.0.1:2181"),
		time.Minute, time.Second, nil, framework.NewRetryOneTime(time.Millisecond), false)
	require.NoError(t, err)
	require.NoError(t, donor.Start())
	donorConn, err := donor.ZooKeeper()
	require.NoError(t, err)

	clone, err := zktrace.CloneClient(donor)
	require.NoError(t, err)
	defer clone.Close()

	params, err := zktrace.ExtractSessionParameters(clone.ZookeeperClient)
	require.NoError(t, err)
	assert.Nil(t, params.DefaultWatcher)
	assert.Equal(t, time.Minute, params.SessionTimeout)
	assert.Equal(t, time.Second, params.ConnectionTimeout)
	assert.Equal(t, donorConn.SessionID(), clone.SessionID())
	assert.False(t, donor.Started())
}

func TestCloneClient_NeverStarted(t *testing.T) {
	factory := zktest.NewFactory(zktest.NewServer())
	donor, err := framework.NewZookeeperClientWithFactory(factory, framework.NewFixedEnsembleProvider("127.0.0.1:2181"),
		time.Minute, time.Second, nil, framework.NewRetryOneTime(time.Millisecond), false)
	require.NoError(t, err)

	_, err = zktrace.CloneClient(donor)
	var unusable *zkerrors.DonorUnusableError
	require.ErrorAs(t, err, &unusable)
	assert.True(t, zkerrors.IsRecoverable(err))
	assert.Empty(t, factory.Conns())
}

func TestCloneClient_StartFailureKeepsDonor(t *testing.T) {
	server := zktest.NewServer()
	factory := zktest.NewFactory(server)
	donor, err := framework.NewZookeeperClientWithFactory(factory, framework.NewFixedEnsembleProvider("127.0.0.1:2181"),
		time.Minute, time.Second, nil, framework.NewRetryOneTime(time.Millisecond), false)
	require.NoError(t, err)
	require.NoError(t, donor.Start())
	defer donor.Close()

	donorConn, err := donor.ZooKeeper()
	require.NoError(t, err)
	// a closed donor session cannot be resumed, so the clone opens a new one
	donorConn.Close()
	factory.FailWith(zk.ErrNoServer)

	_, err = zktrace.CloneClient(donor)
	var cloneErr *zkerrors.CloneError
	require.ErrorAs(t, err, &cloneErr)
	assert.Equal(t, zktrace.StageStart, cloneErr.Stage)
	assert.False(t, cloneErr.DonorClosed)
	assert.True(t, zkerrors.IsRecoverable(err))
	assert.True(t, donor.Started())
}

func TestCloneClient_ResumesLiveSession(t *testing.T) {
	donor, err := framework.NewZookeeperClientWithFactory(
		framework.DefaultZookeeperFactory{Dialer: offlineDialer},
		framework.NewFixedEnsembleProvider("127.0.0.1:2181"),
		10*time.Second, time.Second, nil, framework.NewRetryOneTime(time.Millisecond), false)
	require.NoError(t, err)
	require.NoError(t, donor.Start())

	conn, err := donor.ZooKeeper()
	require.NoError(t, err)
	donorConn, ok := conn.(*zk.Conn)
	require.True(t, ok)
	passwd := []byte("0123456789abcdef")
	require.NoError(t, introspect.Set(donorConn, "Conn", "sessionID", int64(0x1234)))
	require.NoError(t, introspect.Set(donorConn, "Conn", "passwd", passwd))

	clone, err := zktrace.CloneClient(donor)
	require.NoError(t, err)
	defer clone.Close()

	assert.False(t, donor.Started())
	assert.Equal(t, int64(0x1234), clone.SessionID())

	cloneConn, err := clone.ZooKeeper()
	require.NoError(t, err)
	traced, ok := cloneConn.(*zktrace.TracedConn)
	require.True(t, ok)
	inner, ok := traced.Unwrap().(*zk.Conn)
	require.True(t, ok)
	got, err := introspect.Get[[]byte](inner, "Conn", "passwd")
	require.NoError(t, err)
	assert.Equal(t, passwd, got)
}

func TestCloneConn(t *testing.T) {
	passwd := []byte("fedcba9876543210")
	donor := newOfflineConn(t, 0x5678, passwd)

	clone, err := zktrace.CloneConn(donor, "127.0.0.1:2181")
	require.NoError(t, err)
	defer clone.Close()

	assert.Equal(t, int64(0x5678), clone.SessionID())
	inner, ok := clone.Unwrap().(*zk.Conn)
	require.True(t, ok)
	got, err := introspect.Get[[]byte](inner, "Conn", "passwd")
	require.NoError(t, err)
	assert.Equal(t, passwd, got)
	timeoutMs, err := introspect.Get[int32](inner, "Conn", "sessionTimeoutMs")
	require.NoError(t, err)
	assert.Equal(t, int32(10000), timeoutMs)

	_, err = zktrace.ExtractConnParameters(donor)
	var unusable *zkerrors.DonorUnusableError
	assert.ErrorAs(t, err, &unusable, "donor should be closed")
}

func TestCloneConn_Unusable(t *testing.T) {
	noSession := newOfflineConn(t, 0, nil)
	_, err := zktrace.CloneConn(noSession, "127.0.0.1:2181")
	var unusable *zkerrors.DonorUnusableError
	require.ErrorAs(t, err, &unusable)
	assert.True(t, zkerrors.IsRecoverable(err))

	donor := newOfflineConn(t, 0x99, []byte("pw"))
	_, err = zktrace.CloneConn(donor, "")
	var verr *zkerrors.ValidationError
	require.ErrorAs(t, err, &verr)
	params, err := zktrace.ExtractConnParameters(donor)
	require.NoError(t, err, "donor must stay open")
	assert.Equal(t, int64(0x99), params.SessionID)
}

func TestExtractConnParameters_Drift(t *testing.T) {
	donor := newOfflineConn(t, 0x77, []byte("pw"))

	restore := introspect.SetPolicy(introspect.Deny("Conn", "passwd"))
	defer restore()

	_, err := zktrace.ExtractConnParameters(donor)
	var drift *zkerrors.StructuralDriftError
	require.ErrorAs(t, err, &drift)
	assert.Equal(t, "passwd", drift.Field)
}
