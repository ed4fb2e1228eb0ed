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
	"sync"
	"testing"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/tombee/zktrace/internal/introspect"
	"github.com/tombee/zktrace/internal/zktest"
	"github.com/tombee/zktrace/pkg/framework"
	"github.com/tombee/zktrace/pkg/zktrace"
	"github.com/tombee/zktrace/pkg/zookeeper"
)

func TestTracedConn_SpanPerOperation(t *testing.T) {
	tp, recorder := newRecorder(t)
	server := zktest.NewServer()
	conn := zktrace.NewTracedConn(server.Connect(nil), zktrace.WithTracerProvider(tp), zktrace.WithServiceName("orders"))
	defer conn.Close()

	ctx, root := tp.Tracer("test").Start(context.Background(), "request")
	defer root.End()
	traced := conn.WithContext(ctx)
	acl := zk.WorldACL(zk.PermAll)

	ops := []struct {
		span string
		call func() error
	}{
		{"zookeeper.create", func() error { _, err := traced.Create("/n", []byte("a"), 0, acl); return err }},
		{"zookeeper.exists", func() error { _, _, err := traced.Exists("/n"); return err }},
		{"zookeeper.exists", func() error { _, _, _, err := traced.ExistsW("/n"); return err }},
		{"zookeeper.get_data", func() error { _, _, err := traced.Get("/n"); return err }},
		{"zookeeper.get_data", func() error { _, _, _, err := traced.GetW("/n"); return err }},
		{"zookeeper.set_data", func() error { _, err := traced.Set("/n", []byte("b"), -1); return err }},
		{"zookeeper.get_children", func() error { _, _, err := traced.Children("/"); return err }},
		{"zookeeper.get_children", func() error { _, _, _, err := traced.ChildrenW("/"); return err }},
		{"zookeeper.get_acl", func() error { _, _, err := traced.GetACL("/n"); return err }},
		{"zookeeper.set_acl", func() error { _, err := traced.SetACL("/n", acl, -1); return err }},
		{"zookeeper.sync", func() error { _, err := traced.Sync("/n"); return err }},
		{"zookeeper.multi", func() error {
			_, err := traced.Multi(&zk.CheckVersionRequest{Path: "/n", Version: -1})
			return err
		}},
		{"zookeeper.delete", func() error { return traced.Delete("/n", -1) }},
	}

	for _, op := range ops {
		before := len(recorder.Ended())
		require.NoError(t, op.call(), op.span)
		ended := recorder.Ended()
		require.Len(t, ended, before+1, op.span)
		span := ended[len(ended)-1]
		assert.Equal(t, op.span, span.Name())
		assert.Equal(t, root.SpanContext().SpanID(), span.Parent().SpanID())
		assert.Contains(t, span.Attributes(), zktrace.AttrSessionID.Int64(conn.SessionID()))
		assert.Contains(t, span.Attributes(), zktrace.AttrPeerService.String("orders"))
	}
}

func TestTracedConn_ErrorsPassThrough(t *testing.T) {
	tp, recorder := newRecorder(t)
	server := zktest.NewServer()
	conn := zktrace.NewTracedConn(server.Connect(nil), zktrace.WithTracerProvider(tp))
	defer conn.Close()

	ctx, root := tp.Tracer("test").Start(context.Background(), "request")
	defer root.End()

	_, _, err := conn.WithContext(ctx).Get("/missing")
	assert.Equal(t, zk.ErrNoNode, err)

	span := findSpan(recorder.Ended(), "zookeeper.get_data")
	require.NotNil(t, span)
	assert.Equal(t, codes.Error, span.Status().Code)
	require.NotEmpty(t, span.Events())
	assert.Equal(t, "exception", span.Events()[0].Name)
}

func TestTracedConn_NoParentNoSpan(t *testing.T) {
	tp, recorder := newRecorder(t)
	conn := zktrace.NewTracedConn(zktest.NewServer().Connect(nil), zktrace.WithTracerProvider(tp))
	defer conn.Close()

	_, err := conn.Create("/n", nil, 0, zk.WorldACL(zk.PermAll))
	require.NoError(t, err)
	assert.Empty(t, recorder.Ended())
	assert.Equal(t, context.Background(), conn.Context())
}

func TestTracedConn_BindContext(t *testing.T) {
	conn := zktrace.NewTracedConn(zktest.NewServer().Connect(nil))
	defer conn.Close()

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")
	bound := zookeeper.WithContext(conn, ctx)
	traced, ok := bound.(*zktrace.TracedConn)
	require.True(t, ok)
	assert.Equal(t, ctx, traced.Context())
	assert.Equal(t, context.Background(), conn.Context())
	assert.Equal(t, conn.SessionID(), traced.SessionID())
}

func TestTracedConn_CallbacksInOrder(t *testing.T) {
	server := zktest.NewServer()
	conn := zktrace.NewTracedConn(server.Connect(nil))
	defer conn.Close()
	acl := zk.WorldACL(zk.PermAll)

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	record := func(i int) {
		mu.Lock()
		order = append(order, i)
		mu.Unlock()
		wg.Done()
	}

	const n = 50
	wg.Add(n * 3)
	for i := 0; i < n; i++ {
		conn.CreateAsync("/seq-", nil, zookeeper.PersistentSequential, acl, func(err error, path string, ctx any, name string) {
			assert.NoError(t, err)
			record(ctx.(int))
		}, 3*i)
		conn.ExistsAsync("/", func(err error, path string, ctx any, stat *zk.Stat) {
			assert.NoError(t, err)
			assert.NotNil(t, stat)
			record(ctx.(int))
		}, 3*i+1)
		conn.ChildrenAsync("/", func(err error, path string, ctx any, children []string, stat *zk.Stat) {
			assert.NoError(t, err)
			assert.Len(t, children, i+1)
			record(ctx.(int))
		}, 3*i+2)
	}
	wg.Wait()

	require.Len(t, order, 3*n)
	for i, got := range order {
		assert.Equal(t, i, got)
	}
}

func TestTracedConn_AsyncForms(t *testing.T) {
	server := zktest.NewServer()
	conn := zktrace.NewTracedConn(server.Connect(nil))
	defer conn.Close()
	acl := zk.WorldACL(zk.PermAll)

	done := make(chan struct{}, 16)
	conn.CreateAsync("/a", []byte("1"), zookeeper.Persistent, acl, func(err error, path string, ctx any, name string) {
		assert.NoError(t, err)
		assert.Equal(t, "/a", name)
		assert.Equal(t, "create", ctx)
		done <- struct{}{}
	}, "create")
	conn.SetAsync("/a", []byte("2"), -1, func(err error, path string, ctx any, stat *zk.Stat) {
		assert.NoError(t, err)
		assert.Equal(t, int32(1), stat.Version)
		done <- struct{}{}
	}, nil)
	conn.GetAsync("/a", func(err error, path string, ctx any, data []byte, stat *zk.Stat) {
		assert.NoError(t, err)
		assert.Equal(t, []byte("2"), data)
		done <- struct{}{}
	}, nil)
	conn.GetACLAsync("/a", func(err error, path string, ctx any, got []zk.ACL, stat *zk.Stat) {
		assert.NoError(t, err)
		assert.Equal(t, acl, got)
		done <- struct{}{}
	}, nil)
	conn.SetACLAsync("/a", acl, -1, func(err error, path string, ctx any, stat *zk.Stat) {
		assert.NoError(t, err)
		done <- struct{}{}
	}, nil)
	conn.SyncAsync("/a", func(err error, path string, ctx any, name string) {
		assert.NoError(t, err)
		done <- struct{}{}
	}, nil)
	conn.DeleteAsync("/a", -1, func(err error, path string, ctx any) {
		assert.NoError(t, err)
		done <- struct{}{}
	}, nil)
	conn.ExistsAsync("/a", func(err error, path string, ctx any, stat *zk.Stat) {
		assert.NoError(t, err)
		assert.Nil(t, stat)
		done <- struct{}{}
	}, nil)

	for i := 0; i < 8; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("callback %d not delivered", i)
		}
	}
	assert.False(t, server.Exists("/a"))
}

func TestTracedConn_WatcherForms(t *testing.T) {
	server := zktest.NewServer()
	conn := zktrace.NewTracedConn(server.Connect(nil))
	defer conn.Close()

	events := make(chan zk.Event, 2)
	watcher := zookeeper.WatcherFunc(func(ev zk.Event) { events <- ev })
	registered := make(chan struct{}, 1)

	conn.ExistsWAsync("/w", watcher, func(err error, path string, ctx any, stat *zk.Stat) {
		assert.NoError(t, err)
		assert.Nil(t, stat)
		registered <- struct{}{}
	}, nil)
	<-registered

	_, err := conn.Create("/w", nil, 0, zk.WorldACL(zk.PermAll))
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, zk.EventNodeCreated, ev.Type)
		assert.Equal(t, "/w", ev.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("watch not delivered")
	}
}

func TestTracedConn_CloseRejectsCallbacks(t *testing.T) {
	server := zktest.NewServer()
	conn := zktrace.NewTracedConn(server.Connect(nil))
	conn.Close()
	conn.Close()

	got := make(chan error, 1)
	conn.DeleteAsync("/a", -1, func(err error, path string, ctx any) { got <- err }, nil)
	assert.Equal(t, zk.ErrClosing, <-got)
}

func TestTracedConn_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	conn := zktrace.NewTracedConn(zktest.NewServer().Connect(nil), zktrace.WithMeterProvider(mp))
	_, err := conn.Create("/m", nil, 0, zk.WorldACL(zk.PermAll))
	require.NoError(t, err)
	_, err = conn.Create("/m", nil, 0, zk.WorldACL(zk.PermAll))
	require.ErrorIs(t, err, zk.ErrNodeExists)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "zookeeper_operations_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				status, _ := dp.Attributes.Value(attribute.Key("status"))
				counts[status.AsString()] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(1), counts["ok"])
	assert.Equal(t, int64(1), counts["error"])
	conn.Close()
}

func tracedSessions(t *testing.T, reader *sdkmetric.ManualReader) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "zookeeper_traced_sessions" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestTracedConn_SessionCountSurvivesHandshake(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	// not yet connected, so the session id is still zero
	raw := newOfflineConn(t, 0, nil)
	conn := zktrace.NewTracedConn(raw, zktrace.WithMeterProvider(mp))
	other := zktrace.NewTracedConn(zktest.NewServer().Connect(nil), zktrace.WithMeterProvider(mp))
	assert.Equal(t, int64(2), tracedSessions(t, reader))

	require.NoError(t, introspect.Set(raw, "Conn", "sessionID", int64(0x42)))
	conn.Close()
	conn.Close()
	assert.Equal(t, int64(1), tracedSessions(t, reader))

	other.Close()
	assert.Equal(t, int64(0), tracedSessions(t, reader))
}

func TestFrameworkProxy_CloneMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	proxy, _, _ := newProxy(t, zktrace.WithMeterProvider(mp))
	client, ok := proxy.ZookeeperClient().(*zktrace.TracedClient)
	require.True(t, ok)
	defer client.Close()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	results := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "zookeeper_clones_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				result, _ := dp.Attributes.Value(attribute.Key("result"))
				results[result.AsString()] += dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{"traced": 1}, results)
}

func TestTracedClient_WithContext(t *testing.T) {
	tp, recorder := newRecorder(t)
	server := zktest.NewServer()
	factory := zktest.NewFactory(server)
	donor, err := framework.NewZookeeperClientWithFactory(factory, framework.NewFixedEnsembleProvider("127.0.0.1:2181"),
		time.Minute, time.Second, nil, framework.NewRetryOneTime(time.Millisecond), false)
	require.NoError(t, err)
	require.NoError(t, donor.Start())

	client, err := zktrace.CloneClient(donor, zktrace.WithTracerProvider(tp))
	require.NoError(t, err)
	defer client.Close()

	ctx, root := tp.Tracer("test").Start(context.Background(), "request")
	conn, err := client.WithContext(ctx).ZooKeeper()
	require.NoError(t, err)
	_, err = conn.Create("/c", nil, 0, zk.WorldACL(zk.PermAll))
	require.NoError(t, err)
	root.End()

	span := findSpan(recorder.Ended(), "zookeeper.create")
	require.NotNil(t, span)
	assert.Equal(t, root.SpanContext().TraceID(), span.SpanContext().TraceID())
}
