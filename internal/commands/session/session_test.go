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

package session_test

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tombee/zktrace/internal/commands/session"
	"github.com/tombee/zktrace/internal/commands/shared"
	"github.com/tombee/zktrace/internal/zktest"
	"github.com/tombee/zktrace/pkg/framework"
)

func setup(t *testing.T) (*zktest.Factory, *tracetest.SpanRecorder) {
	t.Helper()
	prevTP, prevMP, prevProp := otel.GetTracerProvider(), otel.GetMeterProvider(), otel.GetTextMapPropagator()

	factory := zktest.NewFactory(zktest.NewServer())
	recorder := tracetest.NewSpanRecorder()
	restore := shared.SetHooks(shared.Hooks{
		Factory:       factory,
		TracerOptions: []sdktrace.TracerProviderOption{sdktrace.WithSpanProcessor(recorder)},
		RetryPolicy:   framework.NewRetryNTimes(1, time.Millisecond),
	})
	t.Cleanup(func() {
		restore()
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
		otel.SetTextMapPropagator(prevProp)
	})
	return factory, recorder
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "zkctl", SilenceUsage: true, SilenceErrors: true}
	shared.RegisterFlags(root.PersistentFlags())
	root.AddCommand(session.NewCommand())

	var out, logs bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&logs)
	root.SetArgs(append([]string{"session"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestSessionResumesDonor(t *testing.T) {
	factory, recorder := setup(t)

	out, err := run(t, "--json")
	require.NoError(t, err)

	var resp struct {
		Success  bool           `json:"success"`
		Sessions []session.Info `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.True(t, resp.Success)
	require.Len(t, resp.Sessions, 1)

	info := resp.Sessions[0]
	assert.NotZero(t, info.SessionID)
	assert.Equal(t, info.DonorID, info.SessionID)
	assert.True(t, info.Resumed)
	assert.Equal(t, shared.DefaultServers, info.ConnectString)

	conns := factory.Conns()
	require.Len(t, conns, 2)
	for _, c := range conns {
		assert.True(t, c.Closed())
	}

	var cloned bool
	for _, s := range recorder.Ended() {
		if s.Name() == "zookeeper.framework.zookeeper_client" {
			cloned = true
		}
	}
	assert.True(t, cloned)
}

func TestSessionParallel(t *testing.T) {
	factory, _ := setup(t)

	out, err := run(t, "--parallel", "3")
	require.NoError(t, err)
	assert.Equal(t, 3, bytes.Count([]byte(out), []byte("resumed=true")), out)

	// one donor and one clone per client
	assert.Len(t, factory.Conns(), 6)
}

func TestSessionRejectsBadParallel(t *testing.T) {
	setup(t)

	_, err := run(t, "--parallel", "0")
	require.Error(t, err)
	assert.Equal(t, shared.ExitUsage, shared.ExitCode(err))
}

func TestSessionConnectFailure(t *testing.T) {
	factory, _ := setup(t)
	factory.FailWith(assert.AnError)

	_, err := run(t, "--connection-timeout", "50ms")
	require.Error(t, err)
	assert.Equal(t, shared.ExitConnection, shared.ExitCode(err))
}
