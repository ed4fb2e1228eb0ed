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

package shared

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/term"

	"github.com/tombee/zktrace/internal/config"
	zklog "github.com/tombee/zktrace/internal/log"
	"github.com/tombee/zktrace/internal/tracing"
	"github.com/tombee/zktrace/pkg/framework"
	"github.com/tombee/zktrace/pkg/zktrace"
)

const (
	tracerName      = "github.com/tombee/zktrace/zkctl"
	shutdownTimeout = 5 * time.Second
)

// Hooks replace parts of the session setup. Tests use them to run commands
// against an in-memory ensemble and to record spans.
type Hooks struct {
	Factory       framework.ZookeeperFactory
	TracerOptions []sdktrace.TracerProviderOption
	RetryPolicy   framework.RetryPolicy
}

var (
	hooksMu sync.Mutex
	hooks   Hooks
)

// SetHooks installs h and returns a function restoring the previous hooks.
func SetHooks(h Hooks) (restore func()) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	prev := hooks
	hooks = h
	return func() {
		hooksMu.Lock()
		defer hooksMu.Unlock()
		hooks = prev
	}
}

func currentHooks() Hooks {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	return hooks
}

// ApplyProperties stores every -D assignment as a process property and
// re-reads the default timeouts so they see the new values.
func ApplyProperties(assignments []string) error {
	for _, a := range assignments {
		key, value, err := config.ParseAssignment(a)
		if err != nil {
			return NewUsageError("invalid -D flag", err)
		}
		config.Set(key, value)
	}
	if len(assignments) > 0 {
		zktrace.ReloadDefaults()
	}
	return nil
}

// ResolveServers returns the ensemble from --server, then ZOOKEEPER_SERVERS,
// then DefaultServers.
func ResolveServers() string {
	if s := strings.TrimSpace(globals.Servers); s != "" {
		return s
	}
	if s := strings.TrimSpace(os.Getenv("ZOOKEEPER_SERVERS")); s != "" {
		return s
	}
	return DefaultServers
}

// NewLogger builds the command logger. Flags override the environment. Text
// output is used when no format is configured and w is a terminal.
func NewLogger(w io.Writer) *slog.Logger {
	cfg := zklog.FromEnv()
	cfg.Output = w
	if os.Getenv("LOG_FORMAT") == "" {
		cfg.Format = zklog.FormatJSON
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			cfg.Format = zklog.FormatText
		}
	}
	if globals.LogLevel != "" {
		cfg.Level = strings.ToLower(globals.LogLevel)
	}
	if globals.LogFormat != "" {
		cfg.Format = zklog.Format(strings.ToLower(globals.LogFormat))
	}
	return zklog.New(cfg)
}

// TracingConfig builds the tracing configuration from the global flags.
func TracingConfig() tracing.Config {
	cfg := tracing.DefaultConfig()
	cfg.ServiceVersion = version

	exporter := strings.TrimSpace(globals.Exporter)
	if exporter == "" || exporter == "none" {
		return cfg
	}
	cfg.Enabled = true
	cfg.Exporters = []tracing.ExporterConfig{{
		Type:     exporter,
		Endpoint: globals.Endpoint,
		TLS: tracing.TLSConfig{
			Enabled:    !globals.Insecure,
			VerifyCert: true,
		},
	}}
	return cfg
}

// Session is an open traced framework and the telemetry pipeline around
// one command invocation.
type Session struct {
	Framework *zktrace.FrameworkProxy
	Provider  *tracing.Provider
	Logger    *slog.Logger
	Servers   string

	ctx     context.Context
	span    trace.Span
	opts    []zktrace.Option
	retry   framework.RetryPolicy
	metrics *http.Server
}

// Open sets up logging and tracing, starts the root span for operation and
// connects a traced framework client.
func Open(cmd *cobra.Command, operation string) (*Session, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	h := currentHooks()

	cfg := TracingConfig()
	if err := cfg.Validate(); err != nil {
		return nil, NewUsageError("invalid tracing flags", err)
	}
	provider, err := tracing.NewProvider(ctx, cfg, h.TracerOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}
	provider.Install()

	logger := NewLogger(cmd.ErrOrStderr())
	ctx = tracing.ContextWithTraceParent(ctx, globals.TraceParent)
	ctx, span := provider.TracerProvider().Tracer(tracerName).Start(ctx, "zkctl."+operation,
		trace.WithSpanKind(trace.SpanKindInternal))

	s := &Session{
		Provider: provider,
		Logger:   logger,
		Servers:  ResolveServers(),
		ctx:      ctx,
		span:     span,
		retry:    h.RetryPolicy,
	}
	if s.retry == nil {
		s.retry = framework.NewExponentialBackoffRetry(100*time.Millisecond, 3)
	}
	s.opts = []zktrace.Option{
		zktrace.WithTracerProvider(provider.TracerProvider()),
		zktrace.WithMeterProvider(provider.MeterProvider()),
		zktrace.WithLogger(logger),
		zktrace.WithServiceName("zkctl"),
	}
	if globals.Namespace != "" {
		s.opts = append(s.opts, zktrace.WithFrameworkOptions(framework.WithNamespace(globals.Namespace)))
	}
	if h.Factory != nil {
		s.opts = append(s.opts, zktrace.WithZookeeperFactory(h.Factory))
	}

	if globals.MetricsAddr != "" {
		if err := s.serveMetrics(globals.MetricsAddr); err != nil {
			_ = s.Close(err)
			return nil, err
		}
	}

	fw, err := s.NewFramework()
	if err != nil {
		_ = s.Close(err)
		return nil, err
	}
	s.Framework = fw
	return s, nil
}

// Context returns the context carrying the command's root span.
func (s *Session) Context() context.Context {
	return s.ctx
}

// NewFramework connects another traced framework client with the session's
// settings. The caller closes it.
func (s *Session) NewFramework() (*zktrace.FrameworkProxy, error) {
	var (
		fw  *zktrace.FrameworkProxy
		err error
	)
	if globals.SessionTimeout > 0 || globals.ConnectionTimeout > 0 {
		sessionTimeout, connectionTimeout := globals.SessionTimeout, globals.ConnectionTimeout
		if sessionTimeout <= 0 {
			sessionTimeout = zktrace.DefaultSessionTimeout()
		}
		if connectionTimeout <= 0 {
			connectionTimeout = zktrace.DefaultConnectionTimeout()
		}
		fw, err = zktrace.NewClientWithTimeouts(s.Servers, sessionTimeout, connectionTimeout, s.retry, s.opts...)
	} else {
		fw, err = zktrace.NewClient(s.Servers, s.retry, s.opts...)
	}
	if err != nil {
		return nil, NewUsageError("invalid connection settings", err)
	}

	fw = fw.WithContext(s.ctx)
	if err := fw.Start(); err != nil {
		_ = fw.Close()
		return nil, NewConnectionError("failed to start client", err)
	}
	// The delegate's client is used so waiting does not clone the session.
	if err := fw.Delegate().ZookeeperClient().BlockUntilConnected(s.ctx); err != nil {
		_ = fw.Close()
		return nil, NewConnectionError(fmt.Sprintf("failed to connect to %s", s.Servers), err)
	}
	return fw, nil
}

// SessionID returns the id of the framework's current session, or 0.
func (s *Session) SessionID() int64 {
	if s.Framework == nil {
		return 0
	}
	conn, err := s.Framework.Delegate().ZookeeperClient().ZooKeeper()
	if err != nil {
		return 0
	}
	return conn.SessionID()
}

func (s *Session) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return NewUsageError("failed to listen on --metrics-addr", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.Provider.MetricsHandler())
	s.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Warn("metrics server stopped", zklog.Error(err))
		}
	}()
	s.Logger.Debug("serving metrics", "addr", ln.Addr().String())
	return nil
}

// Close closes the framework, ends the root span with cmdErr and flushes
// telemetry.
func (s *Session) Close(cmdErr error) error {
	var errs []error
	if s.Framework != nil {
		errs = append(errs, s.Framework.Close())
	}

	if cmdErr != nil {
		s.span.RecordError(cmdErr)
		s.span.SetStatus(codes.Error, cmdErr.Error())
	}
	s.span.End()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if s.metrics != nil {
		errs = append(errs, s.metrics.Shutdown(ctx))
	}
	errs = append(errs, s.Provider.Shutdown(ctx))
	return errors.Join(errs...)
}

// Run opens a session, runs fn inside the command middleware and closes
// the session.
func Run(cmd *cobra.Command, operation, path string, fn func(s *Session) error) error {
	s, err := Open(cmd, operation)
	if err != nil {
		return err
	}

	mw := zklog.NewCommandMiddleware(s.Logger)
	err = mw.Run(&zklog.CommandRequest{
		Command:       operation,
		Path:          path,
		ConnectString: s.Servers,
	}, func() (int64, error) {
		return s.SessionID(), fn(s)
	})

	if cerr := s.Close(err); err == nil && cerr != nil {
		err = cerr
	}
	return err
}
