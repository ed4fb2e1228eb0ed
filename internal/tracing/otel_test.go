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

package tracing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func newTestProvider(t *testing.T, cfg Config) (*Provider, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	p, err := NewProvider(context.Background(), cfg, sdktrace.WithSyncer(exporter))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p, exporter
}

func TestProvider_BasicSpan(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ServiceName = "zk-test"
	cfg.ServiceVersion = "1.2.3"
	p, exporter := newTestProvider(t, cfg)

	_, span := p.TracerProvider().Tracer("test").Start(context.Background(), "zookeeper.create")
	span.SetAttributes(attribute.String("zookeeper.path", "/a"))
	span.End()
	require.NoError(t, p.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "zookeeper.create", spans[0].Name)

	var name, version string
	for _, kv := range spans[0].Resource.Attributes() {
		switch kv.Key {
		case semconv.ServiceNameKey:
			name = kv.Value.AsString()
		case semconv.ServiceVersionKey:
			version = kv.Value.AsString()
		}
	}
	assert.Equal(t, "zk-test", name)
	assert.Equal(t, "1.2.3", version)
}

func TestProvider_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ServiceName = ""
	_, err := NewProvider(context.Background(), cfg)
	assert.ErrorContains(t, err, "service_name is required")

	cfg = DefaultConfig()
	cfg.Enabled = true
	cfg.Exporters = []ExporterConfig{{Type: "otlp"}}
	_, err = NewProvider(context.Background(), cfg)
	assert.ErrorContains(t, err, "endpoint is required")
}

func TestProvider_ConsoleExporterConfigured(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Exporters = []ExporterConfig{{Type: "none"}, {Type: "console"}}

	processors, err := CreateSpanProcessors(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, processors, 1)
	require.NoError(t, processors[0].Shutdown(context.Background()))
}

func TestProvider_MetricsHandler(t *testing.T) {
	p, _ := newTestProvider(t, DefaultConfig())

	mc, err := NewMetricsCollector(p.MeterProvider())
	require.NoError(t, err)

	ctx := context.Background()
	mc.RecordOperation(ctx, "get_data", nil, 5*time.Millisecond)
	mc.RecordOperation(ctx, "get_data", errors.New("boom"), time.Millisecond)
	mc.RecordClone(ctx, CloneResultTraced, "")

	srv := httptest.NewServer(p.MetricsHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, "zookeeper_operations_total")
	assert.Contains(t, text, `operation="get_data"`)
	assert.Contains(t, text, "zookeeper_clones_total")
	assert.Contains(t, text, "go_goroutines")
}

func TestProvider_Install(t *testing.T) {
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	prevMP := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
		otel.SetMeterProvider(prevMP)
	})

	p, _ := newTestProvider(t, DefaultConfig())
	p.Install()

	assert.Same(t, p.tp, otel.GetTracerProvider())
	assert.ElementsMatch(t, []string{"traceparent", "tracestate", "baggage"}, otel.GetTextMapPropagator().Fields())
}
