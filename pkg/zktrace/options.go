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

package zktrace

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/tombee/zktrace/internal/tracing"
	"github.com/tombee/zktrace/pkg/framework"
)

const instrumentationName = "github.com/tombee/zktrace"

// Option configures the shim.
type Option func(*options)

type options struct {
	tracerProvider   trace.TracerProvider
	meterProvider    metric.MeterProvider
	logger           *slog.Logger
	serviceName      string
	factory          framework.ZookeeperFactory
	frameworkOptions []framework.Option
}

// WithTracerProvider sets the tracer provider. The default is the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider. The default is the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithServiceName names the ensemble on spans as peer.service.
func WithServiceName(name string) Option {
	return func(o *options) { o.serviceName = name }
}

// WithZookeeperFactory sets the factory that opens sessions for clients
// built by NewClient. Sessions it returns are traced.
func WithZookeeperFactory(factory framework.ZookeeperFactory) Option {
	return func(o *options) { o.factory = factory }
}

// WithFrameworkOptions passes options to framework.NewClient. A session
// factory given here is replaced; use WithZookeeperFactory instead.
func WithFrameworkOptions(opts ...framework.Option) Option {
	return func(o *options) { o.frameworkOptions = append(o.frameworkOptions, opts...) }
}

// instruments is the resolved form of options shared by every traced object.
type instruments struct {
	tracer      trace.Tracer
	metrics     *tracing.MetricsCollector
	logger      *slog.Logger
	serviceName string

	// fallbackWarn limits the clone fallback warning
	fallbackWarn *rate.Sometimes
}

func newInstruments(opts []Option) *instruments {
	o := resolveOptions(opts)
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	if o.meterProvider == nil {
		o.meterProvider = otel.GetMeterProvider()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	in := &instruments{
		tracer:       o.tracerProvider.Tracer(instrumentationName),
		logger:       o.logger.With("component", "zktrace"),
		serviceName:  o.serviceName,
		fallbackWarn: &rate.Sometimes{First: 1, Interval: time.Minute},
	}
	metrics, err := tracing.NewMetricsCollector(o.meterProvider)
	if err != nil {
		in.logger.Warn("zookeeper metrics disabled", "error", err)
	} else {
		in.metrics = metrics
	}
	return in
}

func resolveOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
