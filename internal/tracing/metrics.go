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
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Clone results recorded by RecordClone.
const (
	CloneResultTraced   = "traced"
	CloneResultFallback = "fallback"
	CloneResultFailed   = "failed"
)

// MetricsCollector records Prometheus-compatible metrics for ZooKeeper operations
type MetricsCollector struct {
	meter metric.Meter

	// Counters
	operationsTotal metric.Int64Counter
	clonesTotal     metric.Int64Counter

	// Histograms
	operationDuration metric.Float64Histogram

	// Open traced sessions. A session's id may change after the handshake,
	// so sessions are counted rather than keyed.
	tracedSessions metric.Int64UpDownCounter
}

// NewMetricsCollector creates a new metrics collector using the given meter provider
func NewMetricsCollector(meterProvider metric.MeterProvider) (*MetricsCollector, error) {
	meter := meterProvider.Meter("github.com/tombee/zktrace")

	mc := &MetricsCollector{meter: meter}

	var err error

	mc.operationsTotal, err = meter.Int64Counter(
		"zookeeper_operations_total",
		metric.WithDescription("Total number of ZooKeeper operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	mc.clonesTotal, err = meter.Int64Counter(
		"zookeeper_clones_total",
		metric.WithDescription("Total number of session clone attempts"),
		metric.WithUnit("{clone}"),
	)
	if err != nil {
		return nil, err
	}

	mc.operationDuration, err = meter.Float64Histogram(
		"zookeeper_operation_duration_seconds",
		metric.WithDescription("ZooKeeper operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mc.tracedSessions, err = meter.Int64UpDownCounter(
		"zookeeper_traced_sessions",
		metric.WithDescription("Number of traced sessions currently open"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, err
	}

	return mc, nil
}

// RecordOperation records the completion of a ZooKeeper operation
func (mc *MetricsCollector) RecordOperation(ctx context.Context, operation string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}

	mc.operationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
	mc.operationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordClone records a clone attempt. errorType is empty unless result is a
// fallback or failure.
func (mc *MetricsCollector) RecordClone(ctx context.Context, result, errorType string) {
	attrs := []attribute.KeyValue{attribute.String("result", result)}
	if errorType != "" {
		attrs = append(attrs, attribute.String("error_type", errorType))
	}
	mc.clonesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSessionOpen counts a traced session as open
func (mc *MetricsCollector) RecordSessionOpen(ctx context.Context) {
	mc.tracedSessions.Add(ctx, 1)
}

// RecordSessionClose counts a traced session as closed. Call it once per
// RecordSessionOpen.
func (mc *MetricsCollector) RecordSessionClose(ctx context.Context) {
	mc.tracedSessions.Add(ctx, -1)
}
