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
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrDBSystem    = attribute.Key("db.system")
	AttrPath        = attribute.Key("zookeeper.path")
	AttrSessionID   = attribute.Key("zookeeper.session_id")
	AttrPeerService = attribute.Key("peer.service")
	AttrFallback    = attribute.Key("zookeeper.clone.fallback")
)

// startOperation opens an ordinary span for a session operation. The span
// is only recorded when ctx already carries a valid span; the returned
// function ends it and records metrics either way.
func (in *instruments) startOperation(ctx context.Context, op, path string, sessionID int64) func(error) {
	start := time.Now()
	name := "zookeeper." + op

	var span trace.Span
	if trace.SpanContextFromContext(ctx).IsValid() {
		attrs := []attribute.KeyValue{
			AttrDBSystem.String("zookeeper"),
			AttrSessionID.Int64(sessionID),
		}
		if path != "" {
			attrs = append(attrs, AttrPath.String(path))
		}
		if in.serviceName != "" {
			attrs = append(attrs, AttrPeerService.String(in.serviceName))
		}
		_, span = in.tracer.Start(ctx, name,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(attrs...))
	}

	return func(err error) {
		elapsed := time.Since(start)
		if span != nil {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
		}
		if in.metrics != nil {
			in.metrics.RecordOperation(ctx, op, err, elapsed)
		}
		if err != nil {
			in.logger.Debug("zookeeper operation failed",
				"operation", op, "path", path, "session_id", sessionID,
				"duration_ms", elapsed.Milliseconds(), "error", err)
		}
	}
}

// startDispatcher opens a dispatcher span for a framework entry point. It
// is recorded whether or not ctx carries a parent span. A non-nil error
// passed to the returned function marks the span failed.
func (in *instruments) startDispatcher(ctx context.Context, op string) (context.Context, func(error)) {
	if ctx == nil {
		ctx = context.Background()
	}
	attrs := []attribute.KeyValue{AttrDBSystem.String("zookeeper")}
	if in.serviceName != "" {
		attrs = append(attrs, AttrPeerService.String(in.serviceName))
	}
	ctx, span := in.tracer.Start(ctx, "zookeeper.framework."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
