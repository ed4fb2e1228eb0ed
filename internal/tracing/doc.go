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

// Package tracing sets up the OpenTelemetry pipeline used by zkctl and by
// library users who want the zktrace spans exported somewhere.
//
// A Provider owns an SDK TracerProvider, whose span processors come from
// the configured exporters (console, OTLP gRPC, OTLP HTTP), and an SDK
// MeterProvider backed by a private Prometheus registry. MetricsCollector
// records ZooKeeper operation counts, latencies, clone outcomes and open
// sessions on any meter provider, usually the Provider's.
//
//	p, err := tracing.NewProvider(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer p.Shutdown(ctx)
//	p.Install()
//	http.Handle("/metrics", p.MetricsHandler())
package tracing
