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
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tombee/zktrace/internal/tracing/export"
)

// CreateExporter builds the span exporter described by cfg. A "none"
// exporter yields nil.
func CreateExporter(ctx context.Context, cfg ExporterConfig) (sdktrace.SpanExporter, error) {
	kind, err := export.ParseKind(cfg.Type)
	if err != nil {
		return nil, err
	}

	tlsCfg, err := export.BuildTLSConfig(export.TLSOptions{
		Enabled:    cfg.TLS.Enabled,
		SkipVerify: cfg.TLS.Enabled && !cfg.TLS.VerifyCert,
		CACertPath: cfg.TLS.CACertPath,
	})
	if err != nil {
		return nil, fmt.Errorf("exporter %s: %w", kind, err)
	}

	return export.New(ctx, export.Config{
		Kind:     kind,
		Endpoint: cfg.Endpoint,
		Headers:  cfg.Headers,
		Insecure: !cfg.TLS.Enabled,
		TLS:      tlsCfg,
	})
}

// CreateSpanProcessors wraps every configured exporter in a batch processor.
// Exporters created before a failure are shut down.
func CreateSpanProcessors(ctx context.Context, cfg Config) ([]sdktrace.SpanProcessor, error) {
	var processors []sdktrace.SpanProcessor

	batchOpts := []sdktrace.BatchSpanProcessorOption{}
	if cfg.BatchSize > 0 {
		batchOpts = append(batchOpts, sdktrace.WithMaxExportBatchSize(cfg.BatchSize))
	}
	if cfg.BatchInterval > 0 {
		batchOpts = append(batchOpts, sdktrace.WithBatchTimeout(cfg.BatchInterval))
	}

	for i, expCfg := range cfg.Exporters {
		exp, err := CreateExporter(ctx, expCfg)
		if err != nil {
			for _, p := range processors {
				_ = p.Shutdown(ctx)
			}
			return nil, fmt.Errorf("exporters[%d]: %w", i, err)
		}
		if exp == nil {
			continue
		}
		processors = append(processors, sdktrace.NewBatchSpanProcessor(exp, batchOpts...))
	}
	return processors, nil
}
