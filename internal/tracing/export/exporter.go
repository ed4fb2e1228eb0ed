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

// Package export builds span exporters for external trace backends.
package export

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// Kind selects an exporter implementation.
type Kind string

const (
	KindNone     Kind = "none"
	KindConsole  Kind = "console"
	KindOTLP     Kind = "otlp"
	KindOTLPHTTP Kind = "otlp-http"
)

// ParseKind accepts the exporter names used on the command line. An empty
// name is KindNone.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return KindNone, nil
	case "console", "stdout":
		return KindConsole, nil
	case "otlp", "otlp-grpc":
		return KindOTLP, nil
	case "otlp-http", "otlp_http":
		return KindOTLPHTTP, nil
	default:
		return "", fmt.Errorf("unknown exporter type: %s", s)
	}
}

// Config describes one exporter.
type Config struct {
	Kind Kind

	// Endpoint is host:port for otlp and otlp-http.
	Endpoint string

	// URLPath overrides the otlp-http path (default: "/v1/traces").
	URLPath string

	// Insecure disables TLS (for development only).
	Insecure bool

	// TLS provides a custom TLS configuration. nil means system defaults.
	TLS *tls.Config

	// Headers are sent with every export request.
	Headers map[string]string

	// DialOptions are passed to the otlp gRPC client.
	DialOptions []grpc.DialOption

	// Writer is the console destination (default: os.Stdout).
	Writer io.Writer

	// PrettyPrint enables indented console output.
	PrettyPrint bool
}

// New creates the exporter described by cfg. KindNone yields a nil exporter.
func New(ctx context.Context, cfg Config) (trace.SpanExporter, error) {
	switch cfg.Kind {
	case KindNone, "":
		return nil, nil
	case KindConsole:
		return newConsole(cfg)
	case KindOTLP:
		return newOTLP(ctx, cfg)
	case KindOTLPHTTP:
		return newOTLPHTTP(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.Kind)
	}
}

func newConsole(cfg Config) (trace.SpanExporter, error) {
	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}
	opts := []stdouttrace.Option{stdouttrace.WithWriter(writer)}
	if cfg.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}

	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create console exporter: %w", err)
	}
	return exporter, nil
}

func newOTLP(ctx context.Context, cfg Config) (trace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}

	switch {
	case cfg.Insecure:
		opts = append(opts, otlptracegrpc.WithInsecure())
	case cfg.TLS != nil:
		if err := ValidateTLSConfig(cfg.TLS); err != nil {
			return nil, fmt.Errorf("invalid TLS config: %w", err)
		}
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(cfg.TLS)))
	default:
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	if len(cfg.DialOptions) > 0 {
		opts = append(opts, otlptracegrpc.WithDialOption(cfg.DialOptions...))
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP gRPC exporter: %w", err)
	}
	return exporter, nil
}

func newOTLPHTTP(ctx context.Context, cfg Config) (trace.SpanExporter, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.URLPath != "" {
		opts = append(opts, otlptracehttp.WithURLPath(cfg.URLPath))
	}

	switch {
	case cfg.Insecure:
		opts = append(opts, otlptracehttp.WithInsecure())
	case cfg.TLS != nil:
		if err := ValidateTLSConfig(cfg.TLS); err != nil {
			return nil, fmt.Errorf("invalid TLS config: %w", err)
		}
		opts = append(opts, otlptracehttp.WithTLSClientConfig(cfg.TLS))
	default:
		opts = append(opts, otlptracehttp.WithTLSClientConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		}))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP HTTP exporter: %w", err)
	}
	return exporter, nil
}
