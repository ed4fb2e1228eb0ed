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
	"fmt"
	"time"

	"github.com/tombee/zktrace/internal/tracing/export"
)

// Config configures the trace and metric pipeline.
type Config struct {
	// Enabled controls whether spans are exported at all.
	Enabled bool `yaml:"enabled"`

	// ServiceName identifies this process in traces.
	ServiceName string `yaml:"service_name"`

	// ServiceVersion is the build version recorded on the resource.
	ServiceVersion string `yaml:"service_version"`

	Sampling SamplingConfig `yaml:"sampling"`

	Exporters []ExporterConfig `yaml:"exporters"`

	// BatchSize is the maximum number of spans per export batch.
	BatchSize int `yaml:"batch_size"`

	// BatchInterval is how often batches are flushed.
	BatchInterval time.Duration `yaml:"batch_interval"`
}

// SamplingConfig configures sampling.
type SamplingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Type is "ratio" (default) or "deterministic".
	Type string `yaml:"type"`

	// Rate is the fraction of traces kept (0.0 - 1.0).
	Rate float64 `yaml:"rate"`

	// AlwaysSampleErrors keeps spans that start with error=true.
	AlwaysSampleErrors bool `yaml:"always_sample_errors"`
}

// ExporterConfig configures one span exporter.
type ExporterConfig struct {
	// Type is one of "console", "otlp", "otlp-http" or "none".
	Type string `yaml:"type"`

	Endpoint string `yaml:"endpoint"`

	Headers map[string]string `yaml:"headers"`

	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig configures exporter transport security.
type TLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	VerifyCert bool   `yaml:"verify_cert"`
	CACertPath string `yaml:"ca_cert_path"`
}

// DefaultConfig returns a configuration with no exporters and full sampling.
func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		ServiceName: "zkctl",
		Sampling: SamplingConfig{
			Enabled:            false,
			Type:               "ratio",
			Rate:               1.0,
			AlwaysSampleErrors: true,
		},
		BatchSize:     512,
		BatchInterval: 5 * time.Second,
	}
}

// Validate checks the configuration for values the SDK cannot use.
func (c Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.Sampling.Rate < 0 || c.Sampling.Rate > 1 {
		return fmt.Errorf("sampling.rate must be between 0.0 and 1.0, got %v", c.Sampling.Rate)
	}
	switch c.Sampling.Type {
	case "", "ratio", "deterministic":
	default:
		return fmt.Errorf("unknown sampling type: %s", c.Sampling.Type)
	}
	for i, exp := range c.Exporters {
		kind, err := export.ParseKind(exp.Type)
		if err != nil {
			return fmt.Errorf("exporters[%d]: %w", i, err)
		}
		if (kind == export.KindOTLP || kind == export.KindOTLPHTTP) && exp.Endpoint == "" {
			return fmt.Errorf("exporters[%d]: endpoint is required for %s", i, kind)
		}
	}
	return nil
}
