// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"fmt"
	"time"
)

const (
	// DefaultOTLPInterval is the push period of the OTLP metrics reader.
	DefaultOTLPInterval = 30 * time.Second

	// DefaultTraceSamplingRate samples one root span in ten.
	DefaultTraceSamplingRate = 0.1
)

// Config selects the metric pipelines.
type Config struct {
	// ServiceName and ServiceVersion populate the OpenTelemetry resource.
	ServiceName    string
	ServiceVersion string

	// ResourceAttributes are extra resource attributes, as parsed by
	// ParseResourceAttributes.
	ResourceAttributes map[string]string

	// MetricsEnabled turns on the Prometheus reader and handler.
	MetricsEnabled bool

	// IncludeRuntimeMetrics adds the Go and process collectors to the
	// Prometheus registry.
	IncludeRuntimeMetrics bool

	// OTLPEndpoint, when set, pushes metrics to an OTLP/HTTP collector
	// (host:port, no scheme).
	OTLPEndpoint string
	OTLPInsecure bool
	OTLPHeaders  map[string]string
	OTLPInterval time.Duration

	// TracingEnabled exports spans to OTLPEndpoint.
	TracingEnabled bool
	// TraceSamplingRate is the ratio of root spans sampled, between 0 and 1.
	TraceSamplingRate float64
}

// Enabled reports whether any pipeline is configured.
func (c Config) Enabled() bool {
	return c.MetricsEnabled || c.OTLPEndpoint != ""
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.IncludeRuntimeMetrics && !c.MetricsEnabled {
		return fmt.Errorf("runtime metrics require the Prometheus endpoint to be enabled")
	}
	if c.OTLPInterval < 0 {
		return fmt.Errorf("OTLP interval must not be negative")
	}
	if c.TracingEnabled && c.OTLPEndpoint == "" {
		return fmt.Errorf("tracing requires an OTLP endpoint")
	}
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0 and 1, got %v", c.TraceSamplingRate)
	}
	return nil
}
