// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/stacklok/mxcp-auth/pkg/logger"
)

// Provider owns the meter and tracer providers and their exporters.
type Provider struct {
	meterProvider  metric.MeterProvider
	sdk            *sdkmetric.MeterProvider
	tracerProvider trace.TracerProvider
	sdkTrace       *sdktrace.TracerProvider
	handler        http.Handler
}

// ProviderOption configures NewProvider.
type ProviderOption func(*providerOptions)

type providerOptions struct {
	readers        []sdkmetric.Reader
	spanProcessors []sdktrace.SpanProcessor
}

// WithReader attaches an extra reader, for example a ManualReader in tests.
func WithReader(r sdkmetric.Reader) ProviderOption {
	return func(o *providerOptions) {
		o.readers = append(o.readers, r)
	}
}

// WithSpanProcessor attaches an extra span processor and enables tracing.
func WithSpanProcessor(sp sdktrace.SpanProcessor) ProviderOption {
	return func(o *providerOptions) {
		o.spanProcessors = append(o.spanProcessors, sp)
	}
}

// NewProvider builds the meter provider described by cfg. Without any
// pipeline or extra reader it returns a no-op provider.
func NewProvider(ctx context.Context, cfg Config, opts ...ProviderOption) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}
	var o providerOptions
	for _, opt := range opts {
		opt(&o)
	}

	if !cfg.Enabled() && len(o.readers) == 0 && len(o.spanProcessors) == 0 {
		return &Provider{meterProvider: noop.NewMeterProvider(), tracerProvider: tracenoop.NewTracerProvider()}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
		resource.WithAttributes(resourceAttributes(cfg.ResourceAttributes)...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry resource: %w", err)
	}

	p := &Provider{tracerProvider: tracenoop.NewTracerProvider()}
	sdkOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.MetricsEnabled {
		reader, handler, err := newPrometheusReader(cfg.IncludeRuntimeMetrics)
		if err != nil {
			return nil, err
		}
		p.handler = handler
		sdkOpts = append(sdkOpts, sdkmetric.WithReader(reader))
	}

	if cfg.OTLPEndpoint != "" {
		reader, err := newOTLPReader(ctx, cfg)
		if err != nil {
			return nil, err
		}
		sdkOpts = append(sdkOpts, sdkmetric.WithReader(reader))
	}

	for _, r := range o.readers {
		sdkOpts = append(sdkOpts, sdkmetric.WithReader(r))
	}

	p.sdk = sdkmetric.NewMeterProvider(sdkOpts...)
	p.meterProvider = p.sdk

	if cfg.TracingEnabled || len(o.spanProcessors) > 0 {
		tp, err := newTracerProvider(ctx, cfg, res, o.spanProcessors)
		if err != nil {
			_ = p.sdk.Shutdown(ctx)
			return nil, err
		}
		p.sdkTrace = tp
		p.tracerProvider = tp
	}

	// Export failures are reported through the otel global handler.
	otel.SetLogger(logger.NewLogr())
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logger.Warnw("telemetry export failed", "error", err)
	}))

	logger.Debugw("telemetry initialized",
		"prometheus", cfg.MetricsEnabled, "otlp", cfg.OTLPEndpoint != "",
		"runtime_metrics", cfg.IncludeRuntimeMetrics, "tracing", p.sdkTrace != nil)
	return p, nil
}

func newPrometheusReader(includeRuntime bool) (sdkmetric.Reader, http.Handler, error) {
	registry := promclient.NewRegistry()
	if includeRuntime {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
	return exporter, handler, nil
}

func newOTLPReader(ctx context.Context, cfg Config) (sdkmetric.Reader, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint)}
	if len(cfg.OTLPHeaders) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(cfg.OTLPHeaders))
	}
	if cfg.OTLPInsecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	interval := cfg.OTLPInterval
	if interval == 0 {
		interval = DefaultOTLPInterval
	}
	return sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)), nil
}

func newTracerProvider(
	ctx context.Context, cfg Config, res *resource.Resource, processors []sdktrace.SpanProcessor,
) (*sdktrace.TracerProvider, error) {
	rate := cfg.TraceSamplingRate
	if rate == 0 {
		rate = DefaultTraceSamplingRate
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	}

	if cfg.TracingEnabled {
		exOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.OTLPEndpoint)}
		if len(cfg.OTLPHeaders) > 0 {
			exOpts = append(exOpts, otlptracehttp.WithHeaders(cfg.OTLPHeaders))
		}
		if cfg.OTLPInsecure {
			exOpts = append(exOpts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, exOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	for _, sp := range processors {
		opts = append(opts, sdktrace.WithSpanProcessor(sp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

// MeterProvider returns the provider instruments are created from.
func (p *Provider) MeterProvider() metric.MeterProvider {
	return p.meterProvider
}

// TracerProvider returns the provider spans are started from. It is a no-op
// provider when tracing is off.
func (p *Provider) TracerProvider() trace.TracerProvider {
	return p.tracerProvider
}

// PrometheusHandler returns the scrape handler, or nil when Prometheus is off.
func (p *Provider) PrometheusHandler() http.Handler {
	return p.handler
}

// Shutdown flushes and stops every reader and exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.sdkTrace != nil {
		if err := p.sdkTrace.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down tracer provider: %w", err))
		}
	}
	if p.sdk != nil {
		if err := p.sdk.Shutdown(ctx); err != nil && !errors.Is(err, sdkmetric.ErrReaderShutdown) {
			errs = append(errs, fmt.Errorf("failed to shut down meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}
