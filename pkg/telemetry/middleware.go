// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/mxcp-auth/pkg/logger"
)

// HTTPDurationBuckets are the histogram bounds of the request duration, in seconds.
var HTTPDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// HTTPMiddleware counts and times HTTP requests by route and status, and
// starts a server span per request.
type HTTPMiddleware struct {
	requests   metric.Int64Counter
	duration   metric.Float64Histogram
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// NewHTTPMiddleware creates the request middleware.
func NewHTTPMiddleware(mp metric.MeterProvider, tp trace.TracerProvider) (*HTTPMiddleware, error) {
	meter := mp.Meter(InstrumentationName)

	requests, err := meter.Int64Counter(
		"mxcp.http.server.requests", // the Prometheus exporter adds _total
		metric.WithDescription("HTTP requests served"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(
		"mxcp.http.server.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(HTTPDurationBuckets...),
	)
	if err != nil {
		return nil, err
	}
	return &HTTPMiddleware{
		requests:   requests,
		duration:   duration,
		tracer:     tp.Tracer(InstrumentationName),
		propagator: propagation.TraceContext{},
	}, nil
}

// Handler wraps next. The route label is the chi route pattern so that
// tokens in paths never become label values.
func (m *HTTPMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		ctx := m.propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := m.tracer.Start(ctx, r.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("http.request.method", r.Method)))

		defer func() {
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}

			span.SetName(r.Method + " " + route)
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.response.status_code", rw.statusCode),
			)
			if rw.statusCode >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rw.statusCode))
				logger.Debugw("request failed", "method", r.Method, "route", route, "status", rw.statusCode)
			}
			span.End()

			attrs := metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("route", route),
				attribute.String("status_code", strconv.Itoa(rw.statusCode)),
			)
			m.requests.Add(ctx, 1, attrs)
			m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		}()

		next.ServeHTTP(rw, r.WithContext(ctx))
	})
}

// responseWriter records the status code that was actually sent.
type responseWriter struct {
	http.ResponseWriter
	statusCode    int
	headerWritten bool
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if rw.headerWritten {
		return
	}
	rw.headerWritten = true
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Write implies a 200 when no header was written yet.
func (rw *responseWriter) Write(data []byte) (int, error) {
	rw.headerWritten = true
	return rw.ResponseWriter.Write(data)
}

// Flush keeps streaming responses working through the wrapper.
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
