// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentationName names the meters and tracers of mxcp-auth.
const InstrumentationName = "github.com/stacklok/mxcp-auth"

// Outcomes recorded on auth instruments.
const (
	OutcomeSuccess       = "success"
	OutcomeInvalidState  = "invalid_state"
	OutcomeIdPError      = "idp_error"
	OutcomeBadRequest    = "bad_request"
	OutcomeProviderError = "provider_error"
	OutcomeInternalError = "internal_error"
	OutcomeInvalidGrant  = "invalid_grant"
	OutcomeUnauthorized  = "unauthenticated"
	OutcomeUnavailable   = "unavailable"
	OutcomeError         = "error"
)

// Attribute keys.
var (
	attrOutcome   = attribute.Key("outcome")
	attrGrantType = attribute.Key("grant_type")
	attrProvider  = attribute.Key("provider")
	attrOperation = attribute.Key("operation")
)

// AuthMetrics holds the auth instruments. A nil *AuthMetrics records nothing.
type AuthMetrics struct {
	callbacks        metric.Int64Counter
	tokenGrants      metric.Int64Counter
	providerCalls    metric.Int64Counter
	providerDuration metric.Float64Histogram
	authChecks       metric.Int64Counter
}

// NewAuthMetrics creates the auth instruments on mp.
func NewAuthMetrics(mp metric.MeterProvider) (*AuthMetrics, error) {
	meter := mp.Meter(InstrumentationName)

	callbacks, err := meter.Int64Counter("mxcp.auth.callbacks",
		metric.WithDescription("OAuth callbacks handled, by outcome"))
	if err != nil {
		return nil, err
	}
	tokenGrants, err := meter.Int64Counter("mxcp.auth.token_grants",
		metric.WithDescription("Token endpoint grants, by grant type and outcome"))
	if err != nil {
		return nil, err
	}
	providerCalls, err := meter.Int64Counter("mxcp.auth.provider.calls",
		metric.WithDescription("Identity provider calls, by provider, operation and outcome"))
	if err != nil {
		return nil, err
	}
	providerDuration, err := meter.Float64Histogram("mxcp.auth.provider.duration",
		metric.WithDescription("Duration of identity provider calls"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	authChecks, err := meter.Int64Counter("mxcp.auth.checks",
		metric.WithDescription("Bearer token checks, by outcome"))
	if err != nil {
		return nil, err
	}

	return &AuthMetrics{
		callbacks:        callbacks,
		tokenGrants:      tokenGrants,
		providerCalls:    providerCalls,
		providerDuration: providerDuration,
		authChecks:       authChecks,
	}, nil
}

// RecordCallback counts one callback.
func (m *AuthMetrics) RecordCallback(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.callbacks.Add(ctx, 1, metric.WithAttributes(attrOutcome.String(outcome)))
}

// RecordTokenGrant counts one token endpoint request.
func (m *AuthMetrics) RecordTokenGrant(ctx context.Context, grantType, outcome string) {
	if m == nil {
		return
	}
	m.tokenGrants.Add(ctx, 1, metric.WithAttributes(
		attrGrantType.String(grantType),
		attrOutcome.String(outcome),
	))
}

// RecordProviderCall counts and times one identity provider call.
func (m *AuthMetrics) RecordProviderCall(ctx context.Context, provider, operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attrProvider.String(provider),
		attrOperation.String(operation),
		attrOutcome.String(outcome),
	)
	m.providerCalls.Add(ctx, 1, attrs)
	m.providerDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordAuthCheck counts one middleware authentication check.
func (m *AuthMetrics) RecordAuthCheck(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.authChecks.Add(ctx, 1, metric.WithAttributes(attrOutcome.String(outcome)))
}
