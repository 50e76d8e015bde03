// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides the OpenTelemetry meter provider of the auth
// server, a Prometheus scrape endpoint, an optional OTLP metrics push, and
// the auth-specific instruments recorded by the service and middleware.
package telemetry
