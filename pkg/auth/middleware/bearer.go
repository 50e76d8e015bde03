// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"context"
	"net/http"
	"strings"
)

// bearerTokenKey is the context key of the presented bearer token.
type bearerTokenKey struct{}

// WithBearerToken stores the presented bearer token in ctx. An empty token
// leaves ctx unchanged.
func WithBearerToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, bearerTokenKey{}, token)
}

// BearerTokenFromContext returns the token stored by WithBearerToken.
func BearerTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(bearerTokenKey{}).(string)
	return token
}

// ExtractBearerToken returns the token of an "Authorization: Bearer" header,
// or "" when the header is missing or uses another scheme.
func ExtractBearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// HTTPContextFunc copies the bearer token of r into ctx. Its signature
// matches the HTTP context hook of the MCP server transports.
func HTTPContextFunc(ctx context.Context, r *http.Request) context.Context {
	return WithBearerToken(ctx, ExtractBearerToken(r))
}
