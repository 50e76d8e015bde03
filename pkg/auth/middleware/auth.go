// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package middleware authenticates requests carrying an MXCP bearer token by
// resolving the session and re-validating its provider token.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/stacklok/mxcp-auth/pkg/auth/crypto"
	"github.com/stacklok/mxcp-auth/pkg/auth/execctx"
	"github.com/stacklok/mxcp-auth/pkg/auth/provider"
	"github.com/stacklok/mxcp-auth/pkg/auth/storage"
	mxerrors "github.com/stacklok/mxcp-auth/pkg/errors"
	"github.com/stacklok/mxcp-auth/pkg/logger"
	"github.com/stacklok/mxcp-auth/pkg/telemetry"
)

// DefaultCheckTimeout bounds one CheckAuthentication call.
const DefaultCheckTimeout = 10 * time.Second

var (
	// ErrUnauthenticated is returned by wrapped functions when no valid
	// session backs the call.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrUnavailable is returned by wrapped functions when authentication
	// could not be decided, for example because the provider is down.
	ErrUnavailable = errors.New("authentication temporarily unavailable")
)

// SessionLookup resolves MXCP access tokens to sessions.
type SessionLookup interface {
	GetSession(ctx context.Context, token string) (*storage.Session, error)
}

// Config configures a Middleware.
type Config struct {
	// Realm is advertised in WWW-Authenticate.
	Realm string

	// ResourceMetadataURL is advertised as resource_metadata (RFC 9728 §5.1).
	ResourceMetadataURL string

	// CheckTimeout bounds each check. Zero selects DefaultCheckTimeout.
	CheckTimeout time.Duration

	// UserInfoCacheTTL caches provider profiles per session token for this
	// long. Zero disables the cache and every check calls the provider.
	UserInfoCacheTTL time.Duration
}

// Middleware authenticates requests.
type Middleware struct {
	sessions SessionLookup
	adapter  func() provider.Adapter
	cfg      Config
	cache    *cache.Cache
	metrics  *telemetry.AuthMetrics
}

// Option configures a Middleware.
type Option func(*Middleware)

// WithMetrics records check outcomes on m.
func WithMetrics(m *telemetry.AuthMetrics) Option {
	return func(mw *Middleware) {
		mw.metrics = m
	}
}

// New creates a Middleware. adapter returns the current provider adapter;
// authentication is disabled while it is nil or returns nil.
func New(sessions SessionLookup, adapter func() provider.Adapter, cfg Config, opts ...Option) *Middleware {
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = DefaultCheckTimeout
	}
	if cfg.Realm == "" {
		cfg.Realm = "mxcp"
	}
	m := &Middleware{sessions: sessions, adapter: adapter, cfg: cfg}
	if cfg.UserInfoCacheTTL > 0 {
		m.cache = cache.New(cfg.UserInfoCacheTTL, 2*cfg.UserInfoCacheTTL)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Middleware) currentAdapter() provider.Adapter {
	if m == nil || m.adapter == nil {
		return nil
	}
	return m.adapter()
}

// Enabled reports whether a provider is configured.
func (m *Middleware) Enabled() bool {
	return m.currentAdapter() != nil
}

// CheckAuthentication resolves the bearer token of ctx to a user. It returns
// (nil, nil) when the caller is not authenticated and (nil, err) when the
// answer could not be determined.
func (m *Middleware) CheckAuthentication(ctx context.Context) (*execctx.UserContext, error) {
	adapter := m.currentAdapter()
	if adapter == nil {
		return nil, nil
	}

	token := BearerTokenFromContext(ctx)
	if token == "" {
		m.metrics.RecordAuthCheck(ctx, telemetry.OutcomeUnauthorized)
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.CheckTimeout)
	defer cancel()

	uc, err := m.check(ctx, adapter, token)
	switch {
	case err != nil:
		m.metrics.RecordAuthCheck(ctx, telemetry.OutcomeUnavailable)
	case uc == nil:
		m.metrics.RecordAuthCheck(ctx, telemetry.OutcomeUnauthorized)
	default:
		m.metrics.RecordAuthCheck(ctx, telemetry.OutcomeSuccess)
	}
	return uc, err
}

func (m *Middleware) check(ctx context.Context, adapter provider.Adapter, token string) (*execctx.UserContext, error) {
	tokenHash := crypto.HashPrefix(token)

	sess, err := m.sessions.GetSession(ctx, token)
	if err != nil {
		if mxerrors.IsDecryption(err) {
			logger.Errorw("session could not be decrypted; denying access", "token_hash", tokenHash, "error", err)
			return nil, nil
		}
		return nil, fmt.Errorf("session lookup failed: %w", err)
	}
	if sess == nil {
		logger.Debugw("no session for bearer token", "token_hash", tokenHash)
		return nil, nil
	}
	if sess.ProviderAccessToken == "" {
		logger.Debugw("session has no provider token", "session_id", sess.SessionID)
		return nil, nil
	}

	info, err := m.userInfo(ctx, adapter, token, sess.ProviderAccessToken)
	if err != nil {
		if pe, ok := provider.AsProviderError(err); ok && !pe.Transient() {
			logger.Infow("provider rejected session token",
				"session_id", sess.SessionID, "provider", adapter.Name(), "error_code", pe.Code, "status", pe.HTTPStatus)
			return nil, nil
		}
		return nil, fmt.Errorf("user info lookup failed: %w", err)
	}

	uc := execctx.NewUserContext(info, sess.ProviderAccessToken, sess.SessionID, sess.Scopes)
	if uc.Provider == "" {
		uc.Provider = sess.Provider
	}
	return uc, nil
}

func (m *Middleware) userInfo(ctx context.Context, adapter provider.Adapter, token, providerToken string) (*provider.UserInfo, error) {
	key := crypto.HashToken(token)
	if m.cache != nil {
		if v, ok := m.cache.Get(key); ok {
			return v.(*provider.UserInfo), nil
		}
	}

	start := time.Now()
	info, err := adapter.FetchUserInfo(ctx, providerToken)
	outcome := telemetry.OutcomeSuccess
	if err != nil {
		outcome = telemetry.OutcomeError
	}
	m.metrics.RecordProviderCall(ctx, adapter.Name(), "fetch_user_info", outcome, time.Since(start))
	if err != nil {
		return nil, err
	}

	if m.cache != nil {
		m.cache.SetDefault(key, info)
	}
	return info, nil
}

// Invalidate drops the cached profile of an MXCP token.
func (m *Middleware) Invalidate(token string) {
	if m.cache != nil {
		m.cache.Delete(crypto.HashToken(token))
	}
}

// RequireAuth rejects unauthenticated requests with 401 and runs next with
// the user set in the execution scope of the request context.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		token := ExtractBearerToken(r)
		ctx := WithBearerToken(r.Context(), token)

		uc, err := m.CheckAuthentication(ctx)
		if err != nil {
			logger.Warnw("authentication check failed", "path", r.URL.Path, "error", err)
			http.Error(w, "Authentication is temporarily unavailable, please retry", http.StatusServiceUnavailable)
			return
		}
		if uc == nil {
			w.Header().Set("WWW-Authenticate", m.wwwAuthenticate(token != ""))
			http.Error(w, "Authentication required, please sign in again", http.StatusUnauthorized)
			return
		}

		ctx, release := execctx.Enter(ctx, uc)
		defer release()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuthFunc wraps fn so it only runs for an authenticated caller, with
// the user set in the execution scope of its context.
func (m *Middleware) RequireAuthFunc(fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if !m.Enabled() {
			return fn(ctx)
		}
		uc, err := m.CheckAuthentication(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		if uc == nil {
			return ErrUnauthenticated
		}
		ctx, release := execctx.Enter(ctx, uc)
		defer release()
		return fn(ctx)
	}
}

// wwwAuthenticate builds the RFC 6750 / RFC 9728 challenge. The error
// attribute is only sent when a token was presented (RFC 6750 §3.1).
func (m *Middleware) wwwAuthenticate(tokenPresented bool) string {
	parts := []string{fmt.Sprintf(`realm="%s"`, EscapeQuotes(m.cfg.Realm))}
	if m.cfg.ResourceMetadataURL != "" {
		parts = append(parts, fmt.Sprintf(`resource_metadata="%s"`, EscapeQuotes(m.cfg.ResourceMetadataURL)))
	}
	if tokenPresented {
		parts = append(parts, `error="invalid_token"`)
	}
	return "Bearer " + strings.Join(parts, ", ")
}

// EscapeQuotes escapes a value for use in a quoted-string.
func EscapeQuotes(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
