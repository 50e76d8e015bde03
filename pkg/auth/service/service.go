// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package service is the HTTP facade of the auth subsystem. It wires one
// provider adapter, a session manager and a token store, and serves the
// authorize, callback, token, revoke and protected resource metadata
// endpoints.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/stacklok/mxcp-auth/pkg/auth/crypto"
	"github.com/stacklok/mxcp-auth/pkg/auth/middleware"
	"github.com/stacklok/mxcp-auth/pkg/auth/provider"
	"github.com/stacklok/mxcp-auth/pkg/auth/session"
	"github.com/stacklok/mxcp-auth/pkg/auth/storage"
	mxerrors "github.com/stacklok/mxcp-auth/pkg/errors"
	"github.com/stacklok/mxcp-auth/pkg/logger"
	"github.com/stacklok/mxcp-auth/pkg/oauth"
	"github.com/stacklok/mxcp-auth/pkg/telemetry"
)

// DefaultCallbackPath is where the identity provider redirects back to.
const DefaultCallbackPath = "/auth/callback"

// ErrClosed is returned by Initialize after Close.
var ErrClosed = errors.New("auth service is closed")

// Config configures a Service.
type Config struct {
	// BaseURL is the externally visible origin of the server, for example
	// https://mxcp.example.com.
	BaseURL string

	// CallbackPath is joined to BaseURL to form the provider redirect URI.
	CallbackPath string

	// ResourceURL identifies the protected resource. Defaults to BaseURL.
	ResourceURL string

	// AuthorizationServers are advertised in the resource metadata.
	// Defaults to BaseURL.
	AuthorizationServers []string

	ScopesSupported       []string
	ResourceDocumentation string

	// Middleware configures bearer token checks.
	Middleware middleware.Config
}

func (c *Config) applyDefaults() error {
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if c.BaseURL == "" {
		return mxerrors.NewConfigurationError("auth service base URL is required", nil)
	}
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		return mxerrors.NewConfigurationError("auth service base URL is invalid", err)
	}
	if c.CallbackPath == "" {
		c.CallbackPath = DefaultCallbackPath
	}
	if !strings.HasPrefix(c.CallbackPath, "/") {
		c.CallbackPath = "/" + c.CallbackPath
	}
	if c.ResourceURL == "" {
		c.ResourceURL = c.BaseURL
	}
	if len(c.AuthorizationServers) == 0 {
		c.AuthorizationServers = []string{c.BaseURL}
	}
	if c.Middleware.ResourceMetadataURL == "" {
		c.Middleware.ResourceMetadataURL = oauth.ResourceMetadataURL(c.ResourceURL)
	}
	return nil
}

// adapterRef boxes the adapter interface for atomic.Pointer.
type adapterRef struct {
	provider.Adapter
}

// Service wires the auth components together.
type Service struct {
	cfg      Config
	adapter  atomic.Pointer[adapterRef]
	store    storage.TokenStore
	sessions *session.Manager
	mw       *middleware.Middleware
	metrics  *telemetry.AuthMetrics
	tracer   trace.Tracer
	now      func() time.Time

	mu          sync.Mutex
	initialized bool
	closed      bool
}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	metrics        *telemetry.AuthMetrics
	tracerProvider trace.TracerProvider
	now            func() time.Time
	sessionOptions []session.Option
}

// WithMetrics records service and middleware outcomes on m.
func WithMetrics(m *telemetry.AuthMetrics) Option {
	return func(o *serviceOptions) {
		o.metrics = m
	}
}

// WithTracerProvider traces identity provider calls with tp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *serviceOptions) {
		o.tracerProvider = tp
	}
}

// WithClock overrides the time source of the service and its session manager.
func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) {
		o.now = now
		o.sessionOptions = append(o.sessionOptions, session.WithClock(now))
	}
}

// WithSessionOptions passes options to the session manager.
func WithSessionOptions(opts ...session.Option) Option {
	return func(o *serviceOptions) {
		o.sessionOptions = append(o.sessionOptions, opts...)
	}
}

// New creates a Service. The service owns store and closes it on Close.
func New(adapter provider.Adapter, store storage.TokenStore, cfg Config, opts ...Option) (*Service, error) {
	if adapter == nil {
		return nil, mxerrors.NewConfigurationError("a provider adapter is required", nil)
	}
	if store == nil {
		return nil, mxerrors.NewConfigurationError("a token store is required", nil)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	o := serviceOptions{now: time.Now, tracerProvider: noop.NewTracerProvider()}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Service{
		cfg:      cfg,
		store:    store,
		sessions: session.NewManager(store, o.sessionOptions...),
		metrics:  o.metrics,
		tracer:   o.tracerProvider.Tracer(telemetry.InstrumentationName),
		now:      o.now,
	}
	s.adapter.Store(&adapterRef{adapter})
	s.mw = middleware.New(s.sessions, s.Adapter, cfg.Middleware, middleware.WithMetrics(o.metrics))
	return s, nil
}

// Adapter returns the current provider adapter.
func (s *Service) Adapter() provider.Adapter {
	if ref := s.adapter.Load(); ref != nil {
		return ref.Adapter
	}
	return nil
}

// ReplaceProvider swaps in a new adapter, readying it first when it resolves
// endpoints lazily. In-flight requests finish with the adapter they started with.
func (s *Service) ReplaceProvider(ctx context.Context, adapter provider.Adapter) error {
	if adapter == nil {
		return mxerrors.NewInvalidArgumentError("adapter must not be nil", nil)
	}
	if ready, ok := adapter.(provider.ReadyAdapter); ok {
		if err := ready.EnsureReady(ctx); err != nil {
			return fmt.Errorf("replacement provider is not ready: %w", err)
		}
	}
	old := s.adapter.Swap(&adapterRef{adapter})
	logger.Infow("replaced identity provider", "old", old.Name(), "new", adapter.Name())
	return nil
}

// Sessions returns the session manager.
func (s *Service) Sessions() *session.Manager {
	return s.sessions
}

// Middleware returns the authentication middleware bound to this service.
func (s *Service) Middleware() *middleware.Middleware {
	return s.mw
}

// CallbackURL is the redirect URI registered with the provider.
func (s *Service) CallbackURL() string {
	return s.cfg.BaseURL + s.cfg.CallbackPath
}

// Initialize readies the adapter and starts the periodic cleanup. It is
// idempotent; a failed call may be retried.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.initialized {
		return nil
	}

	adapter := s.Adapter()
	if ready, ok := adapter.(provider.ReadyAdapter); ok {
		if err := ready.EnsureReady(ctx); err != nil {
			return fmt.Errorf("failed to initialize provider %s: %w", adapter.Name(), err)
		}
	}
	s.sessions.StartCleanup(context.WithoutCancel(ctx))
	s.initialized = true

	logger.Infow("auth service initialized", "provider", adapter.Name(), "callback_url", s.CallbackURL())
	return nil
}

// Close stops the cleanup loop and closes the store. It is idempotent.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.sessions.Close(); err != nil {
		logger.Warnw("failed to stop session manager", "error", err)
	}
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("failed to close token store: %w", err)
	}
	return nil
}

// AuthorizeRequest is a client's request to start a sign-in.
type AuthorizeRequest struct {
	ClientID    string
	RedirectURI string

	// State is the client's own state, echoed back on its redirect.
	State string

	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
}

// BuildAuthorizeURL records a pending authorization and returns the provider
// URL the user agent should visit.
func (s *Service) BuildAuthorizeURL(ctx context.Context, req AuthorizeRequest) (string, error) {
	if req.ClientID == "" {
		return "", mxerrors.NewValidationError("client_id is required", nil)
	}
	if err := oauth.ValidateRedirectURI(req.RedirectURI); err != nil {
		return "", mxerrors.NewValidationError("invalid redirect_uri", err)
	}
	method := req.CodeChallengeMethod
	if req.CodeChallenge != "" {
		if method == "" {
			method = oauth.PKCEMethodPlain
		}
		if method != oauth.PKCEMethodS256 && method != oauth.PKCEMethodPlain {
			return "", mxerrors.NewValidationError(fmt.Sprintf("unsupported code_challenge_method %q", method), nil)
		}
	} else {
		method = ""
	}

	adapter := s.Adapter()

	var verifier, challenge string
	if provider.SupportsPKCE(adapter) {
		verifier = crypto.GeneratePKCEVerifier()
		challenge = crypto.ComputePKCEChallenge(verifier)
	}

	state, err := s.sessions.CreateOAuthState(ctx, session.StateParams{
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		CallbackURL:         s.CallbackURL(),
		ClientState:         req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
		CodeVerifier:        verifier,
		Provider:            adapter.Name(),
		Scopes:              req.Scopes,
	})
	if err != nil {
		return "", err
	}

	params := provider.AuthorizeParams{
		RedirectURI: s.CallbackURL(),
		State:       state.State,
		Scopes:      req.Scopes,
	}
	if challenge != "" {
		params.CodeChallenge = challenge
		params.CodeChallengeMethod = oauth.PKCEMethodS256
	}
	authURL, err := adapter.BuildAuthorizeURL(params)
	if err != nil {
		if _, cerr := s.sessions.ConsumeOAuthState(ctx, state.State); cerr != nil {
			logger.Warnw("failed to discard oauth state", "error", cerr)
		}
		return "", fmt.Errorf("failed to build authorize URL: %w", err)
	}
	return authURL, nil
}

// observe times one provider call and records its outcome.
func (s *Service) observe(
	ctx context.Context, adapter provider.Adapter, operation string, call func(context.Context) error,
) error {
	ctx, span := s.tracer.Start(ctx, "provider."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("mxcp.auth.provider", adapter.Name())))
	defer span.End()

	start := time.Now()
	err := call(ctx)
	outcome := telemetry.OutcomeSuccess
	if err != nil {
		outcome = telemetry.OutcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, operation+" failed")
	}
	s.metrics.RecordProviderCall(ctx, adapter.Name(), operation, outcome, time.Since(start))
	return err
}
