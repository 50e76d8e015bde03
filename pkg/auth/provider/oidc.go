// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/sync/singleflight"

	"github.com/stacklok/mxcp-auth/pkg/logger"
	"github.com/stacklok/mxcp-auth/pkg/networking"
	"github.com/stacklok/mxcp-auth/pkg/oauth"
)

// Compile-time interface compliance check.
var _ ReadyAdapter = (*OIDCAdapter)(nil)

const (
	discoveryMaxAttempts = 3

	// maxDiscoveryDocumentSize caps the discovery response; larger bodies
	// are truncated and fail to parse.
	maxDiscoveryDocumentSize = 256 << 10
)

// OIDCAdapter is a generic OpenID Connect adapter whose endpoints come from
// the provider's discovery document. Discovery happens once, on the first
// EnsureReady or network call.
type OIDCAdapter struct {
	cfg  *Config
	opts *options

	ready atomic.Pointer[oidcState]
	group singleflight.Group

	// initialInterval is the first backoff delay between discovery attempts.
	initialInterval time.Duration
}

// oidcState is the immutable result of a successful discovery.
type oidcState struct {
	base     *baseAdapter
	doc      *oauth.OIDCDiscoveryDocument
	method   string
	verifier *oidc.IDTokenVerifier
}

// NewOIDCAdapter creates an OIDC adapter. No network I/O happens here.
func NewOIDCAdapter(cfg *Config, opts ...Option) (*OIDCAdapter, error) {
	o, err := buildOptions(cfg, opts)
	if err != nil {
		return nil, err
	}
	return &OIDCAdapter{cfg: cfg, opts: o, initialInterval: 200 * time.Millisecond}, nil
}

// Name returns the provider name.
func (*OIDCAdapter) Name() string {
	return NameOIDC
}

// SupportsPKCE reports whether discovery advertised a usable PKCE method.
// Before discovery it assumes S256, the default.
func (p *OIDCAdapter) SupportsPKCE() bool {
	st := p.ready.Load()
	if st == nil {
		return true
	}
	return st.method != ""
}

// Discovery returns the discovered document, or nil before EnsureReady.
func (p *OIDCAdapter) Discovery() *oauth.OIDCDiscoveryDocument {
	if st := p.ready.Load(); st != nil {
		return st.doc
	}
	return nil
}

// EnsureReady fetches and validates the discovery document. Concurrent
// callers share one fetch; a failure is not cached.
func (p *OIDCAdapter) EnsureReady(ctx context.Context) error {
	_, err := p.state(ctx)
	return err
}

func (p *OIDCAdapter) state(ctx context.Context) (*oidcState, error) {
	if st := p.ready.Load(); st != nil {
		return st, nil
	}

	v, err, _ := p.group.Do("discovery", func() (any, error) {
		if st := p.ready.Load(); st != nil {
			return st, nil
		}
		st, err := p.discoverWithRetry(ctx)
		if err != nil {
			return nil, err
		}
		p.ready.Store(st)
		return st, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*oidcState), nil
}

func (p *OIDCAdapter) discoverWithRetry(ctx context.Context) (*oidcState, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = p.initialInterval

	op := func() (*oidcState, error) {
		st, err := p.discover(ctx)
		if err == nil {
			return st, nil
		}
		if pe, ok := AsProviderError(err); ok && pe.Transient() {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	st, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(discoveryMaxAttempts),
		backoff.WithNotify(func(err error, d time.Duration) {
			logger.Debugw("oidc discovery failed, retrying", "error", err, "retry_in", d)
		}),
	)
	if err != nil {
		if _, ok := AsProviderError(err); ok {
			return nil, err
		}
		// context cancelled between attempts
		return nil, errUnavailable(err)
	}
	return st, nil
}

// discoveryURL accepts either an issuer or a full discovery document URL.
func discoveryURL(configURL string) (issuer, docURL string) {
	trimmed := strings.TrimSuffix(configURL, "/")
	if strings.HasSuffix(trimmed, oauth.WellKnownOIDCPath) {
		return strings.TrimSuffix(trimmed, oauth.WellKnownOIDCPath), trimmed
	}
	return trimmed, trimmed + oauth.WellKnownOIDCPath
}

func (p *OIDCAdapter) discover(ctx context.Context) (*oidcState, error) {
	issuer, docURL := discoveryURL(p.cfg.ConfigURL)

	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.timeout())
	defer cancel()

	res, err := networking.FetchJSON[oauth.OIDCDiscoveryDocument](fetchCtx, p.opts.httpClient, docURL,
		networking.WithMaxResponseSize(maxDiscoveryDocumentSize),
		networking.WithErrorHandler(func(resp *http.Response, body []byte) error {
			if resp.StatusCode >= http.StatusInternalServerError {
				return tokenEndpointError(resp.StatusCode, body)
			}
			return &ProviderError{
				Code:        CodeInvalidResponse,
				Description: "discovery document unavailable: " + resp.Status,
				HTTPStatus:  http.StatusBadRequest,
			}
		}),
	)
	if err != nil {
		if pe, ok := AsProviderError(err); ok {
			return nil, pe
		}
		if strings.Contains(err.Error(), "failed to parse JSON") || strings.Contains(err.Error(), "unexpected content type") {
			return nil, errMalformed(err)
		}
		return nil, errUnavailable(err)
	}

	doc := &res.Data
	if err := validateDiscovery(doc, issuer, p.cfg.AllowLocalhostHTTP); err != nil {
		return nil, errMalformed(err)
	}

	b := newBaseAdapter(NameOIDC, p.cfg, p.opts, oidcFieldMapping)
	b.endpoints = adapterEndpoints{
		auth:     firstNonEmpty(p.cfg.AuthURL, doc.AuthorizationEndpoint),
		token:    firstNonEmpty(p.cfg.TokenURL, doc.TokenEndpoint),
		userInfo: firstNonEmpty(p.cfg.UserInfoURL, doc.UserinfoEndpoint),
		revoke:   firstNonEmpty(p.cfg.RevokeURL, doc.RevocationEndpoint),
	}
	b.defaultScopes = p.cfg.scopesOr("openid", "profile", "email")
	b.refresh = true
	method := doc.PreferredPKCEMethod()
	b.pkce = method != ""

	// go-oidc builds the verifier from the already validated document; the
	// JWKS is fetched on first verification with our HTTP client
	keyCtx := oidc.ClientContext(context.Background(), p.opts.httpDoer())
	oidcProvider := (&oidc.ProviderConfig{
		IssuerURL:   doc.Issuer,
		AuthURL:     doc.AuthorizationEndpoint,
		TokenURL:    doc.TokenEndpoint,
		UserInfoURL: doc.UserinfoEndpoint,
		JWKSURL:     doc.JWKSURI,
	}).NewProvider(keyCtx)

	var verifier *oidc.IDTokenVerifier
	if doc.JWKSURI != "" {
		verifier = oidcProvider.Verifier(&oidc.Config{ClientID: p.cfg.ClientID, Now: p.opts.now})
	}

	logger.Infow("oidc provider discovered",
		"issuer", doc.Issuer,
		"pkce_method", method,
		"has_revocation_endpoint", doc.RevocationEndpoint != "",
		"id_token_validation_enabled", verifier != nil,
	)

	return &oidcState{base: b, doc: doc, method: method, verifier: verifier}, nil
}

// validateDiscovery checks the document fields, that the issuer matches the
// configured one, and that every endpoint uses HTTPS unless the issuer is
// a loopback development server.
func validateDiscovery(doc *oauth.OIDCDiscoveryDocument, expectedIssuer string, allowLocalhostHTTP bool) error {
	if err := doc.Validate(allowLocalhostHTTP); err != nil {
		return err
	}
	if strings.TrimSuffix(doc.Issuer, "/") != strings.TrimSuffix(expectedIssuer, "/") {
		return fmt.Errorf("issuer mismatch: expected %s, got %s", expectedIssuer, doc.Issuer)
	}
	for name, endpoint := range map[string]string{
		"authorization_endpoint": doc.AuthorizationEndpoint,
		"token_endpoint":         doc.TokenEndpoint,
		"userinfo_endpoint":      doc.UserinfoEndpoint,
		"jwks_uri":               doc.JWKSURI,
		"revocation_endpoint":    doc.RevocationEndpoint,
	} {
		if endpoint == "" {
			continue
		}
		if err := validateEndpointOrigin(endpoint, doc.Issuer); err != nil {
			return fmt.Errorf("%s origin mismatch: %w", name, err)
		}
	}
	return nil
}

// validateEndpointOrigin enforces HTTPS for endpoints of non-loopback
// issuers. Hosts may differ: large providers split endpoints across domains.
func validateEndpointOrigin(endpoint, issuer string) error {
	endpointURL, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint URL: %w", err)
	}
	issuerURL, err := url.Parse(issuer)
	if err != nil {
		return fmt.Errorf("invalid issuer URL: %w", err)
	}

	if networking.IsLocalhost(issuerURL.Host) {
		if !networking.IsLocalhost(endpointURL.Host) {
			return fmt.Errorf("issuer is loopback but endpoint host is %q", endpointURL.Host)
		}
		return nil
	}
	if endpointURL.Scheme != networking.HttpsScheme {
		return fmt.Errorf("endpoint uses %q, HTTPS is required", endpointURL.Scheme)
	}
	return nil
}

// BuildAuthorizeURL requires a completed discovery because it cannot do I/O.
func (p *OIDCAdapter) BuildAuthorizeURL(params AuthorizeParams) (string, error) {
	st := p.ready.Load()
	if st == nil {
		return "", errors.New("oidc provider is not ready: call EnsureReady first")
	}
	if params.CodeChallenge != "" && params.CodeChallengeMethod == "" {
		params.CodeChallengeMethod = st.method
	}
	return st.base.BuildAuthorizeURL(params)
}

// ExchangeCode exchanges the code and verifies any returned id_token.
func (p *OIDCAdapter) ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (*GrantResult, error) {
	st, err := p.state(ctx)
	if err != nil {
		return nil, err
	}
	grant, err := st.base.ExchangeCode(ctx, code, redirectURI, codeVerifier)
	if err != nil {
		return nil, err
	}
	if err := verifyIDToken(ctx, st.verifier, grant); err != nil {
		return nil, err
	}
	return grant, nil
}

// RefreshToken refreshes tokens at the discovered token endpoint.
func (p *OIDCAdapter) RefreshToken(ctx context.Context, refreshToken string, scopes []string) (*GrantResult, error) {
	st, err := p.state(ctx)
	if err != nil {
		return nil, err
	}
	grant, err := st.base.RefreshToken(ctx, refreshToken, scopes)
	if err != nil {
		return nil, err
	}
	if err := verifyIDToken(ctx, st.verifier, grant); err != nil {
		return nil, err
	}
	return grant, nil
}

// FetchUserInfo calls the discovered userinfo endpoint.
func (p *OIDCAdapter) FetchUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	st, err := p.state(ctx)
	if err != nil {
		return nil, err
	}
	return st.base.FetchUserInfo(ctx, accessToken)
}

// RevokeToken uses the discovered revocation_endpoint, if any.
func (p *OIDCAdapter) RevokeToken(ctx context.Context, token, tokenTypeHint string) (bool, error) {
	st, err := p.state(ctx)
	if err != nil {
		return false, err
	}
	return st.base.RevokeToken(ctx, token, tokenTypeHint)
}
