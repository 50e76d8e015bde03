// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/stacklok/mxcp-auth/pkg/auth/crypto"
	"github.com/stacklok/mxcp-auth/pkg/logger"
	"github.com/stacklok/mxcp-auth/pkg/networking"
	"github.com/stacklok/mxcp-auth/pkg/oauth"
)

// Compile-time interface compliance check.
var _ Adapter = (*baseAdapter)(nil)

type clientAuthStyle int

const (
	// authInParams sends client_id and client_secret in the form body.
	authInParams clientAuthStyle = iota
	// authInHeader uses HTTP basic authentication.
	authInHeader
)

type adapterEndpoints struct {
	auth     string
	token    string
	userInfo string
	revoke   string
}

// baseAdapter implements the OAuth 2.0 flows shared by every static-endpoint
// provider. Concrete providers embed it and override what differs.
type baseAdapter struct {
	name         string
	clientID     string
	clientSecret string
	endpoints    adapterEndpoints

	defaultScopes []string
	// scopeSeparator splits the token response scope string.
	scopeSeparator string

	pkce      bool
	refresh   bool
	authStyle clientAuthStyle

	extraAuthParams map[string]string
	userInfoHeaders map[string]string
	mapping         UserInfoFieldMapping

	// limiter throttles user info calls when the provider enforces quotas.
	limiter *rate.Limiter

	timeout    time.Duration
	httpClient networking.HTTPClient
	now        func() time.Time
}

func newBaseAdapter(name string, cfg *Config, o *options, defaults UserInfoFieldMapping) *baseAdapter {
	extra := make(map[string]string, len(cfg.ExtraAuthParams))
	for k, v := range cfg.ExtraAuthParams {
		extra[k] = v
	}
	return &baseAdapter{
		name:            name,
		clientID:        cfg.ClientID,
		clientSecret:    cfg.ClientSecret,
		scopeSeparator:  " ",
		extraAuthParams: extra,
		userInfoHeaders: map[string]string{},
		mapping:         cfg.FieldMapping.merge(defaults),
		timeout:         cfg.timeout(),
		httpClient:      o.httpClient,
		now:             o.now,
	}
}

// Name returns the provider name.
func (b *baseAdapter) Name() string {
	return b.name
}

// SupportsPKCE reports whether authorize and token requests carry PKCE.
func (b *baseAdapter) SupportsPKCE() bool {
	return b.pkce
}

// BuildAuthorizeURL builds the URL to redirect the user to the provider.
func (b *baseAdapter) BuildAuthorizeURL(p AuthorizeParams) (string, error) {
	if p.State == "" {
		return "", errors.New("state parameter is required")
	}
	if p.RedirectURI == "" {
		return "", errors.New("redirect_uri parameter is required")
	}

	u, err := url.Parse(b.endpoints.auth)
	if err != nil {
		return "", errors.New("invalid authorization endpoint")
	}

	params := u.Query()
	params.Set("response_type", "code")
	params.Set("client_id", b.clientID)
	params.Set("redirect_uri", p.RedirectURI)
	params.Set("state", p.State)

	scopes := p.Scopes
	if len(scopes) == 0 {
		scopes = b.defaultScopes
	}
	if len(scopes) > 0 {
		params.Set("scope", strings.Join(scopes, " "))
	}

	// providers without PKCE get no challenge at all
	if b.pkce && p.CodeChallenge != "" {
		method := p.CodeChallengeMethod
		if method == "" {
			method = crypto.PKCEChallengeMethodS256
		}
		params.Set("code_challenge", p.CodeChallenge)
		params.Set("code_challenge_method", method)
	}

	for k, v := range b.extraAuthParams {
		params.Set(k, v)
	}
	for k, v := range p.ExtraParams {
		params.Set(k, v)
	}

	u.RawQuery = params.Encode()
	return u.String(), nil
}

// ExchangeCode exchanges an authorization code for tokens.
func (b *baseAdapter) ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (*GrantResult, error) {
	if code == "" {
		return nil, errInvalidRequest("authorization code is required")
	}

	logger.Debugw("exchanging authorization code",
		"provider", b.name,
		"token_endpoint", b.endpoints.token,
		"has_pkce_verifier", codeVerifier != "",
	)

	form := url.Values{
		"grant_type":   {oauth.GrantTypeAuthorizationCode},
		"code":         {code},
		"redirect_uri": {redirectURI},
	}
	if b.pkce && codeVerifier != "" {
		form.Set("code_verifier", codeVerifier)
	}

	grant, err := b.tokenRequest(ctx, form)
	if err != nil {
		return nil, err
	}

	logger.Debugw("authorization code exchange successful",
		"provider", b.name,
		"has_refresh_token", grant.RefreshToken != "",
		"has_id_token", grant.IDToken != "",
	)
	return grant, nil
}

// RefreshToken refreshes the provider tokens.
func (b *baseAdapter) RefreshToken(ctx context.Context, refreshToken string, scopes []string) (*GrantResult, error) {
	if !b.refresh {
		return nil, errRefreshNotSupported(b.name)
	}
	if refreshToken == "" {
		return nil, errInvalidRequest("refresh token is required")
	}

	form := url.Values{
		"grant_type":    {oauth.GrantTypeRefreshToken},
		"refresh_token": {refreshToken},
	}
	if len(scopes) > 0 {
		form.Set("scope", strings.Join(scopes, " "))
	}

	grant, err := b.tokenRequest(ctx, form)
	if err != nil {
		return nil, err
	}

	logger.Debugw("token refresh successful",
		"provider", b.name,
		"has_new_refresh_token", grant.RefreshToken != "",
	)
	return grant, nil
}

// FetchUserInfo loads and normalizes the user profile.
func (b *baseAdapter) FetchUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	if accessToken == "" {
		return nil, errInvalidToken("access token is required")
	}
	if b.endpoints.userInfo == "" {
		return nil, NewProviderError(oauth.ErrorServerError, "no user info endpoint configured", http.StatusNotImplemented)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, errUnavailable(err)
		}
	}

	opts := []networking.FetchOption{
		networking.WithBearerToken(accessToken),
		networking.WithHeader("Accept", networking.ContentTypeJSON),
		networking.WithErrorHandler(func(resp *http.Response, body []byte) error {
			return resourceEndpointError(resp.StatusCode, body)
		}),
	}
	for k, v := range b.userInfoHeaders {
		opts = append(opts, networking.WithHeader(k, v))
	}

	res, err := networking.Fetch(ctx, b.httpClient, b.endpoints.userInfo, opts...)
	if err != nil {
		return nil, classifyFetchError(err)
	}
	return b.mapping.normalize(b.name, res.Raw)
}

// RevokeToken revokes a token per RFC 7009. Providers without a revocation
// endpoint return false.
func (b *baseAdapter) RevokeToken(ctx context.Context, token, tokenTypeHint string) (bool, error) {
	if b.endpoints.revoke == "" {
		return false, nil
	}
	if token == "" {
		return false, errInvalidRequest("token is required")
	}

	form := url.Values{"token": {token}}
	if tokenTypeHint != "" {
		form.Set("token_type_hint", tokenTypeHint)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	opts := append(b.formOptions(form),
		networking.WithAny2xx(),
		networking.WithErrorHandler(func(resp *http.Response, body []byte) error {
			return tokenEndpointError(resp.StatusCode, body)
		}),
	)
	if _, err := networking.Fetch(ctx, b.httpClient, b.endpoints.revoke, opts...); err != nil {
		return false, classifyFetchError(err)
	}
	return true, nil
}

// formOptions adds client authentication to a form POST.
func (b *baseAdapter) formOptions(form url.Values) []networking.FetchOption {
	opts := []networking.FetchOption{
		networking.WithMethod(http.MethodPost),
		networking.WithHeader("Content-Type", networking.ContentTypeFormURLEncoded),
		networking.WithHeader("Accept", networking.ContentTypeJSON),
	}
	switch b.authStyle {
	case authInHeader:
		opts = append(opts, networking.WithBasicAuth(url.QueryEscape(b.clientID), url.QueryEscape(b.clientSecret)))
	default:
		form.Set("client_id", b.clientID)
		if b.clientSecret != "" {
			form.Set("client_secret", b.clientSecret)
		}
	}
	return append(opts, networking.WithBody(strings.NewReader(form.Encode())))
}

// tokenRequest performs one token endpoint round trip.
func (b *baseAdapter) tokenRequest(ctx context.Context, form url.Values) (*GrantResult, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	opts := append(b.formOptions(form),
		networking.WithErrorHandler(func(resp *http.Response, body []byte) error {
			return tokenEndpointError(resp.StatusCode, body)
		}),
	)

	res, err := networking.Fetch(ctx, b.httpClient, b.endpoints.token, opts...)
	if err != nil {
		return nil, classifyFetchError(err)
	}
	return b.parseTokenResponse(res.Raw)
}

// classifyFetchError keeps ProviderErrors and maps everything else (transport
// failures, deadlines, cancellations) to temporarily_unavailable.
func classifyFetchError(err error) *ProviderError {
	if pe, ok := AsProviderError(err); ok {
		return pe
	}
	if httpErr, ok := networking.AsHTTPError(err); ok {
		return tokenEndpointError(httpErr.StatusCode, nil)
	}
	return errUnavailable(err)
}

// tokenResponse is the RFC 6749 §5.1 body, tolerant of the common vendor
// deviations.
type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    expiresIn `json:"expires_in"`
	Scope        string    `json:"scope"`
	IDToken      string    `json:"id_token"`

	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// expiresIn accepts a JSON number or a numeric string.
type expiresIn int64

func (e *expiresIn) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*e = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*e = expiresIn(v)
	return nil
}

func (b *baseAdapter) parseTokenResponse(body []byte) (*GrantResult, error) {
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, errMalformed(err)
	}

	// some providers answer 200 with an error body
	if tr.Error != "" {
		return nil, NewProviderError(normalizeCode(tr.Error), tr.ErrorDescription, http.StatusBadRequest)
	}
	if tr.AccessToken == "" {
		return nil, errMalformed(errors.New("token response has no access_token"))
	}

	grant := &GrantResult{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    firstNonEmpty(tr.TokenType, oauth.TokenTypeBearer),
		IDToken:      tr.IDToken,
		Scopes:       splitScopes(tr.Scope, b.scopeSeparator),
	}
	if tr.ExpiresIn > 0 {
		grant.ExpiresAt = b.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	if tr.IDToken != "" {
		grant.RawProfile = peekClaims(tr.IDToken)
	}
	return grant, nil
}

func splitScopes(scope, sep string) []string {
	if scope == "" {
		return nil
	}
	return strings.FieldsFunc(scope, func(r rune) bool {
		return r == ' ' || strings.ContainsRune(sep, r)
	})
}

// peekClaims decodes id_token claims without verifying the signature. The
// result is only used as a debugging profile.
func peekClaims(idToken string) map[string]any {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return nil
	}
	return claims
}
