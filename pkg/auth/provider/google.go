// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2/endpoints"

	"github.com/stacklok/mxcp-auth/pkg/oauth"
)

const (
	googleIssuer      = "https://accounts.google.com"
	googleJWKSURL     = "https://www.googleapis.com/oauth2/v3/certs"
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	googleRevokeURL   = "https://oauth2.googleapis.com/revoke"
)

// GoogleAdapter talks to Google Identity. It always asks for offline access
// so a refresh token is returned, and verifies id_tokens against Google's keys.
type GoogleAdapter struct {
	*baseAdapter
	verifier *oidc.IDTokenVerifier
}

// NewGoogleAdapter creates a Google adapter. The signing keys are fetched
// lazily on the first id_token verification.
func NewGoogleAdapter(cfg *Config, opts ...Option) (*GoogleAdapter, error) {
	o, err := buildOptions(cfg, opts)
	if err != nil {
		return nil, err
	}

	b := newBaseAdapter(NameGoogle, cfg, o, oidcFieldMapping)
	b.endpoints = adapterEndpoints{
		auth:     firstNonEmpty(cfg.AuthURL, endpoints.Google.AuthURL),
		token:    firstNonEmpty(cfg.TokenURL, endpoints.Google.TokenURL),
		userInfo: firstNonEmpty(cfg.UserInfoURL, googleUserInfoURL),
		revoke:   firstNonEmpty(cfg.RevokeURL, googleRevokeURL),
	}
	b.defaultScopes = cfg.scopesOr("openid", "email", "profile")
	b.pkce = true
	b.refresh = true
	b.mapping = cfg.FieldMapping.merge(UserInfoFieldMapping{
		UserIDField:   "sub",
		UsernameField: "email",
		EmailField:    "email",
		NameField:     "name",
		AvatarField:   "picture",
	})
	if _, ok := b.extraAuthParams["access_type"]; !ok {
		b.extraAuthParams["access_type"] = "offline"
	}
	if _, ok := b.extraAuthParams["prompt"]; !ok {
		b.extraAuthParams["prompt"] = "consent"
	}

	keyCtx := oidc.ClientContext(context.Background(), o.httpDoer())
	keySet := oidc.NewRemoteKeySet(keyCtx, firstNonEmpty(cfg.JWKSURL, googleJWKSURL))
	verifier := oidc.NewVerifier(firstNonEmpty(cfg.Issuer, googleIssuer), keySet, &oidc.Config{
		ClientID: cfg.ClientID,
		Now:      o.now,
	})

	return &GoogleAdapter{baseAdapter: b, verifier: verifier}, nil
}

// ExchangeCode exchanges the code and verifies the returned id_token.
func (g *GoogleAdapter) ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (*GrantResult, error) {
	grant, err := g.baseAdapter.ExchangeCode(ctx, code, redirectURI, codeVerifier)
	if err != nil {
		return nil, err
	}
	if err := verifyIDToken(ctx, g.verifier, grant); err != nil {
		return nil, err
	}
	return grant, nil
}

// RefreshToken refreshes tokens. Google omits the refresh token on refresh
// responses; callers keep the one they already hold.
func (g *GoogleAdapter) RefreshToken(ctx context.Context, refreshToken string, scopes []string) (*GrantResult, error) {
	grant, err := g.baseAdapter.RefreshToken(ctx, refreshToken, scopes)
	if err != nil {
		return nil, err
	}
	if err := verifyIDToken(ctx, g.verifier, grant); err != nil {
		return nil, err
	}
	return grant, nil
}

// verifyIDToken checks the grant's id_token, if any, and replaces the
// unverified profile with the verified claims.
func verifyIDToken(ctx context.Context, verifier *oidc.IDTokenVerifier, grant *GrantResult) error {
	if grant.IDToken == "" || verifier == nil {
		return nil
	}
	token, err := verifier.Verify(ctx, grant.IDToken)
	if err != nil {
		return &ProviderError{
			Code:        oauth.ErrorInvalidToken,
			Description: "id_token verification failed",
			HTTPStatus:  http.StatusBadRequest,
			Cause:       fmt.Errorf("failed to verify ID token: %w", err),
		}
	}
	claims := map[string]any{}
	if err := token.Claims(&claims); err == nil {
		grant.RawProfile = claims
	}
	return nil
}
