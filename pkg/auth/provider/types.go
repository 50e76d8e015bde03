// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"fmt"
	"time"
)

//go:generate mockgen -destination=mocks/mock_adapter.go -package=mocks -source=types.go Adapter

// Provider names accepted by NewAdapter.
const (
	NameGitHub     = "github"
	NameGoogle     = "google"
	NameKeycloak   = "keycloak"
	NameAtlassian  = "atlassian"
	NameSalesforce = "salesforce"
	NameOIDC       = "oidc"
	NameDummy      = "dummy"
)

// GrantResult is the outcome of a code exchange or refresh. It is built per
// call and never persisted as-is.
type GrantResult struct {
	AccessToken  string
	RefreshToken string

	// ExpiresAt is the absolute access token expiry. Zero means non-expiring.
	ExpiresAt time.Time

	// Scopes is empty when the provider omitted scope, which means the
	// requested scope was granted (RFC 6749 §5.1).
	Scopes    []string
	TokenType string
	IDToken   string

	// RawProfile holds unverified claims for debugging only.
	RawProfile map[string]any
}

// String implements fmt.Stringer without revealing any token.
func (g *GrantResult) String() string {
	if g == nil {
		return "GrantResult(nil)"
	}
	return fmt.Sprintf("GrantResult{has_access_token:%t has_refresh_token:%t has_id_token:%t expires_at:%s scopes:%v}",
		g.AccessToken != "", g.RefreshToken != "", g.IDToken != "", g.ExpiresAt.Format(time.RFC3339), g.Scopes)
}

// GoString implements fmt.GoStringer so %#v does not print tokens either.
func (g *GrantResult) GoString() string { return g.String() }

// UserInfo is the normalized identity returned by an adapter.
type UserInfo struct {
	Provider string `json:"provider"`

	// UserID is the stable provider-scoped identifier. Always set.
	UserID     string         `json:"user_id"`
	Username   string         `json:"username"`
	Email      string         `json:"email,omitempty"`
	Name       string         `json:"name,omitempty"`
	AvatarURL  string         `json:"avatar_url,omitempty"`
	RawProfile map[string]any `json:"raw_profile,omitempty"`
}

// AuthorizeParams are the inputs of BuildAuthorizeURL.
type AuthorizeParams struct {
	RedirectURI         string
	State               string
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
	ExtraParams         map[string]string
}

// Adapter is implemented by every Identity Provider client.
type Adapter interface {
	// Name returns the static provider identifier.
	Name() string

	// BuildAuthorizeURL returns the URL the user agent is sent to. It performs
	// no I/O.
	BuildAuthorizeURL(p AuthorizeParams) (string, error)

	// ExchangeCode trades an authorization code at the token endpoint.
	ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (*GrantResult, error)

	// RefreshToken exchanges a provider refresh token for fresh tokens.
	RefreshToken(ctx context.Context, refreshToken string, scopes []string) (*GrantResult, error)

	// FetchUserInfo loads the profile bound to an access token.
	FetchUserInfo(ctx context.Context, accessToken string) (*UserInfo, error)

	// RevokeToken revokes a token. It returns false when the provider has
	// no revocation endpoint.
	RevokeToken(ctx context.Context, token, tokenTypeHint string) (bool, error)
}

// ReadyAdapter is implemented by adapters that resolve their endpoints lazily.
type ReadyAdapter interface {
	Adapter

	// EnsureReady resolves endpoints. It is idempotent and safe for
	// concurrent use.
	EnsureReady(ctx context.Context) error
}

// PKCESupporter is implemented by adapters that know whether the upstream
// provider accepts PKCE.
type PKCESupporter interface {
	SupportsPKCE() bool
}

// SupportsPKCE reports whether PKCE parameters should be generated for a.
// Adapters that do not say are assumed not to support it.
func SupportsPKCE(a Adapter) bool {
	if s, ok := a.(PKCESupporter); ok {
		return s.SupportsPKCE()
	}
	return false
}
