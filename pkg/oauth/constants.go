// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

// Well-known discovery paths.
const (
	// WellKnownOIDCPath is the OpenID Connect discovery path (OIDC Discovery 1.0 §4).
	WellKnownOIDCPath = "/.well-known/openid-configuration"

	// WellKnownOAuthResourcePath is the RFC 9728 protected resource metadata path.
	WellKnownOAuthResourcePath = "/.well-known/oauth-protected-resource"
)

// Grant types (RFC 6749 §4).
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

// PKCE code challenge methods (RFC 7636 §4.2).
const (
	PKCEMethodS256  = "S256"
	PKCEMethodPlain = "plain"
)

// TokenTypeBearer is the only access token type issued.
const TokenTypeBearer = "Bearer"

// Token type hints for revocation (RFC 7009 §2.1).
const (
	TokenTypeHintAccessToken  = "access_token"
	TokenTypeHintRefreshToken = "refresh_token"
)

// OAuth 2.0 error codes (RFC 6749 §5.2, RFC 6750 §3.1).
const (
	ErrorInvalidRequest         = "invalid_request"
	ErrorInvalidClient          = "invalid_client"
	ErrorInvalidGrant           = "invalid_grant"
	ErrorUnauthorizedClient     = "unauthorized_client"
	ErrorUnsupportedGrantType   = "unsupported_grant_type"
	ErrorInvalidScope           = "invalid_scope"
	ErrorAccessDenied           = "access_denied"
	ErrorServerError            = "server_error"
	ErrorTemporarilyUnavailable = "temporarily_unavailable"
	ErrorInvalidToken           = "invalid_token"
	ErrorUnsupportedTokenType   = "unsupported_token_type"
)

// TokenErrorResponse is the JSON body of an RFC 6749 §5.2 error response.
type TokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorURI         string `json:"error_uri,omitempty"`
}

// TokenResponse is the JSON body of an RFC 6749 §5.1 successful token response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}
