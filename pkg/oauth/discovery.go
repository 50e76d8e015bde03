// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"fmt"
	"net/url"
	"slices"

	"github.com/stacklok/mxcp-auth/pkg/networking"
)

// OIDCDiscoveryDocument is the subset of OpenID Provider Metadata
// (OIDC Discovery 1.0 §3, RFC 8414 §2) consumed by provider adapters.
type OIDCDiscoveryDocument struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint,omitempty"`
	JWKSURI                           string   `json:"jwks_uri,omitempty"`
	RevocationEndpoint                string   `json:"revocation_endpoint,omitempty"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint,omitempty"`
	EndSessionEndpoint                string   `json:"end_session_endpoint,omitempty"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported,omitempty"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
}

// Validate checks the required fields and that every advertised endpoint is an
// HTTPS URL (plain HTTP is allowed for loopback issuers during development).
func (d *OIDCDiscoveryDocument) Validate(allowLocalhostHTTP bool) error {
	if d.Issuer == "" {
		return fmt.Errorf("missing issuer")
	}
	if d.AuthorizationEndpoint == "" {
		return fmt.Errorf("missing authorization_endpoint")
	}
	if d.TokenEndpoint == "" {
		return fmt.Errorf("missing token_endpoint")
	}

	endpoints := map[string]string{
		"issuer":                 d.Issuer,
		"authorization_endpoint": d.AuthorizationEndpoint,
		"token_endpoint":         d.TokenEndpoint,
		"userinfo_endpoint":      d.UserinfoEndpoint,
		"jwks_uri":               d.JWKSURI,
		"revocation_endpoint":    d.RevocationEndpoint,
		"introspection_endpoint": d.IntrospectionEndpoint,
	}
	for name, endpoint := range endpoints {
		if endpoint == "" {
			continue
		}
		if err := networking.ValidateEndpointURL(endpoint, allowLocalhostHTTP); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

// SameOrigin reports whether every advertised endpoint shares the issuer's
// scheme and host. Some providers legitimately split hosts, so callers decide
// whether to enforce this.
func (d *OIDCDiscoveryDocument) SameOrigin() bool {
	issuer, err := url.Parse(d.Issuer)
	if err != nil {
		return false
	}
	for _, endpoint := range []string{
		d.AuthorizationEndpoint, d.TokenEndpoint, d.UserinfoEndpoint, d.RevocationEndpoint,
	} {
		if endpoint == "" {
			continue
		}
		u, err := url.Parse(endpoint)
		if err != nil || u.Scheme != issuer.Scheme || u.Host != issuer.Host {
			return false
		}
	}
	return true
}

// PreferredPKCEMethod returns S256 when advertised (or when nothing is
// advertised), plain when only plain is offered, and "" when PKCE is absent
// from a non-empty list.
func (d *OIDCDiscoveryDocument) PreferredPKCEMethod() string {
	if len(d.CodeChallengeMethodsSupported) == 0 {
		return PKCEMethodS256
	}
	if slices.Contains(d.CodeChallengeMethodsSupported, PKCEMethodS256) {
		return PKCEMethodS256
	}
	if slices.Contains(d.CodeChallengeMethodsSupported, PKCEMethodPlain) {
		return PKCEMethodPlain
	}
	return ""
}

// SupportsPKCE reports whether a PKCE method can be used with this provider.
func (d *OIDCDiscoveryDocument) SupportsPKCE() bool {
	return d.PreferredPKCEMethod() != ""
}
