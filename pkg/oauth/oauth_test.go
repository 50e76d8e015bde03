// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDoc() *OIDCDiscoveryDocument {
	return &OIDCDiscoveryDocument{
		Issuer:                "https://idp.example.com",
		AuthorizationEndpoint: "https://idp.example.com/authorize",
		TokenEndpoint:         "https://idp.example.com/token",
		UserinfoEndpoint:      "https://idp.example.com/userinfo",
		JWKSURI:               "https://idp.example.com/jwks",
	}
}

func TestOIDCDiscoveryDocument_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*OIDCDiscoveryDocument)
		local   bool
		wantErr string
	}{
		{name: "valid", mutate: func(*OIDCDiscoveryDocument) {}},
		{name: "missing issuer", mutate: func(d *OIDCDiscoveryDocument) { d.Issuer = "" }, wantErr: "missing issuer"},
		{name: "missing token endpoint", mutate: func(d *OIDCDiscoveryDocument) { d.TokenEndpoint = "" }, wantErr: "missing token_endpoint"},
		{
			name:    "http userinfo",
			mutate:  func(d *OIDCDiscoveryDocument) { d.UserinfoEndpoint = "http://idp.example.com/userinfo" },
			wantErr: "invalid userinfo_endpoint",
		},
		{
			name: "loopback http allowed",
			mutate: func(d *OIDCDiscoveryDocument) {
				d.Issuer = "http://127.0.0.1:9999"
				d.AuthorizationEndpoint = "http://127.0.0.1:9999/authorize"
				d.TokenEndpoint = "http://127.0.0.1:9999/token"
				d.UserinfoEndpoint = ""
				d.JWKSURI = ""
			},
			local: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := validDoc()
			tt.mutate(d)
			err := d.Validate(tt.local)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestOIDCDiscoveryDocument_PKCE(t *testing.T) {
	t.Parallel()

	d := validDoc()
	assert.Equal(t, PKCEMethodS256, d.PreferredPKCEMethod(), "defaults to S256")

	d.CodeChallengeMethodsSupported = []string{"plain"}
	assert.Equal(t, PKCEMethodPlain, d.PreferredPKCEMethod())

	d.CodeChallengeMethodsSupported = []string{"plain", "S256"}
	assert.Equal(t, PKCEMethodS256, d.PreferredPKCEMethod())

	d.CodeChallengeMethodsSupported = []string{"S512"}
	assert.False(t, d.SupportsPKCE())
}

func TestOIDCDiscoveryDocument_SameOrigin(t *testing.T) {
	t.Parallel()

	d := validDoc()
	assert.True(t, d.SameOrigin())

	d.TokenEndpoint = "https://evil.example.net/token"
	assert.False(t, d.SameOrigin())
}

func TestResourceMetadataURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://mcp.example.com/.well-known/oauth-protected-resource",
		ResourceMetadataURL("https://mcp.example.com"))
	assert.Equal(t, "https://mcp.example.com/.well-known/oauth-protected-resource/mcp",
		ResourceMetadataURL("https://mcp.example.com/mcp/"))
	assert.Empty(t, ResourceMetadataURL("not a url"))
}

func TestValidateRedirectURI(t *testing.T) {
	t.Parallel()

	valid := []string{
		"https://client.example.com/cb",
		"http://127.0.0.1:33418/callback",
		"http://localhost/cb",
		"com.example.app:/oauth2redirect",
	}
	for _, raw := range valid {
		assert.NoError(t, ValidateRedirectURI(raw), raw)
	}

	invalid := []string{
		"",
		"/relative/cb",
		"https://client.example.com/cb#frag",
		"http://client.example.com/cb",
		"javascript:alert(1)",
	}
	for _, raw := range invalid {
		assert.Error(t, ValidateRedirectURI(raw), raw)
	}
}
