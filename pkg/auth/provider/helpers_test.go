// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

const (
	testClientID     = "test-client-id"
	testClientSecret = "test-client-secret"
	testRedirectURI  = "http://localhost:8080/callback"
	testKeyID        = "test-key-1"
)

// mockIdP is an httptest identity provider. Handlers can be swapped per test.
type mockIdP struct {
	*httptest.Server
	key *rsa.PrivateKey

	discoveryHits atomic.Int32
	tokenHits     atomic.Int32

	discovery http.HandlerFunc
	token     http.HandlerFunc
	userInfo  http.HandlerFunc
	revoke    http.HandlerFunc
}

func newMockIdP(t *testing.T) *mockIdP {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	m := &mockIdP{key: key}
	m.discovery = m.defaultDiscovery
	m.token = func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "test-access-token",
			"token_type":    "Bearer",
			"refresh_token": "test-refresh-token",
			"expires_in":    3600,
			"scope":         "openid profile",
		})
	}
	m.userInfo = func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-access-token" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid_token"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"sub":                "user-123",
			"preferred_username": "tester",
			"name":               "Test User",
			"email":              "test@example.com",
			"picture":            "https://example.com/avatar.png",
		})
	}
	m.revoke = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		m.discoveryHits.Add(1)
		m.discovery(w, r)
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		m.tokenHits.Add(1)
		m.token(w, r)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) { m.userInfo(w, r) })
	mux.HandleFunc("/revoke", func(w http.ResponseWriter, r *http.Request) { m.revoke(w, r) })
	mux.HandleFunc("/jwks", m.handleJWKS)

	m.Server = httptest.NewServer(mux)
	t.Cleanup(m.Close)
	return m
}

func (m *mockIdP) defaultDiscovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                m.URL,
		"authorization_endpoint":                m.URL + "/authorize",
		"token_endpoint":                        m.URL + "/token",
		"userinfo_endpoint":                     m.URL + "/userinfo",
		"revocation_endpoint":                   m.URL + "/revoke",
		"jwks_uri":                              m.URL + "/jwks",
		"code_challenge_methods_supported":      []string{"S256"},
		"response_types_supported":              []string{"code"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (m *mockIdP) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &m.key.PublicKey,
		KeyID:     testKeyID,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}}})
}

// signIDToken mints an RS256 id_token with the IdP key.
func (m *mockIdP) signIDToken(t *testing.T, issuer, subject string, extra map[string]any) string {
	t.Helper()

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: m.key},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", testKeyID),
	)
	require.NoError(t, err)

	now := time.Now()
	claims := jwt.Claims{
		Issuer:   issuer,
		Subject:  subject,
		Audience: jwt.Audience{testClientID},
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(time.Hour)),
	}
	builder := jwt.Signed(signer).Claims(claims)
	if extra != nil {
		builder = builder.Claims(extra)
	}
	raw, err := builder.Serialize()
	require.NoError(t, err)
	return raw
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// staticConfig points a static-endpoint provider at the mock IdP.
func (m *mockIdP) staticConfig(name string) *Config {
	return &Config{
		Name:               name,
		ClientID:           testClientID,
		ClientSecret:       testClientSecret,
		AuthURL:            m.URL + "/authorize",
		TokenURL:           m.URL + "/token",
		UserInfoURL:        m.URL + "/userinfo",
		RevokeURL:          m.URL + "/revoke",
		AllowLocalhostHTTP: true,
	}
}
