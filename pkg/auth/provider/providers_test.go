// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitHubAdapter(t *testing.T) {
	t.Parallel()

	idp := newMockIdP(t)
	idp.token = func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "gho_abc",
			"token_type":   "bearer",
			"scope":        "read:user,user:email",
		})
	}
	idp.userInfo = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		assert.Equal(t, "2022-11-28", r.Header.Get("X-GitHub-Api-Version"))
		writeJSON(w, http.StatusOK, map[string]any{
			"id":         12345678,
			"login":      "octocat",
			"name":       "The Octocat",
			"email":      nil,
			"avatar_url": "https://avatars.githubusercontent.com/u/1",
		})
	}

	cfg := idp.staticConfig(NameGitHub)
	a, err := NewGitHubAdapter(cfg, WithHTTPClient(idp.Client()))
	require.NoError(t, err)
	assert.False(t, a.SupportsPKCE())

	raw, err := a.BuildAuthorizeURL(AuthorizeParams{
		RedirectURI:   testRedirectURI,
		State:         "s",
		CodeChallenge: "ignored",
	})
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Empty(t, u.Query().Get("code_challenge"))
	assert.Equal(t, "read:user user:email", u.Query().Get("scope"))

	grant, err := a.ExchangeCode(context.Background(), "code", testRedirectURI, "verifier")
	require.NoError(t, err)
	assert.Equal(t, "gho_abc", grant.AccessToken)
	assert.Equal(t, []string{"read:user", "user:email"}, grant.Scopes)
	assert.True(t, grant.ExpiresAt.IsZero(), "github tokens do not expire")

	info, err := a.FetchUserInfo(context.Background(), "gho_abc")
	require.NoError(t, err)
	want := &UserInfo{
		Provider:  NameGitHub,
		UserID:    "12345678",
		Username:  "octocat",
		Name:      "The Octocat",
		AvatarURL: "https://avatars.githubusercontent.com/u/1",
	}
	if diff := cmp.Diff(want, info, cmpopts.IgnoreFields(UserInfo{}, "RawProfile")); diff != "" {
		t.Errorf("user info mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "octocat", info.RawProfile["login"])

	_, err = a.RefreshToken(context.Background(), "anything", nil)
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, CodeRefreshNotSupported, pe.Code)
	assert.Equal(t, http.StatusBadRequest, pe.HTTPStatus)
}

func TestGitHubAdapter_RevokeToken(t *testing.T) {
	t.Parallel()

	var gotMethod, gotPath, gotToken string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, testClientID, user)
		assert.Equal(t, testClientSecret, pass)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotToken = body["access_token"]
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(api.Close)

	a, err := NewGitHubAdapter(&Config{
		Name:         NameGitHub,
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		RevokeURL:    api.URL,
	}, WithHTTPClient(api.Client()))
	require.NoError(t, err)

	ok, err := a.RevokeToken(context.Background(), "gho_abc", "access_token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/applications/"+testClientID+"/token", gotPath)
	assert.Equal(t, "gho_abc", gotToken)
}

func TestGoogleAdapter_AuthorizeParams(t *testing.T) {
	t.Parallel()

	a, err := NewGoogleAdapter(&Config{Name: NameGoogle, ClientID: testClientID}, WithHTTPClient(http.DefaultClient))
	require.NoError(t, err)
	assert.True(t, a.SupportsPKCE())

	raw, err := a.BuildAuthorizeURL(AuthorizeParams{RedirectURI: testRedirectURI, State: "s", CodeChallenge: "c"})
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", u.Host)
	assert.Equal(t, "offline", u.Query().Get("access_type"))
	assert.Equal(t, "consent", u.Query().Get("prompt"))
	assert.Equal(t, "S256", u.Query().Get("code_challenge_method"))
}

func TestGoogleAdapter_VerifiesIDToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		issuer  func(idp *mockIdP) string
		wantErr bool
	}{
		{name: "valid id_token", issuer: func(idp *mockIdP) string { return idp.URL }},
		{name: "wrong issuer", issuer: func(*mockIdP) string { return "https://evil.example.com" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			idp := newMockIdP(t)
			idToken := idp.signIDToken(t, tt.issuer(idp), "google-user", map[string]any{"email": "g@example.com"})
			idp.token = func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{
					"access_token": "ya29.token",
					"expires_in":   3599,
					"id_token":     idToken,
				})
			}

			cfg := idp.staticConfig(NameGoogle)
			cfg.Issuer = idp.URL
			cfg.JWKSURL = idp.URL + "/jwks"
			a, err := NewGoogleAdapter(cfg, WithHTTPClient(idp.Client()))
			require.NoError(t, err)

			grant, err := a.ExchangeCode(context.Background(), "code", testRedirectURI, "v")
			if tt.wantErr {
				pe, ok := AsProviderError(err)
				require.True(t, ok)
				assert.Equal(t, "invalid_token", pe.Code)
				assert.Equal(t, http.StatusBadRequest, pe.HTTPStatus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "google-user", grant.RawProfile["sub"])
			assert.Equal(t, "g@example.com", grant.RawProfile["email"])
		})
	}
}

func TestAtlassianAdapter(t *testing.T) {
	t.Parallel()

	idp := newMockIdP(t)
	idp.userInfo = func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"account_id": "557058:abc",
			"email":      "a@example.com",
			"name":       "Atlas",
		})
	}
	a, err := NewAtlassianAdapter(idp.staticConfig(NameAtlassian), WithHTTPClient(idp.Client()))
	require.NoError(t, err)
	assert.False(t, a.SupportsPKCE())

	raw, err := a.BuildAuthorizeURL(AuthorizeParams{RedirectURI: testRedirectURI, State: "s"})
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "api.atlassian.com", u.Query().Get("audience"))
	assert.Equal(t, "read:me offline_access", u.Query().Get("scope"))

	info, err := a.FetchUserInfo(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "557058:abc", info.UserID)
	assert.Equal(t, "a@example.com", info.Username, "username falls back to email")

	ok, err := a.RevokeToken(context.Background(), "tok", "")
	require.NoError(t, err)
	assert.False(t, ok, "no revocation endpoint")
}

func TestSalesforceAdapter_Endpoints(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		domain string
		want   string
	}{
		{name: "default domain", want: "https://login.salesforce.com/services/oauth2/authorize"},
		{name: "custom domain", domain: "acme.my.salesforce.com", want: "https://acme.my.salesforce.com/services/oauth2/authorize"},
		{name: "domain with scheme", domain: "https://test.salesforce.com/", want: "https://test.salesforce.com/services/oauth2/authorize"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a, err := NewSalesforceAdapter(&Config{Name: NameSalesforce, ClientID: "c", Domain: tt.domain},
				WithHTTPClient(http.DefaultClient))
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.endpoints.auth)
			assert.True(t, a.SupportsPKCE())
		})
	}
}
