// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/stacklok/mxcp-auth/pkg/oauth"
)

// Defaults of the dummy adapter.
const (
	DummyExpectedCode  = "TEST_CODE_OK"
	DummyAccessToken   = "DUMMY_ACCESS_TOKEN"
	DummyRefreshToken  = "DUMMY_REFRESH_TOKEN"
	DummyUserID        = "dummy-user"
	DummyScope         = "dummy.read"
	dummyAuthorizeURL  = "http://localhost/dummy/authorize"
	dummyDefaultExpiry = time.Hour
)

// DummyConfig configures the dummy adapter. Zero fields take the defaults.
type DummyConfig struct {
	ExpectedCode string

	// ExpectedCodeVerifier, when set, must match the exchanged verifier.
	ExpectedCodeVerifier string

	AccessToken  string
	RefreshToken string
	Scopes       []string
	UserID       string
	Username     string
	Email        string

	// ExpiresIn is the access token lifetime. Negative means non-expiring.
	ExpiresIn time.Duration

	// ValidTokens are extra access tokens FetchUserInfo accepts.
	ValidTokens []string

	// RevokedTokens are rejected by FetchUserInfo with a 401.
	RevokedTokens []string
}

// DummyAdapter is an in-memory adapter with no network I/O. It makes the
// callback and middleware flows deterministic in tests.
type DummyAdapter struct {
	cfg DummyConfig
	now func() time.Time

	mu       sync.Mutex
	valid    map[string]struct{}
	refresh  map[string]struct{}
	revoked  map[string]struct{}
	refreshN int
}

// NewDummyAdapter creates a dummy adapter.
func NewDummyAdapter(cfg DummyConfig, opts ...Option) *DummyAdapter {
	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	if cfg.ExpectedCode == "" {
		cfg.ExpectedCode = DummyExpectedCode
	}
	if cfg.AccessToken == "" {
		cfg.AccessToken = DummyAccessToken
	}
	if cfg.RefreshToken == "" {
		cfg.RefreshToken = DummyRefreshToken
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{DummyScope}
	}
	if cfg.UserID == "" {
		cfg.UserID = DummyUserID
	}
	if cfg.Username == "" {
		cfg.Username = cfg.UserID
	}
	if cfg.ExpiresIn == 0 {
		cfg.ExpiresIn = dummyDefaultExpiry
	}

	d := &DummyAdapter{
		cfg:     cfg,
		now:     o.now,
		valid:   map[string]struct{}{cfg.AccessToken: {}},
		refresh: map[string]struct{}{cfg.RefreshToken: {}},
		revoked: map[string]struct{}{},
	}
	for _, t := range cfg.ValidTokens {
		d.valid[t] = struct{}{}
	}
	for _, t := range cfg.RevokedTokens {
		d.revoked[t] = struct{}{}
	}
	return d
}

// Name returns "dummy".
func (*DummyAdapter) Name() string {
	return NameDummy
}

// SupportsPKCE is true: the dummy adapter checks verifiers when configured to.
func (*DummyAdapter) SupportsPKCE() bool {
	return true
}

// BuildAuthorizeURL returns a URL on a fake authorize endpoint.
func (d *DummyAdapter) BuildAuthorizeURL(p AuthorizeParams) (string, error) {
	if p.State == "" {
		return "", errors.New("state parameter is required")
	}
	params := url.Values{
		"response_type": {"code"},
		"redirect_uri":  {p.RedirectURI},
		"state":         {p.State},
		"scope":         {strings.Join(p.Scopes, " ")},
	}
	if p.CodeChallenge != "" {
		params.Set("code_challenge", p.CodeChallenge)
		params.Set("code_challenge_method", p.CodeChallengeMethod)
	}
	for k, v := range p.ExtraParams {
		params.Set(k, v)
	}
	return dummyAuthorizeURL + "?" + params.Encode(), nil
}

func (d *DummyAdapter) grant(accessToken, refreshToken string) *GrantResult {
	g := &GrantResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Scopes:       slices.Clone(d.cfg.Scopes),
		TokenType:    oauth.TokenTypeBearer,
		RawProfile:   map[string]any{"sub": d.cfg.UserID},
	}
	if d.cfg.ExpiresIn > 0 {
		g.ExpiresAt = d.now().Add(d.cfg.ExpiresIn)
	}
	return g
}

// ExchangeCode accepts only the configured code and, if set, verifier.
func (d *DummyAdapter) ExchangeCode(ctx context.Context, code, _, codeVerifier string) (*GrantResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, errUnavailable(err)
	}
	if code != d.cfg.ExpectedCode {
		return nil, errInvalidGrant("invalid authorization code")
	}
	if d.cfg.ExpectedCodeVerifier != "" && codeVerifier != d.cfg.ExpectedCodeVerifier {
		return nil, errInvalidGrant("code_verifier does not match")
	}
	return d.grant(d.cfg.AccessToken, d.cfg.RefreshToken), nil
}

// RefreshToken issues a new access token for a known refresh token.
func (d *DummyAdapter) RefreshToken(ctx context.Context, refreshToken string, _ []string) (*GrantResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, errUnavailable(err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.refresh[refreshToken]; !ok {
		return nil, errInvalidGrant("unknown refresh token")
	}
	if _, ok := d.revoked[refreshToken]; ok {
		return nil, errInvalidGrant("refresh token revoked")
	}

	d.refreshN++
	access := fmt.Sprintf("%s_%d", d.cfg.AccessToken, d.refreshN)
	d.valid[access] = struct{}{}
	// the refresh token is not rotated
	return d.grant(access, ""), nil
}

// FetchUserInfo returns the configured identity for a valid token.
func (d *DummyAdapter) FetchUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, errUnavailable(err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.revoked[accessToken]; ok {
		return nil, errInvalidToken("token revoked")
	}
	if _, ok := d.valid[accessToken]; !ok {
		return nil, errInvalidToken("unknown token")
	}

	return &UserInfo{
		Provider: NameDummy,
		UserID:   d.cfg.UserID,
		Username: d.cfg.Username,
		Email:    d.cfg.Email,
		Name:     d.cfg.Username,
		RawProfile: map[string]any{
			"sub":      d.cfg.UserID,
			"username": d.cfg.Username,
		},
	}, nil
}

// RevokeToken marks a token revoked. It always succeeds.
func (d *DummyAdapter) RevokeToken(_ context.Context, token, _ string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.revoked[token] = struct{}{}
	return true, nil
}
