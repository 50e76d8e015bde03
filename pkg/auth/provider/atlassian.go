// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package provider

// AtlassianAdapter talks to Atlassian Cloud OAuth 2.0 (3LO) apps. Atlassian
// has no revocation endpoint, so RevokeToken always returns false.
type AtlassianAdapter struct {
	*baseAdapter
}

var atlassianFieldMapping = UserInfoFieldMapping{
	UserIDField:   "account_id",
	UsernameField: "nickname",
	EmailField:    "email",
	NameField:     "name",
	AvatarField:   "picture",
}

// NewAtlassianAdapter creates an Atlassian adapter.
func NewAtlassianAdapter(cfg *Config, opts ...Option) (*AtlassianAdapter, error) {
	o, err := buildOptions(cfg, opts)
	if err != nil {
		return nil, err
	}

	b := newBaseAdapter(NameAtlassian, cfg, o, atlassianFieldMapping)
	b.endpoints = adapterEndpoints{
		auth:     firstNonEmpty(cfg.AuthURL, "https://auth.atlassian.com/authorize"),
		token:    firstNonEmpty(cfg.TokenURL, "https://auth.atlassian.com/oauth/token"),
		userInfo: firstNonEmpty(cfg.UserInfoURL, "https://api.atlassian.com/me"),
	}
	// offline_access is what makes Atlassian return a refresh token
	b.defaultScopes = cfg.scopesOr("read:me", "offline_access")
	b.refresh = true
	if _, ok := b.extraAuthParams["audience"]; !ok {
		b.extraAuthParams["audience"] = "api.atlassian.com"
	}
	if _, ok := b.extraAuthParams["prompt"]; !ok {
		b.extraAuthParams["prompt"] = "consent"
	}

	return &AtlassianAdapter{baseAdapter: b}, nil
}
