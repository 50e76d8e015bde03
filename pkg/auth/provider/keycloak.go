// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"net/url"
	"strings"
)

// KeycloakAdapter talks to one Keycloak realm.
type KeycloakAdapter struct {
	*baseAdapter
}

// NewKeycloakAdapter creates a Keycloak adapter for cfg.ServerURL and cfg.Realm.
func NewKeycloakAdapter(cfg *Config, opts ...Option) (*KeycloakAdapter, error) {
	o, err := buildOptions(cfg, opts)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(cfg.ServerURL, "/") +
		"/realms/" + url.PathEscape(cfg.Realm) + "/protocol/openid-connect"

	b := newBaseAdapter(NameKeycloak, cfg, o, oidcFieldMapping)
	b.endpoints = adapterEndpoints{
		auth:     firstNonEmpty(cfg.AuthURL, base+"/auth"),
		token:    firstNonEmpty(cfg.TokenURL, base+"/token"),
		userInfo: firstNonEmpty(cfg.UserInfoURL, base+"/userinfo"),
		revoke:   firstNonEmpty(cfg.RevokeURL, base+"/revoke"),
	}
	b.defaultScopes = cfg.scopesOr("openid", "profile", "email")
	b.pkce = true
	b.refresh = true

	return &KeycloakAdapter{baseAdapter: b}, nil
}
