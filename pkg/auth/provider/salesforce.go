// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package provider

import "strings"

const defaultSalesforceDomain = "login.salesforce.com"

// SalesforceAdapter talks to Salesforce connected apps.
type SalesforceAdapter struct {
	*baseAdapter
}

var salesforceFieldMapping = UserInfoFieldMapping{
	UserIDField:   "user_id",
	UsernameField: "preferred_username",
	EmailField:    "email",
	NameField:     "name",
	AvatarField:   "picture",
}

// NewSalesforceAdapter creates a Salesforce adapter. cfg.Domain selects the
// login host (login.salesforce.com, test.salesforce.com or a My Domain).
func NewSalesforceAdapter(cfg *Config, opts ...Option) (*SalesforceAdapter, error) {
	o, err := buildOptions(cfg, opts)
	if err != nil {
		return nil, err
	}

	domain := strings.TrimSuffix(firstNonEmpty(cfg.Domain, defaultSalesforceDomain), "/")
	if !strings.Contains(domain, "://") {
		domain = "https://" + domain
	}
	base := domain + "/services/oauth2"

	b := newBaseAdapter(NameSalesforce, cfg, o, salesforceFieldMapping)
	b.endpoints = adapterEndpoints{
		auth:     firstNonEmpty(cfg.AuthURL, base+"/authorize"),
		token:    firstNonEmpty(cfg.TokenURL, base+"/token"),
		userInfo: firstNonEmpty(cfg.UserInfoURL, base+"/userinfo"),
		revoke:   firstNonEmpty(cfg.RevokeURL, base+"/revoke"),
	}
	b.defaultScopes = cfg.scopesOr("api", "refresh_token", "openid")
	b.pkce = true
	b.refresh = true

	return &SalesforceAdapter{baseAdapter: b}, nil
}
