// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"net/url"

	"github.com/stacklok/mxcp-auth/pkg/auth/crypto"
	"github.com/stacklok/mxcp-auth/pkg/auth/storage"
	mxerrors "github.com/stacklok/mxcp-auth/pkg/errors"
	"github.com/stacklok/mxcp-auth/pkg/telemetry"
)

// Validate reports the first problem that would prevent the server from
// starting. Every failure is a configuration error.
func (c *Config) Validate() error {
	if c.Server.BaseURL != "" {
		if u, err := url.Parse(c.Server.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			return mxerrors.NewConfigurationError(fmt.Sprintf("invalid server.base_url %q", c.Server.BaseURL), err)
		}
	}

	if c.Provider.Name != "" {
		if err := c.ProviderConfig().Validate(); err != nil {
			return mxerrors.NewConfigurationError("invalid provider configuration", err)
		}
		if c.Server.BaseURL == "" {
			return mxerrors.NewConfigurationError("server.base_url is required when a provider is configured", nil)
		}
	}

	t := storage.Type(c.Persistence.Type)
	switch t {
	case storage.TypeSQLite, storage.TypeMemory:
	case storage.TypeRedis:
		if c.Persistence.RedisAddr == "" {
			return mxerrors.NewConfigurationError("persistence.redis_addr is required for the redis store", nil)
		}
	default:
		return mxerrors.NewConfigurationError(fmt.Sprintf("unsupported persistence type %q", c.Persistence.Type), nil)
	}

	if t.Persistent() {
		if c.Persistence.EncryptionKey == "" && !c.Persistence.AllowPlaintext {
			return mxerrors.NewConfigurationError(
				"an encryption key is required for persistent stores; set MXCP_AUTH_ENCRYPTION_KEY, "+
					"use encryption_key_source: keyring, or set allow_plaintext", nil)
		}
		if c.Persistence.EncryptionKey != "" {
			if _, err := crypto.ParseKey(c.Persistence.EncryptionKey); err != nil {
				return mxerrors.NewConfigurationError("invalid encryption key", err)
			}
		}
	}

	for name, d := range map[string]int64{
		"session.access_token_ttl": int64(c.Session.AccessTokenTTL),
		"session.state_ttl":        int64(c.Session.StateTTL),
		"session.auth_code_ttl":    int64(c.Session.AuthCodeTTL),
	} {
		if d <= 0 {
			return mxerrors.NewConfigurationError(name+" must be positive", nil)
		}
	}
	if c.Session.UserInfoCacheTTL < 0 {
		return mxerrors.NewConfigurationError("session.user_info_cache_ttl must not be negative", nil)
	}

	if _, err := telemetry.ParseResourceAttributes(c.Telemetry.ResourceAttributes); err != nil {
		return mxerrors.NewConfigurationError("invalid telemetry.resource_attributes", err)
	}
	if err := c.TelemetryConfig("", "").Validate(); err != nil {
		return mxerrors.NewConfigurationError("invalid telemetry configuration", err)
	}
	return nil
}
