// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"maps"
	"strings"

	"github.com/stacklok/mxcp-auth/pkg/auth/middleware"
	"github.com/stacklok/mxcp-auth/pkg/auth/provider"
	"github.com/stacklok/mxcp-auth/pkg/auth/service"
	"github.com/stacklok/mxcp-auth/pkg/auth/session"
	"github.com/stacklok/mxcp-auth/pkg/auth/storage"
	"github.com/stacklok/mxcp-auth/pkg/telemetry"
)

// ProviderConfig converts the provider section for provider.NewAdapter.
func (c *Config) ProviderConfig() *provider.Config {
	p := c.Provider
	return &provider.Config{
		Name:                 p.Name,
		ClientID:             p.ClientID,
		ClientSecret:         p.ClientSecret,
		Scopes:               strings.Fields(p.Scope),
		AuthURL:              p.AuthURL,
		TokenURL:             p.TokenURL,
		UserInfoURL:          p.UserInfoURL,
		RevokeURL:            p.RevokeURL,
		ConfigURL:            p.ConfigURL,
		ServerURL:            p.ServerURL,
		Realm:                p.Realm,
		Domain:               p.Domain,
		ExtraAuthParams:      maps.Clone(p.ExtraAuthParams),
		RequestTimeout:       c.Server.RequestTimeout,
		AllowLocalhostHTTP:   p.AllowLocalhostHTTP,
		AllowPrivateNetworks: p.AllowPrivateNetworks,
		CABundlePath:         p.CABundlePath,
	}
}

// StorageConfig converts the persistence section for storage.NewTokenStore.
func (c *Config) StorageConfig() storage.Config {
	p := c.Persistence
	return storage.Config{
		Type: storage.Type(p.Type),
		Path: p.Path,
		Redis: storage.RedisConfig{
			Addr:      p.RedisAddr,
			Username:  p.RedisUsername,
			Password:  p.RedisPassword,
			DB:        p.RedisDB,
			KeyPrefix: p.KeyPrefix,
		},
	}
}

// SecretCodec returns the codec protecting secrets in persistent stores, or
// nil for the memory store.
func (c *Config) SecretCodec() (storage.SecretCodec, error) {
	if !storage.Type(c.Persistence.Type).Persistent() {
		return nil, nil
	}
	return storage.NewSecretCodec(c.Persistence.EncryptionKey, c.Persistence.AllowPlaintext)
}

// ServiceConfig converts the server and session sections for service.New.
func (c *Config) ServiceConfig() service.Config {
	return service.Config{
		BaseURL:         c.Server.BaseURL,
		CallbackPath:    c.Server.CallbackPath,
		ResourceURL:     c.Server.ResourceURL,
		ScopesSupported: c.Server.Scopes,
		Middleware: middleware.Config{
			CheckTimeout:     c.Session.CheckTimeout,
			UserInfoCacheTTL: c.Session.UserInfoCacheTTL,
		},
	}
}

// SessionOptions returns the session manager options for the configured TTLs.
func (c *Config) SessionOptions() []session.Option {
	s := c.Session
	return []session.Option{
		session.WithSessionTTL(s.AccessTokenTTL),
		session.WithStateTTL(s.StateTTL),
		session.WithAuthCodeTTL(s.AuthCodeTTL),
		session.WithCleanupInterval(s.CleanupInterval),
	}
}

// TelemetryConfig converts the telemetry section for telemetry.NewProvider.
func (c *Config) TelemetryConfig(serviceName, version string) telemetry.Config {
	t := c.Telemetry
	// Validate has already rejected malformed attributes.
	attrs, _ := telemetry.ParseResourceAttributes(t.ResourceAttributes)
	return telemetry.Config{
		ServiceName:           serviceName,
		ServiceVersion:        version,
		ResourceAttributes:    attrs,
		MetricsEnabled:        t.MetricsEnabled,
		IncludeRuntimeMetrics: t.IncludeRuntimeMetrics,
		OTLPEndpoint:          t.OTLPEndpoint,
		OTLPInsecure:          t.OTLPInsecure,
		OTLPHeaders:           maps.Clone(t.OTLPHeaders),
		OTLPInterval:          t.OTLPInterval,
		TracingEnabled:        t.TracingEnabled,
		TraceSamplingRate:     t.TraceSamplingRate,
	}
}
