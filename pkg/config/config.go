// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config loads the mxcp-auth configuration from an optional YAML
// file, MXCP_AUTH_ prefixed environment variables and, for the encryption
// key, the OS keyring.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/stacklok/mxcp-auth/pkg/auth/provider"
	"github.com/stacklok/mxcp-auth/pkg/auth/service"
	"github.com/stacklok/mxcp-auth/pkg/auth/session"
	"github.com/stacklok/mxcp-auth/pkg/auth/storage"
	mxerrors "github.com/stacklok/mxcp-auth/pkg/errors"
	"github.com/stacklok/mxcp-auth/pkg/telemetry"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "MXCP_AUTH"

// Encryption key sources.
const (
	KeySourceEnv     = "env"
	KeySourceKeyring = "keyring"
)

// Config is the complete mxcp-auth configuration.
type Config struct {
	Server      Server      `mapstructure:"server"`
	Provider    Provider    `mapstructure:"provider"`
	Persistence Persistence `mapstructure:"persistence"`
	Session     Session     `mapstructure:"session"`
	Telemetry   Telemetry   `mapstructure:"telemetry"`
}

// Server configures the HTTP listener and the public URLs.
type Server struct {
	Address string `mapstructure:"address"`

	// BaseURL is the externally visible origin used to build the callback URL.
	BaseURL      string   `mapstructure:"base_url"`
	ResourceURL  string   `mapstructure:"resource_url"`
	CallbackPath string   `mapstructure:"callback_path"`
	Scopes       []string `mapstructure:"scopes_supported"`

	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Provider configures the identity provider adapter.
type Provider struct {
	Name         string `mapstructure:"name"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`

	// Scope is a space separated list of scopes requested by default.
	Scope string `mapstructure:"scope"`

	AuthURL     string `mapstructure:"auth_url"`
	TokenURL    string `mapstructure:"token_url"`
	UserInfoURL string `mapstructure:"user_info_url"`
	RevokeURL   string `mapstructure:"revoke_url"`
	ConfigURL   string `mapstructure:"config_url"`

	ServerURL string `mapstructure:"server_url"`
	Realm     string `mapstructure:"realm"`
	Domain    string `mapstructure:"domain"`

	ExtraAuthParams map[string]string `mapstructure:"extra_auth_params"`

	AllowLocalhostHTTP   bool   `mapstructure:"allow_localhost_http"`
	AllowPrivateNetworks bool   `mapstructure:"allow_private_networks"`
	CABundlePath         string `mapstructure:"ca_bundle_path"`
}

// Persistence configures the token store.
type Persistence struct {
	Type string `mapstructure:"type"`
	Path string `mapstructure:"path"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisUsername string `mapstructure:"redis_username"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	KeyPrefix     string `mapstructure:"key_prefix"`

	EncryptionKey       string `mapstructure:"encryption_key"`
	EncryptionKeySource string `mapstructure:"encryption_key_source"`
	KeyringService      string `mapstructure:"keyring_service"`
	KeyringUser         string `mapstructure:"keyring_user"`

	// AllowPlaintext permits a persistent store without an encryption key.
	AllowPlaintext bool `mapstructure:"allow_plaintext"`
}

// Session configures token lifetimes.
type Session struct {
	AccessTokenTTL   time.Duration `mapstructure:"access_token_ttl"`
	StateTTL         time.Duration `mapstructure:"state_ttl"`
	AuthCodeTTL      time.Duration `mapstructure:"auth_code_ttl"`
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval"`
	UserInfoCacheTTL time.Duration `mapstructure:"user_info_cache_ttl"`
	CheckTimeout     time.Duration `mapstructure:"check_timeout"`
}

// Telemetry configures metric and trace export.
type Telemetry struct {
	MetricsEnabled        bool              `mapstructure:"metrics_enabled"`
	IncludeRuntimeMetrics bool              `mapstructure:"include_runtime_metrics"`
	OTLPEndpoint          string            `mapstructure:"otlp_endpoint"`
	OTLPInsecure          bool              `mapstructure:"otlp_insecure"`
	OTLPHeaders           map[string]string `mapstructure:"otlp_headers"`
	OTLPInterval          time.Duration     `mapstructure:"otlp_interval"`

	// ResourceAttributes is a comma separated key=value list.
	ResourceAttributes string `mapstructure:"resource_attributes"`

	TracingEnabled    bool    `mapstructure:"tracing_enabled"`
	TraceSamplingRate float64 `mapstructure:"trace_sampling_rate"`
}

// defaultDBPath is replaced in tests.
var defaultDBPath = func() (string, error) {
	return xdg.DataFile("mxcp-auth/oauth.db")
}

func setDefaults(v *viper.Viper) {
	defaults := map[string]any{
		"server.address":          ":8000",
		"server.base_url":         "",
		"server.resource_url":     "",
		"server.callback_path":    service.DefaultCallbackPath,
		"server.scopes_supported": []string{},
		"server.request_timeout":  provider.DefaultRequestTimeout,
		"server.shutdown_timeout": 15 * time.Second,

		"provider.name":                   "",
		"provider.client_id":              "",
		"provider.client_secret":          "",
		"provider.scope":                  "",
		"provider.auth_url":               "",
		"provider.token_url":              "",
		"provider.user_info_url":          "",
		"provider.revoke_url":             "",
		"provider.config_url":             "",
		"provider.server_url":             "",
		"provider.realm":                  "",
		"provider.domain":                 "",
		"provider.allow_localhost_http":   false,
		"provider.allow_private_networks": false,
		"provider.ca_bundle_path":         "",

		"persistence.type":                  string(storage.TypeSQLite),
		"persistence.path":                  "",
		"persistence.redis_addr":            "",
		"persistence.redis_username":        "",
		"persistence.redis_password":        "",
		"persistence.redis_db":              0,
		"persistence.key_prefix":            "mxcp:auth:",
		"persistence.encryption_key":        "",
		"persistence.encryption_key_source": KeySourceEnv,
		"persistence.keyring_service":       "mxcp-auth",
		"persistence.keyring_user":          "encryption-key",
		"persistence.allow_plaintext":       false,

		"session.access_token_ttl":    session.DefaultSessionTTL,
		"session.state_ttl":           session.DefaultStateTTL,
		"session.auth_code_ttl":       session.DefaultAuthCodeTTL,
		"session.cleanup_interval":    session.DefaultCleanupInterval,
		"session.user_info_cache_ttl": time.Duration(0),
		"session.check_timeout":       10 * time.Second,

		"telemetry.metrics_enabled":         true,
		"telemetry.include_runtime_metrics": false,
		"telemetry.otlp_endpoint":           "",
		"telemetry.otlp_insecure":           false,
		"telemetry.otlp_interval":           30 * time.Second,
		"telemetry.resource_attributes":     "",
		"telemetry.tracing_enabled":         false,
		"telemetry.trace_sampling_rate":     telemetry.DefaultTraceSamplingRate,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// LoadOptions controls Load.
type LoadOptions struct {
	// Path is an optional YAML configuration file.
	Path string

	// Environment replaces the process environment for the secret overlay.
	// Nil means os.Environ.
	Environment map[string]string

	// Keyring resolves keyring sourced encryption keys. Nil uses the OS keyring.
	Keyring KeyringStore
}

// Load reads, overlays and validates the configuration.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.Path != "" {
		v.SetConfigFile(opts.Path)
		if err := v.ReadInConfig(); err != nil {
			return nil, mxerrors.NewConfigurationError(fmt.Sprintf("failed to read config file %s", opts.Path), err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, mxerrors.NewConfigurationError("failed to decode configuration", err)
	}

	if err := overlaySecrets(cfg, opts.Environment); err != nil {
		return nil, err
	}
	if err := cfg.resolveEncryptionKey(opts.Keyring); err != nil {
		return nil, err
	}
	if cfg.Persistence.Type == string(storage.TypeSQLite) && cfg.Persistence.Path == "" {
		path, err := defaultDBPath()
		if err != nil {
			return nil, mxerrors.NewConfigurationError("failed to resolve default database path", err)
		}
		cfg.Persistence.Path = path
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
