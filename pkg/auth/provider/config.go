// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stacklok/mxcp-auth/pkg/networking"
)

// DefaultRequestTimeout bounds every call to a provider endpoint.
const DefaultRequestTimeout = 10 * time.Second

// Config is the static configuration of one provider adapter. It is loaded
// once and never mutated.
type Config struct {
	// Name selects the adapter implementation.
	Name string

	ClientID     string
	ClientSecret string

	// Scopes requested when the caller does not ask for specific ones.
	Scopes []string

	// Endpoint overrides. Each provider has defaults; the generic OIDC
	// provider discovers them from ConfigURL.
	AuthURL     string
	TokenURL    string
	UserInfoURL string
	RevokeURL   string

	// ConfigURL is the OIDC issuer or its discovery document URL.
	ConfigURL string

	// Issuer and JWKSURL override id_token verification for google.
	Issuer  string
	JWKSURL string

	// ServerURL and Realm locate a Keycloak realm.
	ServerURL string
	Realm     string

	// Domain is the Salesforce login host, e.g. login.salesforce.com.
	Domain string

	// ExtraAuthParams are appended to every authorize URL.
	ExtraAuthParams map[string]string

	// FieldMapping overrides the user info field paths.
	FieldMapping *UserInfoFieldMapping

	// RequestTimeout bounds each provider call. Zero means DefaultRequestTimeout.
	RequestTimeout time.Duration

	// AllowLocalhostHTTP accepts plain HTTP endpoints on loopback hosts.
	AllowLocalhostHTTP bool

	// AllowPrivateNetworks permits connections to private IP ranges, as is
	// common for self-hosted Keycloak.
	AllowPrivateNetworks bool

	// CABundlePath adds a CA bundle for self-signed provider certificates.
	CABundlePath string

	// Dummy configures the test adapter.
	Dummy *DummyConfig
}

// Validate checks the fields required by the selected provider.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("provider config is required")
	}
	switch c.Name {
	case NameDummy:
		return nil
	case NameGitHub, NameGoogle, NameAtlassian, NameSalesforce:
	case NameKeycloak:
		if c.ServerURL == "" || c.Realm == "" {
			return errors.New("keycloak requires server_url and realm")
		}
	case NameOIDC:
		if c.ConfigURL == "" {
			return errors.New("oidc requires config_url")
		}
	case "":
		return errors.New("provider name is required")
	default:
		return fmt.Errorf("unsupported provider %q", c.Name)
	}
	if c.ClientID == "" {
		return fmt.Errorf("%s requires client_id", c.Name)
	}
	for name, u := range map[string]string{
		"auth_url":      c.AuthURL,
		"token_url":     c.TokenURL,
		"user_info_url": c.UserInfoURL,
		"revoke_url":    c.RevokeURL,
		"config_url":    c.ConfigURL,
		"server_url":    c.ServerURL,
	} {
		if u == "" {
			continue
		}
		if err := networking.ValidateEndpointURL(u, c.AllowLocalhostHTTP); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

func (c *Config) timeout() time.Duration {
	if c.RequestTimeout > 0 {
		return c.RequestTimeout
	}
	return DefaultRequestTimeout
}

func (c *Config) scopesOr(defaults ...string) []string {
	if len(c.Scopes) > 0 {
		return c.Scopes
	}
	return defaults
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Option configures an adapter built by NewAdapter.
type Option func(*options)

type options struct {
	httpClient networking.HTTPClient
	now        func() time.Time
}

// WithHTTPClient sets the HTTP client used for every provider call.
func WithHTTPClient(client networking.HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithClock overrides time.Now when computing token expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(cfg *Config, opts []Option) (*options, error) {
	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	if o.httpClient == nil {
		client, err := networking.NewHttpClientBuilder().
			WithCABundle(cfg.CABundlePath).
			WithPrivateIPs(cfg.AllowPrivateNetworks).
			WithLocalhostHTTP(cfg.AllowLocalhostHTTP).
			WithTimeout(cfg.timeout() + 5*time.Second).
			Build()
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP client: %w", err)
		}
		o.httpClient = client
	}
	return o, nil
}

// httpDoer returns the options' client as an *http.Client when possible, for
// libraries that need one.
func (o *options) httpDoer() *http.Client {
	if c, ok := o.httpClient.(*http.Client); ok {
		return c
	}
	return &http.Client{Transport: doerTransport{o.httpClient}}
}

type doerTransport struct {
	client networking.HTTPClient
}

func (t doerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.client.Do(req)
}
