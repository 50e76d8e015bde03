// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package networking

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"
)

// HttpTimeout is the default timeout for outgoing HTTP requests
const HttpTimeout = 30 * time.Second

// Dialer control function for validating addresses prior to connection
func protectedDialerControl(_, address string, _ syscall.RawConn) error {
	return AddressReferencesPrivateIp(address)
}

// ValidatingTransport rejects requests whose URL is not HTTPS. Plain HTTP is
// only let through for loopback hosts when AllowLocalhostHTTP is set.
type ValidatingTransport struct {
	Transport          http.RoundTripper
	AllowLocalhostHTTP bool
}

// RoundTrip validates the request URL prior to forwarding
func (t *ValidatingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL == nil {
		return nil, fmt.Errorf("request has no URL")
	}
	if req.URL.Scheme != HttpsScheme {
		if !(t.AllowLocalhostHTTP && req.URL.Scheme == "http" && IsLocalhost(req.URL.Host)) {
			return nil, fmt.Errorf("the supplied URL %s is not HTTPS scheme", req.URL.Redacted())
		}
	}
	return t.Transport.RoundTrip(req)
}

// HttpClientBuilder provides a fluent interface for building the HTTP clients
// used to talk to identity providers.
type HttpClientBuilder struct {
	clientTimeout         time.Duration
	tlsHandshakeTimeout   time.Duration
	responseHeaderTimeout time.Duration
	caCertPath            string
	allowPrivate          bool
	allowLocalhostHTTP    bool
}

// NewHttpClientBuilder returns a new HttpClientBuilder
func NewHttpClientBuilder() *HttpClientBuilder {
	return &HttpClientBuilder{
		clientTimeout:         HttpTimeout,
		tlsHandshakeTimeout:   10 * time.Second,
		responseHeaderTimeout: 10 * time.Second,
	}
}

// WithCABundle sets the CA certificate bundle path
func (b *HttpClientBuilder) WithCABundle(path string) *HttpClientBuilder {
	b.caCertPath = path
	return b
}

// WithPrivateIPs allows connections to private IP addresses
func (b *HttpClientBuilder) WithPrivateIPs(allow bool) *HttpClientBuilder {
	b.allowPrivate = allow
	return b
}

// WithTimeout sets the overall client timeout. Non-positive values keep the default.
func (b *HttpClientBuilder) WithTimeout(timeout time.Duration) *HttpClientBuilder {
	if timeout > 0 {
		b.clientTimeout = timeout
	}
	return b
}

// WithLocalhostHTTP permits plain HTTP to loopback hosts. Development only.
func (b *HttpClientBuilder) WithLocalhostHTTP(allow bool) *HttpClientBuilder {
	b.allowLocalhostHTTP = allow
	return b
}

// Build creates the configured HTTP client
func (b *HttpClientBuilder) Build() (*http.Client, error) {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSHandshakeTimeout:   b.tlsHandshakeTimeout,
		ResponseHeaderTimeout: b.responseHeaderTimeout,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	if !b.allowPrivate {
		transport.DialContext = (&net.Dialer{
			Control: protectedDialerControl,
		}).DialContext
	}

	if b.caCertPath != "" {
		caCert, err := os.ReadFile(b.caCertPath) // #nosec G304 - path comes from operator config
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate bundle: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate bundle")
		}
		transport.TLSClientConfig.RootCAs = caCertPool
	}

	return &http.Client{
		Transport: &ValidatingTransport{
			Transport:          transport,
			AllowLocalhostHTTP: b.allowLocalhostHTTP,
		},
		Timeout: b.clientTimeout,
	}, nil
}
