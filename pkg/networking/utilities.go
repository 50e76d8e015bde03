// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package networking

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// HttpsScheme is the URL scheme required for provider endpoints.
const HttpsScheme = "https"

var privateIPBlocks []*net.IPNet

func init() {
	for _, cidr := range []string{
		"127.0.0.0/8",    // IPv4 loopback
		"10.0.0.0/8",     // RFC1918
		"172.16.0.0/12",  // RFC1918
		"192.168.0.0/16", // RFC1918
		"169.254.0.0/16", // RFC3927 link-local
		"100.64.0.0/10",  // RFC6598 shared address space
		"::1/128",        // IPv6 loopback
		"fe80::/10",      // IPv6 link-local
		"fc00::/7",       // IPv6 unique local addr
	} {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Errorf("parse error on %q: %v", cidr, err))
		}
		privateIPBlocks = append(privateIPBlocks, block)
	}
}

// IsURL reports whether s parses as an absolute http(s) URL with a host.
func IsURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == HttpsScheme) && u.Host != ""
}

// IsLocalhost reports whether host (optionally with a port) names the loopback
// interface.
func IsLocalhost(host string) bool {
	if host == "" || strings.TrimSpace(host) != host {
		return false
	}
	h := host
	if splitHost, _, err := net.SplitHostPort(host); err == nil {
		h = splitHost
	}
	h = strings.TrimSuffix(strings.TrimPrefix(h, "["), "]")
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

// ValidateEndpointURL checks that raw is an absolute HTTPS URL. Loopback HTTP
// URLs are accepted when allowLocalhostHTTP is true.
func ValidateEndpointURL(raw string, allowLocalhostHTTP bool) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Host == "" {
		return fmt.Errorf("URL %q has no host", raw)
	}
	switch u.Scheme {
	case HttpsScheme:
		return nil
	case "http":
		if allowLocalhostHTTP && IsLocalhost(u.Host) {
			return nil
		}
		return fmt.Errorf("URL %q must use HTTPS", raw)
	default:
		return fmt.Errorf("URL %q has unsupported scheme %q", raw, u.Scheme)
	}
}

// AddressReferencesPrivateIp returns an error if the host:port address
// resolves to a private, loopback or link-local IP.
func AddressReferencesPrivateIp(address string) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", address, err)
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("failed to resolve %q: %w", host, err)
	}

	for _, ip := range ips {
		for _, block := range privateIPBlocks {
			if block.Contains(ip) {
				return fmt.Errorf("the address %s references a private IP", address)
			}
		}
	}
	return nil
}
