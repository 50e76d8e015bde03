// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"fmt"
	"net/url"

	"github.com/stacklok/mxcp-auth/pkg/networking"
)

// ValidateRedirectURI checks a client redirect URI. It must be absolute with no
// fragment (RFC 6749 §3.1.2). HTTPS is required except for loopback hosts
// (RFC 8252 §7.3) and private-use URI schemes of native apps (RFC 8252 §7.1),
// which must contain a dot.
func ValidateRedirectURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed redirect_uri: %w", err)
	}
	if !u.IsAbs() {
		return fmt.Errorf("redirect_uri must be absolute")
	}
	if u.Fragment != "" {
		return fmt.Errorf("redirect_uri must not contain a fragment")
	}

	switch u.Scheme {
	case networking.HttpsScheme:
		if u.Host == "" {
			return fmt.Errorf("redirect_uri has no host")
		}
		return nil
	case "http":
		if networking.IsLocalhost(u.Host) {
			return nil
		}
		return fmt.Errorf("redirect_uri must use https unless it targets a loopback host")
	default:
		for _, c := range u.Scheme {
			if c == '.' {
				return nil
			}
		}
		return fmt.Errorf("redirect_uri scheme %q is not allowed", u.Scheme)
	}
}
