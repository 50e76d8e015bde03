// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"net/url"
	"strings"
)

// ProtectedResourceMetadata is the RFC 9728 §2 document served at
// /.well-known/oauth-protected-resource.
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	ScopesSupported        []string `json:"scopes_supported"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
	ResourceDocumentation  string   `json:"resource_documentation,omitempty"`
	JWKSURI                string   `json:"jwks_uri,omitempty"`
	ResourceName           string   `json:"resource_name,omitempty"`
}

// ResourceMetadataURL returns the metadata URL for a resource identifier, as
// advertised in the WWW-Authenticate resource_metadata parameter (RFC 9728 §5.1).
func ResourceMetadataURL(resource string) string {
	u, err := url.Parse(resource)
	if err != nil || u.Host == "" {
		return ""
	}
	suffix := strings.TrimSuffix(u.EscapedPath(), "/")
	return u.Scheme + "://" + u.Host + WellKnownOAuthResourcePath + suffix
}
