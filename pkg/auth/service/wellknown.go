// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"encoding/json"
	"net/http"

	"github.com/stacklok/mxcp-auth/pkg/logger"
	"github.com/stacklok/mxcp-auth/pkg/oauth"
)

// ProtectedResourceMetadata returns the RFC 9728 document for this server.
func (s *Service) ProtectedResourceMetadata() oauth.ProtectedResourceMetadata {
	scopes := s.cfg.ScopesSupported
	if len(scopes) == 0 {
		scopes = []string{"openid"}
	}
	return oauth.ProtectedResourceMetadata{
		Resource:               s.cfg.ResourceURL,
		AuthorizationServers:   s.cfg.AuthorizationServers,
		ScopesSupported:        scopes,
		BearerMethodsSupported: []string{"header"},
		ResourceDocumentation:  s.cfg.ResourceDocumentation,
	}
}

// ResourceMetadataHandler serves the protected resource metadata with
// permissive CORS so browser based clients can discover the server.
func (s *Service) ResourceMetadataHandler(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = "*"
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	// mcp-inspector sends these on discovery requests.
	w.Header().Set("Access-Control-Allow-Headers", "mcp-protocol-version, Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "86400")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.ProtectedResourceMetadata()); err != nil {
		logger.Errorw("failed to encode protected resource metadata", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
