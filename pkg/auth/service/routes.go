// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/mxcp-auth/pkg/oauth"
)

// Routes returns a router serving every endpoint of the service. Mount it at
// the server root so the callback and well-known paths resolve as advertised.
func (s *Service) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/authorize", s.AuthorizeHandler)
	r.Get(s.cfg.CallbackPath, s.CallbackHandler)
	r.Post("/token", s.TokenHandler)
	r.Post("/revoke", s.RevokeHandler)

	// RFC 9728 allows a path suffix after the well-known segment.
	for _, pattern := range []string{oauth.WellKnownOAuthResourcePath, oauth.WellKnownOAuthResourcePath + "/*"} {
		r.Get(pattern, s.ResourceMetadataHandler)
		r.Options(pattern, s.ResourceMetadataHandler)
	}
	return r
}
