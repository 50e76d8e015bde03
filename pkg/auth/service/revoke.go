// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"net/http"

	"github.com/stacklok/mxcp-auth/pkg/auth/crypto"
	"github.com/stacklok/mxcp-auth/pkg/auth/storage"
	"github.com/stacklok/mxcp-auth/pkg/logger"
	"github.com/stacklok/mxcp-auth/pkg/oauth"
)

// RevokeHandler handles POST /revoke (RFC 7009). It always answers 200 once
// the request is well formed, whether or not the token was known.
func (s *Service) RevokeHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		writeTokenError(w, invalidRequest("malformed form body"))
		return
	}
	token := r.PostForm.Get("token")
	if token == "" {
		writeTokenError(w, invalidRequest("token is required"))
		return
	}

	if err := s.Revoke(r.Context(), token, r.PostForm.Get("token_type_hint")); err != nil {
		logger.Warnw("token revocation failed", "token_hash", crypto.HashPrefix(token), "error", err)
	}
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
}

// Revoke deletes the session an MXCP access or refresh token belongs to and
// asks the provider to revoke the linked tokens. Provider failures are
// logged and do not fail the call.
func (s *Service) Revoke(ctx context.Context, token, hint string) error {
	sess, err := s.findSession(ctx, token, hint)
	if err != nil || sess == nil {
		return err
	}

	s.mw.Invalidate(sess.AccessToken)
	if err := s.sessions.DeleteSession(ctx, sess.AccessToken); err != nil {
		return err
	}
	logger.Infow("revoked session", "session_id", sess.SessionID)

	adapter := s.Adapter()
	if sess.Provider != adapter.Name() {
		return nil
	}
	revokeProvider := func(value, typeHint string) {
		if value == "" {
			return
		}
		_ = s.observe(ctx, adapter, "revoke_token", func(ctx context.Context) error {
			supported, err := adapter.RevokeToken(ctx, value, typeHint)
			if err != nil {
				logger.Warnw("provider token revocation failed", "provider", adapter.Name(), "error", err)
			} else if !supported {
				logger.Debugw("provider does not support token revocation", "provider", adapter.Name())
			}
			return err
		})
	}
	revokeProvider(sess.ProviderRefreshToken, oauth.TokenTypeHintRefreshToken)
	revokeProvider(sess.ProviderAccessToken, oauth.TokenTypeHintAccessToken)
	return nil
}

func (s *Service) findSession(ctx context.Context, token, hint string) (*storage.Session, error) {
	lookups := []func() (*storage.Session, error){
		func() (*storage.Session, error) { return s.sessions.GetSession(ctx, token) },
		func() (*storage.Session, error) { return s.sessions.LoadSessionByRefreshToken(ctx, token) },
	}
	if hint == oauth.TokenTypeHintRefreshToken {
		lookups[0], lookups[1] = lookups[1], lookups[0]
	}
	for _, lookup := range lookups {
		sess, err := lookup()
		if err != nil || sess != nil {
			return sess, err
		}
	}
	return nil, nil
}
