// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/stacklok/mxcp-auth/pkg/auth/crypto"
	"github.com/stacklok/mxcp-auth/pkg/auth/provider"
	"github.com/stacklok/mxcp-auth/pkg/auth/session"
	"github.com/stacklok/mxcp-auth/pkg/auth/storage"
	mxerrors "github.com/stacklok/mxcp-auth/pkg/errors"
	"github.com/stacklok/mxcp-auth/pkg/logger"
	"github.com/stacklok/mxcp-auth/pkg/oauth"
	"github.com/stacklok/mxcp-auth/pkg/telemetry"
)

// maxFormBytes bounds token and revocation request bodies.
const maxFormBytes = 64 << 10

// tokenError is an RFC 6749 §5.2 error with its HTTP status.
type tokenError struct {
	status      int
	code        string
	description string
}

func (e *tokenError) Error() string {
	return e.code + ": " + e.description
}

func invalidGrant(description string) *tokenError {
	return &tokenError{status: http.StatusBadRequest, code: oauth.ErrorInvalidGrant, description: description}
}

func invalidRequest(description string) *tokenError {
	return &tokenError{status: http.StatusBadRequest, code: oauth.ErrorInvalidRequest, description: description}
}

// TokenHandler handles POST /token for the authorization_code and
// refresh_token grants.
func (s *Service) TokenHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		writeTokenError(w, invalidRequest("malformed form body"))
		return
	}

	grantType := r.PostForm.Get("grant_type")
	var (
		sess *storage.Session
		terr *tokenError
	)
	switch grantType {
	case oauth.GrantTypeAuthorizationCode:
		sess, terr = s.exchangeAuthCode(r)
	case oauth.GrantTypeRefreshToken:
		sess, terr = s.refreshGrant(r)
	case "":
		terr = invalidRequest("grant_type is required")
	default:
		terr = &tokenError{
			status:      http.StatusBadRequest,
			code:        oauth.ErrorUnsupportedGrantType,
			description: "grant type is not supported",
		}
	}

	if terr != nil {
		s.metrics.RecordTokenGrant(ctx, grantType, grantOutcome(terr))
		writeTokenError(w, terr)
		return
	}

	s.metrics.RecordTokenGrant(ctx, grantType, telemetry.OutcomeSuccess)
	expiresIn := int64(0)
	if !sess.ExpiresAt.IsZero() {
		expiresIn = int64(math.Ceil(sess.ExpiresAt.Sub(s.now()).Seconds()))
	}
	writeJSON(w, http.StatusOK, oauth.TokenResponse{
		AccessToken:  sess.AccessToken,
		TokenType:    oauth.TokenTypeBearer,
		ExpiresIn:    expiresIn,
		RefreshToken: sess.RefreshToken,
		Scope:        strings.Join(sess.Scopes, " "),
	})
}

func (s *Service) exchangeAuthCode(r *http.Request) (*storage.Session, *tokenError) {
	ctx := r.Context()
	form := r.PostForm

	codeValue := form.Get("code")
	if codeValue == "" {
		return nil, invalidRequest("code is required")
	}

	code, err := s.sessions.ConsumeAuthCode(ctx, codeValue)
	if err != nil {
		logger.Errorw("failed to consume authorization code", "code_hash", crypto.HashPrefix(codeValue), "error", err)
		return nil, serverError()
	}
	if code == nil {
		return nil, invalidGrant("authorization code is invalid or expired")
	}

	if code.ClientID != "" && form.Get("client_id") != code.ClientID {
		logger.Infow("authorization code presented by another client", "session_id", code.SessionID)
		return nil, invalidGrant("authorization code was issued to another client")
	}
	if code.RedirectURI != "" && form.Get("redirect_uri") != code.RedirectURI {
		return nil, invalidGrant("redirect_uri does not match the authorization request")
	}
	if code.CodeChallenge != "" {
		verifier := form.Get("code_verifier")
		if verifier == "" {
			return nil, invalidRequest("code_verifier is required")
		}
		if !crypto.VerifyPKCE(verifier, code.CodeChallenge, code.CodeChallengeMethod) {
			return nil, invalidGrant("code_verifier does not match the code challenge")
		}
	}

	sess, err := s.sessions.LoadSessionByID(ctx, code.SessionID)
	if err != nil {
		logger.Errorw("failed to load session for authorization code", "session_id", code.SessionID, "error", err)
		return nil, serverError()
	}
	if sess == nil {
		return nil, invalidGrant("session for authorization code is gone")
	}
	return sess, nil
}

func (s *Service) refreshGrant(r *http.Request) (*storage.Session, *tokenError) {
	ctx := r.Context()
	refreshToken := r.PostForm.Get("refresh_token")
	if refreshToken == "" {
		return nil, invalidRequest("refresh_token is required")
	}

	adapter := s.Adapter()
	var sess *storage.Session
	err := s.observe(ctx, adapter, "refresh_token", func(ctx context.Context) error {
		var rErr error
		sess, rErr = s.sessions.RefreshSession(ctx, refreshToken, adapter)
		return rErr
	})
	if err == nil {
		if clientID := r.PostForm.Get("client_id"); clientID != "" && sess.ClientID != "" && clientID != sess.ClientID {
			// The old session is already gone; the new one must not leak.
			if delErr := s.sessions.DeleteSession(ctx, sess.AccessToken); delErr != nil {
				logger.Warnw("failed to discard refreshed session", "session_id", sess.SessionID, "error", delErr)
			}
			return nil, invalidGrant("refresh token was issued to another client")
		}
		return sess, nil
	}

	switch {
	case errors.Is(err, session.ErrInvalidRefreshToken):
		return nil, invalidGrant("refresh token is invalid or expired")
	case errors.Is(err, session.ErrRefreshUnavailable):
		return nil, invalidGrant("session cannot be refreshed")
	}

	if pe, ok := provider.AsProviderError(err); ok {
		logger.Warnw("provider refresh failed",
			"provider", adapter.Name(), "error_code", pe.Code, "status", pe.HTTPStatus, "description", pe.Description)
		if pe.Transient() {
			return nil, &tokenError{
				status:      http.StatusServiceUnavailable,
				code:        oauth.ErrorTemporarilyUnavailable,
				description: "identity provider is unavailable",
			}
		}
		return nil, invalidGrant("identity provider rejected the refresh")
	}

	logger.Errorw("refresh failed", "error", err)
	return nil, serverError()
}

func serverError() *tokenError {
	return &tokenError{status: http.StatusInternalServerError, code: oauth.ErrorServerError, description: "internal error"}
}

func grantOutcome(e *tokenError) string {
	switch e.code {
	case oauth.ErrorInvalidGrant:
		return telemetry.OutcomeInvalidGrant
	case oauth.ErrorInvalidRequest, oauth.ErrorUnsupportedGrantType:
		return telemetry.OutcomeBadRequest
	case oauth.ErrorTemporarilyUnavailable:
		return telemetry.OutcomeUnavailable
	default:
		return telemetry.OutcomeError
	}
}

func writeTokenError(w http.ResponseWriter, e *tokenError) {
	writeJSON(w, e.status, oauth.TokenErrorResponse{Error: e.code, ErrorDescription: e.description})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnw("failed to encode response", "error", err)
	}
}

func splitScope(scope string) []string {
	return strings.Fields(scope)
}

func isValidation(err error) bool {
	return mxerrors.IsValidation(err)
}
