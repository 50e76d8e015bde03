// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"runtime/debug"

	"github.com/stacklok/mxcp-auth/pkg/auth/crypto"
	"github.com/stacklok/mxcp-auth/pkg/auth/provider"
	"github.com/stacklok/mxcp-auth/pkg/auth/session"
	"github.com/stacklok/mxcp-auth/pkg/auth/storage"
	"github.com/stacklok/mxcp-auth/pkg/logger"
	"github.com/stacklok/mxcp-auth/pkg/telemetry"
)

// AuthorizeHandler handles GET /authorize. It validates the client request
// and redirects the user agent to the identity provider.
func (s *Service) AuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if rt := q.Get("response_type"); rt != "" && rt != "code" {
		renderError(w, http.StatusBadRequest, "Only the authorization code flow is supported.", "")
		return
	}

	authURL, err := s.BuildAuthorizeURL(r.Context(), AuthorizeRequest{
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		State:               q.Get("state"),
		Scopes:              splitScope(q.Get("scope")),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	})
	if err != nil {
		logger.Infow("rejected authorize request", "client_id", q.Get("client_id"), "error", err)
		if isValidation(err) {
			renderError(w, http.StatusBadRequest, msgInvalidRequest, "")
			return
		}
		renderError(w, http.StatusInternalServerError, msgInternal, "")
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// CallbackHandler handles the identity provider redirect. On success the
// client is redirected to its redirect_uri with a fresh MXCP code and its
// own state.
func (s *Service) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	outcome := telemetry.OutcomeInternalError
	defer func() {
		if rec := recover(); rec != nil {
			logger.Errorw("panic while handling oauth callback", "panic", rec, "stack", string(debug.Stack()))
			renderError(w, http.StatusInternalServerError, msgInternal, "")
			outcome = telemetry.OutcomeInternalError
		}
		s.metrics.RecordCallback(ctx, outcome)
	}()

	q := r.URL.Query()
	code, stateValue := q.Get("code"), q.Get("state")

	if idpErr := q.Get("error"); idpErr != "" {
		logger.Infow("identity provider returned an error",
			"error", idpErr, "error_description", q.Get("error_description"))
		outcome = telemetry.OutcomeIdPError
		renderError(w, http.StatusBadRequest, msgProviderRejected, q.Get("error_description"))
		return
	}

	if code == "" || stateValue == "" {
		outcome = telemetry.OutcomeBadRequest
		renderError(w, http.StatusBadRequest, msgInvalidRequest, "")
		return
	}

	state, err := s.sessions.ConsumeOAuthState(ctx, stateValue)
	if err != nil {
		logger.Errorw("failed to consume oauth state", "state_hash", crypto.HashPrefix(stateValue), "error", err)
		renderError(w, http.StatusInternalServerError, msgInternal, "")
		return
	}
	if state == nil {
		logger.Infow("callback with invalid or expired state", "state_hash", crypto.HashPrefix(stateValue))
		outcome = telemetry.OutcomeInvalidState
		renderError(w, http.StatusBadRequest, msgInvalidState, "")
		return
	}

	adapter := s.Adapter()
	if state.Provider != "" && state.Provider != adapter.Name() {
		logger.Warnw("callback state belongs to another provider",
			"state_provider", state.Provider, "provider", adapter.Name())
		outcome = telemetry.OutcomeInvalidState
		renderError(w, http.StatusBadRequest, msgInvalidState, "")
		return
	}

	var grant *provider.GrantResult
	err = s.observe(ctx, adapter, "exchange_code", func(ctx context.Context) error {
		var exErr error
		grant, exErr = adapter.ExchangeCode(ctx, code, state.CallbackURL, state.CodeVerifier)
		return exErr
	})
	if err != nil {
		outcome = s.renderProviderFailure(w, adapter, "exchange_code", err)
		return
	}

	var info *provider.UserInfo
	err = s.observe(ctx, adapter, "fetch_user_info", func(ctx context.Context) error {
		var uiErr error
		info, uiErr = adapter.FetchUserInfo(ctx, grant.AccessToken)
		return uiErr
	})
	if err != nil {
		outcome = s.renderProviderFailure(w, adapter, "fetch_user_info", err)
		return
	}

	redirect, err := s.completeSignIn(ctx, state, grant, info)
	if err != nil {
		logger.Errorw("failed to complete sign-in", "client_id", state.ClientID, "error", err, "stack", string(debug.Stack()))
		renderError(w, http.StatusInternalServerError, msgInternal, "")
		return
	}

	outcome = telemetry.OutcomeSuccess
	http.Redirect(w, r, redirect, http.StatusFound)
}

// completeSignIn creates the session and the client code and returns the
// client redirect. A session whose code could not be issued is removed.
func (s *Service) completeSignIn(
	ctx context.Context, state *storage.OAuthState, grant *provider.GrantResult, info *provider.UserInfo,
) (string, error) {
	// an omitted scope means the requested one was granted
	scopes := grant.Scopes
	if len(scopes) == 0 {
		scopes = state.Scopes
	}

	sess, err := s.sessions.CreateSession(ctx, session.SessionParams{
		ClientID:             state.ClientID,
		Provider:             state.Provider,
		UserInfo:             info,
		ProviderAccessToken:  grant.AccessToken,
		ProviderRefreshToken: grant.RefreshToken,
		ProviderExpiresAt:    grant.ExpiresAt,
		Scopes:               scopes,
	})
	if err != nil {
		return "", err
	}

	authCode, err := s.sessions.CreateAuthCode(ctx, session.AuthCodeParams{
		SessionID:           sess.SessionID,
		ClientID:            state.ClientID,
		RedirectURI:         state.RedirectURI,
		Scopes:              scopes,
		CodeChallenge:       state.CodeChallenge,
		CodeChallengeMethod: state.CodeChallengeMethod,
	})
	if err == nil {
		var redirect string
		redirect, err = clientRedirect(state.RedirectURI, authCode.Code, state.ClientState)
		if err == nil {
			return redirect, nil
		}
	}

	if delErr := s.sessions.DeleteSession(ctx, sess.AccessToken); delErr != nil {
		logger.Warnw("failed to remove session after failed sign-in", "session_id", sess.SessionID, "error", delErr)
	}
	return "", err
}

// renderProviderFailure maps a provider failure to 400 or 502 and returns
// the metric outcome.
func (*Service) renderProviderFailure(w http.ResponseWriter, adapter provider.Adapter, operation string, err error) string {
	pe, ok := provider.AsProviderError(err)
	if !ok {
		logger.Errorw("provider call failed", "provider", adapter.Name(), "operation", operation, "error", err)
		renderError(w, http.StatusBadGateway, msgProviderDown, "")
		return telemetry.OutcomeProviderError
	}

	logger.Warnw("provider call failed",
		"provider", adapter.Name(), "operation", operation,
		"error_code", pe.Code, "status", pe.HTTPStatus, "description", pe.Description)
	if pe.Transient() {
		renderError(w, http.StatusBadGateway, msgProviderDown, "")
	} else {
		renderError(w, http.StatusBadRequest, msgProviderRejected, "")
	}
	return telemetry.OutcomeProviderError
}

// clientRedirect appends code and state to the client redirect URI,
// keeping any query it already has.
func clientRedirect(redirectURI, code, state string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("invalid stored redirect_uri: %w", err)
	}
	if code == "" {
		return "", errors.New("authorization code is empty")
	}
	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
