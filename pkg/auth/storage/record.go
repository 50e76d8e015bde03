// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stacklok/mxcp-auth/pkg/auth/crypto"
)

// sessionRecord is the persisted form of a Session: hashes for lookup and
// ciphertext for everything secret.
type sessionRecord struct {
	AccessTokenHash       string            `json:"access_token_hash"`
	AccessTokenEncrypted  string            `json:"access_token_encrypted"`
	RefreshTokenHash      string            `json:"refresh_token_hash,omitempty"`
	RefreshTokenEncrypted string            `json:"refresh_token_encrypted,omitempty"`
	SessionID             string            `json:"session_id"`
	ClientID              string            `json:"client_id,omitempty"`
	Provider              string            `json:"provider"`
	UserInfo              *UserInfoSnapshot `json:"user_info,omitempty"`
	Scopes                []string          `json:"scopes"`
	ProviderAccessToken   string            `json:"provider_access_token,omitempty"`
	ProviderRefreshToken  string            `json:"provider_refresh_token,omitempty"`
	ProviderExpiresAt     int64             `json:"provider_expires_at,omitempty"`
	ExpiresAt             int64             `json:"expires_at"`
	CreatedAt             int64             `json:"created_at"`
	LastAccessedAt        int64             `json:"last_accessed_at,omitempty"`
}

func encodeSession(codec SecretCodec, s *Session) (*sessionRecord, error) {
	rec := &sessionRecord{
		AccessTokenHash:   crypto.HashToken(s.AccessToken),
		SessionID:         s.SessionID,
		ClientID:          s.ClientID,
		Provider:          s.Provider,
		UserInfo:          s.UserInfo,
		Scopes:            nonNil(s.Scopes),
		ProviderExpiresAt: toMillis(s.ProviderExpiresAt),
		ExpiresAt:         toMillis(s.ExpiresAt),
		CreatedAt:         toMillis(s.CreatedAt),
		LastAccessedAt:    toMillis(s.LastAccessedAt),
	}
	if s.RefreshToken != "" {
		rec.RefreshTokenHash = crypto.HashToken(s.RefreshToken)
	}

	var err error
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&rec.AccessTokenEncrypted, s.AccessToken},
		{&rec.RefreshTokenEncrypted, s.RefreshToken},
		{&rec.ProviderAccessToken, s.ProviderAccessToken},
		{&rec.ProviderRefreshToken, s.ProviderRefreshToken},
	} {
		if *f.dst, err = codec.Encrypt(f.src); err != nil {
			return nil, fmt.Errorf("failed to encrypt session secret: %w", err)
		}
	}
	return rec, nil
}

func (rec *sessionRecord) decode(codec SecretCodec) (*Session, error) {
	s := &Session{
		SessionID:         rec.SessionID,
		ClientID:          rec.ClientID,
		Provider:          rec.Provider,
		UserInfo:          rec.UserInfo,
		Scopes:            rec.Scopes,
		ProviderExpiresAt: fromMillis(rec.ProviderExpiresAt),
		ExpiresAt:         fromMillis(rec.ExpiresAt),
		CreatedAt:         fromMillis(rec.CreatedAt),
		LastAccessedAt:    fromMillis(rec.LastAccessedAt),
	}

	var err error
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&s.AccessToken, rec.AccessTokenEncrypted},
		{&s.RefreshToken, rec.RefreshTokenEncrypted},
		{&s.ProviderAccessToken, rec.ProviderAccessToken},
		{&s.ProviderRefreshToken, rec.ProviderRefreshToken},
	} {
		if *f.dst, err = codec.Decrypt(f.src); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// stateRecord is the persisted form of an OAuthState, keyed by state hash.
type stateRecord struct {
	ClientID            string   `json:"client_id"`
	RedirectURI         string   `json:"redirect_uri"`
	CallbackURL         string   `json:"callback_url,omitempty"`
	ClientState         string   `json:"client_state,omitempty"`
	CodeChallenge       string   `json:"code_challenge,omitempty"`
	CodeChallengeMethod string   `json:"code_challenge_method,omitempty"`
	CodeVerifier        string   `json:"code_verifier,omitempty"`
	Provider            string   `json:"provider,omitempty"`
	Scopes              []string `json:"scopes"`
	ExpiresAt           int64    `json:"expires_at"`
	CreatedAt           int64    `json:"created_at"`
}

func encodeState(codec SecretCodec, s *OAuthState) (*stateRecord, error) {
	verifier, err := codec.Encrypt(s.CodeVerifier)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt code verifier: %w", err)
	}
	return &stateRecord{
		ClientID:            s.ClientID,
		RedirectURI:         s.RedirectURI,
		CallbackURL:         s.CallbackURL,
		ClientState:         s.ClientState,
		CodeChallenge:       s.CodeChallenge,
		CodeChallengeMethod: s.CodeChallengeMethod,
		CodeVerifier:        verifier,
		Provider:            s.Provider,
		Scopes:              nonNil(s.Scopes),
		ExpiresAt:           toMillis(s.ExpiresAt),
		CreatedAt:           toMillis(s.CreatedAt),
	}, nil
}

func (rec *stateRecord) decode(codec SecretCodec, state string) (*OAuthState, error) {
	verifier, err := codec.Decrypt(rec.CodeVerifier)
	if err != nil {
		return nil, err
	}
	return &OAuthState{
		State:               state,
		ClientID:            rec.ClientID,
		RedirectURI:         rec.RedirectURI,
		CallbackURL:         rec.CallbackURL,
		ClientState:         rec.ClientState,
		CodeChallenge:       rec.CodeChallenge,
		CodeChallengeMethod: rec.CodeChallengeMethod,
		CodeVerifier:        verifier,
		Provider:            rec.Provider,
		Scopes:              rec.Scopes,
		ExpiresAt:           fromMillis(rec.ExpiresAt),
		CreatedAt:           fromMillis(rec.CreatedAt),
	}, nil
}

// codeRecord is the persisted form of an AuthorizationCode, keyed by code hash.
type codeRecord struct {
	SessionID           string   `json:"session_id"`
	ClientID            string   `json:"client_id"`
	RedirectURI         string   `json:"redirect_uri"`
	Scopes              []string `json:"scopes"`
	CodeChallenge       string   `json:"code_challenge,omitempty"`
	CodeChallengeMethod string   `json:"code_challenge_method,omitempty"`
	ExpiresAt           int64    `json:"expires_at"`
	CreatedAt           int64    `json:"created_at"`
}

func encodeCode(c *AuthorizationCode) *codeRecord {
	return &codeRecord{
		SessionID:           c.SessionID,
		ClientID:            c.ClientID,
		RedirectURI:         c.RedirectURI,
		Scopes:              nonNil(c.Scopes),
		CodeChallenge:       c.CodeChallenge,
		CodeChallengeMethod: c.CodeChallengeMethod,
		ExpiresAt:           toMillis(c.ExpiresAt),
		CreatedAt:           toMillis(c.CreatedAt),
	}
}

func (rec *codeRecord) decode(code string) *AuthorizationCode {
	return &AuthorizationCode{
		Code:                code,
		SessionID:           rec.SessionID,
		ClientID:            rec.ClientID,
		RedirectURI:         rec.RedirectURI,
		Scopes:              rec.Scopes,
		CodeChallenge:       rec.CodeChallenge,
		CodeChallengeMethod: rec.CodeChallengeMethod,
		ExpiresAt:           fromMillis(rec.ExpiresAt),
		CreatedAt:           fromMillis(rec.CreatedAt),
	}
}

// toMillis stores timestamps with millisecond precision; zero stays zero.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func nonNil(scopes []string) []string {
	if scopes == nil {
		return []string{}
	}
	return scopes
}

func marshalScopes(scopes []string) (string, error) {
	b, err := json.Marshal(nonNil(scopes))
	if err != nil {
		return "", fmt.Errorf("failed to encode scopes: %w", err)
	}
	return string(b), nil
}

func unmarshalScopes(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var scopes []string
	if err := json.Unmarshal([]byte(raw), &scopes); err != nil {
		return nil, fmt.Errorf("failed to decode scopes: %w", err)
	}
	return scopes, nil
}
