// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package storage persists OAuth states, MXCP authorization codes and
// sessions. Presented tokens are hashed with SHA-256 before any lookup and
// secrets are written only as ciphertext, so a leaked database does not leak
// usable credentials.
package storage

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=types.go TokenStore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	// ErrNotFound is returned when a record is absent or expired.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when a unique key is already taken.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("token store is closed")
)

// OAuthState is the pending authorization between the authorize redirect and
// the provider callback. It is consumed exactly once.
type OAuthState struct {
	State       string
	ClientID    string
	RedirectURI string

	// CallbackURL is the server callback the provider redirects to.
	CallbackURL string

	// ClientState is the state value the MCP client sent, echoed back on the
	// final redirect.
	ClientState string

	// CodeChallenge is the MCP client's PKCE challenge.
	CodeChallenge       string
	CodeChallengeMethod string

	// CodeVerifier is the upstream PKCE verifier. Persisted encrypted.
	CodeVerifier string

	Provider  string
	Scopes    []string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the state is no longer usable at now.
func (s *OAuthState) Expired(now time.Time) bool {
	return expired(s.ExpiresAt, now)
}

// AuthorizationCode is a one-time MXCP code bound to a session.
type AuthorizationCode struct {
	Code                string
	SessionID           string
	ClientID            string
	RedirectURI         string
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
	CreatedAt           time.Time
	ExpiresAt           time.Time
}

// Expired reports whether the code is no longer usable at now.
func (c *AuthorizationCode) Expired(now time.Time) bool {
	return expired(c.ExpiresAt, now)
}

// UserInfoSnapshot is the identity captured when the session was created.
type UserInfoSnapshot struct {
	Provider   string         `json:"provider"`
	UserID     string         `json:"user_id"`
	Username   string         `json:"username"`
	Email      string         `json:"email,omitempty"`
	Name       string         `json:"name,omitempty"`
	AvatarURL  string         `json:"avatar_url,omitempty"`
	RawProfile map[string]any `json:"raw_profile,omitempty"`
}

// Session binds MXCP tokens to the provider tokens and identity. Plaintext
// token fields only live in memory.
type Session struct {
	SessionID    string
	AccessToken  string
	RefreshToken string
	ClientID     string
	Provider     string

	UserInfo *UserInfoSnapshot

	ProviderAccessToken  string
	ProviderRefreshToken string
	// ProviderExpiresAt is zero when the provider token does not expire.
	ProviderExpiresAt time.Time

	ExpiresAt      time.Time
	Scopes         []string
	CreatedAt      time.Time
	LastAccessedAt time.Time
}

// Expired reports whether the session is no longer usable at now.
func (s *Session) Expired(now time.Time) bool {
	return expired(s.ExpiresAt, now)
}

// Clone returns a deep copy. Touching a session replaces it with a clone.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Scopes = slices.Clone(s.Scopes)
	if s.UserInfo != nil {
		ui := *s.UserInfo
		out.UserInfo = &ui
	}
	return &out
}

// String implements fmt.Stringer without revealing any token.
func (s *Session) String() string {
	if s == nil {
		return "Session(nil)"
	}
	user := ""
	if s.UserInfo != nil {
		user = s.UserInfo.Username
	}
	return fmt.Sprintf("Session{id:%s provider:%s user:%s expires_at:%s has_refresh_token:%t has_provider_refresh_token:%t}",
		s.SessionID, s.Provider, user, s.ExpiresAt.Format(time.RFC3339),
		s.RefreshToken != "", s.ProviderRefreshToken != "")
}

// GoString keeps %#v from printing tokens.
func (s *Session) GoString() string { return s.String() }

// MarshalJSON omits every token.
func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		SessionID      string            `json:"session_id"`
		ClientID       string            `json:"client_id,omitempty"`
		Provider       string            `json:"provider"`
		UserInfo       *UserInfoSnapshot `json:"user_info,omitempty"`
		Scopes         []string          `json:"scopes,omitempty"`
		ExpiresAt      time.Time         `json:"expires_at"`
		CreatedAt      time.Time         `json:"created_at"`
		LastAccessedAt time.Time         `json:"last_accessed_at"`
	}{
		SessionID:      s.SessionID,
		ClientID:       s.ClientID,
		Provider:       s.Provider,
		UserInfo:       s.UserInfo,
		Scopes:         s.Scopes,
		ExpiresAt:      s.ExpiresAt,
		CreatedAt:      s.CreatedAt,
		LastAccessedAt: s.LastAccessedAt,
	})
}

// CleanupCounts reports how many expired records a sweep removed.
type CleanupCounts struct {
	States    int
	AuthCodes int
	Sessions  int
}

// Total returns the number of removed records.
func (c CleanupCounts) Total() int {
	return c.States + c.AuthCodes + c.Sessions
}

// TokenStore persists OAuth states, authorization codes and sessions.
// Implementations must be safe for concurrent use. Consume operations are
// atomic: of two concurrent consumers of the same key at most one wins.
type TokenStore interface {
	// StoreState saves a pending OAuth state.
	StoreState(ctx context.Context, state *OAuthState) error
	// ConsumeState returns and deletes a state. ErrNotFound if absent or expired.
	ConsumeState(ctx context.Context, state string) (*OAuthState, error)

	// StoreAuthCode saves an MXCP authorization code.
	StoreAuthCode(ctx context.Context, code *AuthorizationCode) error
	// ConsumeAuthCode returns and deletes a code. ErrNotFound if absent or expired.
	ConsumeAuthCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// StoreSession inserts or replaces a session keyed by its access token hash.
	StoreSession(ctx context.Context, session *Session) error
	// LoadSessionByToken looks a session up by MXCP access token.
	LoadSessionByToken(ctx context.Context, accessToken string) (*Session, error)
	// LoadSessionByID looks a session up by session id.
	LoadSessionByID(ctx context.Context, id string) (*Session, error)
	// LoadSessionByRefreshToken looks a session up by MXCP refresh token.
	LoadSessionByRefreshToken(ctx context.Context, refreshToken string) (*Session, error)
	// DeleteSessionByToken removes a session. Deleting a missing session is not an error.
	DeleteSessionByToken(ctx context.Context, accessToken string) error
	// DeleteSessionByID removes a session by id.
	DeleteSessionByID(ctx context.Context, id string) error
	// TouchSession records the last access time. ExpiresAt is never extended.
	TouchSession(ctx context.Context, accessToken string, at time.Time) error

	// CleanupExpired deletes every expired record.
	CleanupExpired(ctx context.Context) (CleanupCounts, error)

	// Close releases resources. It is idempotent.
	Close() error
}

// expired treats a zero expiry as never expiring. A record is expired from
// the instant of its expiry onwards.
func expired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && !now.Before(expiresAt)
}
