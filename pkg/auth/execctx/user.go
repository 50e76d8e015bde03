// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package execctx carries the authenticated user of a unit of work through a
// context.Context so downstream code can read it without extra parameters.
package execctx

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/stacklok/mxcp-auth/pkg/auth/provider"
)

// UserContext is the normalized identity of the caller together with the
// provider token used to act on their behalf.
type UserContext struct {
	Provider  string
	UserID    string
	Username  string
	Email     string
	Name      string
	AvatarURL string

	// ExternalToken is the provider access token. It is never printed.
	ExternalToken string

	SessionID  string
	Scopes     []string
	RawProfile map[string]any
}

// NewUserContext builds a UserContext from a freshly fetched profile.
func NewUserContext(info *provider.UserInfo, externalToken, sessionID string, scopes []string) *UserContext {
	if info == nil {
		return nil
	}
	return &UserContext{
		Provider:      info.Provider,
		UserID:        info.UserID,
		Username:      info.Username,
		Email:         info.Email,
		Name:          info.Name,
		AvatarURL:     info.AvatarURL,
		ExternalToken: externalToken,
		SessionID:     sessionID,
		Scopes:        slices.Clone(scopes),
		RawProfile:    info.RawProfile,
	}
}

// String returns a redacted representation.
func (u *UserContext) String() string {
	if u == nil {
		return "UserContext(nil)"
	}
	return fmt.Sprintf("UserContext{provider:%s user_id:%s username:%s session_id:%s has_external_token:%t}",
		u.Provider, u.UserID, u.Username, u.SessionID, u.ExternalToken != "")
}

// GoString implements fmt.GoStringer.
func (u *UserContext) GoString() string { return u.String() }

// MarshalJSON omits the external token.
func (u *UserContext) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Provider         string         `json:"provider"`
		UserID           string         `json:"user_id"`
		Username         string         `json:"username"`
		Email            string         `json:"email,omitempty"`
		Name             string         `json:"name,omitempty"`
		AvatarURL        string         `json:"avatar_url,omitempty"`
		SessionID        string         `json:"session_id,omitempty"`
		Scopes           []string       `json:"scopes,omitempty"`
		RawProfile       map[string]any `json:"raw_profile,omitempty"`
		HasExternalToken bool           `json:"has_external_token"`
	}{
		Provider:         u.Provider,
		UserID:           u.UserID,
		Username:         u.Username,
		Email:            u.Email,
		Name:             u.Name,
		AvatarURL:        u.AvatarURL,
		SessionID:        u.SessionID,
		Scopes:           u.Scopes,
		RawProfile:       u.RawProfile,
		HasExternalToken: u.ExternalToken != "",
	})
}
