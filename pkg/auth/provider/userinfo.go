// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tidwall/gjson"
)

// UserInfoFieldMapping maps provider specific user info fields to UserInfo.
// Each value is a gjson path, so nested fields such as "data.user.id" work.
// Empty fields fall back to the provider's defaults.
type UserInfoFieldMapping struct {
	UserIDField   string `json:"user_id_field,omitempty" yaml:"user_id_field,omitempty"`
	UsernameField string `json:"username_field,omitempty" yaml:"username_field,omitempty"`
	EmailField    string `json:"email_field,omitempty" yaml:"email_field,omitempty"`
	NameField     string `json:"name_field,omitempty" yaml:"name_field,omitempty"`
	AvatarField   string `json:"avatar_field,omitempty" yaml:"avatar_field,omitempty"`
}

// oidcFieldMapping is the OpenID Connect standard claim layout.
var oidcFieldMapping = UserInfoFieldMapping{
	UserIDField:   "sub",
	UsernameField: "preferred_username",
	EmailField:    "email",
	NameField:     "name",
	AvatarField:   "picture",
}

// merge returns m with empty fields filled from defaults.
func (m *UserInfoFieldMapping) merge(defaults UserInfoFieldMapping) UserInfoFieldMapping {
	if m == nil {
		return defaults
	}
	out := *m
	if out.UserIDField == "" {
		out.UserIDField = defaults.UserIDField
	}
	if out.UsernameField == "" {
		out.UsernameField = defaults.UsernameField
	}
	if out.EmailField == "" {
		out.EmailField = defaults.EmailField
	}
	if out.NameField == "" {
		out.NameField = defaults.NameField
	}
	if out.AvatarField == "" {
		out.AvatarField = defaults.AvatarField
	}
	return out
}

// normalize builds a UserInfo from a raw user info document.
func (m UserInfoFieldMapping) normalize(provider string, body []byte) (*UserInfo, error) {
	if !gjson.ValidBytes(body) {
		return nil, errMalformed(errors.New("user info is not valid JSON"))
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return nil, errMalformed(errors.New("user info is not a JSON object"))
	}

	field := func(path string) string {
		if path == "" {
			return ""
		}
		r := doc.Get(path)
		if !r.Exists() || r.Type == gjson.Null {
			return ""
		}
		return r.String()
	}

	info := &UserInfo{
		Provider:  provider,
		UserID:    field(m.UserIDField),
		Username:  field(m.UsernameField),
		Email:     field(m.EmailField),
		Name:      field(m.NameField),
		AvatarURL: field(m.AvatarField),
	}
	if info.UserID == "" {
		return nil, &ProviderError{
			Code:        CodeInvalidResponse,
			Description: "user info has no " + m.UserIDField,
			HTTPStatus:  http.StatusBadGateway,
		}
	}
	if info.Username == "" {
		info.Username = firstNonEmpty(info.Email, info.UserID)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err == nil {
		info.RawProfile = raw
	}
	return info, nil
}
