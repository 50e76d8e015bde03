// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2/endpoints"
	"golang.org/x/time/rate"

	"github.com/stacklok/mxcp-auth/pkg/logger"
	"github.com/stacklok/mxcp-auth/pkg/networking"
)

const (
	githubAPIURL = "https://api.github.com"

	// GitHub allows 5000 authenticated requests per hour per token; the
	// limiter keeps a burst of user info lookups from tripping the
	// secondary rate limit.
	githubRateLimit = 100
	githubRateBurst = 200
)

var githubFieldMapping = UserInfoFieldMapping{
	UserIDField:   "id",
	UsernameField: "login",
	EmailField:    "email",
	NameField:     "name",
	AvatarField:   "avatar_url",
}

// GitHubAdapter talks to GitHub OAuth apps. GitHub access tokens do not
// expire, there is no refresh grant and PKCE parameters are not sent.
type GitHubAdapter struct {
	*baseAdapter
	apiURL string
}

// NewGitHubAdapter creates a GitHub adapter.
func NewGitHubAdapter(cfg *Config, opts ...Option) (*GitHubAdapter, error) {
	o, err := buildOptions(cfg, opts)
	if err != nil {
		return nil, err
	}

	b := newBaseAdapter(NameGitHub, cfg, o, githubFieldMapping)
	b.endpoints = adapterEndpoints{
		auth:     firstNonEmpty(cfg.AuthURL, endpoints.GitHub.AuthURL),
		token:    firstNonEmpty(cfg.TokenURL, endpoints.GitHub.TokenURL),
		userInfo: firstNonEmpty(cfg.UserInfoURL, githubAPIURL+"/user"),
	}
	b.defaultScopes = cfg.scopesOr("read:user", "user:email")
	b.scopeSeparator = ","
	b.userInfoHeaders["Accept"] = "application/vnd.github+json"
	b.userInfoHeaders["X-GitHub-Api-Version"] = "2022-11-28"
	b.limiter = rate.NewLimiter(githubRateLimit, githubRateBurst)

	apiURL := githubAPIURL
	if cfg.RevokeURL != "" {
		apiURL = strings.TrimSuffix(cfg.RevokeURL, "/")
	}

	return &GitHubAdapter{baseAdapter: b, apiURL: apiURL}, nil
}

// RevokeToken deletes the OAuth app authorization for a token.
// See https://docs.github.com/en/rest/apps/oauth-applications#delete-an-app-token
func (g *GitHubAdapter) RevokeToken(ctx context.Context, token, _ string) (bool, error) {
	if token == "" {
		return false, errInvalidRequest("token is required")
	}

	body, err := json.Marshal(map[string]string{"access_token": token})
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	target := g.apiURL + "/applications/" + url.PathEscape(g.clientID) + "/token"
	_, err = networking.Fetch(ctx, g.httpClient, target,
		networking.WithMethod(http.MethodDelete),
		networking.WithBasicAuth(g.clientID, g.clientSecret),
		networking.WithHeader("Accept", "application/vnd.github+json"),
		networking.WithHeader("Content-Type", networking.ContentTypeJSON),
		networking.WithBody(bytes.NewReader(body)),
		networking.WithAny2xx(),
		networking.WithErrorHandler(func(resp *http.Response, body []byte) error {
			return resourceEndpointError(resp.StatusCode, body)
		}),
	)
	if err != nil {
		logger.Debugw("github token revocation failed", "error", err)
		return false, classifyFetchError(err)
	}
	return true, nil
}
