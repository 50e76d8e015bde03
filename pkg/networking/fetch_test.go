// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package networking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenBody struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func jsonServer(t *testing.T, status int, contentType, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchJSON_Success(t *testing.T) {
	t.Parallel()

	srv := jsonServer(t, http.StatusOK, "application/json; charset=utf-8", `{"access_token":"abc","expires_in":60}`)

	res, err := FetchJSON[tokenBody](context.Background(), srv.Client(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "abc", res.Data.AccessToken)
	assert.Equal(t, 60, res.Data.ExpiresIn)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestFetchJSON_MaxResponseSize(t *testing.T) {
	t.Parallel()

	srv := jsonServer(t, http.StatusOK, ContentTypeJSON, `{"access_token":"abcdefghijklmnop","expires_in":60}`)

	_, err := FetchJSON[tokenBody](context.Background(), srv.Client(), srv.URL, WithMaxResponseSize(16))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse JSON")
}

func TestFetchJSONWithForm_SendsFormAndAuth(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, ContentTypeFormURLEncoded, r.Header.Get("Content-Type"))
		assert.Equal(t, ContentTypeJSON, r.Header.Get("Accept"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "xyz", r.PostForm.Get("code"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"t"}`)
	}))
	t.Cleanup(srv.Close)

	form := url.Values{"grant_type": {"authorization_code"}, "code": {"xyz"}}
	res, err := FetchJSONWithForm[tokenBody](context.Background(), srv.Client(), srv.URL, form,
		WithBasicAuth("client", "secret"))
	require.NoError(t, err)
	assert.Equal(t, "t", res.Data.AccessToken)
}

func TestFetchJSON_BearerToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{}`)
	}))
	t.Cleanup(srv.Close)

	_, err := FetchJSON[map[string]any](context.Background(), srv.Client(), srv.URL, WithBearerToken("tok"))
	require.NoError(t, err)
}

func TestFetchJSON_HTTPErrorDoesNotLeakBody(t *testing.T) {
	t.Parallel()

	srv := jsonServer(t, http.StatusBadRequest, "application/json", `{"secret":"do-not-log"}`)

	_, err := FetchJSON[tokenBody](context.Background(), srv.Client(), srv.URL)
	require.Error(t, err)

	httpErr, ok := AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	assert.Equal(t, "400 Bad Request", httpErr.Status)
	assert.False(t, httpErr.Transient())
	assert.NotContains(t, err.Error(), "do-not-log")
}

func TestFetchJSON_CustomErrorHandler(t *testing.T) {
	t.Parallel()

	srv := jsonServer(t, http.StatusUnauthorized, "application/json", `{"error":"invalid_token"}`)
	sentinel := errors.New("provider said no")

	_, err := FetchJSON[tokenBody](context.Background(), srv.Client(), srv.URL,
		WithErrorHandler(func(resp *http.Response, body []byte) error {
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Contains(t, string(body), "invalid_token")
			return sentinel
		}))
	assert.ErrorIs(t, err, sentinel)

	// nil from the handler falls back to HTTPError
	_, err = FetchJSON[tokenBody](context.Background(), srv.Client(), srv.URL,
		WithErrorHandler(func(*http.Response, []byte) error { return nil }))
	httpErr, ok := AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
}

func TestFetchJSON_ContentType(t *testing.T) {
	t.Parallel()

	srv := jsonServer(t, http.StatusOK, "text/plain", `{"access_token":"abc"}`)

	_, err := FetchJSON[tokenBody](context.Background(), srv.Client(), srv.URL)
	assert.ErrorContains(t, err, "unexpected content type")

	res, err := FetchJSON[tokenBody](context.Background(), srv.Client(), srv.URL, WithoutContentTypeValidation())
	require.NoError(t, err)
	assert.Equal(t, "abc", res.Data.AccessToken)
}

func TestFetchJSON_InvalidJSON(t *testing.T) {
	t.Parallel()

	srv := jsonServer(t, http.StatusOK, "application/json", `{not json`)

	_, err := FetchJSON[tokenBody](context.Background(), srv.Client(), srv.URL)
	assert.ErrorContains(t, err, "failed to parse JSON")
}

func TestFetchJSON_RequestErrors(t *testing.T) {
	t.Parallel()

	_, err := FetchJSON[tokenBody](context.Background(), http.DefaultClient, "://bad")
	assert.ErrorContains(t, err, "failed to create request")

	_, err = FetchJSON[tokenBody](context.Background(), http.DefaultClient, "http://127.0.0.1:1/unreachable")
	assert.ErrorContains(t, err, "request failed")
}

func TestFetchJSON_ContextDeadline(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := FetchJSON[tokenBody](ctx, srv.Client(), srv.URL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetch_Any2xx(t *testing.T) {
	t.Parallel()

	srv := jsonServer(t, http.StatusNoContent, "", "")

	_, err := Fetch(context.Background(), srv.Client(), srv.URL, WithMethod(http.MethodDelete))
	httpErr, ok := AsHTTPError(err)
	require.True(t, ok, fmt.Sprintf("got %v", err))
	assert.Equal(t, http.StatusNoContent, httpErr.StatusCode)

	res, err := Fetch(context.Background(), srv.Client(), srv.URL, WithMethod(http.MethodDelete), WithAny2xx())
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
}
