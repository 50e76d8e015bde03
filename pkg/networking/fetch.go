// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package networking

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	// DefaultMaxResponseSize is the default maximum response body size (1MB).
	DefaultMaxResponseSize = 1024 * 1024

	// ContentTypeJSON is the JSON content type.
	ContentTypeJSON = "application/json"

	// ContentTypeFormURLEncoded is the form-urlencoded content type.
	ContentTypeFormURLEncoded = "application/x-www-form-urlencoded"
)

// HTTPClient is the subset of *http.Client used by the fetch helpers.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// FetchResult contains the result of a successful JSON fetch operation.
type FetchResult[T any] struct {
	// Data is the parsed JSON response body.
	Data T

	// Raw is the unparsed response body.
	Raw []byte

	// StatusCode is the HTTP status code of the response.
	StatusCode int

	// Headers are the response headers.
	Headers http.Header
}

// FetchOption configures a fetch request.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	method                    string
	headers                   http.Header
	body                      io.Reader
	maxResponseSize           int64
	skipContentTypeValidation bool
	acceptAny2xx              bool
	errorHandler              func(*http.Response, []byte) error
	basicUser, basicPass      string
}

func newFetchOptions() *fetchOptions {
	return &fetchOptions{
		method:          http.MethodGet,
		headers:         make(http.Header),
		maxResponseSize: DefaultMaxResponseSize,
	}
}

// WithMethod sets the HTTP method for the request.
func WithMethod(method string) FetchOption {
	return func(opts *fetchOptions) {
		opts.method = method
	}
}

// WithHeader sets a single header on the request.
func WithHeader(key, value string) FetchOption {
	return func(opts *fetchOptions) {
		opts.headers.Set(key, value)
	}
}

// WithBearerToken sets the Authorization header to a bearer token.
func WithBearerToken(token string) FetchOption {
	return WithHeader("Authorization", "Bearer "+token)
}

// WithBasicAuth authenticates the request with HTTP basic credentials.
func WithBasicAuth(username, password string) FetchOption {
	return func(opts *fetchOptions) {
		opts.basicUser = username
		opts.basicPass = password
	}
}

// WithBody sets the request body.
func WithBody(body io.Reader) FetchOption {
	return func(opts *fetchOptions) {
		opts.body = body
	}
}

// WithMaxResponseSize sets the maximum response body size.
// If not set, DefaultMaxResponseSize (1MB) is used.
func WithMaxResponseSize(size int64) FetchOption {
	return func(opts *fetchOptions) {
		opts.maxResponseSize = size
	}
}

// WithoutContentTypeValidation disables Content-Type validation.
// Several identity providers answer token requests with text/plain or
// text/javascript bodies that are nevertheless JSON.
func WithoutContentTypeValidation() FetchOption {
	return func(opts *fetchOptions) {
		opts.skipContentTypeValidation = true
	}
}

// WithAny2xx treats every 2xx status as success instead of only 200.
func WithAny2xx() FetchOption {
	return func(opts *fetchOptions) {
		opts.acceptAny2xx = true
	}
}

// WithErrorHandler sets a custom error handler for unsuccessful responses.
// The handler receives the response and body, and should return an error.
// If the handler returns nil, the default HTTPError will be returned.
// This is how OAuth error bodies are turned into structured errors.
func WithErrorHandler(handler func(*http.Response, []byte) error) FetchOption {
	return func(opts *fetchOptions) {
		opts.errorHandler = handler
	}
}

// Fetch performs an HTTP request and returns the raw body of a successful
// response. Unsuccessful statuses yield an HTTPError (or the custom error
// handler's error). The body of an error response is never included in the
// returned error message.
func Fetch(ctx context.Context, client HTTPClient, requestURL string, opts ...FetchOption) (*FetchResult[[]byte], error) {
	options := newFetchOptions()
	for _, opt := range opts {
		opt(options)
	}
	return fetch(ctx, client, requestURL, options)
}

func fetch(ctx context.Context, client HTTPClient, requestURL string, options *fetchOptions) (*FetchResult[[]byte], error) {
	req, err := http.NewRequestWithContext(ctx, options.method, requestURL, options.body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range options.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if options.basicUser != "" {
		req.SetBasicAuth(options.basicUser, options.basicPass)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, options.maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	ok := resp.StatusCode == http.StatusOK
	if options.acceptAny2xx {
		ok = resp.StatusCode >= 200 && resp.StatusCode < 300
	}
	if !ok {
		if options.errorHandler != nil {
			if customErr := options.errorHandler(resp, body); customErr != nil {
				return nil, customErr
			}
		}
		return nil, NewHTTPError(resp.StatusCode, requestURL, resp.Status)
	}

	return &FetchResult[[]byte]{
		Data:       body,
		Raw:        body,
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
	}, nil
}

// FetchJSON performs an HTTP request and parses the JSON response body.
// It sets the Accept header to application/json by default.
// For non-200 responses, it returns an HTTPError or the result of a custom error handler.
func FetchJSON[T any](
	ctx context.Context,
	client HTTPClient,
	requestURL string,
	opts ...FetchOption,
) (*FetchResult[T], error) {
	options := newFetchOptions()
	for _, opt := range opts {
		opt(options)
	}

	if options.headers.Get("Accept") == "" {
		options.headers.Set("Accept", ContentTypeJSON)
	}

	raw, err := fetch(ctx, client, requestURL, options)
	if err != nil {
		return nil, err
	}

	if !options.skipContentTypeValidation {
		contentType := raw.Headers.Get("Content-Type")
		if !strings.Contains(strings.ToLower(contentType), ContentTypeJSON) {
			return nil, fmt.Errorf("unexpected content type: %s", contentType)
		}
	}

	var data T
	if err := json.Unmarshal(raw.Raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	return &FetchResult[T]{
		Data:       data,
		Raw:        raw.Raw,
		StatusCode: raw.StatusCode,
		Headers:    raw.Headers,
	}, nil
}

// FetchJSONWithForm performs a POST request with form-urlencoded body and parses JSON response.
// This is a convenience wrapper around FetchJSON for token endpoints and similar APIs.
func FetchJSONWithForm[T any](
	ctx context.Context,
	client HTTPClient,
	requestURL string,
	formData url.Values,
	opts ...FetchOption,
) (*FetchResult[T], error) {
	formOpts := []FetchOption{
		WithMethod(http.MethodPost),
		WithHeader("Content-Type", ContentTypeFormURLEncoded),
		WithBody(strings.NewReader(formData.Encode())),
	}

	// caller options come last so they can override the form defaults
	return FetchJSON[T](ctx, client, requestURL, append(formOpts, opts...)...)
}
