// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package networking

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// HTTPError is a non-success response from an upstream endpoint. Response
// bodies are never copied into it.
type HTTPError struct {
	StatusCode int
	// Status is the response status line.
	Status string
	// URL is the request URL without query or fragment.
	URL string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.URL, e.Status)
}

// Transient reports whether retrying later may succeed: 5xx and 429.
func (e *HTTPError) Transient() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// NewHTTPError creates an HTTPError. The query and fragment of rawURL are
// dropped since they may carry credentials.
func NewHTTPError(statusCode int, rawURL, status string) *HTTPError {
	return &HTTPError{StatusCode: statusCode, Status: status, URL: stripQuery(rawURL)}
}

// AsHTTPError unwraps err to an *HTTPError.
func AsHTTPError(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}

func stripQuery(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.User = nil
	return u.String()
}
