// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stacklok/mxcp-auth/pkg/oauth"
)

// Error codes carried by ProviderError in addition to the RFC 6749 ones.
const (
	CodeRefreshNotSupported = "refresh_not_supported"
	CodeInvalidResponse     = "invalid_response"
)

// ProviderError is the structured failure of every adapter call.
type ProviderError struct {
	// Code is an OAuth style error code such as invalid_grant.
	Code string

	// Description is the provider's human readable detail. Log it, never
	// show it to the end user.
	Description string

	// HTTPStatus is the status to surface. For user info calls it is the
	// provider's own status, so a revoked token stays 401.
	HTTPStatus int

	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("provider error %s (HTTP %d)", e.Code, e.HTTPStatus)
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Transient reports whether retrying the same call later could succeed.
func (e *ProviderError) Transient() bool {
	switch e.Code {
	case oauth.ErrorTemporarilyUnavailable, oauth.ErrorServerError:
		return true
	}
	return e.HTTPStatus == http.StatusTooManyRequests || e.HTTPStatus >= http.StatusInternalServerError
}

// Unauthorized reports whether the provider rejected the presented token.
func (e *ProviderError) Unauthorized() bool {
	return e.HTTPStatus == http.StatusUnauthorized || e.Code == oauth.ErrorInvalidToken
}

// AsProviderError extracts a *ProviderError from an error chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// NewProviderError creates a ProviderError.
func NewProviderError(code, description string, status int) *ProviderError {
	return &ProviderError{Code: code, Description: description, HTTPStatus: status}
}

func errInvalidGrant(description string) *ProviderError {
	return NewProviderError(oauth.ErrorInvalidGrant, description, http.StatusBadRequest)
}

func errInvalidRequest(description string) *ProviderError {
	return NewProviderError(oauth.ErrorInvalidRequest, description, http.StatusBadRequest)
}

func errInvalidToken(description string) *ProviderError {
	return NewProviderError(oauth.ErrorInvalidToken, description, http.StatusUnauthorized)
}

func errRefreshNotSupported(provider string) *ProviderError {
	return NewProviderError(CodeRefreshNotSupported, provider+" does not support token refresh", http.StatusBadRequest)
}

// errUnavailable classifies network failures, timeouts and cancellations.
func errUnavailable(cause error) *ProviderError {
	return &ProviderError{
		Code:        oauth.ErrorTemporarilyUnavailable,
		Description: "provider unreachable",
		HTTPStatus:  http.StatusServiceUnavailable,
		Cause:       cause,
	}
}

// errMalformed classifies a response body that could not be decoded.
func errMalformed(cause error) *ProviderError {
	return &ProviderError{
		Code:        CodeInvalidResponse,
		Description: "malformed provider response",
		HTTPStatus:  http.StatusBadRequest,
		Cause:       cause,
	}
}

// vendorCodes maps non-standard provider codes to RFC 6749 ones.
var vendorCodes = map[string]string{
	"bad_verification_code":        oauth.ErrorInvalidGrant,
	"incorrect_client_credentials": oauth.ErrorInvalidClient,
	"redirect_uri_mismatch":        oauth.ErrorInvalidRequest,
	"expired_token":                oauth.ErrorInvalidGrant,
}

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
}

func normalizeCode(code string) string {
	if mapped, ok := vendorCodes[code]; ok {
		return mapped
	}
	return code
}

// tokenEndpointError classifies an unsuccessful token or revocation endpoint
// response.
func tokenEndpointError(status int, body []byte) *ProviderError {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)

	if eb.Error != "" {
		return NewProviderError(normalizeCode(eb.Error), eb.ErrorDescription, status)
	}

	switch {
	case status == http.StatusServiceUnavailable, status == http.StatusTooManyRequests:
		return NewProviderError(oauth.ErrorTemporarilyUnavailable, http.StatusText(status), status)
	case status >= http.StatusInternalServerError:
		return NewProviderError(oauth.ErrorServerError, http.StatusText(status), status)
	case status == http.StatusBadRequest:
		return NewProviderError(oauth.ErrorInvalidGrant, http.StatusText(status), status)
	default:
		return NewProviderError(oauth.ErrorInvalidRequest, http.StatusText(status), status)
	}
}

// resourceEndpointError classifies an unsuccessful user info response. The
// provider's status is kept as-is.
func resourceEndpointError(status int, body []byte) *ProviderError {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)

	desc := eb.ErrorDescription
	if desc == "" {
		desc = eb.Message
	}
	if desc == "" {
		desc = http.StatusText(status)
	}

	code := normalizeCode(eb.Error)
	if code == "" {
		switch {
		case status == http.StatusUnauthorized:
			code = oauth.ErrorInvalidToken
		case status == http.StatusForbidden && isRateLimitMessage(desc):
			code = oauth.ErrorTemporarilyUnavailable
		case status == http.StatusForbidden:
			code = oauth.ErrorAccessDenied
		case status == http.StatusServiceUnavailable, status == http.StatusTooManyRequests:
			code = oauth.ErrorTemporarilyUnavailable
		case status >= http.StatusInternalServerError:
			code = oauth.ErrorServerError
		default:
			code = oauth.ErrorInvalidRequest
		}
	}
	return NewProviderError(code, desc, status)
}

// isRateLimitMessage matches the 403 bodies GitHub returns for its primary
// and secondary rate limits.
func isRateLimitMessage(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "rate limit")
}
