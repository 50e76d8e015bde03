// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package oauth provides shared RFC-defined types, constants, and validation utilities
// for OAuth 2.0 and OpenID Connect: the discovery document, RFC 9728 protected
// resource metadata, RFC 6749 error codes, and redirect URI validation per
// RFC 6749 and RFC 8252.
package oauth
