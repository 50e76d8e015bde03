// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package crypto holds the small cryptographic primitives used by the auth
// subsystem: PKCE, token hashing, random token generation and the AES-GCM
// sealer that protects secrets at rest.
package crypto

import (
	"crypto/subtle"

	"golang.org/x/oauth2"
)

// PKCEChallengeMethodS256 is the PKCE challenge method using SHA-256 (RFC 7636).
const PKCEChallengeMethodS256 = "S256"

// PKCEChallengeMethodPlain sends the verifier as the challenge.
const PKCEChallengeMethodPlain = "plain"

// GeneratePKCEVerifier generates a cryptographically random code_verifier
// per RFC 7636 Section 4.1 (43 characters of base64url).
//
// It panics on crypto/rand read failure, like oauth2.GenerateVerifier.
func GeneratePKCEVerifier() string {
	return oauth2.GenerateVerifier()
}

// ComputePKCEChallenge computes the S256 code_challenge from a code_verifier:
// BASE64URL(SHA256(code_verifier)).
func ComputePKCEChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// VerifyPKCE checks a presented code_verifier against a stored challenge.
// An empty method is treated as plain (RFC 7636 §4.3). Unknown methods fail.
func VerifyPKCE(verifier, challenge, method string) bool {
	if verifier == "" || challenge == "" {
		return false
	}
	var computed string
	switch method {
	case PKCEChallengeMethodS256:
		computed = ComputePKCEChallenge(verifier)
	case PKCEChallengeMethodPlain, "":
		computed = verifier
	default:
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
