// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// HashToken returns the hex-encoded SHA-256 of a token. Stores key every
// token lookup by this value; plaintext never becomes a key.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// HashPrefix returns the first 8 characters of HashToken for log correlation.
func HashPrefix(token string) string {
	if token == "" {
		return ""
	}
	return HashToken(token)[:8]
}

// RandomToken returns a 256-bit random token in base32 (52 characters).
func RandomToken() string {
	return rand.Text() + rand.Text()[:26]
}
