// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputePKCEChallenge_RFC7636Example(t *testing.T) {
	t.Parallel()

	// RFC 7636 Appendix B
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", ComputePKCEChallenge(verifier))
}

func TestGeneratePKCEVerifier(t *testing.T) {
	t.Parallel()

	a, b := GeneratePKCEVerifier(), GeneratePKCEVerifier()
	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}

func TestVerifyPKCE(t *testing.T) {
	t.Parallel()

	verifier := GeneratePKCEVerifier()
	challenge := ComputePKCEChallenge(verifier)

	tests := []struct {
		name      string
		verifier  string
		challenge string
		method    string
		want      bool
	}{
		{"s256 match", verifier, challenge, PKCEChallengeMethodS256, true},
		{"s256 mismatch", "wrong", challenge, PKCEChallengeMethodS256, false},
		{"plain match", "abc", "abc", PKCEChallengeMethodPlain, true},
		{"empty method is plain", "abc", "abc", "", true},
		{"unknown method", verifier, challenge, "S512", false},
		{"empty verifier", "", challenge, PKCEChallengeMethodS256, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, VerifyPKCE(tt.verifier, tt.challenge, tt.method))
		})
	}
}

func TestHashToken(t *testing.T) {
	t.Parallel()

	h := HashToken("DUMMY_ACCESS_TOKEN")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashToken("DUMMY_ACCESS_TOKEN"))
	assert.NotEqual(t, h, HashToken("other"))
	assert.NotContains(t, h, "DUMMY")
	assert.Equal(t, h[:8], HashPrefix("DUMMY_ACCESS_TOKEN"))
	assert.Empty(t, HashPrefix(""))
}

func TestRandomToken(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{})
	for range 100 {
		tok := RandomToken()
		assert.Len(t, tok, 52)
		_, dup := seen[tok]
		require.False(t, dup)
		seen[tok] = struct{}{}
	}
}

func TestSealer_RoundTrip(t *testing.T) {
	t.Parallel()

	key, err := GenerateKey()
	require.NoError(t, err)
	s, err := NewSealerFromString(key)
	require.NoError(t, err)

	for _, secret := range []string{"", "DUMMY_ACCESS_TOKEN", strings.Repeat("x", 4096), "ünïcødé"} {
		sealed, err := s.Seal(secret)
		require.NoError(t, err)
		if secret != "" {
			assert.NotContains(t, sealed, secret)
		}
		opened, err := s.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, secret, opened)
	}

	a, _ := s.Seal("same")
	b, _ := s.Seal("same")
	assert.NotEqual(t, a, b, "nonce must differ per seal")
}

func TestSealer_WrongKeyFails(t *testing.T) {
	t.Parallel()

	k1, _ := GenerateKey()
	k2, _ := GenerateKey()
	s1, err := NewSealerFromString(k1)
	require.NoError(t, err)
	s2, err := NewSealerFromString(k2)
	require.NoError(t, err)

	sealed, err := s1.Seal("secret")
	require.NoError(t, err)

	_, err = s2.Open(sealed)
	assert.ErrorContains(t, err, "decrypt sealed value")

	_, err = s1.Open("!!not base64!!")
	assert.Error(t, err)
	_, err = s1.Open(base64.RawStdEncoding.EncodeToString([]byte("short")))
	assert.ErrorContains(t, err, "too short")
}

func TestSealer_Nil(t *testing.T) {
	t.Parallel()

	var s *Sealer
	_, err := s.Seal("x")
	assert.ErrorIs(t, err, ErrSealerNotConfigured)
	_, err = s.Open("x")
	assert.ErrorIs(t, err, ErrSealerNotConfigured)
}

func TestParseKey(t *testing.T) {
	t.Parallel()

	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}

	hexKey := "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	got, err := ParseKey(hexKey)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = ParseKey(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = ParseKey(base64.RawURLEncoding.EncodeToString(raw[:16]))
	require.NoError(t, err)
	assert.Len(t, got, 16)

	_, err = ParseKey("")
	assert.Error(t, err)
	_, err = ParseKey(base64.StdEncoding.EncodeToString([]byte("too short")))
	assert.Error(t, err)
}
