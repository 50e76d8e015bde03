// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrSealerNotConfigured is returned when a nil sealer is used.
var ErrSealerNotConfigured = errors.New("sealer is not configured")

// Sealer encrypts and decrypts secret strings with AES-GCM. Payloads are
// base64(nonce || ciphertext).
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a sealer from a raw AES key of 16, 24 or 32 bytes.
func NewSealer(key []byte) (*Sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// NewSealerFromString decodes a configured key (see ParseKey) and builds a sealer.
func NewSealerFromString(encoded string) (*Sealer, error) {
	key, err := ParseKey(encoded)
	if err != nil {
		return nil, err
	}
	return NewSealer(key)
}

// ParseKey decodes an encryption key given as 64 hex characters or as
// standard/URL base64 of 16, 24 or 32 bytes.
func ParseKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, errors.New("encryption key is empty")
	}
	if len(encoded) == 64 {
		if key, err := hex.DecodeString(encoded); err == nil {
			return key, nil
		}
	}
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding,
	} {
		key, err := enc.DecodeString(encoded)
		if err != nil {
			continue
		}
		switch len(key) {
		case 16, 24, 32:
			return key, nil
		}
	}
	return nil, errors.New("encryption key must be 32 bytes as hex, or 16/24/32 bytes as base64")
}

// GenerateKey returns a fresh base64 encoded 256-bit key.
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("read key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Seal encrypts one plaintext value and returns a base64-encoded payload.
func (s *Sealer) Seal(value string) (string, error) {
	if s == nil || s.aead == nil {
		return "", ErrSealerNotConfigured
	}

	// a fresh nonce per encryption under the same key
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}

	payload := s.aead.Seal(nonce, nonce, []byte(value), nil)
	return base64.RawStdEncoding.EncodeToString(payload), nil
}

// Open decrypts one previously sealed value. A wrong key or tampered payload
// is an error, never garbage plaintext.
func (s *Sealer) Open(sealed string) (string, error) {
	if s == nil || s.aead == nil {
		return "", ErrSealerNotConfigured
	}

	payload, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}

	nonceSize := s.aead.NonceSize()
	if len(payload) < nonceSize {
		return "", errors.New("sealed value is too short")
	}
	plaintext, err := s.aead.Open(nil, payload[:nonceSize], payload[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt sealed value: %w", err)
	}
	return string(plaintext), nil
}
