// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"github.com/stacklok/mxcp-auth/pkg/auth/crypto"
	mxerrors "github.com/stacklok/mxcp-auth/pkg/errors"
	"github.com/stacklok/mxcp-auth/pkg/logger"
)

// SecretCodec encrypts secrets before they reach a persistent store.
// Empty values pass through unchanged.
type SecretCodec interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SealerCodec encrypts with AES-256-GCM.
type SealerCodec struct {
	sealer *crypto.Sealer
}

// NewSealerCodec creates a codec from a base64 encoded 32 byte key.
func NewSealerCodec(key string) (*SealerCodec, error) {
	sealer, err := crypto.NewSealerFromString(key)
	if err != nil {
		return nil, mxerrors.NewConfigurationError("invalid encryption key", err)
	}
	return &SealerCodec{sealer: sealer}, nil
}

// Encrypt seals plaintext.
func (c *SealerCodec) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	return c.sealer.Seal(plaintext)
}

// Decrypt opens a sealed value. A failure is a decryption error, never a
// not-found.
func (c *SealerCodec) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	plaintext, err := c.sealer.Open(ciphertext)
	if err != nil {
		return "", mxerrors.NewDecryptionError("failed to decrypt stored secret", err)
	}
	return plaintext, nil
}

// PlaintextCodec stores secrets as-is. Only for development setups that
// explicitly opted in.
type PlaintextCodec struct{}

// Encrypt returns plaintext unchanged.
func (PlaintextCodec) Encrypt(plaintext string) (string, error) { return plaintext, nil }

// Decrypt returns ciphertext unchanged.
func (PlaintextCodec) Decrypt(ciphertext string) (string, error) { return ciphertext, nil }

// NewSecretCodec picks the codec for a persistent store. Without a key the
// caller must opt in to plaintext storage.
func NewSecretCodec(key string, allowPlaintext bool) (SecretCodec, error) {
	if key != "" {
		return NewSealerCodec(key)
	}
	if !allowPlaintext {
		return nil, mxerrors.NewConfigurationError(
			"an encryption key is required to persist tokens; set one or allow plaintext storage explicitly", nil)
	}
	logger.Warn("token secrets will be stored unencrypted")
	return PlaintextCodec{}, nil
}
