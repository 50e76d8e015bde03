// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/zalando/go-keyring"

	"github.com/stacklok/mxcp-auth/pkg/auth/crypto"
	mxerrors "github.com/stacklok/mxcp-auth/pkg/errors"
	"github.com/stacklok/mxcp-auth/pkg/logger"
)

// secretEnv holds the secrets that may only come from the environment.
// Set values win over the file.
type secretEnv struct {
	ClientSecret  string `env:"CLIENT_SECRET"`
	EncryptionKey string `env:"ENCRYPTION_KEY"`
	RedisPassword string `env:"REDIS_PASSWORD"`
}

func overlaySecrets(cfg *Config, environ map[string]string) error {
	var s secretEnv
	opts := env.Options{Prefix: EnvPrefix + "_"}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&s, opts); err != nil {
		return mxerrors.NewConfigurationError("failed to read secrets from the environment", err)
	}

	if s.ClientSecret != "" {
		cfg.Provider.ClientSecret = s.ClientSecret
	}
	if s.EncryptionKey != "" {
		cfg.Persistence.EncryptionKey = s.EncryptionKey
	}
	if s.RedisPassword != "" {
		cfg.Persistence.RedisPassword = s.RedisPassword
	}
	return nil
}

// KeyringStore reads and writes keyring secrets.
type KeyringStore interface {
	Get(service, user string) (string, error)
	Set(service, user, password string) error
}

// OSKeyring is the operating system keyring.
type OSKeyring struct{}

// Get reads a secret.
func (OSKeyring) Get(service, user string) (string, error) {
	return keyring.Get(service, user)
}

// Set stores a secret.
func (OSKeyring) Set(service, user, password string) error {
	return keyring.Set(service, user, password)
}

// resolveEncryptionKey loads the key from the keyring when configured to,
// generating and saving one on first use.
func (c *Config) resolveEncryptionKey(store KeyringStore) error {
	p := &c.Persistence
	switch p.EncryptionKeySource {
	case KeySourceEnv, "":
		return nil
	case KeySourceKeyring:
	default:
		return mxerrors.NewConfigurationError(fmt.Sprintf("unsupported encryption_key_source %q", p.EncryptionKeySource), nil)
	}

	if p.EncryptionKey != "" {
		logger.Warn("encryption key is set explicitly; ignoring the keyring")
		return nil
	}
	if store == nil {
		store = OSKeyring{}
	}

	key, err := store.Get(p.KeyringService, p.KeyringUser)
	if err == nil {
		p.EncryptionKey = key
		return nil
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		return mxerrors.NewConfigurationError("failed to read encryption key from the OS keyring", err)
	}

	key, err = crypto.GenerateKey()
	if err != nil {
		return mxerrors.NewInternalError("failed to generate encryption key", err)
	}
	if err := store.Set(p.KeyringService, p.KeyringUser, key); err != nil {
		return mxerrors.NewConfigurationError("failed to save encryption key to the OS keyring", err)
	}
	logger.Infow("generated a new encryption key in the OS keyring", "service", p.KeyringService, "user", p.KeyringUser)
	p.EncryptionKey = key
	return nil
}
