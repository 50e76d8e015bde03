// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"fmt"

	mxerrors "github.com/stacklok/mxcp-auth/pkg/errors"
)

// Type selects the token store backend.
type Type string

const (
	// TypeSQLite persists to a local SQLite file (default).
	TypeSQLite Type = "sqlite"

	// TypeMemory keeps records in process memory.
	TypeMemory Type = "memory"

	// TypeRedis shares records between replicas through Redis.
	TypeRedis Type = "redis"
)

// Persistent reports whether the backend writes secrets outside the process
// and therefore needs a SecretCodec.
func (t Type) Persistent() bool {
	return t != TypeMemory
}

// Config configures NewTokenStore.
type Config struct {
	Type  Type
	Path  string
	Redis RedisConfig
}

// NewTokenStore builds the store selected by cfg.Type. codec may be nil for
// the memory store.
func NewTokenStore(ctx context.Context, cfg Config, codec SecretCodec, opts ...Option) (TokenStore, error) {
	switch cfg.Type {
	case TypeSQLite, "":
		return NewSQLiteStore(ctx, cfg.Path, codec, opts...)
	case TypeMemory:
		return NewMemoryStore(opts...), nil
	case TypeRedis:
		return NewRedisStore(ctx, cfg.Redis, codec, opts...)
	default:
		return nil, mxerrors.NewConfigurationError(fmt.Sprintf("unsupported persistence type %q", cfg.Type), nil)
	}
}
