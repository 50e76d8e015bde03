// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stacklok/mxcp-auth/pkg/auth/crypto"
	mxerrors "github.com/stacklok/mxcp-auth/pkg/errors"
	"github.com/stacklok/mxcp-auth/pkg/logger"
)

var _ TokenStore = (*RedisStore)(nil)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// Key types under the store prefix.
const (
	KeyTypeState     = "state"
	KeyTypeCode      = "code"
	KeyTypeSession   = "session"
	KeyTypeSessionID = "session_id"
	KeyTypeRefresh   = "refresh"
)

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int

	// KeyPrefix namespaces every key, e.g. "mxcp:auth:".
	KeyPrefix string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisStore keeps records in Redis so several server replicas can share
// sessions. Native TTLs expire records; reads check expiry explicitly too.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	codec     SecretCodec
	now       func() time.Time

	closeOnce sync.Once
	closeErr  error
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig, codec SecretCodec, opts ...Option) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, mxerrors.NewConfigurationError("redis address is required", nil)
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, mxerrors.NewStorageError("failed to connect to redis", err)
	}

	return NewRedisStoreWithClient(client, cfg.KeyPrefix, codec, opts...)
}

// NewRedisStoreWithClient wraps a pre-configured client. Tests use it with
// miniredis.
func NewRedisStoreWithClient(client redis.UniversalClient, keyPrefix string, codec SecretCodec, opts ...Option) (*RedisStore, error) {
	if codec == nil {
		return nil, mxerrors.NewConfigurationError("redis store requires a secret codec", nil)
	}
	o := newStoreOptions(opts)
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		codec:     codec,
		now:       o.now,
	}, nil
}

func (s *RedisStore) key(keyType, id string) string {
	return s.keyPrefix + keyType + ":" + id
}

// ttl is the remaining lifetime of a record. Zero expiry means no TTL.
func (s *RedisStore) ttl(expiresAt time.Time) (time.Duration, bool) {
	if expiresAt.IsZero() {
		return 0, true
	}
	d := expiresAt.Sub(s.now())
	return d, d > 0
}

// Close closes the client connection.
func (s *RedisStore) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.client.Close()
	})
	return s.closeErr
}

// StoreState saves a state with a TTL matching its expiry. An already expired
// state is not written at all.
func (s *RedisStore) StoreState(ctx context.Context, state *OAuthState) error {
	rec, err := encodeState(s.codec, state)
	if err != nil {
		return err
	}
	ttl, live := s.ttl(state.ExpiresAt)
	if !live {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(KeyTypeState, crypto.HashToken(state.State)), data, ttl).Result()
	if err != nil {
		return mxerrors.NewStorageError("failed to store state", err)
	}
	if !ok {
		return ErrAlreadyExists
	}
	return nil
}

// ConsumeState reads and deletes a state atomically with GETDEL.
func (s *RedisStore) ConsumeState(ctx context.Context, state string) (*OAuthState, error) {
	data, err := s.getDel(ctx, s.key(KeyTypeState, crypto.HashToken(state)))
	if err != nil {
		return nil, err
	}
	var rec stateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, mxerrors.NewStorageError("failed to decode state", err)
	}
	st, err := rec.decode(s.codec, state)
	if err != nil {
		return nil, err
	}
	if st.Expired(s.now()) {
		return nil, ErrNotFound
	}
	return st, nil
}

// StoreAuthCode saves a code with a TTL matching its expiry.
func (s *RedisStore) StoreAuthCode(ctx context.Context, code *AuthorizationCode) error {
	ttl, live := s.ttl(code.ExpiresAt)
	if !live {
		return nil
	}
	data, err := json.Marshal(encodeCode(code))
	if err != nil {
		return fmt.Errorf("failed to marshal auth code: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(KeyTypeCode, crypto.HashToken(code.Code)), data, ttl).Result()
	if err != nil {
		return mxerrors.NewStorageError("failed to store auth code", err)
	}
	if !ok {
		return ErrAlreadyExists
	}
	return nil
}

// ConsumeAuthCode reads and deletes a code atomically with GETDEL.
func (s *RedisStore) ConsumeAuthCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	data, err := s.getDel(ctx, s.key(KeyTypeCode, crypto.HashToken(code)))
	if err != nil {
		return nil, err
	}
	var rec codeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, mxerrors.NewStorageError("failed to decode auth code", err)
	}
	c := rec.decode(code)
	if c.Expired(s.now()) {
		return nil, ErrNotFound
	}
	return c, nil
}

func (s *RedisStore) getDel(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.GetDel(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, mxerrors.NewStorageError("failed to consume record", err)
	}
	return data, nil
}

// StoreSession writes the session and its id and refresh token indexes in
// one MULTI/EXEC.
func (s *RedisStore) StoreSession(ctx context.Context, session *Session) error {
	rec, err := encodeSession(s.codec, session)
	if err != nil {
		return err
	}
	ttl, live := s.ttl(session.ExpiresAt)
	if !live {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	idKey := s.key(KeyTypeSessionID, rec.SessionID)
	owner, err := s.client.Get(ctx, idKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return mxerrors.NewStorageError("failed to check session id", err)
	}
	if owner != "" && owner != rec.AccessTokenHash {
		return ErrAlreadyExists
	}

	// drop the refresh index of the record being replaced
	var staleRefresh string
	if prev, err := s.loadRecord(ctx, rec.AccessTokenHash); err == nil && prev.RefreshTokenHash != rec.RefreshTokenHash {
		staleRefresh = prev.RefreshTokenHash
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(KeyTypeSession, rec.AccessTokenHash), data, ttl)
		pipe.Set(ctx, idKey, rec.AccessTokenHash, ttl)
		if rec.RefreshTokenHash != "" {
			pipe.Set(ctx, s.key(KeyTypeRefresh, rec.RefreshTokenHash), rec.AccessTokenHash, ttl)
		}
		if staleRefresh != "" {
			pipe.Del(ctx, s.key(KeyTypeRefresh, staleRefresh))
		}
		return nil
	})
	if err != nil {
		return mxerrors.NewStorageError("failed to store session", err)
	}
	return nil
}

func (s *RedisStore) loadRecord(ctx context.Context, hash string) (*sessionRecord, error) {
	data, err := s.client.Get(ctx, s.key(KeyTypeSession, hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, mxerrors.NewStorageError("failed to load session", err)
	}
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, mxerrors.NewStorageError("failed to decode session", err)
	}
	return &rec, nil
}

func (s *RedisStore) loadByHash(ctx context.Context, hash string) (*Session, error) {
	rec, err := s.loadRecord(ctx, hash)
	if err != nil {
		return nil, err
	}
	if expired(fromMillis(rec.ExpiresAt), s.now()) {
		if err := s.deleteRecord(ctx, rec); err != nil {
			logger.Warnw("failed to delete expired session", "error", err)
		}
		return nil, ErrNotFound
	}
	return rec.decode(s.codec)
}

// resolve follows an index key to the access token hash it points at.
func (s *RedisStore) resolve(ctx context.Context, indexKey string) (string, error) {
	hash, err := s.client.Get(ctx, indexKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", mxerrors.NewStorageError("failed to resolve session index", err)
	}
	return hash, nil
}

// LoadSessionByToken looks a session up by access token hash.
func (s *RedisStore) LoadSessionByToken(ctx context.Context, accessToken string) (*Session, error) {
	return s.loadByHash(ctx, crypto.HashToken(accessToken))
}

// LoadSessionByID looks a session up through the session id index.
func (s *RedisStore) LoadSessionByID(ctx context.Context, id string) (*Session, error) {
	hash, err := s.resolve(ctx, s.key(KeyTypeSessionID, id))
	if err != nil {
		return nil, err
	}
	return s.loadByHash(ctx, hash)
}

// LoadSessionByRefreshToken looks a session up through the refresh index.
func (s *RedisStore) LoadSessionByRefreshToken(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, ErrNotFound
	}
	hash, err := s.resolve(ctx, s.key(KeyTypeRefresh, crypto.HashToken(refreshToken)))
	if err != nil {
		return nil, err
	}
	return s.loadByHash(ctx, hash)
}

// DeleteSessionByToken removes a session and its indexes.
func (s *RedisStore) DeleteSessionByToken(ctx context.Context, accessToken string) error {
	rec, err := s.loadRecord(ctx, crypto.HashToken(accessToken))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.deleteRecord(ctx, rec)
}

// DeleteSessionByID removes a session by id.
func (s *RedisStore) DeleteSessionByID(ctx context.Context, id string) error {
	hash, err := s.resolve(ctx, s.key(KeyTypeSessionID, id))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	rec, err := s.loadRecord(ctx, hash)
	if errors.Is(err, ErrNotFound) {
		return s.client.Del(ctx, s.key(KeyTypeSessionID, id)).Err()
	}
	if err != nil {
		return err
	}
	return s.deleteRecord(ctx, rec)
}

func (s *RedisStore) deleteRecord(ctx context.Context, rec *sessionRecord) error {
	keys := []string{
		s.key(KeyTypeSession, rec.AccessTokenHash),
		s.key(KeyTypeSessionID, rec.SessionID),
	}
	if rec.RefreshTokenHash != "" {
		keys = append(keys, s.key(KeyTypeRefresh, rec.RefreshTokenHash))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return mxerrors.NewStorageError("failed to delete session", err)
	}
	return nil
}

// TouchSession rewrites the session with the new access time, keeping its TTL.
func (s *RedisStore) TouchSession(ctx context.Context, accessToken string, at time.Time) error {
	hash := crypto.HashToken(accessToken)
	rec, err := s.loadRecord(ctx, hash)
	if err != nil {
		return err
	}
	rec.LastAccessedAt = toMillis(at)
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	err = s.client.SetArgs(ctx, s.key(KeyTypeSession, hash), data, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return mxerrors.NewStorageError("failed to touch session", err)
	}
	return nil
}

// CleanupExpired scans for records whose stored expiry has passed. Redis TTLs
// remove most of them; the scan catches clock skew between replicas.
func (s *RedisStore) CleanupExpired(ctx context.Context) (CleanupCounts, error) {
	var counts CleanupCounts
	now := toMillis(s.now())

	for _, t := range []struct {
		keyType string
		count   *int
	}{
		{KeyTypeState, &counts.States},
		{KeyTypeCode, &counts.AuthCodes},
		{KeyTypeSession, &counts.Sessions},
	} {
		iter := s.client.Scan(ctx, 0, s.key(t.keyType, "*"), 100).Iterator()
		for iter.Next(ctx) {
			key := iter.Val()
			data, err := s.client.Get(ctx, key).Bytes()
			if err != nil {
				continue
			}
			var probe struct {
				ExpiresAt int64 `json:"expires_at"`
			}
			if json.Unmarshal(data, &probe) != nil || probe.ExpiresAt == 0 || probe.ExpiresAt > now {
				continue
			}

			if t.keyType == KeyTypeSession {
				var rec sessionRecord
				if err := json.Unmarshal(data, &rec); err != nil {
					continue
				}
				if err := s.deleteRecord(ctx, &rec); err != nil {
					return counts, err
				}
			} else if err := s.client.Del(ctx, key).Err(); err != nil {
				return counts, mxerrors.NewStorageError("failed to delete expired record", err)
			}
			*t.count++
		}
		if err := iter.Err(); err != nil {
			return counts, mxerrors.NewStorageError("failed to scan records", err)
		}
	}
	return counts, nil
}
