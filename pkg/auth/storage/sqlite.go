// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	sqlite3 "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/stacklok/mxcp-auth/pkg/auth/crypto"
	mxerrors "github.com/stacklok/mxcp-auth/pkg/errors"
	"github.com/stacklok/mxcp-auth/pkg/logger"
)

var _ TokenStore = (*SQLiteStore)(nil)

// lockTimeout is the maximum time to wait for the database lock file.
const lockTimeout = 1 * time.Second

// sqlitePragmas puts the database in WAL mode so reads proceed while the
// writer holds the write lock.
const sqlitePragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"

// SQLiteStore persists records in a SQLite file. Every write goes through one
// writer goroutine; reads use the connection pool concurrently.
type SQLiteStore struct {
	db    *sql.DB
	codec SecretCodec
	now   func() time.Time
	lock  *flock.Flock

	// mu guards closed and job submission so nothing is sent after Close.
	mu         sync.RWMutex
	closed     bool
	jobs       chan writeJob
	writerDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

type writeJob struct {
	ctx  context.Context
	fn   func(ctx context.Context, db *sql.DB) error
	done chan error
}

// NewSQLiteStore opens or creates the database at path, applies migrations and
// takes an exclusive lock file so a second process cannot write to it.
func NewSQLiteStore(ctx context.Context, path string, codec SecretCodec, opts ...Option) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, mxerrors.NewConfigurationError("sqlite path is required", nil)
	}
	if codec == nil {
		return nil, mxerrors.NewConfigurationError("sqlite store requires a secret codec", nil)
	}
	o := newStoreOptions(opts)

	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o700); err != nil {
		return nil, mxerrors.NewStorageError("failed to create database directory", err)
	}

	fileLock := flock.New(cleanPath + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	locked, err := fileLock.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil || !locked {
		return nil, mxerrors.NewStorageError(
			fmt.Sprintf("token store %s is in use by another process", cleanPath), err)
	}

	db, err := sql.Open("sqlite", cleanPath+"?"+sqlitePragmas)
	if err != nil {
		_ = fileLock.Unlock()
		return nil, mxerrors.NewStorageError("failed to open sqlite database", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = fileLock.Unlock()
		return nil, mxerrors.NewStorageError("failed to open sqlite database", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		_ = fileLock.Unlock()
		return nil, mxerrors.NewStorageError("failed to migrate sqlite database", err)
	}

	s := &SQLiteStore{
		db:         db,
		codec:      codec,
		now:        o.now,
		lock:       fileLock,
		jobs:       make(chan writeJob),
		writerDone: make(chan struct{}),
	}
	go s.writeLoop()

	logger.Debugw("opened sqlite token store", "path", cleanPath)
	return s, nil
}

func (s *SQLiteStore) writeLoop() {
	defer close(s.writerDone)
	for job := range s.jobs {
		job.done <- job.fn(job.ctx, s.db)
	}
}

// write runs fn on the writer goroutine and waits for its result.
func (s *SQLiteStore) write(ctx context.Context, fn func(ctx context.Context, db *sql.DB) error) error {
	job := writeJob{ctx: ctx, fn: fn, done: make(chan error, 1)}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	select {
	case s.jobs <- job:
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	s.mu.RUnlock()

	return <-job.done
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close drains the writer, closes the database and releases the lock file.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.jobs)
		s.mu.Unlock()

		<-s.writerDone
		s.closeErr = errors.Join(s.db.Close(), s.lock.Unlock())
	})
	return s.closeErr
}

// StoreState saves a pending OAuth state.
func (s *SQLiteStore) StoreState(ctx context.Context, state *OAuthState) error {
	rec, err := encodeState(s.codec, state)
	if err != nil {
		return err
	}
	scopes, err := marshalScopes(rec.Scopes)
	if err != nil {
		return err
	}

	err = s.write(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO states (
				state, client_id, redirect_uri, callback_url, client_state,
				code_challenge, code_challenge_method, code_verifier, provider,
				scopes, expires_at, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			crypto.HashToken(state.State), rec.ClientID, rec.RedirectURI, rec.CallbackURL, rec.ClientState,
			rec.CodeChallenge, rec.CodeChallengeMethod, rec.CodeVerifier, rec.Provider,
			scopes, rec.ExpiresAt, rec.CreatedAt,
		)
		return err
	})
	return s.wrapWriteError("storing state", err)
}

// ConsumeState deletes and returns a state in one statement.
func (s *SQLiteStore) ConsumeState(ctx context.Context, state string) (*OAuthState, error) {
	var (
		rec    stateRecord
		scopes string
	)
	err := s.write(ctx, func(ctx context.Context, db *sql.DB) error {
		return db.QueryRowContext(ctx, `
			DELETE FROM states WHERE state = ?
			RETURNING client_id, redirect_uri, callback_url, client_state,
				COALESCE(code_challenge, ''), COALESCE(code_challenge_method, ''),
				code_verifier, provider, scopes, expires_at, created_at`,
			crypto.HashToken(state),
		).Scan(&rec.ClientID, &rec.RedirectURI, &rec.CallbackURL, &rec.ClientState,
			&rec.CodeChallenge, &rec.CodeChallengeMethod,
			&rec.CodeVerifier, &rec.Provider, &scopes, &rec.ExpiresAt, &rec.CreatedAt)
	})
	if err != nil {
		return nil, s.wrapReadError("consuming state", err)
	}

	if rec.Scopes, err = unmarshalScopes(scopes); err != nil {
		return nil, err
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

// StoreAuthCode saves an authorization code.
func (s *SQLiteStore) StoreAuthCode(ctx context.Context, code *AuthorizationCode) error {
	rec := encodeCode(code)
	scopes, err := marshalScopes(rec.Scopes)
	if err != nil {
		return err
	}

	err = s.write(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO auth_codes (
				code, session_id, client_id, redirect_uri, scopes,
				code_challenge, code_challenge_method, expires_at, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			crypto.HashToken(code.Code), rec.SessionID, rec.ClientID, rec.RedirectURI, scopes,
			rec.CodeChallenge, rec.CodeChallengeMethod, rec.ExpiresAt, rec.CreatedAt,
		)
		return err
	})
	return s.wrapWriteError("storing auth code", err)
}

// ConsumeAuthCode deletes and returns a code in one statement.
func (s *SQLiteStore) ConsumeAuthCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	var (
		rec    codeRecord
		scopes string
	)
	err := s.write(ctx, func(ctx context.Context, db *sql.DB) error {
		return db.QueryRowContext(ctx, `
			DELETE FROM auth_codes WHERE code = ?
			RETURNING session_id, client_id, redirect_uri, scopes,
				code_challenge, code_challenge_method, expires_at, created_at`,
			crypto.HashToken(code),
		).Scan(&rec.SessionID, &rec.ClientID, &rec.RedirectURI, &scopes,
			&rec.CodeChallenge, &rec.CodeChallengeMethod, &rec.ExpiresAt, &rec.CreatedAt)
	})
	if err != nil {
		return nil, s.wrapReadError("consuming auth code", err)
	}

	if rec.Scopes, err = unmarshalScopes(scopes); err != nil {
		return nil, err
	}
	c := rec.decode(code)
	if c.Expired(s.now()) {
		return nil, ErrNotFound
	}
	return c, nil
}

// StoreSession inserts or replaces a session keyed by access token hash.
func (s *SQLiteStore) StoreSession(ctx context.Context, session *Session) error {
	rec, err := encodeSession(s.codec, session)
	if err != nil {
		return err
	}
	scopes, err := marshalScopes(rec.Scopes)
	if err != nil {
		return err
	}
	var userInfo sql.NullString
	if rec.UserInfo != nil {
		b, err := json.Marshal(rec.UserInfo)
		if err != nil {
			return fmt.Errorf("failed to encode user info: %w", err)
		}
		userInfo = sql.NullString{String: string(b), Valid: true}
	}

	err = s.write(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO sessions (
				access_token_hash, access_token_encrypted, refresh_token_hash, refresh_token_encrypted,
				session_id, client_id, provider, user_info, scopes,
				provider_access_token, provider_refresh_token, provider_expires_at,
				expires_at, created_at, last_accessed_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (access_token_hash) DO UPDATE SET
				access_token_encrypted = excluded.access_token_encrypted,
				refresh_token_hash = excluded.refresh_token_hash,
				refresh_token_encrypted = excluded.refresh_token_encrypted,
				session_id = excluded.session_id,
				client_id = excluded.client_id,
				provider = excluded.provider,
				user_info = excluded.user_info,
				scopes = excluded.scopes,
				provider_access_token = excluded.provider_access_token,
				provider_refresh_token = excluded.provider_refresh_token,
				provider_expires_at = excluded.provider_expires_at,
				expires_at = excluded.expires_at,
				created_at = excluded.created_at,
				last_accessed_at = excluded.last_accessed_at`,
			rec.AccessTokenHash, rec.AccessTokenEncrypted, nullIfEmpty(rec.RefreshTokenHash), rec.RefreshTokenEncrypted,
			rec.SessionID, rec.ClientID, rec.Provider, userInfo, scopes,
			rec.ProviderAccessToken, rec.ProviderRefreshToken, rec.ProviderExpiresAt,
			rec.ExpiresAt, rec.CreatedAt, rec.LastAccessedAt,
		)
		return err
	})
	return s.wrapWriteError("storing session", err)
}

const sessionColumns = `access_token_hash, access_token_encrypted,
	COALESCE(refresh_token_hash, ''), COALESCE(refresh_token_encrypted, ''),
	session_id, client_id, provider, COALESCE(user_info, ''), scopes,
	COALESCE(provider_access_token, ''), COALESCE(provider_refresh_token, ''),
	COALESCE(provider_expires_at, 0), expires_at, created_at, last_accessed_at`

// LoadSessionByToken looks a session up by access token hash.
func (s *SQLiteStore) LoadSessionByToken(ctx context.Context, accessToken string) (*Session, error) {
	return s.loadSession(ctx, "access_token_hash", crypto.HashToken(accessToken))
}

// LoadSessionByID looks a session up by id.
func (s *SQLiteStore) LoadSessionByID(ctx context.Context, id string) (*Session, error) {
	return s.loadSession(ctx, "session_id", id)
}

// LoadSessionByRefreshToken looks a session up by refresh token hash.
func (s *SQLiteStore) LoadSessionByRefreshToken(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, ErrNotFound
	}
	return s.loadSession(ctx, "refresh_token_hash", crypto.HashToken(refreshToken))
}

// loadSession reads on the pool. column is always one of the constant names
// above, never user input.
func (s *SQLiteStore) loadSession(ctx context.Context, column, value string) (*Session, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var (
		rec              sessionRecord
		userInfo, scopes string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE `+column+` = ?`, value,
	).Scan(&rec.AccessTokenHash, &rec.AccessTokenEncrypted,
		&rec.RefreshTokenHash, &rec.RefreshTokenEncrypted,
		&rec.SessionID, &rec.ClientID, &rec.Provider, &userInfo, &scopes,
		&rec.ProviderAccessToken, &rec.ProviderRefreshToken,
		&rec.ProviderExpiresAt, &rec.ExpiresAt, &rec.CreatedAt, &rec.LastAccessedAt)
	if err != nil {
		return nil, s.wrapReadError("loading session", err)
	}

	now := s.now()
	if expired(fromMillis(rec.ExpiresAt), now) {
		err := s.write(ctx, func(ctx context.Context, db *sql.DB) error {
			_, err := db.ExecContext(ctx,
				`DELETE FROM sessions WHERE access_token_hash = ? AND expires_at > 0 AND expires_at <= ?`,
				rec.AccessTokenHash, toMillis(now))
			return err
		})
		if err != nil {
			logger.Warnw("failed to delete expired session", "error", err)
		}
		return nil, ErrNotFound
	}

	if userInfo != "" {
		rec.UserInfo = &UserInfoSnapshot{}
		if err := json.Unmarshal([]byte(userInfo), rec.UserInfo); err != nil {
			return nil, fmt.Errorf("failed to decode user info: %w", err)
		}
	}
	if rec.Scopes, err = unmarshalScopes(scopes); err != nil {
		return nil, err
	}
	return rec.decode(s.codec)
}

// DeleteSessionByToken removes the session for an access token.
func (s *SQLiteStore) DeleteSessionByToken(ctx context.Context, accessToken string) error {
	return s.deleteSession(ctx, "access_token_hash", crypto.HashToken(accessToken))
}

// DeleteSessionByID removes the session with the given id.
func (s *SQLiteStore) DeleteSessionByID(ctx context.Context, id string) error {
	return s.deleteSession(ctx, "session_id", id)
}

func (s *SQLiteStore) deleteSession(ctx context.Context, column, value string) error {
	err := s.write(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE `+column+` = ?`, value)
		return err
	})
	return s.wrapWriteError("deleting session", err)
}

// TouchSession records the last access time.
func (s *SQLiteStore) TouchSession(ctx context.Context, accessToken string, at time.Time) error {
	var affected int64
	err := s.write(ctx, func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			`UPDATE sessions SET last_accessed_at = ? WHERE access_token_hash = ?`,
			toMillis(at), crypto.HashToken(accessToken))
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return s.wrapWriteError("touching session", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CleanupExpired deletes expired rows from every table in one transaction.
func (s *SQLiteStore) CleanupExpired(ctx context.Context) (CleanupCounts, error) {
	var counts CleanupCounts
	now := toMillis(s.now())

	err := s.write(ctx, func(ctx context.Context, db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		defer rollback(tx)

		for _, t := range []struct {
			table string
			count *int
		}{
			{"states", &counts.States},
			{"auth_codes", &counts.AuthCodes},
			{"sessions", &counts.Sessions},
		} {
			res, err := tx.ExecContext(ctx,
				`DELETE FROM `+t.table+` WHERE expires_at > 0 AND expires_at <= ?`, now)
			if err != nil {
				return fmt.Errorf("cleaning %s: %w", t.table, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			*t.count = int(n)
		}
		return tx.Commit()
	})
	if err != nil {
		return CleanupCounts{}, s.wrapWriteError("cleaning up expired records", err)
	}
	return counts, nil
}

func (*SQLiteStore) wrapWriteError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrClosed), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case isUniqueViolation(err):
		return ErrAlreadyExists
	}
	return mxerrors.NewStorageError(op, err)
}

func (*SQLiteStore) wrapReadError(op string, err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case errors.Is(err, ErrClosed), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return mxerrors.NewStorageError(op, err)
}

// isUniqueViolation checks for a SQLite UNIQUE or PRIMARY KEY constraint violation.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite3.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func nullIfEmpty(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

// rollback rolls back tx, ignoring errors (tx may already be committed).
func rollback(tx *sql.Tx) { _ = tx.Rollback() }
