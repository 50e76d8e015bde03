// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/mxcp-auth/pkg/auth/crypto"
	mxerrors "github.com/stacklok/mxcp-auth/pkg/errors"
)

func TestSQLiteStore_NoPlaintextSecrets(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	s, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "auth.db"), testCodec(t), WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	sess := newTestSession(clock, "secret-session")
	require.NoError(t, s.StoreSession(ctx, sess))
	require.NoError(t, s.StoreState(ctx, newTestState(clock, "secret-state")))

	var dump strings.Builder
	for _, table := range []string{"sessions", "states"} {
		rows, err := s.db.QueryContext(ctx, `SELECT * FROM `+table)
		require.NoError(t, err)
		cols, err := rows.Columns()
		require.NoError(t, err)
		for rows.Next() {
			vals := make([]sql.NullString, len(cols))
			ptrs := make([]any, len(cols))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			require.NoError(t, rows.Scan(ptrs...))
			for _, v := range vals {
				dump.WriteString(v.String)
				dump.WriteString("|")
			}
		}
		require.NoError(t, rows.Err())
		_ = rows.Close()
	}

	raw := dump.String()
	for _, secret := range []string{
		sess.AccessToken, sess.RefreshToken, sess.ProviderAccessToken, sess.ProviderRefreshToken,
		"upstream-verifier", "secret-state",
	} {
		assert.NotContains(t, raw, secret)
	}
	assert.Contains(t, raw, crypto.HashToken(sess.AccessToken))
}

func TestSQLiteStore_SchemaAfterMigrations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "auth.db"), PlaintextCodec{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	columns := func(table string) []string {
		rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
		require.NoError(t, err)
		defer rows.Close()
		var names []string
		for rows.Next() {
			var n string
			require.NoError(t, rows.Scan(&n))
			names = append(names, n)
		}
		return names
	}

	assert.Subset(t, columns("states"), []string{
		"state", "client_id", "redirect_uri", "code_challenge", "code_challenge_method", "scopes",
		"expires_at", "created_at", "callback_url", "provider", "code_verifier", "client_state",
	})
	assert.Subset(t, columns("auth_codes"), []string{
		"code", "session_id", "redirect_uri", "scopes", "expires_at", "created_at", "client_id",
	})
	assert.Subset(t, columns("sessions"), []string{
		"access_token_hash", "access_token_encrypted", "refresh_token_hash", "refresh_token_encrypted",
		"session_id", "provider", "user_info", "scopes", "provider_access_token", "provider_refresh_token",
		"provider_expires_at", "expires_at", "created_at", "client_id", "last_accessed_at",
	})
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	path := filepath.Join(t.TempDir(), "auth.db")
	codec := testCodec(t)

	s, err := NewSQLiteStore(ctx, path, codec, WithClock(clock.Now))
	require.NoError(t, err)
	sess := newTestSession(clock, "durable")
	require.NoError(t, s.StoreSession(ctx, sess))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(ctx, path, codec, WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.LoadSessionByToken(ctx, sess.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, sess.ProviderAccessToken, got.ProviderAccessToken)
}

func TestSQLiteStore_WrongKeyIsDecryptionError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	path := filepath.Join(t.TempDir(), "auth.db")

	s, err := NewSQLiteStore(ctx, path, testCodec(t), WithClock(clock.Now))
	require.NoError(t, err)
	sess := newTestSession(clock, "locked")
	require.NoError(t, s.StoreSession(ctx, sess))
	require.NoError(t, s.Close())

	other, err := NewSQLiteStore(ctx, path, testCodec(t), WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = other.Close() })

	_, err = other.LoadSessionByToken(ctx, sess.AccessToken)
	require.Error(t, err)
	assert.True(t, mxerrors.IsDecryption(err), "got %v", err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_SecondOpenIsLockedOut(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "auth.db")

	s, err := NewSQLiteStore(ctx, path, PlaintextCodec{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = NewSQLiteStore(ctx, path, PlaintextCodec{})
	require.Error(t, err)
	assert.True(t, mxerrors.IsStorage(err))
	assert.Contains(t, err.Error(), "in use")
}

func TestNewSQLiteStore_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewSQLiteStore(context.Background(), "  ", PlaintextCodec{})
	assert.True(t, mxerrors.IsConfiguration(err))

	_, err = NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "x.db"), nil)
	assert.True(t, mxerrors.IsConfiguration(err))
}
