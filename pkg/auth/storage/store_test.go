// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/mxcp-auth/pkg/auth/crypto"
)

// fakeClock is a settable clock shared by a store and its test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testCodec(t *testing.T) SecretCodec {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	codec, err := NewSealerCodec(key)
	require.NoError(t, err)
	return codec
}

type storeFactory func(t *testing.T, clock *fakeClock) TokenStore

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, clock *fakeClock) TokenStore {
			t.Helper()
			s := NewMemoryStore(WithClock(clock.Now), WithCleanupInterval(0))
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"sqlite": func(t *testing.T, clock *fakeClock) TokenStore {
			t.Helper()
			s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "auth.db"), testCodec(t), WithClock(clock.Now))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"redis": func(t *testing.T, clock *fakeClock) TokenStore {
			t.Helper()
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			s, err := NewRedisStoreWithClient(client, "mxcp:test:", testCodec(t), WithClock(clock.Now))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

// forEachBackend runs fn against every TokenStore implementation.
func forEachBackend(t *testing.T, fn func(t *testing.T, s TokenStore, clock *fakeClock)) {
	t.Helper()
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			clock := newFakeClock()
			fn(t, factory(t, clock), clock)
		})
	}
}

func newTestState(clock *fakeClock, state string) *OAuthState {
	return &OAuthState{
		State:               state,
		ClientID:            "client-1",
		RedirectURI:         "http://127.0.0.1:3000/cb",
		CallbackURL:         "https://mxcp.example.com/auth/callback",
		ClientState:         "client-state",
		CodeChallenge:       "challenge",
		CodeChallengeMethod: "S256",
		CodeVerifier:        "upstream-verifier",
		Provider:            "github",
		Scopes:              []string{"read", "write"},
		CreatedAt:           clock.Now(),
		ExpiresAt:           clock.Now().Add(10 * time.Minute),
	}
}

func newTestSession(clock *fakeClock, id string) *Session {
	return &Session{
		SessionID:    id,
		AccessToken:  "mxcp-at-" + id,
		RefreshToken: "mxcp-rt-" + id,
		ClientID:     "client-1",
		Provider:     "github",
		UserInfo: &UserInfoSnapshot{
			Provider: "github",
			UserID:   "42",
			Username: "octocat",
			Email:    "octo@example.com",
		},
		ProviderAccessToken:  "gho_" + id,
		ProviderRefreshToken: "ghr_" + id,
		ProviderExpiresAt:    clock.Now().Add(8 * time.Hour),
		ExpiresAt:            clock.Now().Add(time.Hour),
		Scopes:               []string{"user:email"},
		CreatedAt:            clock.Now(),
	}
}

func TestTokenStore_StateRoundTrip(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, s TokenStore, clock *fakeClock) {
		ctx := context.Background()
		want := newTestState(clock, "state-abc")
		require.NoError(t, s.StoreState(ctx, want))

		got, err := s.ConsumeState(ctx, "state-abc")
		require.NoError(t, err)
		assert.Equal(t, want, got)

		_, err = s.ConsumeState(ctx, "state-abc")
		assert.ErrorIs(t, err, ErrNotFound, "state is single use")

		_, err = s.ConsumeState(ctx, "never-stored")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestTokenStore_StateExpiry(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, s TokenStore, clock *fakeClock) {
		ctx := context.Background()
		require.NoError(t, s.StoreState(ctx, newTestState(clock, "soon-expired")))

		immediate := newTestState(clock, "immediate")
		immediate.ExpiresAt = clock.Now()
		require.NoError(t, s.StoreState(ctx, immediate))
		_, err := s.ConsumeState(ctx, "immediate")
		assert.ErrorIs(t, err, ErrNotFound, "a zero ttl state is already expired")

		clock.Advance(10*time.Minute + time.Second)
		_, err = s.ConsumeState(ctx, "soon-expired")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestTokenStore_AuthCode(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, s TokenStore, clock *fakeClock) {
		ctx := context.Background()
		want := &AuthorizationCode{
			Code:                "code-1",
			SessionID:           "session-1",
			ClientID:            "client-1",
			RedirectURI:         "http://127.0.0.1:3000/cb",
			Scopes:              []string{"read"},
			CodeChallenge:       "challenge",
			CodeChallengeMethod: "S256",
			CreatedAt:           clock.Now(),
			ExpiresAt:           clock.Now().Add(10 * time.Minute),
		}
		require.NoError(t, s.StoreAuthCode(ctx, want))
		assert.ErrorIs(t, s.StoreAuthCode(ctx, want), ErrAlreadyExists)

		got, err := s.ConsumeAuthCode(ctx, "code-1")
		require.NoError(t, err)
		assert.Equal(t, want, got)

		_, err = s.ConsumeAuthCode(ctx, "code-1")
		assert.ErrorIs(t, err, ErrNotFound)

		expiring := *want
		expiring.Code = "code-2"
		require.NoError(t, s.StoreAuthCode(ctx, &expiring))
		clock.Advance(11 * time.Minute)
		_, err = s.ConsumeAuthCode(ctx, "code-2")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestTokenStore_ConcurrentConsumeHasOneWinner(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, s TokenStore, clock *fakeClock) {
		ctx := context.Background()
		require.NoError(t, s.StoreState(ctx, newTestState(clock, "contested")))
		require.NoError(t, s.StoreAuthCode(ctx, &AuthorizationCode{
			Code: "contested", SessionID: "s", ExpiresAt: clock.Now().Add(time.Minute),
		}))

		const workers = 16
		var stateWins, codeWins atomic.Int32
		var wg sync.WaitGroup
		for range workers {
			wg.Add(2)
			go func() {
				defer wg.Done()
				if _, err := s.ConsumeState(ctx, "contested"); err == nil {
					stateWins.Add(1)
				} else {
					assert.ErrorIs(t, err, ErrNotFound)
				}
			}()
			go func() {
				defer wg.Done()
				if _, err := s.ConsumeAuthCode(ctx, "contested"); err == nil {
					codeWins.Add(1)
				} else {
					assert.ErrorIs(t, err, ErrNotFound)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), stateWins.Load())
		assert.Equal(t, int32(1), codeWins.Load())
	})
}

func TestTokenStore_SessionLookups(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, s TokenStore, clock *fakeClock) {
		ctx := context.Background()
		want := newTestSession(clock, "s1")
		require.NoError(t, s.StoreSession(ctx, want))

		byToken, err := s.LoadSessionByToken(ctx, want.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, want, byToken)

		byID, err := s.LoadSessionByID(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, want, byID)

		byRefresh, err := s.LoadSessionByRefreshToken(ctx, want.RefreshToken)
		require.NoError(t, err)
		assert.Equal(t, want, byRefresh)

		for _, load := range []func() (*Session, error){
			func() (*Session, error) { return s.LoadSessionByToken(ctx, "unknown") },
			func() (*Session, error) { return s.LoadSessionByID(ctx, "unknown") },
			func() (*Session, error) { return s.LoadSessionByRefreshToken(ctx, "unknown") },
			func() (*Session, error) { return s.LoadSessionByRefreshToken(ctx, "") },
		} {
			_, err := load()
			assert.ErrorIs(t, err, ErrNotFound)
		}
	})
}

func TestTokenStore_SessionUpsertAndUniqueID(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, s TokenStore, clock *fakeClock) {
		ctx := context.Background()
		sess := newTestSession(clock, "s1")
		require.NoError(t, s.StoreSession(ctx, sess))

		updated := sess.Clone()
		updated.UserInfo.Username = "renamed"
		updated.RefreshToken = "rotated"
		require.NoError(t, s.StoreSession(ctx, updated))

		got, err := s.LoadSessionByToken(ctx, sess.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.UserInfo.Username)

		_, err = s.LoadSessionByRefreshToken(ctx, "rotated")
		assert.NoError(t, err)

		other := newTestSession(clock, "s1")
		other.AccessToken = "different-token"
		assert.ErrorIs(t, s.StoreSession(ctx, other), ErrAlreadyExists)
	})
}

func TestTokenStore_SessionExpiryAndDelete(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, s TokenStore, clock *fakeClock) {
		ctx := context.Background()
		short := newTestSession(clock, "short")
		long := newTestSession(clock, "long")
		long.ExpiresAt = clock.Now().Add(24 * time.Hour)
		require.NoError(t, s.StoreSession(ctx, short))
		require.NoError(t, s.StoreSession(ctx, long))

		clock.Advance(time.Hour)
		_, err := s.LoadSessionByToken(ctx, short.AccessToken)
		assert.ErrorIs(t, err, ErrNotFound, "expired at exactly ExpiresAt")
		_, err = s.LoadSessionByID(ctx, "short")
		assert.ErrorIs(t, err, ErrNotFound, "deleted on read")

		_, err = s.LoadSessionByToken(ctx, long.AccessToken)
		require.NoError(t, err)

		require.NoError(t, s.DeleteSessionByToken(ctx, long.AccessToken))
		_, err = s.LoadSessionByRefreshToken(ctx, long.RefreshToken)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, s.DeleteSessionByToken(ctx, long.AccessToken), "deleting twice is fine")

		byID := newTestSession(clock, "by-id")
		require.NoError(t, s.StoreSession(ctx, byID))
		require.NoError(t, s.DeleteSessionByID(ctx, "by-id"))
		_, err = s.LoadSessionByToken(ctx, byID.AccessToken)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestTokenStore_TouchNeverExtendsExpiry(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, s TokenStore, clock *fakeClock) {
		ctx := context.Background()
		sess := newTestSession(clock, "touched")
		require.NoError(t, s.StoreSession(ctx, sess))

		clock.Advance(30 * time.Minute)
		require.NoError(t, s.TouchSession(ctx, sess.AccessToken, clock.Now()))

		got, err := s.LoadSessionByToken(ctx, sess.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, clock.Now(), got.LastAccessedAt)
		assert.Equal(t, sess.ExpiresAt, got.ExpiresAt)

		assert.ErrorIs(t, s.TouchSession(ctx, "unknown", clock.Now()), ErrNotFound)
	})
}

func TestTokenStore_CleanupExpired(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, s TokenStore, clock *fakeClock) {
		ctx := context.Background()
		require.NoError(t, s.StoreState(ctx, newTestState(clock, "old-state")))
		require.NoError(t, s.StoreAuthCode(ctx, &AuthorizationCode{
			Code: "old-code", SessionID: "x", ExpiresAt: clock.Now().Add(time.Minute),
		}))
		require.NoError(t, s.StoreSession(ctx, newTestSession(clock, "old")))

		keep := newTestSession(clock, "keep")
		keep.ExpiresAt = clock.Now().Add(48 * time.Hour)
		require.NoError(t, s.StoreSession(ctx, keep))
		keepState := newTestState(clock, "keep-state")
		keepState.ExpiresAt = clock.Now().Add(48 * time.Hour)
		require.NoError(t, s.StoreState(ctx, keepState))

		counts, err := s.CleanupExpired(ctx)
		require.NoError(t, err)
		assert.Zero(t, counts.Total(), "nothing expired yet")

		clock.Advance(2 * time.Hour)
		counts, err = s.CleanupExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, CleanupCounts{States: 1, AuthCodes: 1, Sessions: 1}, counts)

		_, err = s.LoadSessionByToken(ctx, keep.AccessToken)
		assert.NoError(t, err)
		_, err = s.ConsumeState(ctx, "keep-state")
		assert.NoError(t, err)
	})
}

func TestTokenStore_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := factory(t, newFakeClock())
			require.NoError(t, s.Close())
			assert.NoError(t, s.Close())
		})
	}
}

func TestTokenStore_ManySessions(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, s TokenStore, clock *fakeClock) {
		ctx := context.Background()
		var wg sync.WaitGroup
		errs := make(chan error, 20)
		for i := range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.StoreSession(ctx, newTestSession(clock, fmt.Sprintf("s-%d", i)))
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		for i := range 20 {
			_, err := s.LoadSessionByID(ctx, fmt.Sprintf("s-%d", i))
			assert.NoError(t, err)
		}
	})
}

func TestTokenStore_ClosedStoreRejects(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	for _, name := range []string{"memory", "sqlite"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := backends()[name](t, clock)
			require.NoError(t, s.Close())
			err := s.StoreState(context.Background(), newTestState(clock, "late"))
			assert.True(t, errors.Is(err, ErrClosed), "got %v", err)
		})
	}
}
