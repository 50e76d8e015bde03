// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package execctx

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/mxcp-auth/pkg/auth/provider"
)

func alice() *UserContext {
	return &UserContext{Provider: "github", UserID: "1", Username: "alice", Email: "alice@example.com", ExternalToken: "gho_alice"}
}

func bob() *UserContext {
	return &UserContext{Provider: "google", UserID: "2", Username: "bob", Email: "bob@example.com", ExternalToken: "ya29.bob"}
}

func TestScope_NestedSetResetRestoresPrior(t *testing.T) {
	t.Parallel()

	ctx, s := NewScope(context.Background())
	assert.Nil(t, UserContextFrom(ctx))

	outer := s.Set(alice())
	assert.Equal(t, "alice", UserContextFrom(ctx).Username)

	inner := s.Set(bob())
	assert.Equal(t, "bob", UserContextFrom(ctx).Username)

	require.NoError(t, s.Reset(inner))
	assert.Equal(t, "alice", UserContextFrom(ctx).Username)

	require.NoError(t, s.Reset(outer))
	assert.Nil(t, UserContextFrom(ctx))
}

func TestScope_ResetOutOfOrder(t *testing.T) {
	t.Parallel()

	_, s := NewScope(context.Background())
	outer := s.Set(alice())
	inner := s.Set(bob())

	assert.ErrorIs(t, s.Reset(outer), ErrResetOrder)
	assert.Equal(t, "bob", s.Current().Username)

	require.NoError(t, s.Reset(inner))
	require.NoError(t, s.Reset(outer))
	assert.ErrorIs(t, s.Reset(outer), ErrResetOrder, "double reset")

	_, other := NewScope(context.Background())
	foreign := other.Set(alice())
	assert.ErrorIs(t, s.Reset(foreign), ErrResetOrder)
}

func TestEnter_ReleasesOnPanic(t *testing.T) {
	t.Parallel()

	ctx, s := NewScope(context.Background())
	s.Set(alice())

	func() {
		defer func() { _ = recover() }()
		inner, release := Enter(ctx, bob())
		defer release()
		assert.Equal(t, "bob", UserContextFrom(inner).Username)
		panic("handler failed")
	}()

	assert.Equal(t, "alice", UserContextFrom(ctx).Username)
}

func TestEnter_CreatesScope(t *testing.T) {
	t.Parallel()

	ctx, release := Enter(context.Background(), alice())
	assert.Equal(t, "alice", UserContextFrom(ctx).Username)

	release()
	release()
	assert.Nil(t, UserContextFrom(ctx))
}

func TestValues(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, SetValue(context.Background(), "k", 1), ErrNoScope)
	_, ok := Value(context.Background(), "k")
	assert.False(t, ok)

	ctx, s := NewScope(context.Background())
	require.NoError(t, SetValue(ctx, "request_id", "r-1"))
	v, ok := Value(ctx, "request_id")
	require.True(t, ok)
	assert.Equal(t, "r-1", v)

	snapshot := s.Values()
	snapshot["request_id"] = "changed"
	v, _ = Value(ctx, "request_id")
	assert.Equal(t, "r-1", v)
}

func TestGo_CarriesScope(t *testing.T) {
	t.Parallel()

	ctx, release := Enter(context.Background(), alice())
	defer release()
	require.NoError(t, SetValue(ctx, "request_id", "r-1"))

	var got string
	var requestID any
	<-Go(ctx, func(ctx context.Context) {
		got = Bind(ctx).Username()
		requestID, _ = Value(ctx, "request_id")
		_ = SetValue(ctx, "written_by_worker", true)
	})
	assert.Equal(t, "alice", got)
	assert.Equal(t, "r-1", requestID)

	_, ok := Value(ctx, "written_by_worker")
	assert.False(t, ok, "worker values stay in the worker")
}

func TestGo_WorkerEnterDoesNotLeak(t *testing.T) {
	t.Parallel()

	ctx, release := Enter(context.Background(), alice())
	defer release()

	entered := make(chan struct{})
	finish := make(chan struct{})
	var inWorker string
	done := Go(ctx, func(ctx context.Context) {
		wctx, wrelease := Enter(ctx, bob())
		defer wrelease()
		close(entered)
		<-finish
		inWorker = UserContextFrom(wctx).Username
	})

	<-entered
	assert.Equal(t, "alice", UserContextFrom(ctx).Username)
	assert.Equal(t, "alice", Bind(ctx).Username())
	close(finish)
	<-done

	assert.Equal(t, "bob", inWorker)
	assert.Equal(t, "alice", UserContextFrom(ctx).Username)
}

func TestEnter_ReleaseOrderIndependent(t *testing.T) {
	t.Parallel()

	parent, release := Enter(context.Background(), &UserContext{Username: "parent"})
	defer release()

	entered := make(chan struct{})
	releaseWorker := make(chan struct{})
	done := Go(parent, func(ctx context.Context) {
		_, wrelease := Enter(ctx, &UserContext{Username: "worker"})
		close(entered)
		<-releaseWorker
		wrelease()
	})
	<-entered

	actx, arelease := Enter(parent, &UserContext{Username: "A"})
	assert.Equal(t, "A", UserContextFrom(actx).Username)
	assert.Equal(t, "parent", UserContextFrom(parent).Username)

	close(releaseWorker)
	<-done
	assert.Equal(t, "A", UserContextFrom(actx).Username)

	arelease()
	assert.Equal(t, "parent", UserContextFrom(parent).Username)
	assert.Equal(t, "parent", UserContextFrom(actx).Username)

	// Sibling scopes released in reverse of entry on one goroutine.
	first, releaseFirst := Enter(parent, alice())
	second, releaseSecond := Enter(parent, bob())
	releaseFirst()
	assert.Equal(t, "bob", UserContextFrom(second).Username)
	releaseSecond()
	assert.Equal(t, "parent", UserContextFrom(first).Username)
	assert.Equal(t, "parent", UserContextFrom(second).Username)
	assert.Equal(t, "parent", UserContextFrom(parent).Username)
}

func TestGo_ConcurrentScopesAreIsolated(t *testing.T) {
	t.Parallel()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := fmt.Sprintf("user-%d", i)
			ctx, release := Enter(context.Background(), &UserContext{Username: name})
			defer release()
			var got string
			<-Go(ctx, func(ctx context.Context) { got = Bind(ctx).Username() })
			assert.Equal(t, name, got)
		}()
	}
	wg.Wait()
}

func TestBind_ReadsAtCallTime(t *testing.T) {
	t.Parallel()

	ctx, s := NewScope(context.Background())
	acc := Bind(ctx)
	fns := acc.Functions()

	assert.Empty(t, acc.Username())
	assert.Equal(t, "", fns[FuncUsername]())

	tok := s.Set(alice())
	assert.Equal(t, "gho_alice", acc.UserToken())
	assert.Equal(t, "alice", acc.Username())
	assert.Equal(t, "github", acc.UserProvider())
	assert.Equal(t, "alice@example.com", acc.UserEmail())
	assert.Equal(t, "1", acc.UserID())
	assert.Equal(t, "gho_alice", fns[FuncUserExternalToken]())
	assert.Equal(t, "alice", fns[FuncUsername]())
	assert.Equal(t, "github", fns[FuncUserProvider]())
	assert.Equal(t, "alice@example.com", fns[FuncUserEmail]())
	assert.Equal(t, "1", fns[FuncUserID]())

	inner := s.Set(bob())
	assert.Equal(t, "bob", fns[FuncUsername]())
	require.NoError(t, s.Reset(inner))
	require.NoError(t, s.Reset(tok))
	assert.Empty(t, acc.UserToken())

	assert.Empty(t, Bind(context.Background()).Username())
}

func TestUserContext_Redaction(t *testing.T) {
	t.Parallel()

	uc := NewUserContext(&provider.UserInfo{
		Provider: "github", UserID: "42", Username: "octo", Email: "octo@example.com",
	}, "gho_secret", "sid-1", []string{"user:email"})

	for _, out := range []string{uc.String(), fmt.Sprintf("%v", uc), fmt.Sprintf("%#v", uc)} {
		assert.NotContains(t, out, "gho_secret")
		assert.Contains(t, out, "octo")
	}

	b, err := json.Marshal(uc)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "gho_secret")
	assert.Contains(t, string(b), `"has_external_token":true`)
	assert.Contains(t, string(b), `"session_id":"sid-1"`)

	assert.Nil(t, NewUserContext(nil, "x", "y", nil))
}
