// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package execctx

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/stacklok/mxcp-auth/pkg/logger"
)

var (
	// ErrNoScope is returned when a context carries no Scope.
	ErrNoScope = errors.New("no execution scope in context")

	// ErrResetOrder is returned when a Token is reset out of order or twice.
	ErrResetOrder = errors.New("execution scope reset out of order")
)

// scopeKey is the context key of the active Scope.
type scopeKey struct{}

// Scope holds the user of one unit of work and a small value bag. Set and
// Reset mutate the Scope in place; Enter and Go fork it, so a parent never
// observes the users or values of the work it started.
type Scope struct {
	mu      sync.Mutex
	current *UserContext
	stack   []frame
	nextID  uint64
	values  map[string]any
}

type frame struct {
	id   uint64
	prev *UserContext
}

// Token identifies one Set call and restores the value it replaced.
type Token struct {
	scope *Scope
	id    uint64
}

// NewScope attaches a fresh Scope to ctx.
func NewScope(ctx context.Context) (context.Context, *Scope) {
	s := &Scope{values: make(map[string]any)}
	return context.WithValue(ctx, scopeKey{}, s), s
}

// fork returns a new Scope starting from the current user and a copy of the
// bag of s. A nil s yields an empty Scope.
func (s *Scope) fork() *Scope {
	child := &Scope{values: make(map[string]any)}
	if s == nil {
		return child
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	child.current = s.current
	maps.Copy(child.values, s.values)
	return child
}

// ScopeFrom returns the Scope carried by ctx, or nil.
func ScopeFrom(ctx context.Context) *Scope {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(scopeKey{}).(*Scope)
	return s
}

// Set makes uc the current user and returns the Token that undoes it.
func (s *Scope) Set(uc *UserContext) Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.stack = append(s.stack, frame{id: s.nextID, prev: s.current})
	s.current = uc
	return Token{scope: s, id: s.nextID}
}

// Reset restores the user that was current before the Set that produced t.
// Tokens must be reset in reverse order of creation.
func (s *Scope) Reset(t Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.scope != s || len(s.stack) == 0 || s.stack[len(s.stack)-1].id != t.id {
		return ErrResetOrder
	}
	top := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	s.current = top.prev
	return nil
}

// Current returns the active user, or nil.
func (s *Scope) Current() *UserContext {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Value returns a value from the bag.
func (s *Scope) Value(key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// SetValue stores a value in the bag.
func (s *Scope) SetValue(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = v
}

// Values returns a copy of the bag.
func (s *Scope) Values() map[string]any {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.values)
}

// Enter returns a context whose Scope is a fork of the one in ctx with uc as
// the current user, and a release function that restores the user the fork
// started with. ctx itself is left untouched. Call release exactly once,
// typically with defer.
func Enter(ctx context.Context, uc *UserContext) (context.Context, func()) {
	s := ScopeFrom(ctx).fork()
	tok := s.Set(uc)

	var once sync.Once
	return context.WithValue(ctx, scopeKey{}, s), func() {
		once.Do(func() {
			if err := s.Reset(tok); err != nil {
				logger.Warnw("failed to restore execution scope", "error", err)
			}
		})
	}
}

// UserContextFrom returns the current user of ctx, or nil.
func UserContextFrom(ctx context.Context) *UserContext {
	return ScopeFrom(ctx).Current()
}

// Value reads key from the bag of the Scope carried by ctx.
func Value(ctx context.Context, key string) (any, bool) {
	return ScopeFrom(ctx).Value(key)
}

// SetValue writes key into the bag of the Scope carried by ctx.
func SetValue(ctx context.Context, key string, v any) error {
	s := ScopeFrom(ctx)
	if s == nil {
		return ErrNoScope
	}
	s.SetValue(key, v)
	return nil
}

// Go runs fn on a new goroutine with a fork of the Scope of ctx. The worker
// starts with the caller's user and values; its own Enter or SetValue calls
// are not visible to the caller. The returned channel is closed when fn
// returns.
func Go(ctx context.Context, fn func(ctx context.Context)) <-chan struct{} {
	wctx := context.WithValue(ctx, scopeKey{}, ScopeFrom(ctx).fork())
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(wctx)
	}()
	return done
}
