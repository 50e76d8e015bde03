// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/stacklok/mxcp-auth/pkg/auth/crypto"
	"github.com/stacklok/mxcp-auth/pkg/logger"
)

var _ TokenStore = (*MemoryStore)(nil)

// MemoryStore keeps every record in process memory. Records do not survive a
// restart, so it suits development and tests.
type MemoryStore struct {
	mu sync.RWMutex

	// states and codes are keyed by the hash of the presented value.
	states map[string]*OAuthState
	codes  map[string]*AuthorizationCode

	// sessions maps access token hash -> session; the two indexes map the
	// session id and refresh token hash to that access token hash.
	sessions     map[string]*Session
	sessionIDs   map[string]string
	refreshIndex map[string]string

	now             func() time.Time
	cleanupInterval time.Duration

	closeOnce   sync.Once
	closed      bool
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// NewMemoryStore creates a memory store and starts its background sweep.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := newStoreOptions(opts)
	s := &MemoryStore{
		states:          make(map[string]*OAuthState),
		codes:           make(map[string]*AuthorizationCode),
		sessions:        make(map[string]*Session),
		sessionIDs:      make(map[string]string),
		refreshIndex:    make(map[string]string),
		now:             o.now,
		cleanupInterval: o.cleanupInterval,
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}

	if s.cleanupInterval > 0 {
		go s.cleanupLoop()
	} else {
		close(s.cleanupDone)
	}
	return s
}

// Close stops the background sweep and waits for it.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.stopCleanup)
		<-s.cleanupDone
	})
	return nil
}

func (s *MemoryStore) cleanupLoop() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			counts, _ := s.CleanupExpired(context.Background())
			if counts.Total() > 0 {
				logger.Debugw("removed expired auth records",
					"states", counts.States, "auth_codes", counts.AuthCodes, "sessions", counts.Sessions)
			}
		}
	}
}

// StoreState saves a pending OAuth state.
func (s *MemoryStore) StoreState(_ context.Context, state *OAuthState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	key := crypto.HashToken(state.State)
	if _, ok := s.states[key]; ok {
		return ErrAlreadyExists
	}
	cp := *state
	cp.Scopes = slices.Clone(state.Scopes)
	s.states[key] = &cp
	return nil
}

// ConsumeState reads and deletes a state under one lock.
func (s *MemoryStore) ConsumeState(_ context.Context, state string) (*OAuthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	key := crypto.HashToken(state)
	st, ok := s.states[key]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.states, key)
	if st.Expired(s.now()) {
		return nil, ErrNotFound
	}
	return st, nil
}

// StoreAuthCode saves an authorization code.
func (s *MemoryStore) StoreAuthCode(_ context.Context, code *AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	key := crypto.HashToken(code.Code)
	if _, ok := s.codes[key]; ok {
		return ErrAlreadyExists
	}
	cp := *code
	cp.Scopes = slices.Clone(code.Scopes)
	s.codes[key] = &cp
	return nil
}

// ConsumeAuthCode reads and deletes a code under one lock.
func (s *MemoryStore) ConsumeAuthCode(_ context.Context, code string) (*AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	key := crypto.HashToken(code)
	c, ok := s.codes[key]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.codes, key)
	if c.Expired(s.now()) {
		return nil, ErrNotFound
	}
	return c, nil
}

// StoreSession inserts or replaces a session.
func (s *MemoryStore) StoreSession(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	key := crypto.HashToken(session.AccessToken)
	if owner, ok := s.sessionIDs[session.SessionID]; ok && owner != key {
		return ErrAlreadyExists
	}
	if prev, ok := s.sessions[key]; ok {
		s.unindexLocked(prev)
	}

	cp := session.Clone()
	s.sessions[key] = cp
	s.sessionIDs[cp.SessionID] = key
	if cp.RefreshToken != "" {
		s.refreshIndex[crypto.HashToken(cp.RefreshToken)] = key
	}
	return nil
}

// LoadSessionByToken returns a copy of the session for an access token.
func (s *MemoryStore) LoadSessionByToken(_ context.Context, accessToken string) (*Session, error) {
	return s.loadByHash(crypto.HashToken(accessToken))
}

// LoadSessionByID returns a copy of the session with the given id.
func (s *MemoryStore) LoadSessionByID(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	key, ok := s.sessionIDs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.loadByHash(key)
}

// LoadSessionByRefreshToken returns a copy of the session for a refresh token.
func (s *MemoryStore) LoadSessionByRefreshToken(_ context.Context, refreshToken string) (*Session, error) {
	s.mu.RLock()
	key, ok := s.refreshIndex[crypto.HashToken(refreshToken)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.loadByHash(key)
}

func (s *MemoryStore) loadByHash(key string) (*Session, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	sess, ok := s.sessions[key]
	if ok && !sess.Expired(s.now()) {
		defer s.mu.RUnlock()
		return sess.Clone(), nil
	}
	s.mu.RUnlock()

	if ok {
		// expired: delete on read
		s.mu.Lock()
		if cur, still := s.sessions[key]; still && cur.Expired(s.now()) {
			s.deleteLocked(key)
		}
		s.mu.Unlock()
	}
	return nil, ErrNotFound
}

// DeleteSessionByToken removes the session for an access token.
func (s *MemoryStore) DeleteSessionByToken(_ context.Context, accessToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.deleteLocked(crypto.HashToken(accessToken))
	return nil
}

// DeleteSessionByID removes the session with the given id.
func (s *MemoryStore) DeleteSessionByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if key, ok := s.sessionIDs[id]; ok {
		s.deleteLocked(key)
	}
	return nil
}

// TouchSession replaces the session with a copy carrying the new access time.
func (s *MemoryStore) TouchSession(_ context.Context, accessToken string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	key := crypto.HashToken(accessToken)
	sess, ok := s.sessions[key]
	if !ok {
		return ErrNotFound
	}
	touched := sess.Clone()
	touched.LastAccessedAt = at
	s.sessions[key] = touched
	return nil
}

// CleanupExpired removes expired records. Expired keys are collected under
// the read lock and deleted under the write lock.
func (s *MemoryStore) CleanupExpired(_ context.Context) (CleanupCounts, error) {
	now := s.now()

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return CleanupCounts{}, ErrClosed
	}
	var expiredStates, expiredCodes, expiredSessions []string
	for k, v := range s.states {
		if v.Expired(now) {
			expiredStates = append(expiredStates, k)
		}
	}
	for k, v := range s.codes {
		if v.Expired(now) {
			expiredCodes = append(expiredCodes, k)
		}
	}
	for k, v := range s.sessions {
		if v.Expired(now) {
			expiredSessions = append(expiredSessions, k)
		}
	}
	s.mu.RUnlock()

	var counts CleanupCounts
	if len(expiredStates)+len(expiredCodes)+len(expiredSessions) == 0 {
		return counts, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// re-check: a record may have been replaced since the scan
	for _, k := range expiredStates {
		if v, ok := s.states[k]; ok && v.Expired(now) {
			delete(s.states, k)
			counts.States++
		}
	}
	for _, k := range expiredCodes {
		if v, ok := s.codes[k]; ok && v.Expired(now) {
			delete(s.codes, k)
			counts.AuthCodes++
		}
	}
	for _, k := range expiredSessions {
		if v, ok := s.sessions[k]; ok && v.Expired(now) {
			s.deleteLocked(k)
			counts.Sessions++
		}
	}
	return counts, nil
}

func (s *MemoryStore) deleteLocked(key string) {
	sess, ok := s.sessions[key]
	if !ok {
		return
	}
	s.unindexLocked(sess)
	delete(s.sessions, key)
}

func (s *MemoryStore) unindexLocked(sess *Session) {
	delete(s.sessionIDs, sess.SessionID)
	if sess.RefreshToken != "" {
		delete(s.refreshIndex, crypto.HashToken(sess.RefreshToken))
	}
}
