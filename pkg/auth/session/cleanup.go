// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/stacklok/mxcp-auth/pkg/auth/storage"
	"github.com/stacklok/mxcp-auth/pkg/logger"
)

// CleanupExpired sweeps every expired state, code and session from the store
// and drops expired sessions from the cache. Live records are never removed.
func (m *Manager) CleanupExpired(ctx context.Context) (storage.CleanupCounts, error) {
	counts, err := m.store.CleanupExpired(ctx)
	if err != nil {
		return counts, fmt.Errorf("failed to clean up expired records: %w", err)
	}

	now := m.now()
	m.mu.Lock()
	for k, s := range m.cache {
		if s.Expired(now) {
			delete(m.cache, k)
		}
	}
	m.mu.Unlock()
	return counts, nil
}

// CleanupExpiredSessions runs a sweep and returns the number of sessions it
// removed.
func (m *Manager) CleanupExpiredSessions(ctx context.Context) (int, error) {
	counts, err := m.CleanupExpired(ctx)
	return counts.Sessions, err
}

// CleanupExpiredOAuthStates runs a sweep and returns the number of states it
// removed.
func (m *Manager) CleanupExpiredOAuthStates(ctx context.Context) (int, error) {
	counts, err := m.CleanupExpired(ctx)
	return counts.States, err
}

// CleanupExpiredAuthCodes runs a sweep and returns the number of codes it
// removed.
func (m *Manager) CleanupExpiredAuthCodes(ctx context.Context) (int, error) {
	counts, err := m.CleanupExpired(ctx)
	return counts.AuthCodes, err
}

// StartCleanup sweeps periodically until ctx is done or Close is called.
// Calling it again while a loop runs is a no-op.
func (m *Manager) StartCleanup(ctx context.Context) {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.closed || m.stopCleanup != nil {
		return
	}
	m.stopCleanup = make(chan struct{})
	m.cleanupDone = make(chan struct{})
	go m.cleanupLoop(ctx, m.stopCleanup, m.cleanupDone)
}

func (m *Manager) cleanupLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			counts, err := m.CleanupExpired(ctx)
			if err != nil {
				logger.Warnw("periodic cleanup failed", "error", err)
				continue
			}
			if counts.Total() > 0 {
				logger.Infow("removed expired auth records",
					"states", counts.States, "auth_codes", counts.AuthCodes, "sessions", counts.Sessions)
			}
		}
	}
}

// Close stops the cleanup loop and waits for it. It does not close the store.
func (m *Manager) Close() error {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.stopCleanup != nil {
		close(m.stopCleanup)
		<-m.cleanupDone
	}
	return nil
}
