// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import "time"

// Default lifetimes.
const (
	DefaultStateTTL        = 10 * time.Minute
	DefaultAuthCodeTTL     = 10 * time.Minute
	DefaultSessionTTL      = time.Hour
	DefaultCleanupInterval = 5 * time.Minute
	DefaultRefreshTimeout  = 30 * time.Second
)

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithStateTTL sets the default OAuth state lifetime.
func WithStateTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.stateTTL = d
		}
	}
}

// WithAuthCodeTTL sets the default authorization code lifetime.
func WithAuthCodeTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.authCodeTTL = d
		}
	}
}

// WithSessionTTL sets the default MXCP access token lifetime.
func WithSessionTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.sessionTTL = d
		}
	}
}

// WithCleanupInterval sets the period of StartCleanup.
func WithCleanupInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.cleanupInterval = d
		}
	}
}

// WithRefreshTimeout bounds a shared provider refresh. The bound applies
// independently of any single caller's context.
func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.refreshTimeout = d
		}
	}
}

// TTL returns a pointer for the ExpiresIn fields of the params structs.
// A nil ExpiresIn selects the configured default; TTL(0) expires at once.
func TTL(d time.Duration) *time.Duration {
	return &d
}
