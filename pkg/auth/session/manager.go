// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package session owns the lifecycle of OAuth states, MXCP authorization
// codes and sessions on top of a storage.TokenStore.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/stacklok/mxcp-auth/pkg/auth/crypto"
	"github.com/stacklok/mxcp-auth/pkg/auth/provider"
	"github.com/stacklok/mxcp-auth/pkg/auth/storage"
	"github.com/stacklok/mxcp-auth/pkg/logger"
)

// Prefixes of the tokens issued to MCP clients.
const (
	AccessTokenPrefix  = "mcp_"
	RefreshTokenPrefix = "mcp_rt_"
	AuthCodePrefix     = "mcp_code_"
)

var (
	// ErrInvalidRefreshToken is returned when a refresh token matches no live session.
	ErrInvalidRefreshToken = errors.New("refresh token is invalid or expired")

	// ErrRefreshUnavailable is returned when a session holds no provider
	// refresh token to derive new tokens from.
	ErrRefreshUnavailable = errors.New("session cannot be refreshed")
)

// StateParams are the inputs of CreateOAuthState.
type StateParams struct {
	ClientID            string
	RedirectURI         string
	CallbackURL         string
	ClientState         string
	CodeChallenge       string
	CodeChallengeMethod string
	CodeVerifier        string
	Provider            string
	Scopes              []string

	// ExpiresIn overrides the default state lifetime when non-nil.
	ExpiresIn *time.Duration
}

// SessionParams are the inputs of CreateSession.
type SessionParams struct {
	ClientID             string
	Provider             string
	UserInfo             *provider.UserInfo
	ProviderAccessToken  string
	ProviderRefreshToken string
	ProviderExpiresAt    time.Time
	Scopes               []string

	// ExpiresIn overrides the default session lifetime when non-nil.
	ExpiresIn *time.Duration
}

// AuthCodeParams are the inputs of CreateAuthCode.
type AuthCodeParams struct {
	SessionID           string
	ClientID            string
	RedirectURI         string
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string

	// ExpiresIn overrides the default code lifetime when non-nil.
	ExpiresIn *time.Duration
}

// Manager creates, looks up and expires auth records. Sessions read through
// an in-process cache keyed by token hash; the store remains the source of
// truth for one-time consumption.
type Manager struct {
	store storage.TokenStore

	mu    sync.RWMutex
	cache map[string]*storage.Session

	refreshes singleflight.Group

	now             func() time.Time
	stateTTL        time.Duration
	authCodeTTL     time.Duration
	sessionTTL      time.Duration
	cleanupInterval time.Duration
	refreshTimeout  time.Duration

	loopMu      sync.Mutex
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	closed      bool
}

// NewManager creates a Manager over store.
func NewManager(store storage.TokenStore, opts ...Option) *Manager {
	m := &Manager{
		store:           store,
		cache:           make(map[string]*storage.Session),
		now:             time.Now,
		stateTTL:        DefaultStateTTL,
		authCodeTTL:     DefaultAuthCodeTTL,
		sessionTTL:      DefaultSessionTTL,
		cleanupInterval: DefaultCleanupInterval,
		refreshTimeout:  DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SessionTTL returns the default session lifetime.
func (m *Manager) SessionTTL() time.Duration {
	return m.sessionTTL
}

func lifetime(override *time.Duration, def time.Duration) time.Duration {
	if override != nil {
		return max(*override, 0)
	}
	return def
}

// CreateOAuthState stores a new pending authorization and returns it.
func (m *Manager) CreateOAuthState(ctx context.Context, p StateParams) (*storage.OAuthState, error) {
	now := m.now()
	state := &storage.OAuthState{
		State:               crypto.RandomToken(),
		ClientID:            p.ClientID,
		RedirectURI:         p.RedirectURI,
		CallbackURL:         p.CallbackURL,
		ClientState:         p.ClientState,
		CodeChallenge:       p.CodeChallenge,
		CodeChallengeMethod: p.CodeChallengeMethod,
		CodeVerifier:        p.CodeVerifier,
		Provider:            p.Provider,
		Scopes:              slices.Clone(p.Scopes),
		CreatedAt:           now,
		ExpiresAt:           now.Add(lifetime(p.ExpiresIn, m.stateTTL)),
	}
	if err := m.store.StoreState(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to store oauth state: %w", err)
	}
	logger.Debugw("created oauth state",
		"state_hash", crypto.HashPrefix(state.State), "client_id", p.ClientID, "provider", p.Provider)
	return state, nil
}

// ConsumeOAuthState returns and deletes a state. Absent and expired states
// both yield (nil, nil).
func (m *Manager) ConsumeOAuthState(ctx context.Context, state string) (*storage.OAuthState, error) {
	if state == "" {
		return nil, nil
	}
	s, err := m.store.ConsumeState(ctx, state)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume oauth state: %w", err)
	}
	return s, nil
}

// CreateSession issues fresh MXCP tokens bound to the given provider tokens.
func (m *Manager) CreateSession(ctx context.Context, p SessionParams) (*storage.Session, error) {
	now := m.now()
	sess := &storage.Session{
		SessionID:            uuid.NewString(),
		AccessToken:          AccessTokenPrefix + crypto.RandomToken(),
		RefreshToken:         RefreshTokenPrefix + crypto.RandomToken(),
		ClientID:             p.ClientID,
		Provider:             p.Provider,
		UserInfo:             snapshot(p.UserInfo),
		ProviderAccessToken:  p.ProviderAccessToken,
		ProviderRefreshToken: p.ProviderRefreshToken,
		ProviderExpiresAt:    p.ProviderExpiresAt,
		ExpiresAt:            now.Add(lifetime(p.ExpiresIn, m.sessionTTL)),
		Scopes:               slices.Clone(p.Scopes),
		CreatedAt:            now,
	}
	if err := m.store.StoreSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	m.cachePut(sess)

	logger.Infow("created session",
		"session_id", sess.SessionID, "provider", sess.Provider, "client_id", sess.ClientID,
		"has_provider_refresh_token", sess.ProviderRefreshToken != "")
	return sess.Clone(), nil
}

// GetSession returns the session for an MXCP access token and records the
// access. Absent and expired sessions yield (nil, nil); expired ones are
// deleted. Access never extends the expiry.
func (m *Manager) GetSession(ctx context.Context, token string) (*storage.Session, error) {
	if token == "" {
		return nil, nil
	}
	key := crypto.HashToken(token)
	now := m.now()

	sess := m.cacheGet(key)
	if sess == nil {
		loaded, err := m.store.LoadSessionByToken(ctx, token)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
		sess = loaded
	}

	if sess.Expired(now) {
		m.cacheDelete(key)
		if err := m.store.DeleteSessionByToken(ctx, token); err != nil {
			logger.Warnw("failed to delete expired session", "session_id", sess.SessionID, "error", err)
		}
		return nil, nil
	}

	touched := sess.Clone()
	touched.LastAccessedAt = now
	if err := m.store.TouchSession(ctx, token, now); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Deleted elsewhere, for example by another replica.
			m.cacheDelete(key)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}
	m.cachePut(touched)
	return touched.Clone(), nil
}

// GetProviderToken returns the provider access token linked to an MXCP
// token, or "" when there is none.
func (m *Manager) GetProviderToken(ctx context.Context, token string) (string, error) {
	sess, err := m.GetSession(ctx, token)
	if err != nil || sess == nil {
		return "", err
	}
	return sess.ProviderAccessToken, nil
}

// LoadSessionByID returns a session by id without touching it.
func (m *Manager) LoadSessionByID(ctx context.Context, id string) (*storage.Session, error) {
	sess, err := m.store.LoadSessionByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return sess, nil
}

// LoadSessionByRefreshToken returns the session an MXCP refresh token
// belongs to without touching it.
func (m *Manager) LoadSessionByRefreshToken(ctx context.Context, refreshToken string) (*storage.Session, error) {
	if refreshToken == "" {
		return nil, nil
	}
	sess, err := m.store.LoadSessionByRefreshToken(ctx, refreshToken)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return sess, nil
}

// DeleteSession removes the session of an MXCP access token.
func (m *Manager) DeleteSession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	m.cacheDelete(crypto.HashToken(token))
	if err := m.store.DeleteSessionByToken(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// CreateAuthCode issues a one-time code redeemable for the session.
func (m *Manager) CreateAuthCode(ctx context.Context, p AuthCodeParams) (*storage.AuthorizationCode, error) {
	now := m.now()
	code := &storage.AuthorizationCode{
		Code:                AuthCodePrefix + crypto.RandomToken(),
		SessionID:           p.SessionID,
		ClientID:            p.ClientID,
		RedirectURI:         p.RedirectURI,
		Scopes:              slices.Clone(p.Scopes),
		CodeChallenge:       p.CodeChallenge,
		CodeChallengeMethod: p.CodeChallengeMethod,
		CreatedAt:           now,
		ExpiresAt:           now.Add(lifetime(p.ExpiresIn, m.authCodeTTL)),
	}
	if err := m.store.StoreAuthCode(ctx, code); err != nil {
		return nil, fmt.Errorf("failed to store authorization code: %w", err)
	}
	return code, nil
}

// ConsumeAuthCode returns and deletes a code, or (nil, nil) when absent or
// expired.
func (m *Manager) ConsumeAuthCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	if code == "" {
		return nil, nil
	}
	c, err := m.store.ConsumeAuthCode(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}
	return c, nil
}

// RefreshSession derives a new session from the provider refresh token held
// by the session that refreshToken belongs to. The old session is deleted.
// Concurrent refreshes with the same token share one result. The shared
// refresh does not inherit the cancellation of the caller that started it;
// a caller that gives up returns its context error while the others keep
// waiting.
func (m *Manager) RefreshSession(ctx context.Context, refreshToken string, adapter provider.Adapter) (*storage.Session, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	ch := m.refreshes.DoChan(crypto.HashToken(refreshToken), func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
		defer cancel()
		return m.refresh(shared, refreshToken, adapter)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*storage.Session).Clone(), nil
	}
}

func (m *Manager) refresh(ctx context.Context, refreshToken string, adapter provider.Adapter) (*storage.Session, error) {
	old, err := m.store.LoadSessionByRefreshToken(ctx, refreshToken)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if old.Provider != adapter.Name() {
		return nil, ErrInvalidRefreshToken
	}
	if old.ProviderRefreshToken == "" {
		return nil, ErrRefreshUnavailable
	}

	grant, err := adapter.RefreshToken(ctx, old.ProviderRefreshToken, old.Scopes)
	if err != nil {
		return nil, err
	}

	providerRefresh := grant.RefreshToken
	if providerRefresh == "" {
		providerRefresh = old.ProviderRefreshToken
	}
	scopes := grant.Scopes
	if len(scopes) == 0 {
		scopes = old.Scopes
	}

	next, err := m.CreateSession(ctx, SessionParams{
		ClientID:             old.ClientID,
		Provider:             old.Provider,
		UserInfo:             userInfo(old.UserInfo),
		ProviderAccessToken:  grant.AccessToken,
		ProviderRefreshToken: providerRefresh,
		ProviderExpiresAt:    grant.ExpiresAt,
		Scopes:               scopes,
	})
	if err != nil {
		return nil, err
	}

	if err := m.DeleteSession(ctx, old.AccessToken); err != nil {
		logger.Warnw("failed to delete refreshed session", "session_id", old.SessionID, "error", err)
	}
	logger.Infow("refreshed session", "old_session_id", old.SessionID, "session_id", next.SessionID)
	return next, nil
}

// UpdateUserInfo replaces the identity snapshot of a session.
func (m *Manager) UpdateUserInfo(ctx context.Context, token string, info *provider.UserInfo) error {
	sess, err := m.GetSession(ctx, token)
	if err != nil {
		return err
	}
	if sess == nil {
		return storage.ErrNotFound
	}
	sess.UserInfo = snapshot(info)
	if err := m.store.StoreSession(ctx, sess); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	m.cachePut(sess)
	return nil
}

func (m *Manager) cacheGet(key string) *storage.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cache[key]
}

func (m *Manager) cachePut(sess *storage.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[crypto.HashToken(sess.AccessToken)] = sess.Clone()
}

func (m *Manager) cacheDelete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, key)
}

func snapshot(info *provider.UserInfo) *storage.UserInfoSnapshot {
	if info == nil {
		return nil
	}
	return &storage.UserInfoSnapshot{
		Provider:   info.Provider,
		UserID:     info.UserID,
		Username:   info.Username,
		Email:      info.Email,
		Name:       info.Name,
		AvatarURL:  info.AvatarURL,
		RawProfile: info.RawProfile,
	}
}

func userInfo(s *storage.UserInfoSnapshot) *provider.UserInfo {
	if s == nil {
		return nil
	}
	return &provider.UserInfo{
		Provider:   s.Provider,
		UserID:     s.UserID,
		Username:   s.Username,
		Email:      s.Email,
		Name:       s.Name,
		AvatarURL:  s.AvatarURL,
		RawProfile: s.RawProfile,
	}
}
