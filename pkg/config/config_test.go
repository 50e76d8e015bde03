// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/stacklok/mxcp-auth/pkg/auth/crypto"
	"github.com/stacklok/mxcp-auth/pkg/auth/provider"
	"github.com/stacklok/mxcp-auth/pkg/auth/session"
	"github.com/stacklok/mxcp-auth/pkg/auth/storage"
	"github.com/stacklok/mxcp-auth/pkg/env"
	mxerrors "github.com/stacklok/mxcp-auth/pkg/errors"
	"github.com/stacklok/mxcp-auth/pkg/telemetry"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mxcp-auth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

type fakeKeyring struct {
	values map[string]string
	getErr error
	setErr error
}

func (k *fakeKeyring) Get(service, user string) (string, error) {
	if k.getErr != nil {
		return "", k.getErr
	}
	v, ok := k.values[service+"/"+user]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return v, nil
}

func (k *fakeKeyring) Set(service, user, password string) error {
	if k.setErr != nil {
		return k.setErr
	}
	if k.values == nil {
		k.values = map[string]string{}
	}
	k.values[service+"/"+user] = password
	return nil
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(LoadOptions{
		Path:        writeConfig(t, "persistence:\n  type: memory\n"),
		Environment: env.MapReader{}.Environ(),
	})
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Address)
	assert.Equal(t, "/auth/callback", cfg.Server.CallbackPath)
	assert.Equal(t, provider.DefaultRequestTimeout, cfg.Server.RequestTimeout)
	assert.Equal(t, session.DefaultSessionTTL, cfg.Session.AccessTokenTTL)
	assert.Equal(t, session.DefaultStateTTL, cfg.Session.StateTTL)
	assert.Equal(t, session.DefaultAuthCodeTTL, cfg.Session.AuthCodeTTL)
	assert.Equal(t, session.DefaultCleanupInterval, cfg.Session.CleanupInterval)
	assert.Zero(t, cfg.Session.UserInfoCacheTTL)
	assert.Equal(t, "mxcp:auth:", cfg.Persistence.KeyPrefix)
	assert.False(t, cfg.Persistence.AllowPlaintext)
	assert.True(t, cfg.Telemetry.MetricsEnabled)
	assert.False(t, cfg.Telemetry.TracingEnabled)
	assert.InDelta(t, telemetry.DefaultTraceSamplingRate, cfg.Telemetry.TraceSamplingRate, 1e-9)
}

func TestLoad_FileAndSecretOverlay(t *testing.T) {
	t.Parallel()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	path := writeConfig(t, `
server:
  base_url: https://mxcp.example.com
  scopes_supported: [mxcp.read]
provider:
  name: github
  client_id: abc
  client_secret: from-file
  scope: "read:user user:email"
persistence:
  type: sqlite
  path: /var/lib/mxcp/oauth.db
session:
  access_token_ttl: 2h
  user_info_cache_ttl: 30s
telemetry:
  resource_attributes: "deployment.environment=prod, team=platform"
`)
	cfg, err := Load(LoadOptions{
		Path: path,
		Environment: env.MapReader{
			"MXCP_AUTH_CLIENT_SECRET":  "from-env",
			"MXCP_AUTH_ENCRYPTION_KEY": key,
		}.Environ(),
	})
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Provider.ClientSecret)
	assert.Equal(t, key, cfg.Persistence.EncryptionKey)
	assert.Equal(t, 2*time.Hour, cfg.Session.AccessTokenTTL)
	assert.Equal(t, 30*time.Second, cfg.Session.UserInfoCacheTTL)

	pc := cfg.ProviderConfig()
	assert.Equal(t, []string{"read:user", "user:email"}, pc.Scopes)
	require.NoError(t, pc.Validate())

	sc := cfg.ServiceConfig()
	assert.Equal(t, "https://mxcp.example.com", sc.BaseURL)
	assert.Equal(t, []string{"mxcp.read"}, sc.ScopesSupported)
	assert.Equal(t, 30*time.Second, sc.Middleware.UserInfoCacheTTL)

	codec, err := cfg.SecretCodec()
	require.NoError(t, err)
	assert.IsType(t, &storage.SealerCodec{}, codec)
	assert.Equal(t, storage.TypeSQLite, cfg.StorageConfig().Type)

	tc := cfg.TelemetryConfig("mxcp-auth", "v1.0.0")
	assert.Equal(t, map[string]string{"deployment.environment": "prod", "team": "platform"}, tc.ResourceAttributes)
	assert.Len(t, cfg.SessionOptions(), 4)
}

//nolint:paralleltest // uses t.Setenv
func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("MXCP_AUTH_SERVER_BASE_URL", "https://env.example.com")
	t.Setenv("MXCP_AUTH_PROVIDER_NAME", "dummy")
	t.Setenv("MXCP_AUTH_PERSISTENCE_TYPE", "redis")
	t.Setenv("MXCP_AUTH_PERSISTENCE_REDIS_ADDR", "localhost:6379")
	t.Setenv("MXCP_AUTH_PERSISTENCE_ALLOW_PLAINTEXT", "true")
	t.Setenv("MXCP_AUTH_SESSION_STATE_TTL", "5m")
	t.Setenv("MXCP_AUTH_REDIS_PASSWORD", "hunter2")

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.Server.BaseURL)
	assert.Equal(t, provider.NameDummy, cfg.Provider.Name)
	assert.Equal(t, 5*time.Minute, cfg.Session.StateTTL)

	sc := cfg.StorageConfig()
	assert.Equal(t, storage.TypeRedis, sc.Type)
	assert.Equal(t, "localhost:6379", sc.Redis.Addr)
	assert.Equal(t, "hunter2", sc.Redis.Password)

	codec, err := cfg.SecretCodec()
	require.NoError(t, err)
	assert.Equal(t, storage.PlaintextCodec{}, codec)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "unsupported persistence", body: "persistence:\n  type: etcd\n"},
		{name: "missing key", body: "persistence:\n  type: sqlite\n  path: /tmp/x.db\n"},
		{name: "invalid key", body: "persistence:\n  type: sqlite\n  path: /tmp/x.db\n  encryption_key: short\n"},
		{name: "redis without address", body: "persistence:\n  type: redis\n  allow_plaintext: true\n"},
		{name: "unsupported provider", body: "server:\n  base_url: https://x.example.com\nprovider:\n  name: myspace\npersistence:\n  type: memory\n"},
		{name: "provider without base url", body: "provider:\n  name: dummy\npersistence:\n  type: memory\n"},
		{name: "keycloak without realm", body: "server:\n  base_url: https://x.example.com\nprovider:\n  name: keycloak\n  client_id: a\npersistence:\n  type: memory\n"},
		{name: "bad ttl", body: "persistence:\n  type: memory\nsession:\n  state_ttl: 0s\n"},
		{name: "unknown key source", body: "persistence:\n  type: memory\n  encryption_key_source: vault\n"},
		{name: "bad resource attributes", body: "persistence:\n  type: memory\ntelemetry:\n  resource_attributes: team\n"},
		{name: "runtime metrics without prometheus", body: "persistence:\n  type: memory\ntelemetry:\n  metrics_enabled: false\n  include_runtime_metrics: true\n"},
		{name: "tracing without endpoint", body: "persistence:\n  type: memory\ntelemetry:\n  tracing_enabled: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(LoadOptions{Path: writeConfig(t, tt.body), Environment: map[string]string{}})
			require.Error(t, err)
			assert.True(t, mxerrors.IsConfiguration(err), "got %v", err)
		})
	}

	_, err := Load(LoadOptions{Path: filepath.Join(t.TempDir(), "missing.yaml"), Environment: map[string]string{}})
	require.Error(t, err)
	assert.True(t, mxerrors.IsConfiguration(err))
}

func TestLoad_KeyringKeySource(t *testing.T) {
	t.Parallel()

	body := "persistence:\n  type: sqlite\n  path: /tmp/x.db\n  encryption_key_source: keyring\n"

	t.Run("generates and saves a key", func(t *testing.T) {
		t.Parallel()
		kr := &fakeKeyring{}
		cfg, err := Load(LoadOptions{Path: writeConfig(t, body), Environment: map[string]string{}, Keyring: kr})
		require.NoError(t, err)
		require.NotEmpty(t, cfg.Persistence.EncryptionKey)
		assert.Equal(t, cfg.Persistence.EncryptionKey, kr.values["mxcp-auth/encryption-key"])

		again, err := Load(LoadOptions{Path: writeConfig(t, body), Environment: map[string]string{}, Keyring: kr})
		require.NoError(t, err)
		assert.Equal(t, cfg.Persistence.EncryptionKey, again.Persistence.EncryptionKey, "key is reused")
	})

	t.Run("keyring failure", func(t *testing.T) {
		t.Parallel()
		kr := &fakeKeyring{getErr: errors.New("dbus unavailable")}
		_, err := Load(LoadOptions{Path: writeConfig(t, body), Environment: map[string]string{}, Keyring: kr})
		require.Error(t, err)
		assert.True(t, mxerrors.IsConfiguration(err))
	})

	t.Run("explicit key wins", func(t *testing.T) {
		t.Parallel()
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		kr := &fakeKeyring{getErr: errors.New("must not be called")}
		cfg, err := Load(LoadOptions{
			Path:        writeConfig(t, body),
			Environment: map[string]string{"MXCP_AUTH_ENCRYPTION_KEY": key},
			Keyring:     kr,
		})
		require.NoError(t, err)
		assert.Equal(t, key, cfg.Persistence.EncryptionKey)
	})
}

//nolint:paralleltest // replaces the process keyring
func TestOSKeyring(t *testing.T) {
	keyring.MockInit()

	kr := OSKeyring{}
	_, err := kr.Get("mxcp-auth", "encryption-key")
	require.ErrorIs(t, err, keyring.ErrNotFound)

	require.NoError(t, kr.Set("mxcp-auth", "encryption-key", "k"))
	got, err := kr.Get("mxcp-auth", "encryption-key")
	require.NoError(t, err)
	assert.Equal(t, "k", got)
}

//nolint:paralleltest // replaces defaultDBPath
func TestLoad_DefaultDatabasePath(t *testing.T) {
	dir := t.TempDir()
	orig := defaultDBPath
	defaultDBPath = func() (string, error) { return filepath.Join(dir, "oauth.db"), nil }
	t.Cleanup(func() { defaultDBPath = orig })

	cfg, err := Load(LoadOptions{
		Path:        writeConfig(t, "persistence:\n  allow_plaintext: true\n"),
		Environment: map[string]string{},
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "oauth.db"), cfg.Persistence.Path)
}
