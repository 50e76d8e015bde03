// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDummyAdapter_ExchangeCode(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := NewDummyAdapter(DummyConfig{}, WithClock(func() time.Time { return now }))

	grant, err := d.ExchangeCode(context.Background(), DummyExpectedCode, testRedirectURI, "anything")
	require.NoError(t, err)
	assert.Equal(t, DummyAccessToken, grant.AccessToken)
	assert.Equal(t, DummyRefreshToken, grant.RefreshToken)
	assert.Equal(t, []string{DummyScope}, grant.Scopes)
	assert.Equal(t, now.Add(time.Hour), grant.ExpiresAt)

	_, err = d.ExchangeCode(context.Background(), "WRONG", testRedirectURI, "")
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, "invalid_grant", pe.Code)
}

func TestDummyAdapter_ExpectedVerifier(t *testing.T) {
	t.Parallel()

	d := NewDummyAdapter(DummyConfig{ExpectedCodeVerifier: "abc"})

	_, err := d.ExchangeCode(context.Background(), DummyExpectedCode, testRedirectURI, "xyz")
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, "invalid_grant", pe.Code)
	assert.Equal(t, http.StatusBadRequest, pe.HTTPStatus)

	_, err = d.ExchangeCode(context.Background(), DummyExpectedCode, testRedirectURI, "abc")
	assert.NoError(t, err)
}

func TestDummyAdapter_NonExpiring(t *testing.T) {
	t.Parallel()

	d := NewDummyAdapter(DummyConfig{ExpiresIn: -1})
	grant, err := d.ExchangeCode(context.Background(), DummyExpectedCode, "", "")
	require.NoError(t, err)
	assert.True(t, grant.ExpiresAt.IsZero())
}

func TestDummyAdapter_RefreshAndRevoke(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := NewDummyAdapter(DummyConfig{UserID: "u1", Email: "u1@example.com"})

	info, err := d.FetchUserInfo(ctx, DummyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", info.UserID)
	assert.Equal(t, NameDummy, info.Provider)

	refreshed, err := d.RefreshToken(ctx, DummyRefreshToken, nil)
	require.NoError(t, err)
	assert.Equal(t, DummyAccessToken+"_1", refreshed.AccessToken)
	assert.Empty(t, refreshed.RefreshToken)

	_, err = d.FetchUserInfo(ctx, refreshed.AccessToken)
	require.NoError(t, err, "refreshed token is valid")

	ok, err := d.RevokeToken(ctx, refreshed.AccessToken, "")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = d.FetchUserInfo(ctx, refreshed.AccessToken)
	pe, isPE := AsProviderError(err)
	require.True(t, isPE)
	assert.Equal(t, http.StatusUnauthorized, pe.HTTPStatus)

	_, err = d.RefreshToken(ctx, "unknown", nil)
	pe, isPE = AsProviderError(err)
	require.True(t, isPE)
	assert.Equal(t, "invalid_grant", pe.Code)
}

func TestDummyAdapter_ConfiguredTokens(t *testing.T) {
	t.Parallel()

	d := NewDummyAdapter(DummyConfig{ValidTokens: []string{"extra"}, RevokedTokens: []string{"gone"}})

	_, err := d.FetchUserInfo(context.Background(), "extra")
	assert.NoError(t, err)

	_, err = d.FetchUserInfo(context.Background(), "gone")
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.True(t, pe.Unauthorized())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.FetchUserInfo(ctx, "extra")
	pe, ok = AsProviderError(err)
	require.True(t, ok)
	assert.True(t, pe.Transient())
}
