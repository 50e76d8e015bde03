// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"fmt"

	mxerrors "github.com/stacklok/mxcp-auth/pkg/errors"
	"github.com/stacklok/mxcp-auth/pkg/logger"
)

// NewAdapter builds the adapter selected by cfg.Name. It does no network I/O;
// call EnsureReady on a ReadyAdapter to resolve discovered endpoints.
func NewAdapter(_ context.Context, cfg *Config, opts ...Option) (Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, mxerrors.NewConfigurationError("invalid provider configuration", err)
	}

	logger.Debugw("creating provider adapter", "provider", cfg.Name, "client_id", cfg.ClientID)

	var (
		adapter Adapter
		err     error
	)
	switch cfg.Name {
	case NameGitHub:
		adapter, err = NewGitHubAdapter(cfg, opts...)
	case NameGoogle:
		adapter, err = NewGoogleAdapter(cfg, opts...)
	case NameKeycloak:
		adapter, err = NewKeycloakAdapter(cfg, opts...)
	case NameAtlassian:
		adapter, err = NewAtlassianAdapter(cfg, opts...)
	case NameSalesforce:
		adapter, err = NewSalesforceAdapter(cfg, opts...)
	case NameOIDC:
		adapter, err = NewOIDCAdapter(cfg, opts...)
	case NameDummy:
		dc := DummyConfig{}
		if cfg.Dummy != nil {
			dc = *cfg.Dummy
		}
		adapter = NewDummyAdapter(dc, opts...)
	default:
		return nil, mxerrors.NewConfigurationError(fmt.Sprintf("unsupported provider %q", cfg.Name), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s adapter: %w", cfg.Name, err)
	}
	return adapter, nil
}
