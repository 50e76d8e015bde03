// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/stacklok/mxcp-auth/pkg/auth/session"
	"github.com/stacklok/mxcp-auth/pkg/auth/storage"
	"github.com/stacklok/mxcp-auth/pkg/config"
	"github.com/stacklok/mxcp-auth/pkg/logger"
)

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired sessions, states and authorization codes",
		Long: `Run one expiry sweep over the configured token store and print how many
records were removed. Useful from cron when the server itself is not running.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runCleanup(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
}

func runCleanup(ctx context.Context, cfg *config.Config, out io.Writer) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warnw("failed to close token store", "error", err)
		}
	}()

	mgr := session.NewManager(store)
	defer func() { _ = mgr.Close() }()

	counts, err := mgr.CleanupExpired(ctx)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	_, err = fmt.Fprintf(out, "oauth_states: %d\nauth_codes: %d\nsessions: %d\ntotal: %d\n",
		counts.States, counts.AuthCodes, counts.Sessions, counts.Total())
	return err
}

func openStore(ctx context.Context, cfg *config.Config) (storage.TokenStore, error) {
	codec, err := cfg.SecretCodec()
	if err != nil {
		return nil, err
	}
	store, err := storage.NewTokenStore(ctx, cfg.StorageConfig(), codec,
		storage.WithCleanupInterval(cfg.Session.CleanupInterval))
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}
	return store, nil
}
