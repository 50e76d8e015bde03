// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the mxcp-auth command-line application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/mxcp-auth/pkg/config"
	"github.com/stacklok/mxcp-auth/pkg/logger"
)

const serviceName = "mxcp-auth"

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               serviceName,
		DisableAutoGenTag: true,
		Short:             "OAuth authentication gateway for MCP servers",
		Long: `mxcp-auth signs users in with an external identity provider and issues
opaque session tokens that protect an MCP server.`,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				logger.Errorf("Error displaying help: %v", err)
			}
		},
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			// picks up --debug
			logger.Initialize()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the YAML configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCleanupCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func loadConfig() (*config.Config, error) {
	return config.Load(config.LoadOptions{Path: viper.GetString("config")})
}
