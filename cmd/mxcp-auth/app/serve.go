// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/mxcp-auth/pkg/auth/middleware"
	"github.com/stacklok/mxcp-auth/pkg/auth/provider"
	"github.com/stacklok/mxcp-auth/pkg/auth/service"
	"github.com/stacklok/mxcp-auth/pkg/config"
	"github.com/stacklok/mxcp-auth/pkg/logger"
	"github.com/stacklok/mxcp-auth/pkg/telemetry"
	"github.com/stacklok/mxcp-auth/pkg/versions"
)

const (
	readHeaderTimeout = 10 * time.Second
	metricsPath       = "/metrics"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server with OAuth authentication",
		Long: `Start the HTTP server. It serves the OAuth endpoints, the protected
resource metadata, Prometheus metrics and an MCP endpoint guarded by
bearer token authentication.

Send SIGHUP to reload the provider configuration without a restart.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
}

// components is everything serve builds from the configuration.
type components struct {
	telemetry *telemetry.Provider
	service   *service.Service
	handler   http.Handler
}

func (c *components) close(ctx context.Context) {
	if c.service != nil {
		if err := c.service.Close(); err != nil {
			logger.Warnw("failed to close auth service", "error", err)
		}
	}
	if err := c.telemetry.Shutdown(ctx); err != nil {
		logger.Warnw("failed to shut down telemetry", "error", err)
	}
}

// build wires the server. Without a provider the MCP endpoint is served
// without authentication.
func build(ctx context.Context, cfg *config.Config) (_ *components, err error) {
	tp, err := telemetry.NewProvider(ctx, cfg.TelemetryConfig(serviceName, versions.GetVersionInfo().Version))
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}
	c := &components{telemetry: tp}
	defer func() {
		if err != nil {
			c.close(context.WithoutCancel(ctx))
		}
	}()

	metrics, err := telemetry.NewAuthMetrics(tp.MeterProvider())
	if err != nil {
		return nil, err
	}
	requestMetrics, err := telemetry.NewHTTPMiddleware(tp.MeterProvider(), tp.TracerProvider())
	if err != nil {
		return nil, err
	}

	var mw *middleware.Middleware
	if cfg.Provider.Name != "" {
		adapter, err := provider.NewAdapter(ctx, cfg.ProviderConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create provider %s: %w", cfg.Provider.Name, err)
		}
		store, err := openStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		svc, err := service.New(adapter, store, cfg.ServiceConfig(),
			service.WithMetrics(metrics),
			service.WithTracerProvider(tp.TracerProvider()),
			service.WithSessionOptions(cfg.SessionOptions()...))
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		c.service = svc
		if err := svc.Initialize(ctx); err != nil {
			return nil, err
		}
		mw = svc.Middleware()
	} else {
		logger.Warn("no identity provider configured; the MCP endpoint is not authenticated")
		mw = middleware.New(nil, nil, middleware.Config{})
	}

	c.handler = newRouter(c.service, mw, requestMetrics, tp.PrometheusHandler(), newMCPHandler(newMCPServer()))
	return c, nil
}

func newRouter(
	svc *service.Service,
	mw *middleware.Middleware,
	requestMetrics *telemetry.HTTPMiddleware,
	metrics, mcpHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, requestMetrics.Handler)

	if svc != nil {
		r.Mount("/", svc.Routes())
	}
	if metrics != nil {
		r.Handle(metricsPath, metrics)
	}
	r.Handle(mcpEndpoint, mw.RequireAuth(mcpHandler))
	return r
}

func runServe(ctx context.Context, cfg *config.Config) error {
	c, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.close(context.WithoutCancel(ctx))

	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              cfg.Server.Address,
		Handler:           c.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infow("starting server", "address", cfg.Server.Address, "base_url", cfg.Server.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		logger.Info("server stopped")
		return nil
	})
	if c.service != nil {
		g.Go(func() error {
			reloadOnHangup(gctx, c.service)
			return nil
		})
	}
	return g.Wait()
}

// reloadOnHangup rebuilds the provider adapter from a fresh configuration on
// SIGHUP and swaps it into svc. A failed reload keeps the current adapter.
func reloadOnHangup(ctx context.Context, svc *service.Service) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := reloadProvider(ctx, svc, loadConfig); err != nil {
				logger.Errorw("provider reload failed; keeping the current provider", "error", err)
			}
		}
	}
}

func reloadProvider(ctx context.Context, svc *service.Service, load func() (*config.Config, error)) error {
	cfg, err := load()
	if err != nil {
		return err
	}
	adapter, err := provider.NewAdapter(ctx, cfg.ProviderConfig())
	if err != nil {
		return err
	}
	return svc.ReplaceProvider(ctx, adapter)
}
