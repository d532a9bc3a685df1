// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"autotaller/internal/auth"
	"autotaller/internal/backend"
	"autotaller/internal/cache"
	"autotaller/internal/config"
	"autotaller/internal/handlers"
	"autotaller/internal/middleware"
	"autotaller/internal/proxy"
	"autotaller/internal/router"
	"autotaller/internal/session"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			slog.SetDefault(newLogger(os.Stdout, cfg.IsDev()))
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("configuration loaded",
		"env", cfg.Env,
		"addr", cfg.Addr(),
		"backend", cfg.BackendURL,
		"sessions", cfg.SessionBackend,
	)

	var store session.Backend
	switch cfg.SessionBackend {
	case config.SessionMemory:
		slog.Warn("sessions kept in process memory; they are lost on restart")
		store = session.NewMemoryBackend()
	default:
		client, err := cache.ConnectValkey(ctx, cfg.ValkeyAddr(), cfg.ValkeyPassword, 0)
		if err != nil {
			return fmt.Errorf("connect to valkey: %w", err)
		}
		defer client.Close()
		store = session.NewValkeyBackend(client)
	}
	sessions := session.NewStore(store, cfg.SessionTTL, cfg.SecureCookies())

	api := backend.New(cfg.BackendURL, cfg.BackendTimeout)
	machine := auth.NewMachine(api, sessions)
	relay := proxy.NewRelay(cfg.BackendURL, api.HTTPClient(), sessions, session.CookieName, middleware.CSRFCookieName)

	opts := router.Options{SecureCookies: cfg.SecureCookies()}
	if cfg.RateLimitPerMinute > 0 {
		opts.Limiter = middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
		defer opts.Limiter.Stop()
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.New(sessions, handlers.NewAuth(machine), relay, opts),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.BackendTimeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return runServer(ctx, srv)
}
