// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"autotaller/internal/config"
	"autotaller/internal/devbackend"
	"autotaller/internal/middleware"
)

func newDevBackendCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "devbackend",
		Short: "Run a local stand-in for the shop backend API",
		Long: `devbackend serves the backend API contract over seeded fixture users, one
per role. Customer and supplier accounts use TOTP; scan
/dev/mfa/qr?email=<address> into an authenticator app to get codes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.SetDefault(newLogger(os.Stdout, true))

			if addr == "" {
				cfg, err := config.Load()
				if err != nil {
					return fmt.Errorf("load configuration: %w", err)
				}
				addr = cfg.DevBackendAddr
			}

			api, err := devbackend.New(devbackend.Options{})
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           middleware.Logger(api.Handler()),
				ReadHeaderTimeout: 5 * time.Second,
			}
			return runServer(cmd.Context(), srv)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default DEV_BACKEND_ADDR)")
	return cmd
}
