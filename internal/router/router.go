// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package router sets up the HTTP routes and middleware chains of the
// console: the public sign-in endpoints, the role-gated private area and the
// backend proxy table.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"autotaller/internal/handlers"
	"autotaller/internal/middleware"
	"autotaller/internal/proxy"
	"autotaller/internal/render"
	"autotaller/internal/roles"
	"autotaller/internal/session"
)

// Options tunes the middleware stack.
type Options struct {
	// SecureCookies marks the CSRF cookie Secure (TLS deployments).
	SecureCookies bool
	// Limiter throttles every request by client IP. Nil disables it.
	Limiter *middleware.RateLimiter
}

// New creates the chi router with all middleware and route groups wired up.
func New(sessions session.Reader, auth *handlers.Auth, relay *proxy.Relay, opts Options) chi.Router {
	r := chi.NewRouter()

	// Global middleware, applied to every request.
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.SecureHeaders)
	if opts.Limiter != nil {
		r.Use(opts.Limiter.Middleware)
	}
	r.Use(middleware.LoadSession(sessions))

	// Health check: no CSRF cookie, no auth.
	r.Get("/health", healthHandler)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRF(opts.SecureCookies))

		// Sign-in: "/" and the login route are equivalent entry points.
		for _, p := range []string{"/", roles.LoginRoute} {
			r.Get(p, auth.LoginPage)
			r.Post(p, auth.LoginSubmit)
		}
		r.Post(roles.LoginRoute+"/mfa", auth.VerifyCode)
		r.Delete(roles.LoginRoute+"/mfa", auth.CancelMFA)
		r.Post(roles.LoginRoute+"/mfa/resend", auth.ResendCode)
		r.Post("/logout", auth.Logout)
		r.Get("/api/session", auth.Session)

		// Private area: only signed-in principals, menu chosen by role.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Use(middleware.Shell)
			shell := handlers.Shell{}
			r.Get(roles.PrivateRoot, shell.Page)
			r.Get(roles.PrivateRoot+"/*", shell.Page)
		})

		// Backend proxy. Recovery and registration are open; everything
		// else needs a signed-in session.
		authed := r.With(middleware.RequireAPIAuth)
		for _, rt := range proxy.Routes() {
			if rt.Public {
				r.Method(rt.Method, rt.Pattern, relay.Handler(rt))
				continue
			}
			authed.Method(rt.Method, rt.Pattern, relay.Handler(rt))
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		render.Error(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		render.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}

// healthHandler returns a simple JSON health check response.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
