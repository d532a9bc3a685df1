// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"context"
	"net/http"

	"autotaller/internal/render"
	"autotaller/internal/roles"
	"autotaller/internal/session"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

const (
	// SessionKey is the context key for the session data.
	SessionKey contextKey = "session"

	// MenuKey is the context key for the role navigation menu.
	MenuKey contextKey = "menu"
)

// LoadSession reads the session once and stores it in the request context.
// It never blocks a request: a missing or unreadable session simply leaves
// the context empty.
func LoadSession(sessions session.Reader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if data := sessions.Get(r.Context(), r); data != nil {
				r = r.WithContext(context.WithValue(r.Context(), SessionKey, data))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth redirects requests without a signed-in principal to the login
// route. A session still waiting for its MFA code does not count.
// Must be applied after LoadSession.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFromCtx(r.Context()) == nil {
			http.Redirect(w, r, roles.LoginRoute, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAPIAuth is RequireAuth for JSON endpoints: it answers 401 instead
// of redirecting.
func RequireAPIAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFromCtx(r.Context()) == nil {
			render.Error(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SessionFromCtx extracts the session data from the request context.
// Returns nil if no session is loaded.
func SessionFromCtx(ctx context.Context) *session.Data {
	data, _ := ctx.Value(SessionKey).(*session.Data)
	return data
}

// PrincipalFromCtx returns the signed-in principal, or nil when the request
// has no session or the session is only an MFA challenge.
func PrincipalFromCtx(ctx context.Context) *session.Principal {
	data := SessionFromCtx(ctx)
	if !data.Authenticated() {
		return nil
	}
	return data.Principal
}
