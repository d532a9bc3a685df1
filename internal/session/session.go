// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package session provides cookie-addressed server-side sessions for the
// console. A session record holds either the authenticated principal or a
// pending MFA challenge, stored as JSON in a key/value backend (Valkey in
// production) with a TTL.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	// CookieName is the name of the session cookie sent to the browser.
	CookieName = "at_session"

	// DefaultTTL bounds how long an idle session lives in the backend.
	DefaultTTL = 8 * time.Hour

	// keyPrefix namespaces session keys in Valkey to avoid collisions.
	keyPrefix = "session:"

	// idLength is the byte length of the random session ID (32 bytes = 64 hex chars).
	idLength = 32
)

// Principal is the authenticated user as recorded in the session. The JSON
// layout is the persisted client-state layout, including the "rol" key.
type Principal struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Role     string `json:"rol"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
}

// Challenge is the state of an MFA challenge that has been issued but not
// yet answered.
type Challenge struct {
	Pending bool   `json:"pending"`
	Role    string `json:"role,omitempty"`
	Email   string `json:"email"`
}

// Data is the session payload. A record carries a Principal once
// authentication has completed, or a pending Challenge before that, never
// both. BackendCookies are the "name=value" cookies the backend API issued
// to this browser session; they are presented again on every backend call
// made on its behalf.
type Data struct {
	Principal      *Principal `json:"principal,omitempty"`
	Challenge      *Challenge `json:"challenge,omitempty"`
	BackendCookies []string   `json:"backend_cookies,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Authenticated reports whether the record holds a principal.
func (d *Data) Authenticated() bool {
	return d != nil && d.Principal != nil
}

// MFAPending reports whether the record holds an unanswered challenge.
func (d *Data) MFAPending() bool {
	return d != nil && d.Principal == nil && d.Challenge != nil && d.Challenge.Pending
}

// Reader is the read-only view of the store handed to everything except
// the auth state machine.
type Reader interface {
	Get(ctx context.Context, r *http.Request) *Data
}

// Store manages session lifecycle on top of a Backend.
type Store struct {
	backend Backend
	ttl     time.Duration
	secure  bool
}

// NewStore creates a session store. When secure is true the cookie is only
// sent over HTTPS.
func NewStore(backend Backend, ttl time.Duration, secure bool) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		backend: backend,
		ttl:     ttl,
		secure:  secure,
	}
}

// Create generates a new session, stores it, and sets the session cookie
// on the response. The cookie has no Max-Age, so it ends with the browser
// session. Returns the session ID.
func (s *Store) Create(ctx context.Context, w http.ResponseWriter, data *Data) (string, error) {
	id, err := generateID()
	if err != nil {
		return "", fmt.Errorf("session create: %w", err)
	}

	data.CreatedAt = time.Now()

	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("session marshal: %w", err)
	}

	if err := s.backend.Set(ctx, keyPrefix+id, payload, s.ttl); err != nil {
		return "", fmt.Errorf("session store: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})

	return id, nil
}

// Get retrieves the session addressed by the request cookie. It never
// fails: a missing cookie, an expired key, a backend error or a payload that
// does not decode all yield nil.
func (s *Store) Get(ctx context.Context, r *http.Request) *Data {
	id := ID(r)
	if id == "" {
		return nil
	}

	payload, err := s.backend.Get(ctx, keyPrefix+id)
	if err != nil {
		slog.Warn("session get failed", "error", err)
		return nil
	}
	if payload == nil {
		return nil
	}

	var data Data
	if err := json.Unmarshal(payload, &data); err != nil {
		slog.Warn("discarding malformed session", "error", err)
		return nil
	}

	return &data
}

// Update replaces the session data without changing the session ID or
// cookie. Resets the TTL.
func (s *Store) Update(ctx context.Context, r *http.Request, data *Data) error {
	id := ID(r)
	if id == "" {
		return fmt.Errorf("session update: no cookie")
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("session marshal: %w", err)
	}

	if err := s.backend.Set(ctx, keyPrefix+id, payload, s.ttl); err != nil {
		return fmt.Errorf("session update: %w", err)
	}

	return nil
}

// Destroy removes the session and expires the cookie. The cookie is expired
// even when the backend delete fails; that error is still returned. Calling
// it without a session is not an error.
func (s *Store) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id := ID(r)
	if id == "" {
		return nil
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		MaxAge:   -1,
	})

	if err := s.backend.Del(ctx, keyPrefix+id); err != nil {
		return fmt.Errorf("session destroy: %w", err)
	}
	return nil
}

// Discard deletes the record the request points at without touching the
// cookie. It is used when a new session is about to replace the old one in
// the same response.
func (s *Store) Discard(ctx context.Context, r *http.Request) error {
	id := ID(r)
	if id == "" {
		return nil
	}
	if err := s.backend.Del(ctx, keyPrefix+id); err != nil {
		return fmt.Errorf("session discard: %w", err)
	}
	return nil
}

// ID returns the session ID carried by the request, or "".
func ID(r *http.Request) string {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// generateID creates a cryptographically random session identifier.
func generateID() (string, error) {
	b := make([]byte, idLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
