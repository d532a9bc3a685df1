// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package devbackend is a local stand-in for the external shop API. It
// speaks the same wire contract as the real backend (including its quirks)
// so the console can be run and tested without it. It is never used in
// production.
package devbackend

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/crypto/bcrypt"

	"autotaller/internal/backend"
)

// MFACookie carries the pending second-factor challenge between /login and
// /session_code.
const MFACookie = "dev_mfa"

// challengeTTL bounds how long a pending challenge stays valid.
const challengeTTL = 5 * time.Minute

// Messages in the backend's language.
const (
	msgBadCredentials = "Credenciales inválidas"
	msgBadCode        = "Código inválido"
	msgNoChallenge    = "No hay verificación pendiente"
)

// Options configures a Server.
type Options struct {
	Fixtures []Fixture
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

type challenge struct {
	email   string
	expires time.Time
}

// Server implements the backend API contract over seeded fixture users.
type Server struct {
	users *userStore
	now   func() time.Time

	mu         sync.Mutex
	challenges map[string]challenge
}

// New seeds the fixture users and returns the server.
func New(opts Options) (*Server, error) {
	if opts.Fixtures == nil {
		opts.Fixtures = DefaultFixtures()
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	users, err := seed(opts.Fixtures, opts.BcryptCost)
	if err != nil {
		return nil, err
	}

	slog.Info("dev backend seeded", "users", users.Emails(), "password", DefaultPassword)
	return &Server{
		users:      users,
		now:        time.Now,
		challenges: make(map[string]challenge),
	}, nil
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post(backend.LoginPath, s.login)
	r.Post(backend.SessionCodePath, s.sessionCode)
	r.Get("/dev/mfa/qr", s.enrolmentQR)
	r.Post("/api/user/forgot-password", s.forgotPassword)
	r.HandleFunc("/api/*", s.echo)
	return r
}

// Secret returns the TOTP secret of an MFA user, or "" for anyone else.
func (s *Server) Secret(email string) string {
	u := s.users.FindByEmail(email)
	if u == nil || u.TOTP == nil {
		return ""
	}
	return u.TOTP.Secret()
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{backend.FieldMesssage: "JSON inválido"})
		return
	}

	u := s.users.FindByEmail(in.Email)
	if u == nil || !s.users.CheckPassword(u, in.Password) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{backend.FieldMesssage: msgBadCredentials})
		return
	}

	if u.TOTP != nil {
		token := uuid.NewString()
		s.mu.Lock()
		s.challenges[token] = challenge{email: u.Email, expires: s.now().Add(challengeTTL)}
		s.mu.Unlock()

		http.SetCookie(w, &http.Cookie{Name: MFACookie, Value: token, Path: "/", HttpOnly: true})
		// The role hint is sent before the second factor, as the real API does.
		writeJSON(w, http.StatusOK, map[string]any{
			backend.FieldUsaMfa: true,
			backend.FieldRole:   u.Role,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		backend.FieldUsaMfa: false,
		backend.FieldRole:   u.Role,
		backend.FieldUserID: u.ID,
		backend.FieldName:   u.Name,
	})
}

// sessionCode always answers 200 at the transport level and reports the
// outcome in codeHttp, like the real API.
func (s *Server) sessionCode(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Code string `json:"code"`
	}
	json.NewDecoder(r.Body).Decode(&in)

	u := s.pending(r)
	if u == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			backend.FieldCodeHTTP: http.StatusUnauthorized,
			backend.FieldMesssage: msgNoChallenge,
		})
		return
	}

	if !totp.Validate(strings.TrimSpace(in.Code), u.TOTP.Secret()) {
		writeJSON(w, http.StatusOK, map[string]any{
			backend.FieldCodeHTTP: http.StatusUnauthorized,
			backend.FieldMesssage: msgBadCode,
		})
		return
	}

	if c, err := r.Cookie(MFACookie); err == nil {
		s.mu.Lock()
		delete(s.challenges, c.Value)
		s.mu.Unlock()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		backend.FieldCodeHTTP: backend.CodeAccepted,
		backend.FieldRole:     u.Role,
		backend.FieldUserID:   u.ID,
		backend.FieldName:     u.Name,
	})
}

// pending resolves the challenge cookie to its user.
func (s *Server) pending(r *http.Request) *user {
	c, err := r.Cookie(MFACookie)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	ch, ok := s.challenges[c.Value]
	if ok && s.now().After(ch.expires) {
		delete(s.challenges, c.Value)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.users.FindByEmail(ch.email)
}

// enrolmentQR renders the otpauth URL of an MFA user as a PNG so it can be
// scanned into an authenticator app.
func (s *Server) enrolmentQR(w http.ResponseWriter, r *http.Request) {
	u := s.users.FindByEmail(r.URL.Query().Get("email"))
	if u == nil || u.TOTP == nil {
		http.NotFound(w, r)
		return
	}

	png, err := qrcode.Encode(u.TOTP.URL(), qrcode.Medium, 256)
	if err != nil {
		slog.Error("qr code generation failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

// forgotPassword reproduces the real API: the email goes out, yet the
// answer is a plain-text 500.
func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	io.Copy(io.Discard, r.Body)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

// echo answers any other /api/ call with what it received.
func (s *Server) echo(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodDelete {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var body any
	if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{backend.FieldError: "invalid JSON"})
			return
		}
	}
	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
		"query":  r.URL.RawQuery,
		"body":   body,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
