// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// handler_test.go provides shared test infrastructure for handler tests: a
// fake backend API served by httptest, the memory session store and a small
// router that carries cookies between requests like a browser would.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"autotaller/internal/auth"
	"autotaller/internal/backend"
	"autotaller/internal/middleware"
	"autotaller/internal/session"
)

// fakeAPI stands in for the external backend.
type fakeAPI struct {
	mu sync.Mutex

	loginStatus int
	loginBody   string
	loginCookie *http.Cookie
	codeStatus  int
	codeBody    string

	loginCalls int
	codeCalls  int
	codeCookie string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	io.Copy(io.Discard, r.Body)

	switch r.URL.Path {
	case backend.LoginPath:
		f.loginCalls++
		if f.loginCookie != nil {
			http.SetCookie(w, f.loginCookie)
		}
		w.WriteHeader(f.loginStatus)
		io.WriteString(w, f.loginBody)
	case backend.SessionCodePath:
		f.codeCalls++
		f.codeCookie = r.Header.Get("Cookie")
		w.WriteHeader(f.codeStatus)
		io.WriteString(w, f.codeBody)
	default:
		http.NotFound(w, r)
	}
}

// testEnv wires the handlers the way the router does, minus CSRF.
type testEnv struct {
	t        *testing.T
	api      *fakeAPI
	sessions *session.Store
	handler  http.Handler
	cookies  map[string]*http.Cookie
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	api := &fakeAPI{loginStatus: http.StatusOK, codeStatus: http.StatusOK}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	sessions := session.NewStore(session.NewMemoryBackend(), time.Hour, false)
	machine := auth.NewMachine(backend.New(srv.URL, 5*time.Second), sessions)
	a := NewAuth(machine)

	r := chi.NewRouter()
	r.Use(middleware.LoadSession(sessions))
	for _, p := range []string{"/", "/login"} {
		r.Get(p, a.LoginPage)
		r.Post(p, a.LoginSubmit)
	}
	r.Post("/login/mfa", a.VerifyCode)
	r.Delete("/login/mfa", a.CancelMFA)
	r.Post("/login/mfa/resend", a.ResendCode)
	r.Post("/logout", a.Logout)
	r.Get("/api/session", a.Session)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Shell)
		r.Get("/private", Shell{}.Page)
		r.Get("/private/*", Shell{}.Page)
	})

	return &testEnv{
		t:        t,
		api:      api,
		sessions: sessions,
		handler:  r,
		cookies:  make(map[string]*http.Cookie),
	}
}

// do sends a request carrying the cookies collected so far and absorbs the
// cookies set by the response.
func (e *testEnv) do(method, path, contentType, body string) *httptest.ResponseRecorder {
	e.t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, c := range e.cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(e.cookies, c.Name)
			continue
		}
		e.cookies[c.Name] = c
	}
	return rec
}

func (e *testEnv) postJSON(path, body string) *httptest.ResponseRecorder {
	e.t.Helper()
	return e.do(http.MethodPost, path, "application/json", body)
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	e.t.Helper()
	return e.do(http.MethodGet, path, "", "")
}

// decodeBody unmarshals a JSON response body into a generic map.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("body is not JSON: %v (%q)", err, rec.Body.String())
	}
	return m
}
