// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotaller/internal/backend"
	"autotaller/internal/session"
)

// fakeBackend answers with canned results and records what it was sent.
type fakeBackend struct {
	mu sync.Mutex

	login    func(email, password string) (backend.LoginResult, error)
	verify   func(code string) (backend.CodeResult, error)
	calls    int
	cookies  [][]string
	lastCode string
}

func (f *fakeBackend) Login(_ context.Context, email, password string, cookies []string) (backend.LoginResult, error) {
	f.mu.Lock()
	f.calls++
	f.cookies = append(f.cookies, cookies)
	f.mu.Unlock()
	return f.login(email, password)
}

func (f *fakeBackend) VerifySessionCode(_ context.Context, code string, cookies []string) (backend.CodeResult, error) {
	f.mu.Lock()
	f.calls++
	f.cookies = append(f.cookies, cookies)
	f.lastCode = code
	f.mu.Unlock()
	return f.verify(code)
}

type harness struct {
	api      *fakeBackend
	sessions *session.Store
	machine  *Machine
	cookie   *http.Cookie
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	api := &fakeBackend{
		login: func(string, string) (backend.LoginResult, error) {
			return nil, errors.New("unexpected login")
		},
		verify: func(string) (backend.CodeResult, error) {
			return nil, errors.New("unexpected verify")
		},
	}
	store := session.NewStore(session.NewMemoryBackend(), time.Hour, false)
	return &harness{api: api, sessions: store, machine: NewMachine(api, store)}
}

// request builds a request carrying the current browser cookie.
func (h *harness) request() *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	if h.cookie != nil {
		req.AddCookie(h.cookie)
	}
	return req
}

// absorb keeps the last session cookie the response set, like a browser.
func (h *harness) absorb(w *httptest.ResponseRecorder) {
	for _, c := range w.Result().Cookies() {
		if c.Name != session.CookieName {
			continue
		}
		if c.MaxAge < 0 {
			h.cookie = nil
		} else {
			h.cookie = c
		}
	}
}

func (h *harness) stored() *session.Data {
	return h.sessions.Get(context.Background(), h.request())
}

func (h *harness) login(t *testing.T, email, password string) *Outcome {
	t.Helper()
	w := httptest.NewRecorder()
	out, err := h.machine.SubmitLogin(context.Background(), w, h.request(), email, password)
	require.NoError(t, err)
	h.absorb(w)
	return out
}

func (h *harness) verify(t *testing.T, code string) *Outcome {
	t.Helper()
	w := httptest.NewRecorder()
	out, err := h.machine.VerifyMfaCode(context.Background(), w, h.request(), code)
	require.NoError(t, err)
	h.absorb(w)
	return out
}

func TestSubmitLogin_AuthenticatedWritesPrincipal(t *testing.T) {
	h := newHarness(t)
	h.api.login = func(email, password string) (backend.LoginResult, error) {
		assert.Equal(t, "a@b.com", email)
		assert.Equal(t, "x", password)
		return backend.Authenticated{UserID: "7", Name: "Ana", Role: "ADMIN"}, nil
	}

	out := h.login(t, "a@b.com", "x")

	assert.Equal(t, StateAuthenticated, out.State)
	assert.Equal(t, "/private/admin", out.Redirect)

	data := h.stored()
	require.NotNil(t, data)
	assert.Equal(t, &session.Principal{ID: "7", Email: "a@b.com", Role: "ADMIN", Name: "Ana"}, data.Principal)
	assert.Nil(t, data.Challenge)
	assert.Equal(t, out.Principal, data.Principal)
}

func TestSubmitLogin_NameFallsBackToLocalPart(t *testing.T) {
	h := newHarness(t)
	h.api.login = func(string, string) (backend.LoginResult, error) {
		return backend.Authenticated{UserID: "8", Role: "EMPLOYEE"}, nil
	}

	out := h.login(t, "luis.perez@taller.com", "pw")

	require.Equal(t, StateAuthenticated, out.State)
	assert.Equal(t, "luis.perez", h.stored().Principal.Name)
	assert.Equal(t, "/private/employee", out.Redirect)
}

func TestSubmitLogin_UnknownRoleLandsOnDefaultHome(t *testing.T) {
	h := newHarness(t)
	h.api.login = func(string, string) (backend.LoginResult, error) {
		return backend.Authenticated{UserID: "1", Role: "MECHANIC"}, nil
	}

	out := h.login(t, "m@taller.com", "pw")

	assert.Equal(t, StateAuthenticated, out.State)
	assert.Equal(t, "/private/dashboard", out.Redirect)
	assert.Equal(t, "MECHANIC", h.stored().Principal.Role)
}

func TestSubmitLogin_MfaRequiredWritesNoPrincipal(t *testing.T) {
	h := newHarness(t)
	h.api.login = func(string, string) (backend.LoginResult, error) {
		return backend.MfaRequired{Role: "CUSTOMER", Cookies: []string{"BSESSION=1"}}, nil
	}

	out := h.login(t, "c@d.com", "pw")

	assert.Equal(t, StateMfaPending, out.State)
	assert.Equal(t, "CUSTOMER", out.PendingRole)
	assert.Nil(t, out.Principal)

	data := h.stored()
	require.NotNil(t, data)
	assert.Nil(t, data.Principal)
	assert.True(t, data.MFAPending())
	assert.Equal(t, "CUSTOMER", data.Challenge.Role)
	assert.Equal(t, "c@d.com", data.Challenge.Email)
	assert.Equal(t, []string{"BSESSION=1"}, data.BackendCookies)
}

func TestSubmitLogin_Failures(t *testing.T) {
	tests := []struct {
		name    string
		result  backend.LoginResult
		err     error
		wantMsg string
	}{
		{"transport", nil, fmt.Errorf("%w: dial tcp", backend.ErrTransport), MsgInvalidCredentials},
		{"malformed", nil, backend.ErrMalformed, MsgInvalidCredentials},
		{"rejected with message", backend.Rejected{Status: 401, Message: "Credenciales incorrectas"}, nil, "Credenciales incorrectas"},
		{"rejected without message", backend.Rejected{Status: 500}, nil, MsgInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.api.login = func(string, string) (backend.LoginResult, error) { return tt.result, tt.err }

			out := h.login(t, "a@b.com", "x")

			assert.Equal(t, StateFailed, out.State)
			assert.Equal(t, tt.wantMsg, out.Message)
			assert.Nil(t, h.stored())
			assert.Equal(t, 1, h.api.calls, "no retry")
		})
	}
}

func TestSubmitLogin_Validation(t *testing.T) {
	h := newHarness(t)
	for _, in := range [][2]string{{"", "x"}, {"  ", "x"}, {"a@b.com", ""}} {
		_, err := h.machine.SubmitLogin(context.Background(), httptest.NewRecorder(), h.request(), in[0], in[1])
		assert.ErrorIs(t, err, ErrValidation, "input %q", in)
	}
	assert.Zero(t, h.api.calls, "validation must not reach the backend")
}

func TestSubmitLogin_RotatesSession(t *testing.T) {
	h := newHarness(t)
	h.api.login = func(string, string) (backend.LoginResult, error) {
		return backend.MfaRequired{Role: "ADMIN"}, nil
	}
	h.login(t, "a@b.com", "x")
	first := h.cookie
	require.NotNil(t, first)

	h.api.login = func(string, string) (backend.LoginResult, error) {
		return backend.Authenticated{UserID: "1", Role: "ADMIN"}, nil
	}
	h.login(t, "a@b.com", "x")
	require.NotNil(t, h.cookie)
	assert.NotEqual(t, first.Value, h.cookie.Value)

	// The old record is gone.
	old := httptest.NewRequest(http.MethodGet, "/", nil)
	old.AddCookie(first)
	assert.Nil(t, h.sessions.Get(context.Background(), old))
}

func TestSubmitLogin_RejectsConcurrentSubmit(t *testing.T) {
	h := newHarness(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	h.api.login = func(string, string) (backend.LoginResult, error) {
		close(entered)
		<-release
		return backend.Authenticated{UserID: "1", Role: "ADMIN"}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.machine.SubmitLogin(context.Background(), httptest.NewRecorder(), h.request(), "a@b.com", "x")
		done <- err
	}()
	<-entered

	_, err := h.machine.SubmitLogin(context.Background(), httptest.NewRecorder(), h.request(), "A@B.com", "x")
	assert.ErrorIs(t, err, ErrInFlight)

	close(release)
	require.NoError(t, <-done)

	// Once settled the key is free again.
	h.api.login = func(string, string) (backend.LoginResult, error) {
		return backend.Rejected{Status: 401}, nil
	}
	out := h.login(t, "a@b.com", "x")
	assert.Equal(t, StateFailed, out.State)
}

func TestVerifyMfaCode_Accepted(t *testing.T) {
	h := newHarness(t)
	h.api.login = func(string, string) (backend.LoginResult, error) {
		return backend.MfaRequired{Role: "SUPPLIER", Cookies: []string{"BSESSION=1"}}, nil
	}
	h.login(t, "s@prov.com", "pw")

	h.api.verify = func(code string) (backend.CodeResult, error) {
		return backend.Authenticated{UserID: "9", Role: "SUPPLIER", Cookies: []string{"BAUTH=2"}}, nil
	}
	out := h.verify(t, "000000")

	assert.Equal(t, StateAuthenticated, out.State)
	assert.Equal(t, "/private/supplier", out.Redirect)
	assert.Equal(t, "000000", h.api.lastCode)
	assert.Equal(t, []string{"BSESSION=1"}, h.api.cookies[1], "login cookies replayed on verification")

	data := h.stored()
	require.NotNil(t, data)
	assert.Equal(t, &session.Principal{ID: "9", Email: "s@prov.com", Role: "SUPPLIER", Name: "s"}, data.Principal)
	assert.Nil(t, data.Challenge)
	assert.Equal(t, []string{"BSESSION=1", "BAUTH=2"}, data.BackendCookies)
}

func TestVerifyMfaCode_RejectedKeepsChallenge(t *testing.T) {
	h := newHarness(t)
	h.api.login = func(string, string) (backend.LoginResult, error) {
		return backend.MfaRequired{Role: "CUSTOMER"}, nil
	}
	h.login(t, "c@d.com", "pw")

	h.api.verify = func(string) (backend.CodeResult, error) {
		return backend.Rejected{Status: 200}, nil
	}
	out := h.verify(t, "111111")
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, MsgInvalidCode, out.Message)
	assert.Equal(t, "CUSTOMER", out.PendingRole)
	assert.True(t, h.stored().MFAPending())

	h.api.verify = func(string) (backend.CodeResult, error) {
		return backend.Rejected{Status: 200, Message: "Código expirado"}, nil
	}
	out = h.verify(t, "222222")
	assert.Equal(t, "Código expirado", out.Message)

	h.api.verify = func(string) (backend.CodeResult, error) {
		return nil, backend.ErrTransport
	}
	out = h.verify(t, "333333")
	assert.Equal(t, StateFailed, out.State)
	assert.True(t, h.stored().MFAPending())
}

func TestVerifyMfaCode_WithoutChallenge(t *testing.T) {
	h := newHarness(t)
	out := h.verify(t, "123456")
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, MsgNoChallenge, out.Message)
	assert.Zero(t, h.api.calls)

	// An authenticated session has no challenge either.
	h.api.login = func(string, string) (backend.LoginResult, error) {
		return backend.Authenticated{UserID: "1", Role: "ADMIN"}, nil
	}
	h.login(t, "a@b.com", "x")
	out = h.verify(t, "123456")
	assert.Equal(t, MsgNoChallenge, out.Message)
	assert.True(t, h.stored().Authenticated())
}

func TestVerifyMfaCode_EmptyCode(t *testing.T) {
	h := newHarness(t)
	_, err := h.machine.VerifyMfaCode(context.Background(), httptest.NewRecorder(), h.request(), "  ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCurrent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	assert.Equal(t, StateIdle, h.machine.Current(ctx, h.request()).State)

	h.api.login = func(string, string) (backend.LoginResult, error) {
		return backend.MfaRequired{Role: "ADMIN"}, nil
	}
	h.login(t, "a@b.com", "x")
	cur := h.machine.Current(ctx, h.request())
	assert.Equal(t, StateMfaPending, cur.State)
	assert.Equal(t, "ADMIN", cur.PendingRole)

	h.api.verify = func(string) (backend.CodeResult, error) {
		return backend.Authenticated{UserID: "1", Role: "ADMIN"}, nil
	}
	h.verify(t, "123456")
	cur = h.machine.Current(ctx, h.request())
	assert.Equal(t, StateAuthenticated, cur.State)
	assert.Equal(t, "/private/admin", cur.Redirect)
}

func TestVerifyMfaCode_RejectsConcurrentSubmit(t *testing.T) {
	h := newHarness(t)
	h.api.login = func(string, string) (backend.LoginResult, error) {
		return backend.MfaRequired{Role: "ADMIN"}, nil
	}
	h.login(t, "a@b.com", "x")

	entered := make(chan struct{})
	release := make(chan struct{})
	h.api.verify = func(string) (backend.CodeResult, error) {
		close(entered)
		<-release
		return backend.Authenticated{UserID: "1", Role: "ADMIN"}, nil
	}

	req := h.request()
	done := make(chan error, 1)
	go func() {
		_, err := h.machine.VerifyMfaCode(context.Background(), httptest.NewRecorder(), req, "123456")
		done <- err
	}()
	<-entered

	assert.Equal(t, StateVerifyingCode, h.machine.Current(context.Background(), h.request()).State)
	_, err := h.machine.VerifyMfaCode(context.Background(), httptest.NewRecorder(), h.request(), "123456")
	assert.ErrorIs(t, err, ErrInFlight)

	close(release)
	require.NoError(t, <-done)
}

func TestResendCode(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, StateFailed, h.machine.ResendCode(context.Background(), h.request()).State)

	h.api.login = func(string, string) (backend.LoginResult, error) {
		return backend.MfaRequired{Role: "EMPLOYEE"}, nil
	}
	h.login(t, "e@taller.com", "x")
	calls := h.api.calls

	out := h.machine.ResendCode(context.Background(), h.request())
	assert.Equal(t, StateMfaPending, out.State)
	assert.Equal(t, "EMPLOYEE", out.PendingRole)
	assert.Equal(t, calls, h.api.calls, "resend does not call the backend")
}

func TestCancelChallenge(t *testing.T) {
	h := newHarness(t)
	h.api.login = func(string, string) (backend.LoginResult, error) {
		return backend.MfaRequired{}, nil
	}
	h.login(t, "a@b.com", "x")

	w := httptest.NewRecorder()
	require.NoError(t, h.machine.CancelChallenge(context.Background(), w, h.request()))
	assert.Nil(t, h.stored())
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.api.login = func(string, string) (backend.LoginResult, error) {
		return backend.Authenticated{UserID: "1", Role: "ADMIN"}, nil
	}
	h.login(t, "a@b.com", "x")
	require.NotNil(t, h.stored())
	req := h.request()
	calls := h.api.calls

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		require.NoError(t, h.machine.Logout(context.Background(), w, req))
		assert.Nil(t, h.sessions.Get(context.Background(), req))
	}
	assert.Equal(t, calls, h.api.calls, "logout does not call the backend")

	// Logging out with no session at all is fine too.
	require.NoError(t, h.machine.Logout(context.Background(), httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/logout", nil)))
}

// delFailing is a session backend whose deletes always fail.
type delFailing struct{ session.Backend }

func (delFailing) Del(context.Context, string) error { return errors.New("valkey: i/o timeout") }

func TestLogout_StoreFailureStillEndsBrowserSession(t *testing.T) {
	h := newHarness(t)
	h.sessions = session.NewStore(delFailing{session.NewMemoryBackend()}, time.Hour, false)
	h.machine = NewMachine(h.api, h.sessions)
	h.api.login = func(string, string) (backend.LoginResult, error) {
		return backend.Authenticated{UserID: "1", Role: "ADMIN"}, nil
	}
	h.login(t, "a@b.com", "x")
	require.NotNil(t, h.stored())

	w := httptest.NewRecorder()
	assert.Error(t, h.machine.Logout(context.Background(), w, h.request()))
	h.absorb(w)

	assert.Nil(t, h.cookie, "session cookie must be expired")
	assert.Nil(t, h.stored())
}

// countingBackend counts session reads.
type countingBackend struct {
	session.Backend
	mu   sync.Mutex
	gets int
}

func (c *countingBackend) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	c.gets++
	c.mu.Unlock()
	return c.Backend.Get(ctx, key)
}

func (c *countingBackend) reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gets
}

func TestVerifyMfaCode_ReadsChallengeOnlyUnderGuard(t *testing.T) {
	h := newHarness(t)
	be := &countingBackend{Backend: session.NewMemoryBackend()}
	h.sessions = session.NewStore(be, time.Hour, false)
	h.machine = NewMachine(h.api, h.sessions)
	h.api.login = func(string, string) (backend.LoginResult, error) {
		return backend.MfaRequired{Role: "ADMIN"}, nil
	}
	h.login(t, "a@b.com", "x")

	key := "sid:" + h.cookie.Value
	require.True(t, h.machine.busy.acquire(key))
	before := be.reads()

	_, err := h.machine.VerifyMfaCode(context.Background(), httptest.NewRecorder(), h.request(), "123456")
	assert.ErrorIs(t, err, ErrInFlight)
	assert.Equal(t, before, be.reads(), "session must not be read before the guard is held")

	h.machine.busy.release(key)
}

func TestMergeCookies(t *testing.T) {
	assert.Equal(t, []string{"a=1"}, mergeCookies([]string{"a=1"}, nil))
	assert.Equal(t, []string{"b=2", "a=3"}, mergeCookies([]string{"a=1", "b=2"}, []string{"a=3"}))
	assert.Equal(t, []string{"c=1"}, mergeCookies(nil, []string{"c=1"}))
}

func TestLocalPart(t *testing.T) {
	assert.Equal(t, "ana", localPart("ana@b.com"))
	assert.Equal(t, "noatsign", localPart("noatsign"))
}
