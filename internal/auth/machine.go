// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package auth implements the console sign-in handshake: credential
// submission, the optional MFA code challenge, session issuance and the
// role-based landing redirect. It is the only writer of the session store.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"autotaller/internal/backend"
	"autotaller/internal/roles"
	"autotaller/internal/session"
)

// State is a step of the sign-in handshake.
type State string

const (
	StateIdle          State = "idle"
	StateSubmitting    State = "submitting"
	StateMfaPending    State = "mfa_pending"
	StateVerifyingCode State = "verifying_code"
	StateAuthenticated State = "authenticated"
	StateFailed        State = "failed"
)

// User-facing messages used when the backend does not provide one.
const (
	MsgInvalidCredentials = "Invalid credentials."
	MsgInvalidCode        = "Invalid code."
	MsgNoChallenge        = "No pending verification. Please sign in again."
)

var (
	// ErrValidation is returned when input is rejected before any network
	// call is made.
	ErrValidation = errors.New("validation failed")

	// ErrInFlight is returned when a submission arrives while an earlier one
	// for the same session (or email) is still outstanding.
	ErrInFlight = errors.New("a submission is already in progress")
)

// Outcome is the result of a handshake step.
type Outcome struct {
	State State
	// Principal is set when State is StateAuthenticated.
	Principal *session.Principal
	// Redirect is the role home the caller should navigate to after
	// authentication.
	Redirect string
	// Message is shown to the user when State is StateFailed.
	Message string
	// PendingRole is the role hint remembered while an MFA challenge is open.
	PendingRole string
}

// Backend is the part of the backend API the handshake depends on.
type Backend interface {
	Login(ctx context.Context, email, password string, cookies []string) (backend.LoginResult, error)
	VerifySessionCode(ctx context.Context, code string, cookies []string) (backend.CodeResult, error)
}

// Machine drives the sign-in handshake. A single Machine serves every
// browser session; per-session state lives in the session store.
type Machine struct {
	api      Backend
	sessions *session.Store
	busy     *inflight
}

// NewMachine creates the handshake driver.
func NewMachine(api Backend, sessions *session.Store) *Machine {
	return &Machine{
		api:      api,
		sessions: sessions,
		busy:     newInflight(),
	}
}

// SubmitLogin checks credentials with the backend.
//
// On success without MFA the session is rotated and the principal written;
// the outcome carries the role home to redirect to. When the backend asks
// for MFA (even if it also sent a role) only a pending challenge is stored
// and the principal stays unauthenticated. Transport failures and backend
// rejections both end in StateFailed; nothing is retried.
func (m *Machine) SubmitLogin(ctx context.Context, w http.ResponseWriter, r *http.Request, email, password string) (*Outcome, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	key := busyKey(r, email)
	if !m.busy.acquire(key) {
		return nil, ErrInFlight
	}
	defer m.busy.release(key)

	res, err := m.api.Login(ctx, email, password, nil)
	if err != nil {
		slog.Warn("login call failed", "error", err)
		return failed(MsgInvalidCredentials), nil
	}

	switch res := res.(type) {
	case backend.MfaRequired:
		if err := m.rotate(ctx, w, r, &session.Data{
			Challenge: &session.Challenge{
				Pending: true,
				Role:    res.Role,
				Email:   email,
			},
			BackendCookies: res.Cookies,
		}); err != nil {
			return nil, err
		}
		slog.Info("mfa challenge issued", "email", email)
		return &Outcome{State: StateMfaPending, PendingRole: res.Role}, nil

	case backend.Authenticated:
		return m.establish(ctx, w, r, email, res, res.Cookies)

	case backend.Rejected:
		return failed(orDefault(res.Message, MsgInvalidCredentials)), nil
	}

	return failed(MsgInvalidCredentials), nil
}

// VerifyMfaCode answers the pending MFA challenge. Authentication requires
// the backend payload to report codeHttp 202 together with a role; a bare
// 2xx is not enough. A wrong code leaves the challenge open so the user can
// try again.
func (m *Machine) VerifyMfaCode(ctx context.Context, w http.ResponseWriter, r *http.Request, code string) (*Outcome, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: code is required", ErrValidation)
	}

	id := session.ID(r)
	if id == "" {
		return failed(MsgNoChallenge), nil
	}

	// The challenge must only be read while the guard is held.
	key := "sid:" + id
	if !m.busy.acquire(key) {
		return nil, ErrInFlight
	}
	defer m.busy.release(key)

	data := m.sessions.Get(ctx, r)
	if !data.MFAPending() {
		return failed(MsgNoChallenge), nil
	}
	ch := data.Challenge

	res, err := m.api.VerifySessionCode(ctx, code, data.BackendCookies)
	if err != nil {
		slog.Warn("session code call failed", "error", err)
		return failed(MsgInvalidCode), nil
	}

	switch res := res.(type) {
	case backend.Authenticated:
		return m.establish(ctx, w, r, ch.Email, res, mergeCookies(data.BackendCookies, res.Cookies))
	case backend.Rejected:
		out := failed(orDefault(res.Message, MsgInvalidCode))
		out.PendingRole = ch.Role
		return out, nil
	}

	return failed(MsgInvalidCode), nil
}

// Current reports where the request's browser session stands in the
// handshake without changing anything.
func (m *Machine) Current(ctx context.Context, r *http.Request) *Outcome {
	data := m.sessions.Get(ctx, r)
	busy := m.busy.held("sid:" + session.ID(r))

	switch {
	case data.Authenticated():
		return &Outcome{
			State:     StateAuthenticated,
			Principal: data.Principal,
			Redirect:  roles.Home(data.Principal.Role),
		}
	case data.MFAPending() && busy:
		return &Outcome{State: StateVerifyingCode, PendingRole: data.Challenge.Role}
	case data.MFAPending():
		return &Outcome{State: StateMfaPending, PendingRole: data.Challenge.Role}
	case busy:
		return &Outcome{State: StateSubmitting}
	default:
		return &Outcome{State: StateIdle}
	}
}

// ResendCode is a placeholder: the backend contract for re-sending a code
// is not defined, so it only reports the challenge that is still open.
func (m *Machine) ResendCode(ctx context.Context, r *http.Request) *Outcome {
	data := m.sessions.Get(ctx, r)
	if !data.MFAPending() {
		return failed(MsgNoChallenge)
	}
	return &Outcome{State: StateMfaPending, PendingRole: data.Challenge.Role}
}

// CancelChallenge discards an open MFA challenge. It leaves an
// authenticated session alone.
func (m *Machine) CancelChallenge(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if data := m.sessions.Get(ctx, r); data.Authenticated() {
		return nil
	}
	return m.sessions.Destroy(ctx, w, r)
}

// Logout clears the session unconditionally. It is idempotent and does not
// call the backend.
func (m *Machine) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return m.sessions.Destroy(ctx, w, r)
}

// establish writes the principal for an authenticated answer.
func (m *Machine) establish(ctx context.Context, w http.ResponseWriter, r *http.Request, email string, res backend.Authenticated, cookies []string) (*Outcome, error) {
	p := &session.Principal{
		ID:    res.UserID,
		Email: email,
		Role:  res.Role,
		Name:  orDefault(res.Name, localPart(email)),
	}
	if err := m.rotate(ctx, w, r, &session.Data{Principal: p, BackendCookies: cookies}); err != nil {
		return nil, err
	}

	slog.Info("user signed in", "user_id", p.ID, "role", p.Role)
	return &Outcome{
		State:     StateAuthenticated,
		Principal: p,
		Redirect:  roles.Home(p.Role),
	}, nil
}

// rotate replaces whatever session the request carries with a fresh one
// holding data, so a session ID never survives a privilege change.
func (m *Machine) rotate(ctx context.Context, w http.ResponseWriter, r *http.Request, data *session.Data) error {
	if err := m.sessions.Discard(ctx, r); err != nil {
		slog.Warn("discarding previous session failed", "error", err)
	}
	if _, err := m.sessions.Create(ctx, w, data); err != nil {
		return fmt.Errorf("auth: write session: %w", err)
	}
	return nil
}

// busyKey scopes the in-flight guard to the browser session when there is
// one, and to the email otherwise.
func busyKey(r *http.Request, email string) string {
	if id := session.ID(r); id != "" {
		return "sid:" + id
	}
	return "email:" + strings.ToLower(email)
}

func failed(msg string) *Outcome {
	return &Outcome{State: StateFailed, Message: msg}
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// mergeCookies combines two "name=value" cookie lists; entries in next
// replace entries of the same name in prev.
func mergeCookies(prev, next []string) []string {
	if len(next) == 0 {
		return prev
	}
	names := make(map[string]bool, len(next))
	for _, c := range next {
		names[cookieName(c)] = true
	}
	var out []string
	for _, c := range prev {
		if !names[cookieName(c)] {
			out = append(out, c)
		}
	}
	return append(out, next...)
}

func cookieName(c string) string {
	name, _, _ := strings.Cut(c, "=")
	return name
}

// localPart returns the part of an email address before the "@".
func localPart(email string) string {
	if i := strings.IndexByte(email, '@'); i >= 0 {
		return email[:i]
	}
	return email
}
