// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers holds the console's own HTTP endpoints: the sign-in
// handshake and the private shell. Everything under /api/ other than the
// session probe is served by the proxy package.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"autotaller/internal/auth"
	"autotaller/internal/middleware"
	"autotaller/internal/render"
	"autotaller/internal/roles"
	"autotaller/internal/session"
)

// Recovery endpoints advertised on the login page. They are proxied.
const (
	forgotPasswordPath = "/api/user/forgot-password"
	resetCodePath      = "/api/user/reset/code"
	resetPasswordPath  = "/api/user/reset/password"
	registerPath       = "/api/user/register"
)

// Auth groups the sign-in handlers. Both "/" and "/login" are served by the
// same handlers and the same handshake.
type Auth struct {
	machine *auth.Machine
}

// NewAuth creates the Auth handler group.
func NewAuth(machine *auth.Machine) *Auth {
	return &Auth{machine: machine}
}

// outcomeBody is the JSON form of a handshake step.
type outcomeBody struct {
	State    auth.State         `json:"state"`
	Redirect string             `json:"redirect,omitempty"`
	User     *session.Principal `json:"user,omitempty"`
	Message  string             `json:"message,omitempty"`
	MFA      *mfaBody           `json:"mfa,omitempty"`
}

type mfaBody struct {
	Pending bool   `json:"pending"`
	Role    string `json:"role,omitempty"`
}

// LoginPage describes the sign-in entry point. A signed-in user is sent on
// to their role home instead.
func (a *Auth) LoginPage(w http.ResponseWriter, r *http.Request) {
	if p := middleware.PrincipalFromCtx(r.Context()); p != nil {
		http.Redirect(w, r, roles.Home(p.Role), http.StatusSeeOther)
		return
	}

	out := a.machine.Current(r.Context(), r)
	render.JSON(w, http.StatusOK, map[string]any{
		"state":     out.State,
		"mfa":       mfaFor(out),
		"csrfToken": middleware.CSRFToken(r),
		"recovery": map[string]string{
			"forgotPassword": forgotPasswordPath,
			"resetCode":      resetCodePath,
			"resetPassword":  resetPasswordPath,
			"register":       registerPath,
		},
	})
}

// LoginSubmit runs the credential step. Accepts JSON or form bodies.
func (a *Auth) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	var in loginInput
	if err := decodeInput(r, &in); err != nil {
		render.Error(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if msg := validateLogin(in.Email, in.Password); msg != "" {
		render.Error(w, http.StatusBadRequest, msg)
		return
	}

	out, err := a.machine.SubmitLogin(r.Context(), w, r, in.Email, in.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	a.respond(w, r, out)
}

// VerifyCode answers the MFA challenge.
func (a *Auth) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var in codeInput
	if err := decodeInput(r, &in); err != nil {
		render.Error(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if msg := validateCode(in.Code); msg != "" {
		render.Error(w, http.StatusBadRequest, msg)
		return
	}

	out, err := a.machine.VerifyMfaCode(r.Context(), w, r, in.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	a.respond(w, r, out)
}

// ResendCode acknowledges a resend request for the open challenge.
func (a *Auth) ResendCode(w http.ResponseWriter, r *http.Request) {
	a.respond(w, r, a.machine.ResendCode(r.Context(), r))
}

// CancelMFA closes the MFA dialog and drops the pending challenge.
func (a *Auth) CancelMFA(w http.ResponseWriter, r *http.Request) {
	if err := a.machine.CancelChallenge(r.Context(), w, r); err != nil {
		slog.Error("cancel challenge failed", "error", err)
		render.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Logout ends the session and points the browser back at the login route.
func (a *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	if err := a.machine.Logout(r.Context(), w, r); err != nil {
		slog.Error("logout failed", "error", err)
	}
	if isForm(r) {
		http.Redirect(w, r, roles.LoginRoute, http.StatusSeeOther)
		return
	}
	render.JSON(w, http.StatusOK, outcomeBody{State: auth.StateIdle, Redirect: roles.LoginRoute})
}

// Session reports the handshake state of the caller; for a signed-in user
// it includes the principal and their menu.
func (a *Auth) Session(w http.ResponseWriter, r *http.Request) {
	out := a.machine.Current(r.Context(), r)
	body := map[string]any{
		"state": out.State,
		"user":  out.Principal,
	}
	if out.Principal != nil {
		body["home"] = out.Redirect
		body["menu"] = roles.Menu(out.Principal.Role)
	}
	if mfa := mfaFor(out); mfa != nil {
		body["mfa"] = mfa
	}
	render.JSON(w, http.StatusOK, body)
}

// respond maps a handshake outcome to a response. A plain HTML form post
// that signs the user in is redirected to the role home.
func (a *Auth) respond(w http.ResponseWriter, r *http.Request, out *auth.Outcome) {
	if out.State == auth.StateAuthenticated && isForm(r) {
		http.Redirect(w, r, out.Redirect, http.StatusSeeOther)
		return
	}

	body := outcomeBody{
		State:    out.State,
		Redirect: out.Redirect,
		User:     out.Principal,
		Message:  out.Message,
		MFA:      mfaFor(out),
	}
	render.JSON(w, statusFor(out.State), body)
}

func statusFor(s auth.State) int {
	switch s {
	case auth.StateMfaPending:
		return http.StatusAccepted
	case auth.StateFailed:
		return http.StatusUnauthorized
	default:
		return http.StatusOK
	}
}

func mfaFor(out *auth.Outcome) *mfaBody {
	switch {
	case out.State == auth.StateMfaPending, out.State == auth.StateVerifyingCode:
		return &mfaBody{Pending: true, Role: out.PendingRole}
	case out.State == auth.StateFailed && out.PendingRole != "":
		return &mfaBody{Pending: true, Role: out.PendingRole}
	}
	return nil
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrValidation):
		render.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInFlight):
		render.Error(w, http.StatusConflict, "A sign-in request is already in progress.")
	default:
		slog.Error("sign-in step failed", "error", err)
		render.Error(w, http.StatusInternalServerError, "internal server error")
	}
}
