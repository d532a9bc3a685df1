// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package backend

// LoginResult is one of MfaRequired, Authenticated or Rejected.
type LoginResult interface {
	loginResult()
}

// CodeResult is one of Authenticated or Rejected.
type CodeResult interface {
	codeResult()
}

// MfaRequired means the credentials were accepted but a second factor is
// still owed. Role is the backend's hint for the eventual principal and may
// be empty.
type MfaRequired struct {
	Role    string
	Cookies []string
}

// Authenticated means the backend has established the principal.
type Authenticated struct {
	UserID  string
	Name    string
	Role    string
	Cookies []string
}

// Rejected is any answer that does not authenticate. Status is the HTTP
// status the backend answered with; Message is empty when the backend gave
// none.
type Rejected struct {
	Status  int
	Message string
}

func (MfaRequired) loginResult()   {}
func (Authenticated) loginResult() {}
func (Rejected) loginResult()      {}

func (Authenticated) codeResult() {}
func (Rejected) codeResult()      {}
