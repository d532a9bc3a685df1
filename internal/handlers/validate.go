// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Input limits for the sign-in forms.
const (
	maxEmailLen    = 254
	maxPasswordLen = 256
	maxCodeLen     = 12
	maxInputBytes  = 16 << 10
)

type loginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type codeInput struct {
	Code string `json:"code"`
}

// validateLogin checks the credential form and returns the first error found.
// Only presence and size are checked; the address format is left to the
// browser form and the backend.
func validateLogin(email, password string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return "Email is required."
	}
	if utf8.RuneCountInString(email) > maxEmailLen {
		return "Email is too long (max 254 characters)."
	}
	if password == "" {
		return "Password is required."
	}
	if utf8.RuneCountInString(password) > maxPasswordLen {
		return "Password is too long (max 256 characters)."
	}
	return ""
}

// validateCode checks an MFA code.
func validateCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return "Verification code is required."
	}
	if utf8.RuneCountInString(code) > maxCodeLen {
		return "Verification code is too long."
	}
	return ""
}

// isForm reports whether r carries an HTML form body.
func isForm(r *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mt == "application/x-www-form-urlencoded" || mt == "multipart/form-data"
}

// decodeInput fills dst from a JSON body, or from the matching fields of a
// form post.
func decodeInput(r *http.Request, dst any) error {
	if isForm(r) {
		switch v := dst.(type) {
		case *loginInput:
			v.Email = r.PostFormValue("email")
			v.Password = r.PostFormValue("password")
		case *codeInput:
			v.Code = r.PostFormValue("code")
		}
		return nil
	}

	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxInputBytes))
	return dec.Decode(dst)
}
