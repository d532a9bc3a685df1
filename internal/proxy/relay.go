// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package proxy relays browser JSON requests to the backend API. Handlers
// are stateless: each one forwards method, body and query to a fixed
// backend path and passes the answer back, translating transport framing
// only.
package proxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"

	"autotaller/internal/backend"
	"autotaller/internal/render"
	"autotaller/internal/session"
)

// RelayMode selects how a backend answer is turned into the response.
type RelayMode int

const (
	// Strict relays the backend status and JSON body as they are.
	Strict RelayMode = iota

	// Lenient treats every answer as success unless the backend returned a
	// JSON error object with a failing status. Used for the password
	// recovery and registration endpoints, where the backend is known to
	// answer 500 after having sent the email.
	Lenient
)

func (m RelayMode) String() string {
	switch m {
	case Strict:
		return "strict"
	case Lenient:
		return "lenient"
	default:
		return fmt.Sprintf("RelayMode(%d)", int(m))
	}
}

// maxBodyBytes caps request bodies read from the browser.
const maxBodyBytes = 1 << 20

// MsgAccepted is the message of a synthesised lenient success.
const MsgAccepted = "Request accepted."

// Relay builds proxy handlers that share a backend base URL and client.
type Relay struct {
	baseURL  string
	client   *http.Client
	sessions session.Reader
	private  map[string]bool
}

// NewRelay creates a Relay. sessions may be nil; when set, the backend
// cookies recorded in the caller's session are presented upstream.
// privateCookies names browser cookies that belong to the console itself
// and are never forwarded.
func NewRelay(baseURL string, client *http.Client, sessions session.Reader, privateCookies ...string) *Relay {
	if client == nil {
		client = &http.Client{Timeout: backend.DefaultTimeout}
	}
	// Backend redirects are relayed, never followed.
	relayClient := *client
	relayClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	private := make(map[string]bool, len(privateCookies))
	for _, name := range privateCookies {
		private[name] = true
	}
	return &Relay{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &relayClient,
		sessions: sessions,
		private:  private,
	}
}

// Handler returns the handler serving rt.
func (p *Relay) Handler(rt Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			render.ErrorDetails(w, http.StatusInternalServerError, "could not read request body", err.Error())
			return
		}
		if len(bytes.TrimSpace(body)) == 0 {
			body = nil
		}
		if body != nil && !json.Valid(body) {
			render.ErrorDetails(w, http.StatusInternalServerError, "invalid request body", "request body is not valid JSON")
			return
		}

		if rt.Validate != nil {
			var fields map[string]any
			json.Unmarshal(body, &fields)
			if msg := rt.Validate(fields); msg != "" {
				render.Error(w, http.StatusBadRequest, msg)
				return
			}
		}

		target := p.baseURL + expand(rt.upstream(), r)
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}

		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		upReq, err := http.NewRequestWithContext(r.Context(), r.Method, target, reqBody)
		if err != nil {
			render.ErrorDetails(w, http.StatusInternalServerError, "could not build backend request", err.Error())
			return
		}
		upReq.Header.Set("Content-Type", "application/json")
		upReq.Header.Set("Accept", "application/json")
		if cookies := p.cookies(r); len(cookies) > 0 {
			upReq.Header.Set("Cookie", strings.Join(cookies, "; "))
		}

		resp, err := p.client.Do(upReq)
		if err != nil {
			slog.Warn("backend request failed", "method", r.Method, "target", rt.upstream(), "error", err)
			render.ErrorDetails(w, http.StatusInternalServerError, "backend request failed", err.Error())
			return
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			render.ErrorDetails(w, http.StatusInternalServerError, "could not read backend response", err.Error())
			return
		}

		switch rt.Mode {
		case Lenient:
			relayLenient(w, resp.StatusCode, respBody, rt)
		default:
			relayStrict(w, resp.StatusCode, respBody)
		}
	}
}

// relayStrict passes the backend answer through. A non-JSON error body is
// wrapped as {"error": text}; a non-JSON success body is a local failure.
func relayStrict(w http.ResponseWriter, status int, body []byte) {
	trimmed := bytes.TrimSpace(body)
	ok := status >= 200 && status < 300

	switch {
	case len(trimmed) == 0 && ok:
		w.WriteHeader(status)
	case json.Valid(trimmed):
		render.Raw(w, status, body)
	case ok:
		render.ErrorDetails(w, http.StatusInternalServerError, "invalid backend response", "backend answered with a non-JSON body")
	default:
		text := string(trimmed)
		if text == "" {
			text = http.StatusText(status)
		}
		render.Error(w, status, text)
	}
}

// relayLenient applies the best-effort convention: only a JSON object with
// an "error" field on a failing status counts as a rejection.
func relayLenient(w http.ResponseWriter, status int, body []byte, rt Route) {
	trimmed := bytes.TrimSpace(body)
	ok := status >= 200 && status < 300

	var obj map[string]any
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		obj = nil
	}

	if !ok && hasError(obj) {
		render.Raw(w, status, body)
		return
	}
	if ok && len(trimmed) > 0 && json.Valid(trimmed) {
		render.Raw(w, status, body)
		return
	}

	if !ok {
		slog.Info("treating backend failure status as success", "path", rt.Pattern, "status", status)
	}
	msg := backend.MessageFrom(obj)
	if msg == "" {
		msg = MsgAccepted
	}
	render.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": msg,
	})
}

func hasError(obj map[string]any) bool {
	v, present := obj[backend.FieldError]
	if !present || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// cookies returns the cookies to present upstream: the browser's own
// cookies minus the console's private ones, followed by the backend cookies
// recorded in the session.
func (p *Relay) cookies(r *http.Request) []string {
	var out []string
	for _, c := range r.Cookies() {
		if p.private[c.Name] {
			continue
		}
		out = append(out, c.Name+"="+c.Value)
	}
	if p.sessions != nil {
		if data := p.sessions.Get(r.Context(), r); data != nil {
			out = append(out, data.BackendCookies...)
		}
	}
	return out
}

var paramPattern = regexp.MustCompile(`\{([^}:]+)(?::[^}]*)?\}`)

// expand substitutes {name} placeholders in tmpl with the request's chi URL
// parameters, path-escaped.
func expand(tmpl string, r *http.Request) string {
	return paramPattern.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := paramPattern.FindStringSubmatch(m)[1]
		return url.PathEscape(chi.URLParam(r, name))
	})
}
