// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package backend is the client for the external shop-management API that
// owns users, sessions and all business data. It covers the two calls the
// sign-in flow has to interpret (credential check and session code
// verification); every other endpoint is relayed untouched by package proxy.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Endpoint paths, relative to the configured base URL.
const (
	LoginPath       = "/login"
	SessionCodePath = "/session_code"
)

// Wire field names. They are spelled exactly as the backend spells them;
// FieldMesssage really has three s's.
const (
	FieldEmail    = "email"
	FieldPassword = "password"
	FieldCode     = "code"
	FieldUsaMfa   = "usaMfa"
	FieldRole     = "role"
	FieldUserID   = "userId"
	FieldName     = "name"
	FieldCodeHTTP = "codeHttp"
	FieldMesssage = "messsage"
	FieldMessage  = "message"
	FieldError    = "error"
)

// CodeAccepted is the value the backend places in codeHttp when a session
// code has been accepted.
const CodeAccepted = 202

// DefaultTimeout applies when New is given a non-positive timeout.
const DefaultTimeout = 15 * time.Second

var (
	// ErrTransport wraps failures to reach the backend at all.
	ErrTransport = errors.New("backend unreachable")

	// ErrMalformed is returned when a success response cannot be decoded.
	ErrMalformed = errors.New("malformed backend response")
)

// Client talks to the backend API over HTTP/JSON.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a backend client for baseURL (scheme, host and optional path
// prefix, no trailing slash needed).
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the normalised base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// HTTPClient returns the underlying HTTP client so other components can
// share its timeout and connection pool.
func (c *Client) HTTPClient() *http.Client { return c.client }

// response is a fully read backend response.
type response struct {
	status  int
	body    []byte
	cookies []string
}

func (r *response) ok() bool { return r.status >= 200 && r.status < 300 }

// postJSON sends body as JSON to path, presenting cookies, and reads the
// whole response.
func (c *Client) postJSON(ctx context.Context, path string, body any, cookies []string) (*response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("backend marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("backend request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if len(cookies) > 0 {
		req.Header.Set("Cookie", strings.Join(cookies, "; "))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTransport, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read body: %v", ErrTransport, path, err)
	}

	out := &response{status: resp.StatusCode, body: respBody}
	for _, ck := range resp.Cookies() {
		out.cookies = append(out.cookies, ck.Name+"="+ck.Value)
	}
	return out, nil
}

// decodeObject parses body as a JSON object. It returns nil for anything
// else, including an empty body.
func decodeObject(body []byte) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil
	}
	return m
}

// MessageFrom extracts a human-readable message from a backend payload,
// checking the misspelled field first.
func MessageFrom(m map[string]any) string {
	for _, key := range []string{FieldMesssage, FieldMessage, FieldError} {
		if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
