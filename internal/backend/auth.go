// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// loginPayload is the decoded body of a /login answer.
type loginPayload struct {
	UsaMfa bool   `mapstructure:"usaMfa"`
	Role   string `mapstructure:"role"`
	UserID string `mapstructure:"userId"`
	Name   string `mapstructure:"name"`
}

// codePayload is the decoded body of a /session_code answer.
type codePayload struct {
	CodeHTTP int    `mapstructure:"codeHttp"`
	Role     string `mapstructure:"role"`
	UserID   string `mapstructure:"userId"`
	Name     string `mapstructure:"name"`
}

// decodePayload maps a loosely typed JSON object onto out. Numbers and
// numeric strings are accepted interchangeably, and unknown keys ignored.
func decodePayload(m map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(m)
}

// Login checks credentials. cookies are presented to the backend as-is.
//
// A usaMfa=true answer is always MfaRequired, even when a role is also
// present. Non-2xx answers are Rejected. Transport failures return an error
// wrapping ErrTransport.
func (c *Client) Login(ctx context.Context, email, password string, cookies []string) (LoginResult, error) {
	resp, err := c.postJSON(ctx, LoginPath, map[string]string{
		FieldEmail:    email,
		FieldPassword: password,
	}, cookies)
	if err != nil {
		return nil, err
	}

	m := decodeObject(resp.body)
	if !resp.ok() {
		return Rejected{Status: resp.status, Message: MessageFrom(m)}, nil
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %s: body is not a JSON object", ErrMalformed, LoginPath)
	}

	var p loginPayload
	if err := decodePayload(m, &p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, LoginPath, err)
	}

	switch {
	case p.UsaMfa:
		return MfaRequired{Role: strings.TrimSpace(p.Role), Cookies: resp.cookies}, nil
	case strings.TrimSpace(p.Role) != "":
		return Authenticated{
			UserID:  p.UserID,
			Name:    p.Name,
			Role:    strings.TrimSpace(p.Role),
			Cookies: resp.cookies,
		}, nil
	default:
		return Rejected{Status: resp.status, Message: MessageFrom(m)}, nil
	}
}

// VerifySessionCode submits an MFA code. Only a 2xx answer whose payload
// carries codeHttp == CodeAccepted and a role is Authenticated; every other
// answer is Rejected.
func (c *Client) VerifySessionCode(ctx context.Context, code string, cookies []string) (CodeResult, error) {
	resp, err := c.postJSON(ctx, SessionCodePath, map[string]string{
		FieldCode: code,
	}, cookies)
	if err != nil {
		return nil, err
	}

	m := decodeObject(resp.body)
	if !resp.ok() {
		return Rejected{Status: resp.status, Message: MessageFrom(m)}, nil
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %s: body is not a JSON object", ErrMalformed, SessionCodePath)
	}

	var p codePayload
	if err := decodePayload(m, &p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, SessionCodePath, err)
	}

	if p.CodeHTTP == CodeAccepted && strings.TrimSpace(p.Role) != "" {
		return Authenticated{
			UserID:  p.UserID,
			Name:    p.Name,
			Role:    strings.TrimSpace(p.Role),
			Cookies: resp.cookies,
		}, nil
	}
	return Rejected{Status: resp.status, Message: MessageFrom(m)}, nil
}
