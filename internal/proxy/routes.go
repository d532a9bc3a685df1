// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package proxy

import (
	"net/http"
	"unicode/utf8"
)

// Route describes one proxied endpoint.
type Route struct {
	Method string
	// Pattern is the browser-facing chi pattern, e.g. "/api/user/{id}".
	Pattern string
	// Upstream is the backend path template. Empty means Pattern.
	Upstream string
	Mode     RelayMode
	// Public routes are reachable without a signed-in session.
	Public bool
	// Validate inspects the decoded JSON body before anything is sent and
	// returns a user-facing message to reject it. Body may be nil.
	Validate func(body map[string]any) string
}

func (rt Route) upstream() string {
	if rt.Upstream != "" {
		return rt.Upstream
	}
	return rt.Pattern
}

// MinPasswordLen is the shortest password accepted before a reset or
// registration request is forwarded.
const MinPasswordLen = 8

// resource is a REST collection with an item path under it.
type resource struct {
	collection string
	item       string
}

// resources lists the shop entities the console manages. Collections take
// GET and POST; items take GET, PUT and DELETE. A parameter sitting at the
// same position as another route's parameter must share its name.
var resources = []resource{
	{"/api/user", "/api/user/{id}"},
	{"/api/role", "/api/role/{id}"},
	{"/api/vehicle", "/api/vehicle/{id}"},
	{"/api/vehicle-make", "/api/vehicle-make/{id}"},
	{"/api/vehicle-make/{id}/model", "/api/vehicle-make/{id}/model/{modelID}"},
	{"/api/vehicle-visit", "/api/vehicle-visit/{id}"},
	{"/api/work-order", "/api/work-order/{id}"},
	{"/api/supplier/{supplierID}/product", "/api/supplier/{supplierID}/product/{productID}"},
	{"/api/supplier-order", "/api/supplier-order/{id}"},
	{"/api/invoice", "/api/invoice/{id}"},
	{"/api/payment", "/api/payment/{id}"},
}

// Routes returns the full proxy table.
func Routes() []Route {
	var out []Route
	for _, res := range resources {
		out = append(out,
			Route{Method: http.MethodGet, Pattern: res.collection},
			Route{Method: http.MethodPost, Pattern: res.collection},
			Route{Method: http.MethodGet, Pattern: res.item},
			Route{Method: http.MethodPut, Pattern: res.item},
			Route{Method: http.MethodDelete, Pattern: res.item},
		)
	}

	out = append(out,
		// Nested read-only listings.
		Route{Method: http.MethodGet, Pattern: "/api/vehicle/{id}/visit"},
		Route{Method: http.MethodGet, Pattern: "/api/invoice/{id}/payment"},
		Route{Method: http.MethodPost, Pattern: "/api/invoice/{id}/payment"},

		// Account recovery and registration.
		Route{Method: http.MethodPost, Pattern: "/api/user/forgot-password", Mode: Lenient, Public: true, Validate: requireEmail},
		Route{Method: http.MethodPost, Pattern: "/api/user/reset/code", Mode: Lenient, Public: true},
		Route{Method: http.MethodPost, Pattern: "/api/user/reset/password", Mode: Lenient, Public: true, Validate: passwordRules},
		Route{Method: http.MethodPost, Pattern: "/api/user/register", Mode: Lenient, Public: true, Validate: passwordRules},
	)
	return out
}

func requireEmail(body map[string]any) string {
	if s, _ := body["email"].(string); s == "" {
		return "Email is required."
	}
	return ""
}

// passwordRules checks a new password and its confirmation.
func passwordRules(body map[string]any) string {
	pw, _ := body["password"].(string)
	if pw == "" {
		return "Password is required."
	}
	if utf8.RuneCountInString(pw) < MinPasswordLen {
		return "Password is too short (min 8 characters)."
	}
	if confirm, present := body["confirmPassword"]; present {
		if c, _ := confirm.(string); c != pw {
			return "Passwords do not match."
		}
	}
	return ""
}
