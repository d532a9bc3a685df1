// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package roles defines the closed set of console roles, the landing route
// each role is sent to after sign-in, and the navigation menu each role sees
// inside the private area.
package roles

import "strings"

// Role is one of the principal roles issued by the backend.
type Role string

const (
	Admin      Role = "ADMIN"
	Employee   Role = "EMPLOYEE"
	Specialist Role = "SPECIALIST"
	Customer   Role = "CUSTOMER"
	Supplier   Role = "SUPPLIER"
)

// All lists every role in display order.
var All = []Role{Admin, Employee, Specialist, Customer, Supplier}

const (
	// LoginRoute is the public sign-in page that guards redirect to.
	LoginRoute = "/login"

	// PrivateRoot is the generic protected-area root. Landing on it sends
	// the user on to their role home.
	PrivateRoot = "/private"

	// DefaultHome is used for principals whose role is missing or unknown.
	DefaultHome = PrivateRoot + "/dashboard"
)

var homes = map[Role]string{
	Admin:      PrivateRoot + "/admin",
	Employee:   PrivateRoot + "/employee",
	Specialist: PrivateRoot + "/specialist",
	Customer:   PrivateRoot + "/customer",
	Supplier:   PrivateRoot + "/supplier",
}

// Parse normalises a role string coming off the wire. The backend sends
// upper-case names, but casing and surrounding whitespace are tolerated.
func Parse(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := homes[r]
	return r, ok
}

// Home returns the landing route for a role. Unknown or empty roles map to
// DefaultHome, so the function is total.
func Home(role string) string {
	r, ok := Parse(role)
	if !ok {
		return DefaultHome
	}
	return homes[r]
}

// IsPrivateRoot reports whether path is the generic protected root.
func IsPrivateRoot(path string) bool {
	return path == PrivateRoot || path == PrivateRoot+"/"
}
