// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package devbackend

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

// Issuer names the TOTP issuer shown by authenticator apps.
const Issuer = "AutoTaller"

// DefaultPassword is the password of every seeded fixture user.
const DefaultPassword = "taller123"

// Fixture describes a user to seed.
type Fixture struct {
	ID       string
	Email    string
	Name     string
	Role     string
	Password string
	MFA      bool
}

// DefaultFixtures returns one user per role. Customers and suppliers sign
// in with a second factor.
func DefaultFixtures() []Fixture {
	return []Fixture{
		{ID: "1", Email: "admin@taller.dev", Name: "Admin", Role: "ADMIN", Password: DefaultPassword},
		{ID: "2", Email: "employee@taller.dev", Name: "Empleado", Role: "EMPLOYEE", Password: DefaultPassword},
		{ID: "3", Email: "specialist@taller.dev", Name: "Especialista", Role: "SPECIALIST", Password: DefaultPassword},
		{ID: "4", Email: "customer@taller.dev", Name: "Cliente", Role: "CUSTOMER", Password: DefaultPassword, MFA: true},
		{ID: "5", Email: "supplier@taller.dev", Name: "Proveedor", Role: "SUPPLIER", Password: DefaultPassword, MFA: true},
	}
}

// user is a seeded account.
type user struct {
	ID           string
	Email        string
	Name         string
	Role         string
	PasswordHash string
	TOTP         *otp.Key // nil when the user has no second factor
}

// userStore keeps the seeded accounts in memory, keyed by lower-case email.
type userStore struct {
	mu    sync.RWMutex
	users map[string]*user
}

// seed hashes each fixture's password with bcrypt at the given cost and,
// for MFA users, generates a TOTP secret.
func seed(fixtures []Fixture, cost int) (*userStore, error) {
	s := &userStore{users: make(map[string]*user, len(fixtures))}
	for _, f := range fixtures {
		hash, err := bcrypt.GenerateFromPassword([]byte(f.Password), cost)
		if err != nil {
			return nil, fmt.Errorf("seed bcrypt %s: %w", f.Email, err)
		}
		u := &user{
			ID:           f.ID,
			Email:        f.Email,
			Name:         f.Name,
			Role:         f.Role,
			PasswordHash: string(hash),
		}
		if f.MFA {
			key, err := totp.Generate(totp.GenerateOpts{Issuer: Issuer, AccountName: f.Email})
			if err != nil {
				return nil, fmt.Errorf("seed totp %s: %w", f.Email, err)
			}
			u.TOTP = key
		}
		s.users[strings.ToLower(f.Email)] = u
	}
	return s, nil
}

// FindByEmail returns the user, or nil when none matches.
func (s *userStore) FindByEmail(email string) *user {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[strings.ToLower(strings.TrimSpace(email))]
}

// CheckPassword verifies a plaintext password against the stored hash.
func (s *userStore) CheckPassword(u *user, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// Emails lists the seeded addresses in sorted order.
func (s *userStore) Emails() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.Email)
	}
	sort.Strings(out)
	return out
}
