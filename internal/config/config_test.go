// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// envVars lists every variable Load reads.
var envVars = []string{
	"APP_HOST", "APP_PORT", "APP_ENV",
	"BACKEND_URL", "BACKEND_TIMEOUT",
	"SESSION_BACKEND", "SESSION_TTL",
	"VALKEY_HOST", "VALKEY_PORT", "VALKEY_PASSWORD",
	"RATE_LIMIT_PER_MINUTE", "DEV_BACKEND_ADDR",
}

// clearEnv sets every variable to "", which envOrDefault treats as unset.
// t.Setenv restores the previous values afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envVars {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"Host", cfg.Host, "0.0.0.0"},
		{"Port", cfg.Port, "3000"},
		{"Env", cfg.Env, "development"},
		{"BackendURL", cfg.BackendURL, DefaultBackendURL},
		{"BackendTimeout", cfg.BackendTimeout, 15 * time.Second},
		{"SessionBackend", cfg.SessionBackend, SessionValkey},
		{"SessionTTL", cfg.SessionTTL, 8 * time.Hour},
		{"ValkeyHost", cfg.ValkeyHost, "localhost"},
		{"ValkeyPort", cfg.ValkeyPort, "6379"},
		{"RateLimitPerMinute", cfg.RateLimitPerMinute, 300},
		{"DevBackendAddr", cfg.DevBackendAddr, "127.0.0.1:8080"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, c.got, c.want)
		}
	}

	if cfg.Addr() != "0.0.0.0:3000" {
		t.Errorf("Addr(): got %q", cfg.Addr())
	}
	if cfg.ValkeyAddr() != "localhost:6379" {
		t.Errorf("ValkeyAddr(): got %q", cfg.ValkeyAddr())
	}
	if !cfg.IsDev() || cfg.SecureCookies() {
		t.Error("development defaults should be dev mode without secure cookies")
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_PORT", "9000")
	t.Setenv("BACKEND_URL", "https://api.taller.example")
	t.Setenv("BACKEND_TIMEOUT", "3s")
	t.Setenv("SESSION_BACKEND", "memory")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load(): %v", err)
	}
	if cfg.Port != "9000" || cfg.BackendURL != "https://api.taller.example" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.BackendTimeout != 3*time.Second || cfg.SessionTTL != 30*time.Minute {
		t.Errorf("durations: got %v and %v", cfg.BackendTimeout, cfg.SessionTTL)
	}
	if cfg.SessionBackend != SessionMemory || cfg.RateLimitPerMinute != 0 {
		t.Errorf("session backend %q, rate limit %d", cfg.SessionBackend, cfg.RateLimitPerMinute)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"bad timeout", map[string]string{"BACKEND_TIMEOUT": "soon"}, "BACKEND_TIMEOUT"},
		{"bad ttl", map[string]string{"SESSION_TTL": "-1h"}, "SESSION_TTL"},
		{"bad rate", map[string]string{"RATE_LIMIT_PER_MINUTE": "lots"}, "RATE_LIMIT_PER_MINUTE"},
		{"negative rate", map[string]string{"RATE_LIMIT_PER_MINUTE": "-5"}, "RATE_LIMIT_PER_MINUTE"},
		{"relative backend", map[string]string{"BACKEND_URL": "/api"}, "BACKEND_URL"},
		{"unknown session backend", map[string]string{"SESSION_BACKEND": "cookie"}, "SESSION_BACKEND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %s", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_Production(t *testing.T) {
	t.Run("requires backend url", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("APP_ENV", "production")

		if _, err := Load(); err == nil || !strings.Contains(err.Error(), "BACKEND_URL") {
			t.Errorf("expected BACKEND_URL error, got %v", err)
		}
	})

	t.Run("requires valkey sessions", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("APP_ENV", "production")
		t.Setenv("BACKEND_URL", "https://api.taller.example")
		t.Setenv("SESSION_BACKEND", "memory")

		if _, err := Load(); err == nil || !strings.Contains(err.Error(), "SESSION_BACKEND") {
			t.Errorf("expected SESSION_BACKEND error, got %v", err)
		}
	})

	t.Run("valid", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("APP_ENV", "production")
		t.Setenv("BACKEND_URL", "https://api.taller.example")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load(): %v", err)
		}
		if cfg.IsDev() || !cfg.SecureCookies() {
			t.Error("production should use secure cookies")
		}
	})
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	// godotenv only fills variables that are absent, not empty ones.
	os.Unsetenv("APP_PORT")
	os.Unsetenv("BACKEND_URL")
	t.Setenv("APP_HOST", "10.0.0.5")

	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "APP_PORT=4000\nBACKEND_URL=http://backend:8080\nAPP_HOST=0.0.0.0\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load(): %v", err)
	}
	if cfg.Port != "4000" || cfg.BackendURL != "http://backend:8080" {
		t.Errorf(".env values not applied: port %q, backend %q", cfg.Port, cfg.BackendURL)
	}
	if cfg.Host != "10.0.0.5" {
		t.Errorf("existing variable overridden: got %q", cfg.Host)
	}
}
