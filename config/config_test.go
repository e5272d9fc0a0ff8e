package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
}

func TestLoadConfig_DefaultsApplied(t *testing.T) {
	writeConfig(t, `
http:
  addr: ":8084"
auth:
  publicKeyPath: /etc/keys/public.pem
internal:
  token: secret
`)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Logging.Service != "sync-core" || cfg.Logging.Env != "dev" || cfg.Logging.Backend != "std" {
		t.Fatalf("logging defaults not applied: %+v", cfg.Logging)
	}
	if got := cfg.ClockSkew(); got != 30*time.Second {
		t.Fatalf("default clock skew should be 30s, got %v", got)
	}
	if got := cfg.PresenceTTL(); got != 90*time.Second {
		t.Fatalf("default presence TTL should be 90s, got %v", got)
	}
}

func TestLoadConfig_ExplicitDurations(t *testing.T) {
	writeConfig(t, `
http:
  addr: ":8084"
auth:
  publicKeyPath: /etc/keys/public.pem
  clockSkew: 1m
internal:
  token: secret
presence:
  ttl: 2m
`)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got := cfg.ClockSkew(); got != time.Minute {
		t.Fatalf("clock skew: got %v", got)
	}
	if got := cfg.PresenceTTL(); got != 2*time.Minute {
		t.Fatalf("presence ttl: got %v", got)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing addr", "auth:\n  publicKeyPath: /k.pem\ninternal:\n  token: s\n"},
		{"missing key path", "http:\n  addr: \":8084\"\ninternal:\n  token: s\n"},
		{"missing internal token", "http:\n  addr: \":8084\"\nauth:\n  publicKeyPath: /k.pem\n"},
	}
	for _, tc := range cases {
		writeConfig(t, tc.body)
		if _, err := LoadConfig(); err == nil {
			t.Fatalf("%s: expected a validation error", tc.name)
		}
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))
	if _, err := LoadConfig(); err == nil {
		t.Fatal("missing config file should error")
	}
}

func TestParseDurationOr(t *testing.T) {
	if got := parseDurationOr(time.Second, "bogus"); got != time.Second {
		t.Fatalf("bad duration should fall back, got %v", got)
	}
	if got := parseDurationOr(time.Second, "-5s"); got != time.Second {
		t.Fatalf("negative duration should fall back, got %v", got)
	}
	if got := parseDurationOr(time.Second, "250ms"); got != 250*time.Millisecond {
		t.Fatalf("valid duration should parse, got %v", got)
	}
}
