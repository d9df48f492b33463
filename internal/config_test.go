package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/imagesorter/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if !cfg.Journal.Enabled() {
		t.Error("journal should be enabled by default")
	}
	sc := cfg.Sorter.Sorter()
	if sc.SettleDelay != 300*time.Millisecond || !sc.DedupeInFlight {
		t.Errorf("sorter config = %+v", sc)
	}
	if len(sc.Extensions) != 1 || sc.Extensions[0] != ".md" {
		t.Errorf("extensions = %v", sc.Extensions)
	}
	if cfg.Fetch.Timeout != 0 {
		t.Errorf("fetch timeout = %v, want 0 (transport default)", cfg.Fetch.Timeout)
	}
}

func TestConfig_InvalidSections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no rules path", func(c *Config) { c.Rules.Path = "" }},
		{"rules ext", func(c *Config) { c.Rules.Path = "rules.ini" }},
		{"negative settle", func(c *Config) { c.Sorter.SettleDelay = -time.Second }},
		{"bare extension", func(c *Config) { c.Sorter.Extensions = []string{"md"} }},
		{"negative max bytes", func(c *Config) { c.Fetch.MaxBytes = -1 }},
		{"bad glob", func(c *Config) { c.Watch.Ignore = []string{"[unclosed"} }},
		{"port", func(c *Config) { c.App.HTTP.Port = 70000 }},
		{"no vault", func(c *Config) { c.Vault.Path = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestConfig_JournalDisabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Journal.Path = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty journal path should be allowed: %v", err)
	}
	if cfg.Journal.Enabled() {
		t.Error("journal should be disabled")
	}
}

func TestConfig_LoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	t.Setenv("IMAGESORTER_TEST_TOKEN", "s3cret")
	content := `app:
  log_level: debug
  http:
    port: 9090
vault:
  path: /data/vault
rules:
  path: /data/rules.toml
journal:
  path: ""
sorter:
  settle_delay: 1s
  extensions: [".md", ".markdown"]
  dedupe_inflight: false
fetch:
  timeout: 15s
  max_bytes: 1048576
  block_internal: true
auth:
  mode: token
  token: ${IMAGESORTER_TEST_TOKEN}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.LogLevel != slog.LevelDebug || cfg.App.HTTP.Port != 9090 {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Sorter.SettleDelay != time.Second || cfg.Sorter.DedupeInFlight || len(cfg.Sorter.Extensions) != 2 {
		t.Errorf("sorter = %+v", cfg.Sorter)
	}
	if cfg.Fetch.MaxBytes != 1<<20 || !cfg.Fetch.BlockInternal || cfg.Fetch.Timeout != 15*time.Second {
		t.Errorf("fetch = %+v", cfg.Fetch)
	}
	if cfg.Auth.Token != "s3cret" || !cfg.Auth.AuthEnabled() {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if cfg.Journal.Enabled() {
		t.Error("journal should be disabled")
	}
	// Untouched sections keep defaults.
	if len(cfg.Watch.Ignore) != 3 || cfg.App.HTTP.SSEKeepalive != 30*time.Second {
		t.Errorf("defaults lost: watch=%v http=%+v", cfg.Watch.Ignore, cfg.App.HTTP)
	}
}
