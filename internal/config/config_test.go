package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
sources:
  censys:
    token_env: TEST_CENSYS_TOKEN
    timeout: 5s
logging:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load should succeed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Sources.Censys.TokenEnv != "TEST_CENSYS_TOKEN" {
		t.Errorf("expected overridden token env, got %q", cfg.Sources.Censys.TokenEnv)
	}
	if cfg.Sources.Censys.Timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", cfg.Sources.Censys.Timeout)
	}
	// Untouched sections keep their defaults.
	if cfg.Sources.IPQuery.BaseURL != "https://api.ipquery.io" {
		t.Errorf("expected default ipquery base url, got %q", cfg.Sources.IPQuery.BaseURL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %q", cfg.Logging.Level)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load should fail for a missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 0
sources:
  ipquery:
    base_url: ""
telemetry:
  tracing_enabled: true
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load should reject invalid config")
	}
	for _, want := range []string{"server.port", "ipquery.base_url", "otlp_endpoint"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestCredentials_ResolvedFromEnv(t *testing.T) {
	t.Setenv("TEST_CENSYS_TOKEN", "censys-token")
	t.Setenv("TEST_CENSYS_ORG", "org-1")
	t.Setenv("TEST_ST_KEY", "")

	cfg := DefaultConfig()
	cfg.Sources.Censys.TokenEnv = "TEST_CENSYS_TOKEN"
	cfg.Sources.Censys.OrgIDEnv = "TEST_CENSYS_ORG"
	cfg.Sources.SecurityTrails.APIKeyEnv = "TEST_ST_KEY"

	creds := cfg.Credentials()
	if creds.CensysToken != "censys-token" {
		t.Errorf("expected censys token, got %q", creds.CensysToken)
	}
	if creds.CensysOrgID != "org-1" {
		t.Errorf("expected org id, got %q", creds.CensysOrgID)
	}
	if creds.SecurityTrailsAPIKey != "" {
		t.Errorf("expected empty securitytrails key, got %q", creds.SecurityTrailsAPIKey)
	}

	enabled := cfg.EnabledSources(creds)
	if strings.Join(enabled, ",") != "ipquery,censys" {
		t.Errorf("unexpected enabled sources: %v", enabled)
	}
}
