package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `{
  "server": {"jwt_secret": "s3cret"},
  "llm": {
    "providers": {
      "openai": {
        "type": "openai",
        "api_key": "sk-test",
        "models": {"gpt-4o-mini": {"name": "gpt-4o-mini", "max_tokens": 2048}}
      }
    },
    "routing": {"fallback": "gpt-4o-mini", "combining": "openai/gpt-4o-mini"}
  },
  "storage": {"postgres": {"host": "db", "dbname": "analyst"}}
}`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Address != ":10001" {
		t.Fatalf("expected default address, got %q", cfg.Server.Address)
	}
	if cfg.Server.TokenTTL != 24*time.Hour {
		t.Fatalf("expected default token ttl, got %v", cfg.Server.TokenTTL)
	}
	if cfg.Agents.SampleRows != 50 {
		t.Fatalf("expected 50 sample rows, got %d", cfg.Agents.SampleRows)
	}
	p := cfg.LLM.Providers["openai"]
	if p.BaseURL != "https://api.openai.com/v1" {
		t.Fatalf("expected default base url, got %q", p.BaseURL)
	}
	if p.Timeout != 60*time.Second {
		t.Fatalf("expected default timeout, got %v", p.Timeout)
	}
	if err := cfg.Server.Validate(); err != nil {
		t.Fatalf("server validate: %v", err)
	}
	if got := cfg.Storage.Postgres.DSN(); got != "postgres://:@db:5432/analyst?sslmode=disable" {
		t.Fatalf("unexpected dsn %q", got)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("ANALYST_SERVER_ADDRESS", ":9999")
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Address != ":9999" {
		t.Fatalf("expected env override, got %q", cfg.Server.Address)
	}
}

func TestLoadConfigRejectsMissingProviders(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, `{"server":{"jwt_secret":"x"}}`)); err == nil {
		t.Fatalf("expected validation error without providers")
	}
}

func TestRoutingFallsBack(t *testing.T) {
	r := LLMRoutingConfig{Planning: "big", Fallback: "small"}
	if r.Route("planning") != "big" {
		t.Fatalf("expected planning route")
	}
	if r.Route("agents") != "small" || r.Route("combining") != "small" {
		t.Fatalf("expected fallback for unset stages")
	}
}
