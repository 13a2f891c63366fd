package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAndValidate_Defaults(t *testing.T) {
	path := writeConfig(t, `
server:
  jwt_secret: test-secret
database:
  conn_string: postgres://localhost/crash
`)

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected default addr :8080, got %s", cfg.Server.Addr)
	}
	if cfg.Engine.WaitingDelay.Std() != 7*time.Second {
		t.Errorf("expected default waiting delay 7s, got %v", cfg.Engine.WaitingDelay.Std())
	}
	if cfg.Engine.TickInterval.Std() != 100*time.Millisecond {
		t.Errorf("expected default tick 100ms, got %v", cfg.Engine.TickInterval.Std())
	}
	if cfg.Engine.MaxCrashValue != 100 {
		t.Errorf("expected default max crash value 100, got %d", cfg.Engine.MaxCrashValue)
	}
	if cfg.Prices.Fallback["BTC"] != 50000 {
		t.Errorf("expected default BTC fallback, got %v", cfg.Prices.Fallback)
	}
}

func TestLoadAndValidate_ExpandsEnv(t *testing.T) {
	t.Setenv("CRASH_TEST_SECRET", "from-env")
	path := writeConfig(t, `
server:
  jwt_secret: ${CRASH_TEST_SECRET}
database:
  conn_string: postgres://localhost/crash
`)

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	if cfg.Server.JWTSecret != "from-env" {
		t.Errorf("env var not expanded, got %q", cfg.Server.JWTSecret)
	}
}

func TestLoadAndValidate_ParsesDurations(t *testing.T) {
	path := writeConfig(t, `
server:
  jwt_secret: s
database:
  conn_string: postgres://localhost/crash
engine:
  waiting_delay: 10s
  tick_interval: 250ms
`)

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	if cfg.Engine.WaitingDelay.Std() != 10*time.Second {
		t.Errorf("expected 10s, got %v", cfg.Engine.WaitingDelay.Std())
	}
	if cfg.Engine.TickInterval.Std() != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", cfg.Engine.TickInterval.Std())
	}
}

func TestLoadAndValidate_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "MissingSecret",
			content: `
database:
  conn_string: postgres://localhost/crash
`,
		},
		{
			name: "MissingDatabase",
			content: `
server:
  jwt_secret: s
`,
		},
		{
			name: "CurrencyWithoutFallbackPrice",
			content: `
server:
  jwt_secret: s
database:
  conn_string: postgres://localhost/crash
engine:
  currencies: [BTC, ETH]
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadAndValidate(writeConfig(t, tt.content)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
