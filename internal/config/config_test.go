package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Database.Driver != "sqlite" {
		t.Errorf("default driver = %q", cfg.Database.Driver)
	}
	if cfg.Worker.Budget != 300*time.Second {
		t.Errorf("default budget = %v", cfg.Worker.Budget)
	}
	if cfg.Resilience.RateLimitDelay <= cfg.Resilience.BaseDelay {
		t.Errorf("rate-limit delay %v should exceed base delay %v",
			cfg.Resilience.RateLimitDelay, cfg.Resilience.BaseDelay)
	}
	if len(cfg.Targets) < 2 {
		t.Fatalf("defaults should configure a primary and a fallback target")
	}
	for i, target := range cfg.Targets {
		if !strings.Contains(target.APIKey, "${") {
			t.Errorf("target %d default api key %q embeds a literal key", i, target.APIKey)
		}
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Setenv("CHRONICLE_TEST_KEY", "sk-12345")

	tests := []struct {
		in, want string
	}{
		{"${CHRONICLE_TEST_KEY}", "sk-12345"},
		{"prefix-${CHRONICLE_TEST_KEY}", "prefix-sk-12345"},
		{"no-refs", "no-refs"},
		{"", ""},
		{"${CHRONICLE_UNSET_VAR}", ""},
	}
	for _, tt := range tests {
		if got := ResolveEnvVars(tt.in); got != tt.want {
			t.Errorf("ResolveEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnabledTargetsKeepsRankOrder(t *testing.T) {
	cfg := &Config{
		Targets: []TargetCfg{
			{Name: "primary", Enabled: true},
			{Name: "disabled", Enabled: false},
			{Name: "fallback", Enabled: true},
		},
	}

	got := cfg.EnabledTargets()
	if len(got) != 2 {
		t.Fatalf("enabled targets = %d, want 2", len(got))
	}
	if got[0].Name != "primary" || got[1].Name != "fallback" {
		t.Errorf("rank order not preserved: %s, %s", got[0].Name, got[1].Name)
	}
}

func TestBuildTargets(t *testing.T) {
	t.Setenv("CHRONICLE_TEST_KEY", "sk-12345")

	cfg := DefaultConfig()
	cfg.Targets = []TargetCfg{
		{Name: "a", Model: "gpt-4o", APIKey: "${CHRONICLE_TEST_KEY}", MaxRetries: 2, Enabled: true},
		{Name: "b", Model: "gpt-4o-mini", Enabled: false},
	}

	targets := cfg.BuildTargets()
	if len(targets) != 1 {
		t.Fatalf("built %d targets, want 1", len(targets))
	}
	if targets[0].Client.Name() != "a" {
		t.Errorf("target name = %q", targets[0].Client.Name())
	}
	if targets[0].MaxRetries != 2 {
		t.Errorf("target retries = %d", targets[0].MaxRetries)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("write default: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "targets:") {
		t.Errorf("written config missing targets section")
	}
	if !strings.Contains(content, "${OPENAI_API_KEY}") {
		t.Errorf("written config should reference the key by env var")
	}
}
