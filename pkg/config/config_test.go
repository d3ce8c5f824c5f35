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

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Agent.CycleIntervalMinutes != 30 {
		t.Errorf("cycle interval = %d, want 30", cfg.Agent.CycleIntervalMinutes)
	}
	if cfg.Bankroll.Edge != 0.02 {
		t.Errorf("edge = %v, want 0.02", cfg.Bankroll.Edge)
	}
	if cfg.Bankroll.MinimumBetUSD != 3.00 {
		t.Errorf("minimum bet = %v, want 3.00", cfg.Bankroll.MinimumBetUSD)
	}
	if cfg.Bankroll.PortfolioCap != 0.20 {
		t.Errorf("portfolio cap = %v, want 0.20", cfg.Bankroll.PortfolioCap)
	}
	if cfg.Filter.MinLeadHours != 2 || cfg.Filter.MaxLeadHours != 8 {
		t.Errorf("lead window = [%v, %v], want [2, 8]", cfg.Filter.MinLeadHours, cfg.Filter.MaxLeadHours)
	}
	if cfg.Overtime.NetworkID != 42161 {
		t.Errorf("network = %d, want 42161", cfg.Overtime.NetworkID)
	}
	if cfg.Storage.DSN != "agent.db" {
		t.Errorf("dsn = %q", cfg.Storage.DSN)
	}
	if cfg.CycleInterval() != 30*time.Minute {
		t.Errorf("CycleInterval = %s", cfg.CycleInterval())
	}
}

func TestLoadParsesYAML(t *testing.T) {
	path := writeConfig(t, `
agent:
  id: test-agent
  cycle_interval_minutes: 5
bankroll:
  edge: 0.03
  portfolio_cap: 0.10
filter:
  min_lead_hours: 1
  max_lead_hours: 12
execution:
  enabled: true
server:
  addr: ":9090"
  cors_origins:
    - "https://app.example.com"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Agent.ID != "test-agent" {
		t.Errorf("id = %q", cfg.Agent.ID)
	}
	if cfg.CycleInterval() != 5*time.Minute {
		t.Errorf("CycleInterval = %s, want 5m", cfg.CycleInterval())
	}
	if cfg.Bankroll.Edge != 0.03 || cfg.Bankroll.PortfolioCap != 0.10 {
		t.Errorf("bankroll = %+v", cfg.Bankroll)
	}
	if cfg.Filter.MinLeadHours != 1 || cfg.Filter.MaxLeadHours != 12 {
		t.Errorf("filter = %+v", cfg.Filter)
	}
	if !cfg.Execution.Enabled {
		t.Error("execution should be enabled")
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	// unset values still get defaults
	if cfg.Bankroll.KellyDivisor != 2 {
		t.Errorf("kelly divisor = %d, want 2", cfg.Bankroll.KellyDivisor)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OVERTIME_API_KEY", "env-overtime-key")
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("AGENT_DB", "/tmp/env.db")

	path := writeConfig(t, `
overtime:
  api_key: yaml-key
llm:
  provider: openai
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Overtime.APIKey != "env-overtime-key" {
		t.Errorf("api key = %q, env should win over yaml", cfg.Overtime.APIKey)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("provider = %q", cfg.LLM.Provider)
	}
	if cfg.Storage.DSN != "/tmp/env.db" {
		t.Errorf("dsn = %q", cfg.Storage.DSN)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}
