// Package config loads agent configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete agent configuration.
type Config struct {
	Agent     AgentConfig     `yaml:"agent"`
	Overtime  OvertimeConfig  `yaml:"overtime"`
	LLM       LLMConfig       `yaml:"llm"`
	Bankroll  BankrollConfig  `yaml:"bankroll"`
	Filter    FilterConfig    `yaml:"filter"`
	Combo     ComboConfig     `yaml:"combo"`
	Context   ContextConfig   `yaml:"context"`
	Execution ExecutionConfig `yaml:"execution"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
}

// AgentConfig controls cycle scheduling.
type AgentConfig struct {
	ID                       string `yaml:"id"`
	CycleIntervalMinutes     int    `yaml:"cycle_interval_minutes"`
	ReconcileIntervalMinutes int    `yaml:"reconcile_interval_minutes"`
}

// OvertimeConfig holds Overtime API access settings.
type OvertimeConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	NetworkID int    `yaml:"network_id"`
}

// LLMConfig selects the analysis model.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
}

// BankrollConfig controls stake sizing.
type BankrollConfig struct {
	Edge          float64 `yaml:"edge"`
	KellyDivisor  int     `yaml:"kelly_divisor"`
	MinimumBetUSD float64 `yaml:"minimum_bet_usd"`
	PortfolioCap  float64 `yaml:"portfolio_cap"`
	StaticBalance float64 `yaml:"static_balance"` // used when no wallet is configured
}

// FilterConfig controls the validity screen.
type FilterConfig struct {
	MinLeadHours    float64 `yaml:"min_lead_hours"`
	MaxLeadHours    float64 `yaml:"max_lead_hours"`
	LiquidityBypass float64 `yaml:"liquidity_bypass"`
	VolumeBypass    float64 `yaml:"volume_bypass"`
}

// ComboConfig controls parlay generation.
type ComboConfig struct {
	MinConfidence float64 `yaml:"min_confidence"`
	MinKelly      float64 `yaml:"min_kelly"`
	StakeFraction float64 `yaml:"stake_fraction"`
	MaxStakeUSD   float64 `yaml:"max_stake_usd"`
}

// ContextConfig holds optional enrichment API keys. Empty keys disable
// the corresponding source.
type ContextConfig struct {
	OddsAPIKey    string `yaml:"odds_api_key"`
	WeatherAPIKey string `yaml:"weather_api_key"`
	NewsAPIKey    string `yaml:"news_api_key"`
	GeoEnabled    bool   `yaml:"geo_enabled"`
}

// ExecutionConfig controls on-chain trade placement.
type ExecutionConfig struct {
	Enabled    bool   `yaml:"enabled"`
	RPCURL     string `yaml:"rpc_url"`
	PrivateKey string `yaml:"private_key"`
}

// StorageConfig controls where records are persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path, or ":memory:"
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Load reads the YAML config and the .env file if present. Environment
// variables override YAML values for secrets and connection settings.
func Load(path string) (*Config, error) {
	// Load .env if present (silently skip if missing)
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// CycleInterval returns the betting cycle interval as a time.Duration.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Agent.CycleIntervalMinutes) * time.Minute
}

// ReconcileInterval returns the reconcile interval as a time.Duration.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Agent.ReconcileIntervalMinutes) * time.Minute
}

// applyEnvOverrides replaces values with environment variables when set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OVERTIME_API_KEY"); v != "" {
		cfg.Overtime.APIKey = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("ODDS_API_KEY"); v != "" {
		cfg.Context.OddsAPIKey = v
	}
	if v := os.Getenv("WEATHER_API_KEY"); v != "" {
		cfg.Context.WeatherAPIKey = v
	}
	if v := os.Getenv("NEWS_API_KEY"); v != "" {
		cfg.Context.NewsAPIKey = v
	}
	if v := os.Getenv("ARBITRUM_RPC_URL"); v != "" {
		cfg.Execution.RPCURL = v
	}
	if v := os.Getenv("WALLET_PRIVATE_KEY"); v != "" {
		cfg.Execution.PrivateKey = v
	}
	if v := os.Getenv("AGENT_DB"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
}

// setDefaults ensures required values have sensible defaults.
func setDefaults(cfg *Config) {
	if cfg.Agent.ID == "" {
		cfg.Agent.ID = "overtime-agent"
	}
	if cfg.Agent.CycleIntervalMinutes <= 0 {
		cfg.Agent.CycleIntervalMinutes = 30
	}
	if cfg.Agent.ReconcileIntervalMinutes <= 0 {
		cfg.Agent.ReconcileIntervalMinutes = 10
	}
	if cfg.Overtime.BaseURL == "" {
		cfg.Overtime.BaseURL = "https://api.overtime.io"
	}
	if cfg.Overtime.NetworkID <= 0 {
		cfg.Overtime.NetworkID = 42161
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.Bankroll.Edge <= 0 {
		cfg.Bankroll.Edge = 0.02
	}
	if cfg.Bankroll.KellyDivisor <= 0 {
		cfg.Bankroll.KellyDivisor = 2
	}
	if cfg.Bankroll.MinimumBetUSD <= 0 {
		cfg.Bankroll.MinimumBetUSD = 3.00
	}
	if cfg.Bankroll.PortfolioCap <= 0 {
		cfg.Bankroll.PortfolioCap = 0.20
	}
	if cfg.Bankroll.StaticBalance <= 0 {
		cfg.Bankroll.StaticBalance = 100
	}
	if cfg.Filter.MinLeadHours <= 0 {
		cfg.Filter.MinLeadHours = 2
	}
	if cfg.Filter.MaxLeadHours <= 0 {
		cfg.Filter.MaxLeadHours = 8
	}
	if cfg.Filter.LiquidityBypass <= 0 {
		cfg.Filter.LiquidityBypass = 1000
	}
	if cfg.Filter.VolumeBypass <= 0 {
		cfg.Filter.VolumeBypass = 5000
	}
	if cfg.Combo.MinConfidence <= 0 {
		cfg.Combo.MinConfidence = 0.35
	}
	if cfg.Combo.MinKelly <= 0 {
		cfg.Combo.MinKelly = 0.04
	}
	if cfg.Combo.StakeFraction <= 0 {
		cfg.Combo.StakeFraction = 0.25
	}
	if cfg.Combo.MaxStakeUSD <= 0 {
		cfg.Combo.MaxStakeUSD = 15.00
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "agent.db"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
}
