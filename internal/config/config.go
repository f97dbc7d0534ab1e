// Package config holds OPERATOR-LEVEL configuration for an OpenWork
// orchestrator process.
//
// This is infrastructure config set by whoever deploys the service, NOT
// per-user workspace configuration. Per-user state (autonomy policy rules,
// profiles, last-analysis timestamps) lives in the workspace database and is
// managed through the API and CLI.
//
// Values are resolved via env vars (OPENWORK_*) or an optional
// openwork.config.yaml in the working directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Viper keys. Each maps to an env var with the OPENWORK_ prefix
// (e.g. "turn_budget_ms" → OPENWORK_TURN_BUDGET_MS) and to a YAML field
// in openwork.config.yaml.
const (
	KeyDataDir          = "data_dir"
	KeyListenAddr       = "listen_addr"
	KeyOpenAIAPIKey     = "openai_api_key"
	KeyOpenAIBaseURL    = "openai_base_url"
	KeyOpenAIModel      = "openai_model"
	KeyVaultKey         = "vault_key"
	KeyTurnBudgetMS     = "turn_budget_ms"
	KeyMaxToolSteps     = "max_tool_steps"
	KeyBootstrapStaleMS = "bootstrap_stale_ms"
	KeyRateLimitRPS     = "rate_limit_rps"
	KeyRateLimitBurst   = "rate_limit_burst"
)

// Defaults. The turn budget is a soft ceiling checked at loop checkpoints,
// not a preemptive deadline, so it is deliberately generous.
const (
	DefaultListenAddr       = ":8484"
	DefaultOpenAIModel      = "gpt-4o-mini"
	DefaultTurnBudgetMS     = 55000
	DefaultMaxToolSteps     = 12
	DefaultBootstrapStaleMS = 180000
	DefaultRateLimitRPS     = 10
	DefaultRateLimitBurst   = 20
)

// Config holds resolved operator-level configuration for an OpenWork process.
type Config struct {
	DataDir          string        // base directory for all state (~/.openwork)
	ListenAddr       string        // HTTP API listen address
	OpenAIAPIKey     string        // primary reasoning provider key; empty = deterministic provider only
	OpenAIBaseURL    string        // override for OpenAI-compatible endpoints; empty = api.openai.com
	OpenAIModel      string        // model for the primary provider
	VaultKey         string        // credentials vault key (32 bytes or 64 hex chars); empty = vault disabled
	TurnBudget       time.Duration // wall-clock budget per turn
	MaxToolSteps     int           // reasoning loop step cap
	BootstrapStaleMS int64         // staleness threshold for bootstrap refresh turns
	RateLimitRPS     float64       // API requests per second per client
	RateLimitBurst   int           // API burst size per client
}

// WorkspaceDBPath returns the full path to the workspace SQLite database.
func (c *Config) WorkspaceDBPath() string {
	return filepath.Join(c.DataDir, "workspace.db")
}

// CredentialsDBPath returns the full path to the encrypted credentials
// vault database.
func (c *Config) CredentialsDBPath() string {
	return filepath.Join(c.DataDir, "credentials.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

func init() {
	viper.SetEnvPrefix("OPENWORK")
	viper.AutomaticEnv()
	viper.SetDefault(KeyListenAddr, DefaultListenAddr)
	viper.SetDefault(KeyOpenAIModel, DefaultOpenAIModel)
	viper.SetDefault(KeyTurnBudgetMS, DefaultTurnBudgetMS)
	viper.SetDefault(KeyMaxToolSteps, DefaultMaxToolSteps)
	viper.SetDefault(KeyBootstrapStaleMS, DefaultBootstrapStaleMS)
	viper.SetDefault(KeyRateLimitRPS, DefaultRateLimitRPS)
	viper.SetDefault(KeyRateLimitBurst, DefaultRateLimitBurst)
}

// Load reads configuration from Viper (which merges env vars, config file,
// and defaults) and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:          resolveDataDir(),
		ListenAddr:       viper.GetString(KeyListenAddr),
		OpenAIAPIKey:     viper.GetString(KeyOpenAIAPIKey),
		OpenAIBaseURL:    viper.GetString(KeyOpenAIBaseURL),
		OpenAIModel:      viper.GetString(KeyOpenAIModel),
		VaultKey:         viper.GetString(KeyVaultKey),
		TurnBudget:       time.Duration(viper.GetInt64(KeyTurnBudgetMS)) * time.Millisecond,
		MaxToolSteps:     viper.GetInt(KeyMaxToolSteps),
		BootstrapStaleMS: viper.GetInt64(KeyBootstrapStaleMS),
		RateLimitRPS:     viper.GetFloat64(KeyRateLimitRPS),
		RateLimitBurst:   viper.GetInt(KeyRateLimitBurst),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".openwork"
	}
	return filepath.Join(home, ".openwork")
}

func (c *Config) validate() error {
	if c.TurnBudget <= 0 {
		return fmt.Errorf("turn_budget_ms must be positive")
	}
	if c.MaxToolSteps <= 0 {
		return fmt.Errorf("max_tool_steps must be positive")
	}
	if c.BootstrapStaleMS <= 0 {
		return fmt.Errorf("bootstrap_stale_ms must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit settings must be positive")
	}
	return nil
}
