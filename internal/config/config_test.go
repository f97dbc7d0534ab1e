package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OPENWORK_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, DefaultOpenAIModel, cfg.OpenAIModel)
	assert.Equal(t, 55*time.Second, cfg.TurnBudget)
	assert.Equal(t, DefaultMaxToolSteps, cfg.MaxToolSteps)
	assert.Empty(t, cfg.OpenAIAPIKey)
	assert.Empty(t, cfg.VaultKey)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OPENWORK_DATA_DIR", dir)
	t.Setenv("OPENWORK_LISTEN_ADDR", "127.0.0.1:9000")
	t.Setenv("OPENWORK_TURN_BUDGET_MS", "2500")
	t.Setenv("OPENWORK_OPENAI_BASE_URL", "http://localhost:9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	assert.Equal(t, 2500*time.Millisecond, cfg.TurnBudget)
	assert.Equal(t, "http://localhost:9090", cfg.OpenAIBaseURL)
}

func TestLoad_RejectsNonPositiveBudget(t *testing.T) {
	t.Setenv("OPENWORK_DATA_DIR", t.TempDir())
	t.Setenv("OPENWORK_TURN_BUDGET_MS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "turn_budget_ms")
}

func TestDerivedPaths(t *testing.T) {
	cfg := &Config{DataDir: "/var/lib/openwork"}
	assert.Equal(t, filepath.Join("/var/lib/openwork", "workspace.db"), cfg.WorkspaceDBPath())
	assert.Equal(t, filepath.Join("/var/lib/openwork", "credentials.db"), cfg.CredentialsDBPath())
}
