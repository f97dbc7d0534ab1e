package doctor

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moshesimon/OpenWork-sub000/internal/secrets"
	"github.com/moshesimon/OpenWork-sub000/internal/store"
)

const testVaultKey = "0123456789abcdef0123456789abcdef"

func checkByName(t *testing.T, report *Report, name string) CheckResult {
	t.Helper()
	for _, c := range report.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q not in report", name)
	return CheckResult{}
}

func TestRun_FreshInstall(t *testing.T) {
	t.Setenv("OPENWORK_DATA_DIR", t.TempDir())

	report := Run(context.Background())

	assert.Equal(t, "pass", checkByName(t, report, "data_dir_writable").Status)
	assert.Equal(t, "pass", checkByName(t, report, "listen_addr").Status)
	// Empty workspace, no provider key, no vault key: warnings, not failures.
	assert.Equal(t, "warn", checkByName(t, report, "workspace_db").Status)
	assert.Equal(t, "warn", checkByName(t, report, "provider_key").Status)
	assert.Equal(t, "warn", checkByName(t, report, "vault").Status)
	assert.Equal(t, "warn", report.Status)
	assert.Zero(t, report.Summary.Fail)
}

func TestRun_FullyConfigured(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OPENWORK_DATA_DIR", dir)
	t.Setenv("OPENWORK_VAULT_KEY", testVaultKey)
	ctx := context.Background()

	st, err := store.Open(filepath.Join(dir, "workspace.db"))
	require.NoError(t, err)
	_, err = st.CreateUser(ctx, "alice", "Alice")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	vault, err := secrets.Open(filepath.Join(dir, "credentials.db"), testVaultKey)
	require.NoError(t, err)
	require.NoError(t, vault.Set(ctx, secrets.KeyOpenAIAPIKey, "sk-test"))
	require.NoError(t, vault.Close())

	report := Run(ctx)
	assert.Equal(t, "pass", report.Status)
	assert.Contains(t, checkByName(t, report, "provider_key").Message, "vault")
}

func TestRun_InvalidVaultKey(t *testing.T) {
	t.Setenv("OPENWORK_DATA_DIR", t.TempDir())
	t.Setenv("OPENWORK_VAULT_KEY", "too short")

	report := Run(context.Background())
	assert.Equal(t, "fail", report.Status)
	vaultCheck := checkByName(t, report, "vault")
	assert.Equal(t, "fail", vaultCheck.Status)
	assert.True(t, strings.Contains(vaultCheck.Fix, "32 bytes"))
}

func TestRun_InvalidListenAddr(t *testing.T) {
	t.Setenv("OPENWORK_DATA_DIR", t.TempDir())
	t.Setenv("OPENWORK_LISTEN_ADDR", "no-port-here")

	report := Run(context.Background())
	assert.Equal(t, "fail", report.Status)
	assert.Equal(t, "fail", checkByName(t, report, "listen_addr").Status)
}
