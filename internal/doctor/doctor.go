// Package doctor provides health checks for OpenWork configuration and
// runtime state. Used by `openwork doctor`.
package doctor

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/moshesimon/OpenWork-sub000/internal/config"
	"github.com/moshesimon/OpenWork-sub000/internal/secrets"
	"github.com/moshesimon/OpenWork-sub000/internal/store"
)

// CheckResult is a single doctor check outcome.
type CheckResult struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   string `json:"status"` // pass, warn, fail
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Summary tallies pass/warn/fail counts.
type Summary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Report is the complete doctor output.
type Report struct {
	Status  string        `json:"status"` // worst of all checks
	Checks  []CheckResult `json:"checks"`
	Summary Summary       `json:"summary"`
}

// Run executes all doctor checks and returns a report.
func Run(ctx context.Context) *Report {
	report := &Report{}

	cfg, err := config.Load()
	if err != nil {
		report.Checks = append(report.Checks, CheckResult{
			Name: "config_load", Category: "config", Status: "fail",
			Message: fmt.Sprintf("Cannot load config: %v", err),
			Fix:     "Check OPENWORK_* env vars and openwork.config.yaml",
		})
	} else {
		report.Checks = append(report.Checks,
			checkDataDir(cfg),
			checkWorkspaceDB(ctx, cfg),
			checkProviderKey(ctx, cfg),
			checkVault(cfg),
			checkListenAddr(cfg),
		)
	}

	for _, c := range report.Checks {
		switch c.Status {
		case "pass":
			report.Summary.Pass++
		case "warn":
			report.Summary.Warn++
		case "fail":
			report.Summary.Fail++
		}
	}

	report.Status = "pass"
	if report.Summary.Warn > 0 {
		report.Status = "warn"
	}
	if report.Summary.Fail > 0 {
		report.Status = "fail"
	}
	return report
}

func checkDataDir(cfg *config.Config) CheckResult {
	if err := cfg.EnsureDataDir(); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%s: %v", cfg.DataDir, err),
			Fix:     "Ensure the directory exists and is writable",
		}
	}
	testFile := filepath.Join(cfg.DataDir, ".doctor-write-test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%s not writable: %v", cfg.DataDir, err),
		}
	}
	_ = os.Remove(testFile)
	return CheckResult{
		Name: "data_dir_writable", Category: "config", Status: "pass",
		Message: fmt.Sprintf("%s (writable)", cfg.DataDir),
	}
}

func checkWorkspaceDB(ctx context.Context, cfg *config.Config) CheckResult {
	st, err := store.Open(cfg.WorkspaceDBPath())
	if err != nil {
		return CheckResult{
			Name: "workspace_db", Category: "storage", Status: "fail",
			Message: fmt.Sprintf("Cannot open %s: %v", cfg.WorkspaceDBPath(), err),
			Fix:     "Delete the database to recreate it, or fix file permissions",
		}
	}
	defer st.Close()

	users, err := st.ListUsers(ctx)
	if err != nil {
		return CheckResult{
			Name: "workspace_db", Category: "storage", Status: "fail",
			Message: fmt.Sprintf("Schema query failed: %v", err),
		}
	}
	if len(users) == 0 {
		return CheckResult{
			Name: "workspace_db", Category: "storage", Status: "warn",
			Message: "Workspace is empty",
			Fix:     "Run `openwork seed` to create demo users and channels",
		}
	}
	return CheckResult{
		Name: "workspace_db", Category: "storage", Status: "pass",
		Message: fmt.Sprintf("%s (%d users)", cfg.WorkspaceDBPath(), len(users)),
	}
}

// checkProviderKey mirrors the serve-time key resolution: direct config
// first, then the vault.
func checkProviderKey(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg.OpenAIAPIKey != "" {
		return CheckResult{
			Name: "provider_key", Category: "llm", Status: "pass",
			Message: "OpenAI API key configured",
		}
	}
	if cfg.VaultKey != "" {
		vault, err := secrets.Open(cfg.CredentialsDBPath(), cfg.VaultKey)
		if err == nil {
			defer vault.Close()
			if _, err := vault.Get(ctx, secrets.KeyOpenAIAPIKey, "doctor"); err == nil {
				return CheckResult{
					Name: "provider_key", Category: "llm", Status: "pass",
					Message: "OpenAI API key available from the credentials vault",
				}
			}
		}
	}
	return CheckResult{
		Name: "provider_key", Category: "llm", Status: "warn",
		Message: "No OpenAI API key; turns will use the deterministic provider only",
		Fix:     "Set OPENWORK_OPENAI_API_KEY or store it with `openwork secrets set`",
	}
}

func checkVault(cfg *config.Config) CheckResult {
	if cfg.VaultKey == "" {
		return CheckResult{
			Name: "vault", Category: "secrets", Status: "warn",
			Message: "Credentials vault disabled (no vault key)",
			Fix:     "Set OPENWORK_VAULT_KEY to enable encrypted credential storage",
		}
	}
	vault, err := secrets.Open(cfg.CredentialsDBPath(), cfg.VaultKey)
	if err != nil {
		return CheckResult{
			Name: "vault", Category: "secrets", Status: "fail",
			Message: fmt.Sprintf("Cannot open vault: %v", err),
			Fix:     "The vault key must be 32 bytes or 64 hex characters",
		}
	}
	_ = vault.Close()
	return CheckResult{
		Name: "vault", Category: "secrets", Status: "pass",
		Message: cfg.CredentialsDBPath(),
	}
}

func checkListenAddr(cfg *config.Config) CheckResult {
	_, _, err := net.SplitHostPort(cfg.ListenAddr)
	if err != nil {
		return CheckResult{
			Name: "listen_addr", Category: "server", Status: "fail",
			Message: fmt.Sprintf("%q is not a valid listen address: %v", cfg.ListenAddr, err),
			Fix:     "Use host:port form, e.g. :8484",
		}
	}
	return CheckResult{
		Name: "listen_addr", Category: "server", Status: "pass",
		Message: cfg.ListenAddr,
	}
}
