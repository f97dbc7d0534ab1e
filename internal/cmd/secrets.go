package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moshesimon/OpenWork-sub000/internal/config"
	"github.com/moshesimon/OpenWork-sub000/internal/secrets"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage the encrypted credentials vault",
	Long: `Manage provider credentials encrypted at rest in the data directory.

The vault key comes from OPENWORK_VAULT_KEY (or vault_key in the config
file) and must be 32 bytes or 64 hex characters. Store the OpenAI key as
"` + secrets.KeyOpenAIAPIKey + `" and serve/run will pick it up when no key
is configured directly.`,
}

var secretsSetCmd = &cobra.Command{
	Use:   "set [name] [value]",
	Short: "Store or replace a credential",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		vault, err := openVault()
		if err != nil {
			return err
		}
		defer vault.Close()
		if err := vault.Set(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Stored %s\n", args[0])
		return nil
	},
}

var secretsGetCmd = &cobra.Command{
	Use:   "get [name]",
	Short: "Print a decrypted credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vault, err := openVault()
		if err != nil {
			return err
		}
		defer vault.Close()
		cred, err := vault.Get(cmd.Context(), args[0], "cli")
		if err != nil {
			return err
		}
		fmt.Println(cred.Value)
		return nil
	},
}

var secretsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List credential names and access counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		vault, err := openVault()
		if err != nil {
			return err
		}
		defer vault.Close()
		items, err := vault.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No credentials stored.")
			return nil
		}
		for _, m := range items {
			fmt.Printf("%-24s accessed %d times\n", m.Name, m.AccessCount)
		}
		return nil
	},
}

var secretsRotateCmd = &cobra.Command{
	Use:   "rotate [name]",
	Short: "Re-encrypt a credential with a fresh nonce",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vault, err := openVault()
		if err != nil {
			return err
		}
		defer vault.Close()
		if err := vault.Rotate(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Rotated %s\n", args[0])
		return nil
	},
}

func openVault() (*secrets.Vault, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cfg.VaultKey == "" {
		return nil, fmt.Errorf("vault key not configured; set OPENWORK_VAULT_KEY")
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return secrets.Open(cfg.CredentialsDBPath(), cfg.VaultKey)
}

func init() {
	secretsCmd.AddCommand(secretsSetCmd, secretsGetCmd, secretsListCmd, secretsRotateCmd)
	rootCmd.AddCommand(secretsCmd)
}
