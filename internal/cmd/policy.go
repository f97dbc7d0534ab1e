package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moshesimon/OpenWork-sub000/internal/config"
	"github.com/moshesimon/OpenWork-sub000/internal/policy"
	"github.com/moshesimon/OpenWork-sub000/internal/store"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage autonomy policy rules",
}

var policyImportCmd = &cobra.Command{
	Use:   "import [rules.yaml]",
	Short: "Import a YAML autonomy rule file for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "policy.import")
		defer span.End()

		rf, err := policy.LoadRuleFile(args[0])
		if err != nil {
			return fmt.Errorf("loading rule file: %w", err)
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := cfg.EnsureDataDir(); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		st, err := store.Open(cfg.WorkspaceDBPath())
		if err != nil {
			return fmt.Errorf("opening workspace store: %w", err)
		}
		defer st.Close()

		if err := policy.Import(ctx, st, rf); err != nil {
			return fmt.Errorf("importing rules: %w", err)
		}
		fmt.Printf("Imported %d rules for user %s\n", len(rf.Rules), rf.UserID)
		return nil
	},
}

func init() {
	policyCmd.AddCommand(policyImportCmd)
	rootCmd.AddCommand(policyCmd)
}
