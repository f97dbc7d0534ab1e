package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moshesimon/OpenWork-sub000/internal/config"
	"github.com/moshesimon/OpenWork-sub000/internal/store"
)

var (
	briefingsUserID string
	briefingsLimit  int
)

var briefingsCmd = &cobra.Command{
	Use:   "briefings",
	Short: "Inspect the briefing feed",
}

var briefingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's briefings, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "briefings.list")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		st, err := store.Open(cfg.WorkspaceDBPath())
		if err != nil {
			return fmt.Errorf("opening workspace store: %w", err)
		}
		defer st.Close()

		items, err := st.ListBriefings(ctx, briefingsUserID, briefingsLimit)
		if err != nil {
			return fmt.Errorf("listing briefings: %w", err)
		}
		if len(items) == 0 {
			fmt.Println("No briefings.")
			return nil
		}
		for _, b := range items {
			fmt.Printf("[%s] %s  %s\n", b.Importance, b.CreatedAt.Format("2006-01-02 15:04"), b.Summary)
			if b.RecommendedAction != "" {
				fmt.Printf("        recommended: %s\n", b.RecommendedAction)
			}
		}
		return nil
	},
}

func init() {
	briefingsListCmd.Flags().StringVarP(&briefingsUserID, "user", "u", "", "user id (required)")
	briefingsListCmd.Flags().IntVar(&briefingsLimit, "limit", 20, "max briefings to list")
	_ = briefingsListCmd.MarkFlagRequired("user")
	briefingsCmd.AddCommand(briefingsListCmd)
	rootCmd.AddCommand(briefingsCmd)
}
