package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moshesimon/OpenWork-sub000/internal/config"
	"github.com/moshesimon/OpenWork-sub000/internal/store"
	"github.com/moshesimon/OpenWork-sub000/internal/turn"
)

var (
	runUserID string
	runKey    string
)

var runCmd = &cobra.Command{
	Use:   "run [input]",
	Short: "Run a user-command turn and print the reply",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "run")
		defer span.End()

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

		runner := buildRunner(cfg, st)
		outcome, err := runner.Run(ctx, turn.Trigger{
			UserID:    runUserID,
			Source:    store.SourceUserCommand,
			Ref:       runKey,
			InputText: args[0],
		})
		if err != nil {
			return err
		}

		fmt.Printf("Task:   %s (%s)\n", outcome.TaskID, outcome.Status)
		if outcome.Reply != "" {
			fmt.Printf("Reply:  %s\n", outcome.Reply)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runUserID, "user", "u", "", "user id the turn runs for (required)")
	runCmd.Flags().StringVar(&runKey, "idempotency-key", "", "optional idempotency key for the turn")
	_ = runCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(runCmd)
}
