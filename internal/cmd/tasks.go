package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/moshesimon/OpenWork-sub000/internal/config"
	"github.com/moshesimon/OpenWork-sub000/internal/store"
)

var tasksUserID string

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect agent tasks",
}

var tasksShowCmd = &cobra.Command{
	Use:   "show [task-id]",
	Short: "Print the audit view of one task as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "tasks.show")
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

		runner := buildRunner(cfg, st)
		view, err := runner.GetTaskView(ctx, args[0], tasksUserID)
		if err != nil {
			return fmt.Errorf("loading task view: %w", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	},
}

func init() {
	tasksShowCmd.Flags().StringVarP(&tasksUserID, "user", "u", "", "user id owning the task (required)")
	_ = tasksShowCmd.MarkFlagRequired("user")
	tasksCmd.AddCommand(tasksShowCmd)
	rootCmd.AddCommand(tasksCmd)
}
