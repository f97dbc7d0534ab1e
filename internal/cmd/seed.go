package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moshesimon/OpenWork-sub000/internal/config"
	"github.com/moshesimon/OpenWork-sub000/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create a small demo workspace (users, channels, messages)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "seed")
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

		return seedWorkspace(ctx, st)
	},
}

func seedWorkspace(ctx context.Context, st *store.Store) error {
	alice, err := st.CreateUser(ctx, "alice", "Alice Nguyen")
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	bob, err := st.CreateUser(ctx, "bob", "Bob Okafor")
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}

	general, err := st.CreateConversation(ctx, "channel", "general", "General", []string{alice.ID, bob.ID})
	if err != nil {
		return fmt.Errorf("creating channel: %w", err)
	}
	if _, err := st.CreateConversation(ctx, "channel", "planning", "Planning", []string{alice.ID, bob.ID}); err != nil {
		return fmt.Errorf("creating channel: %w", err)
	}
	dm, err := st.EnsureDMConversation(ctx, alice.ID, bob.ID)
	if err != nil {
		return fmt.Errorf("creating DM: %w", err)
	}

	welcome := &store.Message{ConversationID: general.ID, SenderID: bob.ID, Body: "Welcome to the workspace, Alice!"}
	if err := st.InsertMessage(ctx, st.DB(), welcome); err != nil {
		return fmt.Errorf("seeding message: %w", err)
	}
	ping := &store.Message{ConversationID: dm.ID, SenderID: bob.ID, Body: "Can you review the Q3 planning doc before Friday?"}
	if err := st.InsertMessage(ctx, st.DB(), ping); err != nil {
		return fmt.Errorf("seeding message: %w", err)
	}

	if err := st.UpsertProfile(ctx, alice.ID, "AUTO"); err != nil {
		return fmt.Errorf("seeding profile: %w", err)
	}
	if err := st.UpsertProfile(ctx, bob.ID, "REVIEW"); err != nil {
		return fmt.Errorf("seeding profile: %w", err)
	}

	fmt.Printf("Seeded workspace: users %s, %s; channels #general, #planning; one DM\n", alice.Handle, bob.Handle)
	return nil
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
