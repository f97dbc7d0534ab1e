package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/moshesimon/OpenWork-sub000/internal/store"
)

// NewTestStore opens a workspace store in a temp dir and registers
// t.Cleanup to close it.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "workspace.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// SeedUser creates a user, failing the test on error.
func SeedUser(t *testing.T, s *store.Store, handle, displayName string) *store.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), handle, displayName)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

// SeedChannel creates a channel conversation with the given members.
func SeedChannel(t *testing.T, s *store.Store, slug, title string, memberIDs ...string) *store.Conversation {
	t.Helper()
	c, err := s.CreateConversation(context.Background(), "channel", slug, title, memberIDs)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// SeedMessage inserts a message and returns it with its assigned id.
func SeedMessage(t *testing.T, s *store.Store, conversationID, senderID, body string) *store.Message {
	t.Helper()
	m := &store.Message{ConversationID: conversationID, SenderID: senderID, Body: body}
	if err := s.InsertMessage(context.Background(), s.DB(), m); err != nil {
		t.Fatal(err)
	}
	return m
}

// SeedAgentTask creates a RUNNING agent task for tests that exercise the
// harness or view layer directly, bypassing admission.
func SeedAgentTask(t *testing.T, s *store.Store, userID string, source store.TriggerSource, ref string) *store.AgentTask {
	t.Helper()
	task := &store.AgentTask{
		UserID:        userID,
		TriggerSource: source,
		TriggerRef:    ref,
		Status:        store.TaskRunning,
	}
	if err := s.CreateAgentTask(context.Background(), s.DB(), task); err != nil {
		t.Fatal(err)
	}
	return task
}
