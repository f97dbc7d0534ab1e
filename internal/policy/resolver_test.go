package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moshesimon/OpenWork-sub000/internal/store"
	"github.com/moshesimon/OpenWork-sub000/internal/testutil"
)

func seedRule(t *testing.T, s *store.Store, userID, scopeType, scopeValue, autonomy string, priority int) {
	t.Helper()
	err := s.InsertPolicyRule(context.Background(), &store.PolicyRule{
		UserID:     userID,
		ScopeType:  scopeType,
		ScopeValue: scopeValue,
		Autonomy:   autonomy,
		Priority:   priority,
	})
	require.NoError(t, err)
}

func TestResolve_HardcodedDefault(t *testing.T) {
	s := testutil.NewTestStore(t)
	r := NewResolver(s)

	level, err := r.Resolve(context.Background(), "u1", Scope{ActionType: store.KindSendMessage})
	require.NoError(t, err)
	assert.Equal(t, LevelAuto, level)
}

func TestResolve_ProfileDefault(t *testing.T) {
	s := testutil.NewTestStore(t)
	r := NewResolver(s)
	ctx := context.Background()

	require.NoError(t, s.UpsertProfile(ctx, "u1", "REVIEW"))

	level, err := r.Resolve(ctx, "u1", Scope{ActionType: store.KindSendMessage})
	require.NoError(t, err)
	assert.Equal(t, LevelReview, level)
}

func TestResolve_ScopeTypePrecedence(t *testing.T) {
	s := testutil.NewTestStore(t)
	r := NewResolver(s)
	ctx := context.Background()

	// Later scope types would resolve differently; the action_type rule
	// must win regardless of insert order or priority.
	seedRule(t, s, "u1", ScopeGlobal, "", "OFF", 0)
	seedRule(t, s, "u1", ScopeConversation, "conv_1", "REVIEW", 0)
	seedRule(t, s, "u1", ScopeChannel, "general", "REVIEW", 0)
	seedRule(t, s, "u1", ScopeActionType, "SEND_MESSAGE", "AUTO", 99)

	level, err := r.Resolve(ctx, "u1", Scope{
		ActionType:     store.KindSendMessage,
		ChannelSlug:    "general",
		ConversationID: "conv_1",
	})
	require.NoError(t, err)
	assert.Equal(t, LevelAuto, level)
}

func TestResolve_ChannelBeforeConversation(t *testing.T) {
	s := testutil.NewTestStore(t)
	r := NewResolver(s)
	ctx := context.Background()

	seedRule(t, s, "u1", ScopeConversation, "conv_1", "AUTO", 0)
	seedRule(t, s, "u1", ScopeChannel, "general", "OFF", 0)

	level, err := r.Resolve(ctx, "u1", Scope{
		ActionType:     store.KindSendMessage,
		ChannelSlug:    "general",
		ConversationID: "conv_1",
	})
	require.NoError(t, err)
	assert.Equal(t, LevelOff, level)
}

func TestResolve_GlobalWildcard(t *testing.T) {
	s := testutil.NewTestStore(t)
	r := NewResolver(s)
	ctx := context.Background()

	seedRule(t, s, "u1", ScopeGlobal, "", "OFF", 0)

	level, err := r.Resolve(ctx, "u1", Scope{ActionType: store.KindCreateTask})
	require.NoError(t, err)
	assert.Equal(t, LevelOff, level)
}

func TestResolve_NonMatchingScopesSkipped(t *testing.T) {
	s := testutil.NewTestStore(t)
	r := NewResolver(s)
	ctx := context.Background()

	seedRule(t, s, "u1", ScopeChannel, "random", "OFF", 0)
	seedRule(t, s, "u1", ScopeActionType, "CREATE_TASK", "OFF", 0)

	level, err := r.Resolve(ctx, "u1", Scope{
		ActionType:  store.KindSendMessage,
		ChannelSlug: "general",
	})
	require.NoError(t, err)
	assert.Equal(t, LevelAuto, level)
}

func TestResolve_RulesArePerUser(t *testing.T) {
	s := testutil.NewTestStore(t)
	r := NewResolver(s)
	ctx := context.Background()

	seedRule(t, s, "u1", ScopeGlobal, "", "OFF", 0)

	level, err := r.Resolve(ctx, "u2", Scope{ActionType: store.KindSendMessage})
	require.NoError(t, err)
	assert.Equal(t, LevelAuto, level)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelOff, ParseLevel("OFF"))
	assert.Equal(t, LevelReview, ParseLevel("REVIEW"))
	assert.Equal(t, LevelAuto, ParseLevel("AUTO"))
	assert.Equal(t, LevelAuto, ParseLevel("garbage"))
	assert.Equal(t, LevelAuto, ParseLevel(""))
}
