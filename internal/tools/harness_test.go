package tools_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moshesimon/OpenWork-sub000/internal/gate"
	"github.com/moshesimon/OpenWork-sub000/internal/llm"
	"github.com/moshesimon/OpenWork-sub000/internal/policy"
	"github.com/moshesimon/OpenWork-sub000/internal/store"
	"github.com/moshesimon/OpenWork-sub000/internal/testutil"
	"github.com/moshesimon/OpenWork-sub000/internal/tools"
)

type fixture struct {
	s      *store.Store
	user   *store.User
	sender *store.User
	conv   *store.Conversation
	srcMsg *store.Message
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := testutil.NewTestStore(t)
	user := testutil.SeedUser(t, s, "alice", "Alice")
	sender := testutil.SeedUser(t, s, "bob", "Bob")
	conv := testutil.SeedChannel(t, s, "general", "General", user.ID, sender.ID)
	msg := testutil.SeedMessage(t, s, conv.ID, sender.ID, "can you reply to this?")
	return &fixture{s: s, user: user, sender: sender, conv: conv, srcMsg: msg}
}

// systemHarness binds a fresh RUNNING task plus a system-event source to a
// harness, simulating one system-event turn over the fixture's message.
func (f *fixture) systemHarness(t *testing.T, ref string) (*tools.Harness, *store.AgentTask) {
	t.Helper()
	task := testutil.SeedAgentTask(t, f.s, f.user.ID, store.SourceInboundChannelMessage, ref)
	h := tools.NewHarness(f.s, policy.NewResolver(f.s), gate.NewActionDedup(f.s), task, &tools.SourceEvent{
		ConversationID: f.conv.ID,
		MessageID:      f.srcMsg.ID,
		SenderID:       f.sender.ID,
	})
	return h, task
}

func (f *fixture) userHarness(t *testing.T, ref string) (*tools.Harness, *store.AgentTask) {
	t.Helper()
	task := testutil.SeedAgentTask(t, f.s, f.user.ID, store.SourceUserCommand, ref)
	h := tools.NewHarness(f.s, policy.NewResolver(f.s), gate.NewActionDedup(f.s), task, nil)
	return h, task
}

func execute(t *testing.T, h *tools.Harness, name string, args map[string]interface{}) *tools.Result {
	t.Helper()
	raw, err := h.Execute(context.Background(), llm.ToolCall{ID: "call_1", Name: name, Arguments: args})
	require.NoError(t, err)
	var res tools.Result
	require.NoError(t, json.Unmarshal([]byte(raw), &res))
	return &res
}

func sendArgs(f *fixture, body string) map[string]interface{} {
	return map[string]interface{}{
		"conversation_id": f.conv.ID,
		"body":            body,
		"confidence":      0.8,
	}
}

func TestExecute_UnknownTool(t *testing.T) {
	f := newFixture(t)
	h, _ := f.userHarness(t, "trigger:t1")

	res := execute(t, h, "summon_demons", nil)
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, "unknown tool")
	assert.Equal(t, 1, h.ExecutedCount())
}

func TestExecute_ValidationFailureIsResultNotError(t *testing.T) {
	f := newFixture(t)
	h, _ := f.userHarness(t, "trigger:t1")

	res := execute(t, h, tools.NameSendMessage, map[string]interface{}{
		"conversation_id": f.conv.ID,
	})
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, "body is required")
}

func TestExecute_TrackedCounters(t *testing.T) {
	f := newFixture(t)
	h, _ := f.userHarness(t, "trigger:t1")

	execute(t, h, tools.NameListUsers, nil)
	execute(t, h, tools.NameSendMessage, map[string]interface{}{
		"conversation_id": f.conv.ID, "body": "hi", "confidence": 0.9,
	})
	execute(t, h, tools.NameSendMessage, map[string]interface{}{
		"conversation_id": f.conv.ID, "body": "again", "confidence": 0.4,
	})

	assert.Equal(t, 3, h.ExecutedCount())
	// Confidence is the monotonic max, not the latest value.
	assert.Equal(t, 0.9, h.Confidence())
	assert.NotEmpty(t, h.LastMessage())
}

func TestSendMessage_AutoExecutes(t *testing.T) {
	f := newFixture(t)
	h, task := f.systemHarness(t, "message:"+f.srcMsg.ID)
	ctx := context.Background()

	res := execute(t, h, tools.NameSendMessage, sendArgs(f, "on it"))
	require.True(t, res.OK)
	assert.Equal(t, "executed", res.Data["status"])

	deliveries, err := f.s.ListDeliveries(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)

	msgs, err := f.s.ListMessages(ctx, f.conv.ID, 10)
	require.NoError(t, err)
	var aiMsgs []store.Message
	for _, m := range msgs {
		if m.IsAI {
			aiMsgs = append(aiMsgs, m)
		}
	}
	require.Len(t, aiMsgs, 1)
	assert.Equal(t, "on it", aiMsgs[0].Body)
	assert.Equal(t, f.user.ID, aiMsgs[0].SenderID)

	actions, err := f.s.ListActions(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, store.KindSendMessage, actions[0].Type)
	assert.Equal(t, store.ActionExecuted, actions[0].Status)

	events, err := f.s.ListEvents(ctx, task.ID)
	require.NoError(t, err)
	var types []string
	for _, e := range events {
		types = append(types, e.EventType)
	}
	assert.Contains(t, types, tools.EventToolCall)
	assert.Contains(t, types, tools.EventMessageSent)
}

func TestSendMessage_DuplicateSourceEventSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h1, task1 := f.systemHarness(t, "message:"+f.srcMsg.ID)
	res1 := execute(t, h1, tools.NameSendMessage, sendArgs(f, "on it"))
	require.True(t, res1.OK)
	require.Equal(t, "executed", res1.Data["status"])

	// A second turn over the same source event loses the claim and must
	// not send again.
	h2, task2 := f.systemHarness(t, "retry:"+f.srcMsg.ID)
	res2 := execute(t, h2, tools.NameSendMessage, sendArgs(f, "on it"))
	require.True(t, res2.OK)
	assert.Equal(t, "skipped_duplicate", res2.Data["status"])
	assert.Equal(t, task1.ID, res2.Data["existing_task_id"])
	assert.NotEmpty(t, res2.Data["existing_output_id"])

	deliveries, err := f.s.ListDeliveries(ctx, task2.ID)
	require.NoError(t, err)
	assert.Empty(t, deliveries)

	msgs, err := f.s.ListMessages(ctx, f.conv.ID, 50)
	require.NoError(t, err)
	aiCount := 0
	for _, m := range msgs {
		if m.IsAI {
			aiCount++
		}
	}
	assert.Equal(t, 1, aiCount)

	events, err := f.s.ListEvents(ctx, task2.ID)
	require.NoError(t, err)
	var types []string
	for _, e := range events {
		types = append(types, e.EventType)
	}
	assert.Contains(t, types, tools.EventDedupeSkip)
}

func TestSendMessage_PolicyOffExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.s.InsertPolicyRule(ctx, &store.PolicyRule{
		UserID: f.user.ID, ScopeType: policy.ScopeGlobal, Autonomy: "OFF",
	}))

	h1, task1 := f.systemHarness(t, "message:"+f.srcMsg.ID)
	res1 := execute(t, h1, tools.NameSendMessage, sendArgs(f, "draft reply"))
	require.True(t, res1.OK)
	assert.Equal(t, "skipped_by_policy", res1.Data["status"])

	h2, _ := f.systemHarness(t, "retry:"+f.srcMsg.ID)
	res2 := execute(t, h2, tools.NameSendMessage, sendArgs(f, "draft reply"))
	require.True(t, res2.OK)
	assert.Equal(t, "skipped_duplicate", res2.Data["status"])

	// Exactly one briefing, one SKIPPED action, zero deliveries and zero
	// outbound messages across both attempts.
	briefings, err := f.s.ListBriefings(ctx, f.user.ID, 10)
	require.NoError(t, err)
	require.Len(t, briefings, 1)
	assert.Equal(t, store.ImportanceMedium, briefings[0].Importance)
	assert.Contains(t, briefings[0].Summary, "draft reply")

	actions, err := f.s.ListActions(ctx, task1.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, store.ActionSkipped, actions[0].Status)

	deliveries, err := f.s.ListDeliveries(ctx, task1.ID)
	require.NoError(t, err)
	assert.Empty(t, deliveries)

	msgs, err := f.s.ListMessages(ctx, f.conv.ID, 50)
	require.NoError(t, err)
	for _, m := range msgs {
		assert.False(t, m.IsAI)
	}
}

func TestSendMessage_ReviewAlsoSkips(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.s.InsertPolicyRule(ctx, &store.PolicyRule{
		UserID: f.user.ID, ScopeType: policy.ScopeChannel, ScopeValue: "general", Autonomy: "REVIEW",
	}))

	h, _ := f.systemHarness(t, "message:"+f.srcMsg.ID)
	res := execute(t, h, tools.NameSendMessage, sendArgs(f, "pending review"))
	require.True(t, res.OK)
	assert.Equal(t, "skipped_by_policy", res.Data["status"])
	assert.Equal(t, "REVIEW", res.Data["autonomy"])
}

func TestSendMessage_UserTurnsNotDedupGated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h1, _ := f.userHarness(t, "trigger:a")
	h2, _ := f.userHarness(t, "trigger:b")
	res1 := execute(t, h1, tools.NameSendMessage, sendArgs(f, "first"))
	res2 := execute(t, h2, tools.NameSendMessage, sendArgs(f, "second"))
	assert.Equal(t, "executed", res1.Data["status"])
	assert.Equal(t, "executed", res2.Data["status"])

	msgs, err := f.s.ListMessages(ctx, f.conv.ID, 50)
	require.NoError(t, err)
	aiCount := 0
	for _, m := range msgs {
		if m.IsAI {
			aiCount++
		}
	}
	assert.Equal(t, 2, aiCount)
}

func TestWriteAIChatMessage(t *testing.T) {
	f := newFixture(t)
	h, _ := f.systemHarness(t, "message:"+f.srcMsg.ID)
	ctx := context.Background()

	res := execute(t, h, tools.NameWriteAIChatMessage, map[string]interface{}{
		"body": "I noticed a deadline in #general.", "confidence": 0.6,
	})
	require.True(t, res.OK)
	assert.Equal(t, "executed", res.Data["status"])

	dm, err := f.s.EnsureDMConversation(ctx, f.user.ID, tools.AssistantUserID)
	require.NoError(t, err)
	msgs, err := f.s.ListMessages(ctx, dm.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, tools.AssistantUserID, msgs[0].SenderID)
	assert.True(t, msgs[0].IsAI)
}

func TestCreateBriefing_DuplicateClaimSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h1, _ := f.systemHarness(t, "message:"+f.srcMsg.ID)
	res1 := execute(t, h1, tools.NameCreateBriefing, map[string]interface{}{
		"summary":    "Bob asked for a review before Friday.",
		"importance": "HIGH",
	})
	require.True(t, res1.OK)
	assert.Equal(t, "executed", res1.Data["status"])

	// A second turn over the same source event loses the CREATE_BRIEFING
	// claim and must not file a second item.
	h2, _ := f.systemHarness(t, "retry:"+f.srcMsg.ID)
	res2 := execute(t, h2, tools.NameCreateBriefing, map[string]interface{}{
		"summary":    "Bob asked for a review before Friday.",
		"importance": "HIGH",
	})
	require.True(t, res2.OK)
	assert.Equal(t, "skipped_duplicate", res2.Data["status"])

	briefings, err := f.s.ListBriefings(ctx, f.user.ID, 10)
	require.NoError(t, err)
	assert.Len(t, briefings, 1)
}

func TestCreateBriefing_ContentDedupAcrossKinds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.s.InsertPolicyRule(ctx, &store.PolicyRule{
		UserID: f.user.ID, ScopeType: policy.ScopeGlobal, Autonomy: "OFF",
	}))

	// A blocked send files a manual-send briefing under the SEND_MESSAGE
	// claim kind.
	h1, _ := f.systemHarness(t, "message:"+f.srcMsg.ID)
	res1 := execute(t, h1, tools.NameSendMessage, sendArgs(f, "draft reply"))
	require.Equal(t, "skipped_by_policy", res1.Data["status"])
	briefings, err := f.s.ListBriefings(ctx, f.user.ID, 10)
	require.NoError(t, err)
	require.Len(t, briefings, 1)

	// The same turn filing an equivalent summary wins its own
	// CREATE_BRIEFING claim but the content check still collapses it.
	res2 := execute(t, h1, tools.NameCreateBriefing, map[string]interface{}{
		"summary": briefings[0].Summary,
	})
	require.True(t, res2.OK)
	assert.Equal(t, "skipped_duplicate", res2.Data["status"])

	briefings, err = f.s.ListBriefings(ctx, f.user.ID, 10)
	require.NoError(t, err)
	assert.Len(t, briefings, 1)
}

func TestCreateInformAction_HighImportanceFilesBriefing(t *testing.T) {
	f := newFixture(t)
	h, task := f.systemHarness(t, "message:"+f.srcMsg.ID)
	ctx := context.Background()

	res := execute(t, h, tools.NameCreateInformAction, map[string]interface{}{
		"summary":    "Production deploy is blocked.",
		"importance": "HIGH",
		"confidence": 0.9,
	})
	require.True(t, res.OK)
	assert.NotEmpty(t, res.Data["briefing_id"])

	actions, err := f.s.ListActions(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, store.KindInformUser, actions[0].Type)

	briefings, err := f.s.ListBriefings(ctx, f.user.ID, 10)
	require.NoError(t, err)
	require.Len(t, briefings, 1)
	assert.Equal(t, store.ImportanceHigh, briefings[0].Importance)
}

func TestCreateInformAction_LowImportanceNoBriefing(t *testing.T) {
	f := newFixture(t)
	h, _ := f.systemHarness(t, "message:"+f.srcMsg.ID)
	ctx := context.Background()

	res := execute(t, h, tools.NameCreateInformAction, map[string]interface{}{
		"summary": "FYI only.",
	})
	require.True(t, res.OK)
	_, hasBriefing := res.Data["briefing_id"]
	assert.False(t, hasBriefing)

	briefings, err := f.s.ListBriefings(ctx, f.user.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, briefings)
}

func TestMutatingTools_NotDedupGated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// create_task is idempotent by intent, not claim-gated: two turns over
	// the same source event both execute.
	h1, _ := f.systemHarness(t, "message:"+f.srcMsg.ID)
	h2, _ := f.systemHarness(t, "retry:"+f.srcMsg.ID)
	res1 := execute(t, h1, tools.NameCreateTask, map[string]interface{}{"title": "Review Q3 doc"})
	res2 := execute(t, h2, tools.NameCreateTask, map[string]interface{}{"title": "Review Q3 doc"})
	require.True(t, res1.OK)
	require.True(t, res2.OK)

	tasks, err := f.s.ListWorkspaceTasks(ctx, f.user.ID, 10)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestListMessages_ReadsBack(t *testing.T) {
	f := newFixture(t)
	h, _ := f.userHarness(t, "trigger:t1")

	res := execute(t, h, tools.NameListMessages, map[string]interface{}{
		"conversation_id": f.conv.ID,
	})
	require.True(t, res.OK)
	msgs, ok := res.Data["messages"].([]interface{})
	require.True(t, ok)
	assert.Len(t, msgs, 1)
}
