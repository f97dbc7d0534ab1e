package tools

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/moshesimon/OpenWork-sub000/internal/policy"
	"github.com/moshesimon/OpenWork-sub000/internal/store"
)

// Outbound tools are the irreversible ones. send_message is additionally
// policy-gated; on system-event turns every outbound kind first claims the
// (user, source conversation, source event, kind) tuple inside the same
// transaction as its effect, so the effect lands at most once per source
// event no matter how many turns process it.

const draftBodyPreviewLen = 140

func (h *Harness) sendMessage(ctx context.Context, args map[string]interface{}) (*Result, error) {
	in := sendMessageInput{
		ConversationID: argString(args, "conversation_id"),
		Body:           argString(args, "body"),
		Reasoning:      argString(args, "reasoning"),
		Confidence:     argFloat(args, "confidence"),
	}
	if err := in.validate(); err != nil {
		return failf("invalid send_message input: %v", err), nil
	}
	h.bumpConfidence(in.Confidence)

	conv, err := h.store.GetConversation(ctx, in.ConversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return failf("conversation %s not found", in.ConversationID), nil
		}
		return nil, err
	}

	level, err := h.policy.Resolve(ctx, h.task.UserID, policy.Scope{
		ActionType:     store.KindSendMessage,
		ChannelSlug:    conv.ChannelSlug,
		ConversationID: conv.ID,
	})
	if err != nil {
		return nil, err
	}

	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	claimID, dup, err := h.claimOutbound(ctx, tx, store.KindSendMessage)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		return dup, nil
	}

	if level != policy.LevelAuto {
		return h.skipSendByPolicy(ctx, tx, conv, &in, level, claimID)
	}

	action := &store.AgentAction{
		TaskID:               h.task.ID,
		Type:                 store.KindSendMessage,
		Status:               store.ActionExecuted,
		TargetConversationID: conv.ID,
		TargetUserID:         h.task.UserID,
		Reasoning:            in.Reasoning,
		Confidence:           in.Confidence,
		PayloadJSON:          fmt.Sprintf(`{"body_len":%d}`, len(in.Body)),
	}
	if err := h.store.InsertAction(ctx, tx, action); err != nil {
		return nil, err
	}
	msg := &store.Message{
		ConversationID: conv.ID,
		SenderID:       h.task.UserID,
		Body:           in.Body,
		IsAI:           true,
	}
	if err := h.store.InsertMessage(ctx, tx, msg); err != nil {
		return nil, err
	}
	delivery := &store.Delivery{
		ActionID:       action.ID,
		ConversationID: conv.ID,
		MessageID:      msg.ID,
	}
	if err := h.store.InsertDelivery(ctx, tx, delivery); err != nil {
		return nil, err
	}
	h.appendEvent(ctx, tx, action.ID, EventMessageSent, map[string]interface{}{
		"conversation_id": conv.ID,
		"message_id":      msg.ID,
		"delivery_id":     delivery.ID,
	})
	if claimID != "" {
		if err := h.dedup.SetOutput(ctx, tx, claimID, msg.ID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing send: %w", err)
	}
	return okf(map[string]interface{}{
		"status":      "executed",
		"message_id":  msg.ID,
		"delivery_id": delivery.ID,
	}, "Sent message to %s", conversationLabel(conv)), nil
}

// skipSendByPolicy records the draft-and-skip outcome: a SKIPPED action
// holding the draft, a content-deduplicated manual-send briefing, and a
// policy_skip event, all in the caller's transaction.
func (h *Harness) skipSendByPolicy(ctx context.Context, tx *sql.Tx, conv *store.Conversation, in *sendMessageInput, level policy.Level, claimID string) (*Result, error) {
	action := &store.AgentAction{
		TaskID:               h.task.ID,
		Type:                 store.KindSendMessage,
		Status:               store.ActionSkipped,
		TargetConversationID: conv.ID,
		TargetUserID:         h.task.UserID,
		Reasoning:            in.Reasoning,
		Confidence:           in.Confidence,
		PayloadJSON:          mustJSON(map[string]interface{}{"draft_body": in.Body, "autonomy": string(level)}),
	}
	if err := h.store.InsertAction(ctx, tx, action); err != nil {
		return nil, err
	}

	summary := fmt.Sprintf("Draft reply to %s awaiting manual send: %s",
		conversationLabel(conv), truncate(in.Body, draftBodyPreviewLen))
	briefingID, created, err := h.ensureBriefing(ctx, tx, &store.BriefingItem{
		UserID:               h.task.UserID,
		Importance:           store.ImportanceMedium,
		Summary:              summary,
		RecommendedAction:    "Review the draft and send it manually.",
		SourceConversationID: conv.ID,
		SourceMessageID:      h.sourceMessageID(),
	})
	if err != nil {
		return nil, err
	}

	h.appendEvent(ctx, tx, action.ID, EventPolicySkip, map[string]interface{}{
		"conversation_id": conv.ID,
		"autonomy":        string(level),
		"briefing_id":     briefingID,
	})
	if claimID != "" {
		if err := h.dedup.SetOutput(ctx, tx, claimID, briefingID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing policy skip: %w", err)
	}
	return okf(map[string]interface{}{
		"status":           "skipped_by_policy",
		"autonomy":         string(level),
		"briefing_id":      briefingID,
		"briefing_created": created,
	}, "Autonomy is %s for %s; saved the draft for manual review instead of sending.", level, conversationLabel(conv)), nil
}

func (h *Harness) writeAIChatMessage(ctx context.Context, args map[string]interface{}) (*Result, error) {
	in := writeAIChatMessageInput{
		Body:       argString(args, "body"),
		Confidence: argFloat(args, "confidence"),
	}
	if err := in.validate(); err != nil {
		return failf("invalid write_ai_chat_message input: %v", err), nil
	}
	h.bumpConfidence(in.Confidence)

	conv, err := h.store.EnsureDMConversation(ctx, h.task.UserID, AssistantUserID)
	if err != nil {
		return nil, err
	}

	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	claimID, dup, err := h.claimOutbound(ctx, tx, store.KindAIChatNote)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		return dup, nil
	}

	action := &store.AgentAction{
		TaskID:               h.task.ID,
		Type:                 store.KindAIChatNote,
		Status:               store.ActionExecuted,
		TargetConversationID: conv.ID,
		TargetUserID:         h.task.UserID,
		Confidence:           in.Confidence,
		PayloadJSON:          fmt.Sprintf(`{"body_len":%d}`, len(in.Body)),
	}
	if err := h.store.InsertAction(ctx, tx, action); err != nil {
		return nil, err
	}
	msg := &store.Message{
		ConversationID: conv.ID,
		SenderID:       AssistantUserID,
		Body:           in.Body,
		IsAI:           true,
	}
	if err := h.store.InsertMessage(ctx, tx, msg); err != nil {
		return nil, err
	}
	h.appendEvent(ctx, tx, action.ID, EventChatNoteWritten, map[string]interface{}{
		"conversation_id": conv.ID,
		"message_id":      msg.ID,
	})
	if claimID != "" {
		if err := h.dedup.SetOutput(ctx, tx, claimID, msg.ID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing chat note: %w", err)
	}
	return okf(map[string]interface{}{
		"status":     "executed",
		"message_id": msg.ID,
	}, "Left a note in the AI chat thread."), nil
}

func (h *Harness) createBriefing(ctx context.Context, args map[string]interface{}) (*Result, error) {
	in := createBriefingInput{
		Summary:           argString(args, "summary"),
		Importance:        argImportance(args, "importance", store.ImportanceMedium),
		RecommendedAction: argString(args, "recommended_action"),
	}
	if err := in.validate(); err != nil {
		return failf("invalid create_briefing input: %v", err), nil
	}

	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	claimID, dup, err := h.claimOutbound(ctx, tx, store.KindCreateBriefing)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		return dup, nil
	}

	briefingID, created, err := h.ensureBriefing(ctx, tx, &store.BriefingItem{
		UserID:               h.task.UserID,
		Importance:           in.Importance,
		Summary:              in.Summary,
		RecommendedAction:    in.RecommendedAction,
		SourceConversationID: h.sourceConversationID(),
		SourceMessageID:      h.sourceMessageID(),
	})
	if err != nil {
		return nil, err
	}

	status := store.ActionExecuted
	if !created {
		status = store.ActionSkipped
	}
	action := &store.AgentAction{
		TaskID:       h.task.ID,
		Type:         store.KindCreateBriefing,
		Status:       status,
		TargetUserID: h.task.UserID,
		Confidence:   h.confidence,
		PayloadJSON:  mustJSON(map[string]interface{}{"briefing_id": briefingID, "importance": string(in.Importance)}),
	}
	if err := h.store.InsertAction(ctx, tx, action); err != nil {
		return nil, err
	}
	if created {
		h.appendEvent(ctx, tx, action.ID, EventBriefingCreated, map[string]interface{}{
			"briefing_id": briefingID,
			"importance":  string(in.Importance),
		})
	} else {
		h.appendEvent(ctx, tx, action.ID, EventDedupeSkip, map[string]interface{}{
			"briefing_id": briefingID,
			"reason":      "duplicate_content",
		})
	}
	if claimID != "" {
		if err := h.dedup.SetOutput(ctx, tx, claimID, briefingID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing briefing: %w", err)
	}
	if !created {
		return okf(map[string]interface{}{
			"status":      "skipped_duplicate",
			"briefing_id": briefingID,
		}, "An equivalent briefing already exists; nothing new was filed."), nil
	}
	return okf(map[string]interface{}{
		"status":      "executed",
		"briefing_id": briefingID,
	}, "Filed a %s-importance briefing.", in.Importance), nil
}

func (h *Harness) createInformAction(ctx context.Context, args map[string]interface{}) (*Result, error) {
	in := createInformActionInput{
		Summary:    argString(args, "summary"),
		Importance: argImportance(args, "importance", store.ImportanceLow),
		Confidence: argFloat(args, "confidence"),
	}
	if err := in.validate(); err != nil {
		return failf("invalid create_inform_action input: %v", err), nil
	}
	h.bumpConfidence(in.Confidence)

	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	claimID, dup, err := h.claimOutbound(ctx, tx, store.KindInformUser)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		return dup, nil
	}

	action := &store.AgentAction{
		TaskID:       h.task.ID,
		Type:         store.KindInformUser,
		Status:       store.ActionExecuted,
		TargetUserID: h.task.UserID,
		Reasoning:    in.Summary,
		Confidence:   in.Confidence,
		PayloadJSON:  mustJSON(map[string]interface{}{"importance": string(in.Importance)}),
	}
	if err := h.store.InsertAction(ctx, tx, action); err != nil {
		return nil, err
	}
	h.appendEvent(ctx, tx, action.ID, EventInformCreated, map[string]interface{}{
		"importance": string(in.Importance),
	})

	var briefingID string
	if in.Importance == store.ImportanceHigh {
		briefingID, _, err = h.ensureBriefing(ctx, tx, &store.BriefingItem{
			UserID:               h.task.UserID,
			Importance:           store.ImportanceHigh,
			Summary:              in.Summary,
			RecommendedAction:    "Needs your attention.",
			SourceConversationID: h.sourceConversationID(),
			SourceMessageID:      h.sourceMessageID(),
		})
		if err != nil {
			return nil, err
		}
	}
	if claimID != "" {
		if err := h.dedup.SetOutput(ctx, tx, claimID, action.ID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing inform action: %w", err)
	}
	data := map[string]interface{}{"status": "executed", "action_id": action.ID}
	if briefingID != "" {
		data["briefing_id"] = briefingID
	}
	return okf(data, "Recorded a %s-importance notice for the user.", in.Importance), nil
}

// claimOutbound runs the action dedup gate for system-event turns. It
// returns ("", nil) for user-command turns, (claimID, nil) when the claim
// succeeded, and ("", result) when another turn already owns this effect for
// the source event; in that last case the caller's deferred rollback
// discards the transaction.
func (h *Harness) claimOutbound(ctx context.Context, tx *sql.Tx, kind store.ActionKind) (string, *Result, error) {
	if h.source == nil {
		return "", nil, nil
	}
	res, err := h.dedup.Claim(ctx, tx, h.task.UserID, h.source.ConversationID, h.source.MessageID, kind, h.task.ID)
	if err != nil {
		return "", nil, err
	}
	if res.Claimed {
		return res.ClaimID, nil, nil
	}
	h.appendEvent(ctx, h.store.DB(), "", EventDedupeSkip, map[string]interface{}{
		"action_kind":      string(kind),
		"source_event_id":  h.source.MessageID,
		"existing_task_id": res.ExistingTaskID,
	})
	return "", okf(map[string]interface{}{
		"status":             "skipped_duplicate",
		"existing_task_id":   res.ExistingTaskID,
		"existing_output_id": res.ExistingOutputID,
	}, "This event was already handled; skipping the %s effect.", kind), nil
}

// ensureBriefing inserts a briefing unless an equivalent one (same source
// message, or same normalized summary within the lookback window) already
// exists. It returns the surviving briefing's id.
func (h *Harness) ensureBriefing(ctx context.Context, exec store.DBTX, b *store.BriefingItem) (string, bool, error) {
	existing, err := h.store.FindDuplicateBriefing(ctx, b.UserID, b.SourceMessageID, b.Summary, h.briefingLookback)
	if err == nil {
		return existing.ID, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", false, err
	}
	if err := h.store.InsertBriefing(ctx, exec, b); err != nil {
		return "", false, err
	}
	return b.ID, true, nil
}

func (h *Harness) sourceConversationID() string {
	if h.source == nil {
		return ""
	}
	return h.source.ConversationID
}

func (h *Harness) sourceMessageID() string {
	if h.source == nil {
		return ""
	}
	return h.source.MessageID
}

func conversationLabel(c *store.Conversation) string {
	if c.ChannelSlug != "" {
		return "#" + c.ChannelSlug
	}
	if c.Title != "" {
		return c.Title
	}
	return "the conversation"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

func mustJSON(v map[string]interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
