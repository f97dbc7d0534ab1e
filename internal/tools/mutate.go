package tools

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/moshesimon/OpenWork-sub000/internal/store"
)

// Mutating workspace tools. These are idempotent-by-intent (the provider
// targets an explicit id or a title/date hint) so they skip the dedup gate:
// each one records an action and an event log entry and effects directly.

func (h *Harness) createTask(ctx context.Context, args map[string]interface{}) (*Result, error) {
	due, err := argTime(args, "due_at")
	if err != nil {
		return failf("invalid due_at: %v", err), nil
	}
	in := createTaskInput{
		Title:       argString(args, "title"),
		Description: argString(args, "description"),
		DueAt:       due,
	}
	if err := in.validate(); err != nil {
		return failf("invalid create_task input: %v", err), nil
	}

	t := &store.WorkspaceTask{
		OwnerID:     h.task.UserID,
		Title:       in.Title,
		Description: in.Description,
		Status:      "OPEN",
		DueAt:       in.DueAt,
	}
	if err := h.store.CreateWorkspaceTask(ctx, t); err != nil {
		return nil, err
	}

	actionID := h.recordAction(ctx, h.store.DB(), store.KindCreateTask, store.ActionExecuted, "", "", map[string]interface{}{
		"task_id": t.ID,
		"title":   t.Title,
	})
	h.appendEvent(ctx, h.store.DB(), actionID, EventTaskCreated, map[string]interface{}{
		"task_id": t.ID,
		"title":   t.Title,
	})
	return okf(map[string]interface{}{"task_id": t.ID}, "Created task %q", t.Title), nil
}

func (h *Harness) updateTask(ctx context.Context, args map[string]interface{}) (*Result, error) {
	due, err := argTime(args, "due_at")
	if err != nil {
		return failf("invalid due_at: %v", err), nil
	}
	in := updateTaskInput{
		TaskID:      argString(args, "task_id"),
		Title:       argString(args, "title"),
		Description: argString(args, "description"),
		Status:      argString(args, "status"),
		DueAt:       due,
	}
	if err := in.validate(); err != nil {
		return failf("invalid update_task input: %v", err), nil
	}

	if err := h.store.UpdateWorkspaceTask(ctx, in.TaskID, in.Title, in.Description, in.Status, in.DueAt); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return failf("task %s not found", in.TaskID), nil
		}
		return nil, err
	}

	actionID := h.recordAction(ctx, h.store.DB(), store.KindUpdateTask, store.ActionExecuted, "", "", map[string]interface{}{
		"task_id": in.TaskID,
	})
	h.appendEvent(ctx, h.store.DB(), actionID, EventTaskUpdated, map[string]interface{}{
		"task_id": in.TaskID,
	})
	return okf(map[string]interface{}{"task_id": in.TaskID}, "Updated task %s", in.TaskID), nil
}

func (h *Harness) createCalendarEvent(ctx context.Context, args map[string]interface{}) (*Result, error) {
	starts, err := argTime(args, "starts_at")
	if err != nil {
		return failf("invalid starts_at: %v", err), nil
	}
	ends, err := argTime(args, "ends_at")
	if err != nil {
		return failf("invalid ends_at: %v", err), nil
	}
	in := createCalendarEventInput{
		Title:       argString(args, "title"),
		Description: argString(args, "description"),
	}
	if starts != nil {
		in.StartsAt = *starts
	}
	if ends != nil {
		in.EndsAt = *ends
	}
	if err := in.validate(); err != nil {
		return failf("invalid create_calendar_event input: %v", err), nil
	}

	e := &store.CalendarEvent{
		OwnerID:     h.task.UserID,
		Title:       in.Title,
		Description: in.Description,
		StartsAt:    in.StartsAt,
		EndsAt:      in.EndsAt,
	}
	if err := h.store.CreateCalendarEvent(ctx, e); err != nil {
		return nil, err
	}

	actionID := h.recordAction(ctx, h.store.DB(), store.KindCreateCalendarEvent, store.ActionExecuted, "", "", map[string]interface{}{
		"event_id": e.ID,
		"title":    e.Title,
	})
	h.appendEvent(ctx, h.store.DB(), actionID, EventCalendarEventCreated, map[string]interface{}{
		"event_id": e.ID,
		"title":    e.Title,
	})
	return okf(map[string]interface{}{"event_id": e.ID},
		"Scheduled %q from %s to %s", e.Title,
		e.StartsAt.Format(time.RFC3339), e.EndsAt.Format(time.RFC3339)), nil
}

func (h *Harness) updateCalendarEvent(ctx context.Context, args map[string]interface{}) (*Result, error) {
	date, err := argTime(args, "date_hint")
	if err != nil {
		return failf("invalid date_hint: %v", err), nil
	}
	starts, err := argTime(args, "starts_at")
	if err != nil {
		return failf("invalid starts_at: %v", err), nil
	}
	ends, err := argTime(args, "ends_at")
	if err != nil {
		return failf("invalid ends_at: %v", err), nil
	}
	in := updateCalendarEventInput{
		calendarTargetInput: calendarTargetInput{
			EventID:   argString(args, "event_id"),
			TitleHint: argString(args, "title_hint"),
			DateHint:  date,
		},
		Title:       argString(args, "title"),
		Description: argString(args, "description"),
		StartsAt:    starts,
		EndsAt:      ends,
	}
	if err := in.validate(); err != nil {
		return failf("invalid update_calendar_event input: %v", err), nil
	}

	target, err := h.store.ResolveCalendarEvent(ctx, h.task.UserID, in.EventID, in.TitleHint, in.DateHint)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return failf("no calendar event matches the given id or hints"), nil
		}
		return nil, err
	}
	if err := h.store.UpdateCalendarEvent(ctx, target.ID, in.Title, in.Description, in.StartsAt, in.EndsAt); err != nil {
		return nil, err
	}

	actionID := h.recordAction(ctx, h.store.DB(), store.KindUpdateCalendarEvent, store.ActionExecuted, "", "", map[string]interface{}{
		"event_id": target.ID,
	})
	h.appendEvent(ctx, h.store.DB(), actionID, EventCalendarEventUpdated, map[string]interface{}{
		"event_id": target.ID,
	})
	return okf(map[string]interface{}{"event_id": target.ID}, "Updated calendar event %q", target.Title), nil
}

func (h *Harness) deleteCalendarEvent(ctx context.Context, args map[string]interface{}) (*Result, error) {
	date, err := argTime(args, "date_hint")
	if err != nil {
		return failf("invalid date_hint: %v", err), nil
	}
	in := calendarTargetInput{
		EventID:   argString(args, "event_id"),
		TitleHint: argString(args, "title_hint"),
		DateHint:  date,
	}
	if err := in.validate(); err != nil {
		return failf("invalid delete_calendar_event input: %v", err), nil
	}

	target, err := h.store.ResolveCalendarEvent(ctx, h.task.UserID, in.EventID, in.TitleHint, in.DateHint)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return failf("no calendar event matches the given id or hints"), nil
		}
		return nil, err
	}
	if err := h.store.DeleteCalendarEvent(ctx, target.ID); err != nil {
		return nil, err
	}

	actionID := h.recordAction(ctx, h.store.DB(), store.KindDeleteCalendarEvent, store.ActionExecuted, "", "", map[string]interface{}{
		"event_id": target.ID,
		"title":    target.Title,
	})
	h.appendEvent(ctx, h.store.DB(), actionID, EventCalendarEventDeleted, map[string]interface{}{
		"event_id": target.ID,
	})
	return okf(map[string]interface{}{"event_id": target.ID}, "Deleted calendar event %q", target.Title), nil
}

// recordAction inserts a best-effort action record and returns its id; an
// insert failure is logged and yields an empty id rather than failing the
// tool, keeping action records observability-grade like the event log.
func (h *Harness) recordAction(ctx context.Context, exec store.DBTX, kind store.ActionKind, status store.ActionStatus, targetConversationID, reasoning string, payload map[string]interface{}) string {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte("{}")
	}
	a := &store.AgentAction{
		TaskID:               h.task.ID,
		Type:                 kind,
		Status:               status,
		TargetConversationID: targetConversationID,
		TargetUserID:         h.task.UserID,
		Reasoning:            reasoning,
		Confidence:           h.confidence,
		PayloadJSON:          string(raw),
	}
	if err := h.store.InsertAction(ctx, exec, a); err != nil {
		log.Warn().Err(err).Str("action_kind", string(kind)).Msg("action_insert_failed")
		return ""
	}
	return a.ID
}
