package tools

import (
	"context"
	"time"
)

const defaultListLimit = 20

// Read-only tools. These never create actions or claims; they exist so the
// provider can ground its reply in the live workspace.

func (h *Harness) listUsers(ctx context.Context) (*Result, error) {
	users, err := h.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(users))
	for _, u := range users {
		out = append(out, map[string]interface{}{
			"id":           u.ID,
			"handle":       u.Handle,
			"display_name": u.DisplayName,
		})
	}
	return okf(map[string]interface{}{"users": out}, "%d users", len(out)), nil
}

func (h *Harness) listChannels(ctx context.Context) (*Result, error) {
	channels, err := h.store.ListChannels(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(channels))
	for _, c := range channels {
		out = append(out, map[string]interface{}{
			"id":    c.ID,
			"slug":  c.ChannelSlug,
			"title": c.Title,
		})
	}
	return okf(map[string]interface{}{"channels": out}, "%d channels", len(out)), nil
}

func (h *Harness) listMessages(ctx context.Context, args map[string]interface{}) (*Result, error) {
	in := listMessagesInput{
		ConversationID: argString(args, "conversation_id"),
		Limit:          argInt(args, "limit"),
	}
	if err := in.validate(); err != nil {
		return failf("invalid list_messages input: %v", err), nil
	}
	if in.Limit <= 0 {
		in.Limit = defaultListLimit
	}
	msgs, err := h.store.ListMessages(ctx, in.ConversationID, in.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, map[string]interface{}{
			"id":         m.ID,
			"sender_id":  m.SenderID,
			"body":       m.Body,
			"is_ai":      m.IsAI,
			"created_at": m.CreatedAt.Format(time.RFC3339),
		})
	}
	return okf(map[string]interface{}{"messages": out}, "%d messages", len(out)), nil
}

func (h *Harness) listTasks(ctx context.Context, args map[string]interface{}) (*Result, error) {
	limit := argInt(args, "limit")
	if limit <= 0 {
		limit = defaultListLimit
	}
	tasks, err := h.store.ListWorkspaceTasks(ctx, h.task.UserID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(tasks))
	for _, t := range tasks {
		entry := map[string]interface{}{
			"id":          t.ID,
			"title":       t.Title,
			"description": t.Description,
			"status":      t.Status,
		}
		if t.DueAt != nil {
			entry["due_at"] = t.DueAt.Format(time.RFC3339)
		}
		out = append(out, entry)
	}
	return okf(map[string]interface{}{"tasks": out}, "%d tasks", len(out)), nil
}

func (h *Harness) listCalendarEvents(ctx context.Context, args map[string]interface{}) (*Result, error) {
	from, err := argTime(args, "from")
	if err != nil {
		return failf("invalid from: %v", err), nil
	}
	to, err := argTime(args, "to")
	if err != nil {
		return failf("invalid to: %v", err), nil
	}
	now := time.Now().UTC()
	fromT := now.AddDate(0, 0, -7)
	toT := now.AddDate(0, 0, 30)
	if from != nil {
		fromT = *from
	}
	if to != nil {
		toT = *to
	}
	events, err := h.store.ListCalendarEvents(ctx, h.task.UserID, fromT, toT)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(events))
	for _, e := range events {
		out = append(out, map[string]interface{}{
			"id":        e.ID,
			"title":     e.Title,
			"starts_at": e.StartsAt.Format(time.RFC3339),
			"ends_at":   e.EndsAt.Format(time.RFC3339),
		})
	}
	return okf(map[string]interface{}{"events": out}, "%d calendar events", len(out)), nil
}

func (h *Harness) searchMessages(ctx context.Context, args map[string]interface{}) (*Result, error) {
	in := searchMessagesInput{
		Query: argString(args, "query"),
		Limit: argInt(args, "limit"),
	}
	if err := in.validate(); err != nil {
		return failf("invalid search_messages input: %v", err), nil
	}
	if in.Limit <= 0 {
		in.Limit = defaultListLimit
	}
	msgs, err := h.store.SearchMessages(ctx, in.Query, in.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, map[string]interface{}{
			"id":              m.ID,
			"conversation_id": m.ConversationID,
			"sender_id":       m.SenderID,
			"body":            m.Body,
		})
	}
	return okf(map[string]interface{}{"messages": out}, "%d matches for %q", len(out), in.Query), nil
}
