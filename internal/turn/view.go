package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/moshesimon/OpenWork-sub000/internal/store"
)

// TaskView is the audit read model for one turn: terminal (or current)
// status plus the full action, event, and delivery trail.
type TaskView struct {
	TaskID        string         `json:"task_id"`
	UserID        string         `json:"user_id"`
	TriggerSource string         `json:"trigger_source"`
	TriggerRef    string         `json:"trigger_ref"`
	Status        string         `json:"status"`
	Confidence    float64        `json:"confidence"`
	ErrorCode     string         `json:"error_code,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	Actions       []ActionView   `json:"actions"`
	Events        []EventView    `json:"events"`
	Deliveries    []DeliveryView `json:"deliveries"`
}

type ActionView struct {
	ID                   string                 `json:"id"`
	Type                 string                 `json:"type"`
	Status               string                 `json:"status"`
	TargetConversationID string                 `json:"target_conversation_id,omitempty"`
	Reasoning            string                 `json:"reasoning,omitempty"`
	Confidence           float64                `json:"confidence"`
	Payload              map[string]interface{} `json:"payload,omitempty"`
	CreatedAt            time.Time              `json:"created_at"`
}

type EventView struct {
	ID        string                 `json:"id"`
	ActionID  string                 `json:"action_id,omitempty"`
	EventType string                 `json:"event_type"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

type DeliveryView struct {
	ID             string    `json:"id"`
	ActionID       string    `json:"action_id"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// GetTaskView loads the audit view for a task. A task belonging to another
// user is reported as not found rather than forbidden.
func (r *Runner) GetTaskView(ctx context.Context, taskID, userID string) (*TaskView, error) {
	task, err := r.store.GetAgentTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.UserID != userID {
		return nil, fmt.Errorf("task %s for user %s: %w", taskID, userID, store.ErrNotFound)
	}

	actions, err := r.store.ListActions(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("listing actions: %w", err)
	}
	events, err := r.store.ListEvents(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	deliveries, err := r.store.ListDeliveries(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("listing deliveries: %w", err)
	}

	view := &TaskView{
		TaskID:        task.ID,
		UserID:        task.UserID,
		TriggerSource: string(task.TriggerSource),
		TriggerRef:    task.TriggerRef,
		Status:        string(task.Status),
		Confidence:    task.Confidence,
		ErrorCode:     task.ErrorCode,
		ErrorMessage:  task.ErrorMessage,
		StartedAt:     task.StartedAt,
		CompletedAt:   task.CompletedAt,
		Actions:       make([]ActionView, 0, len(actions)),
		Events:        make([]EventView, 0, len(events)),
		Deliveries:    make([]DeliveryView, 0, len(deliveries)),
	}
	for _, a := range actions {
		view.Actions = append(view.Actions, ActionView{
			ID:                   a.ID,
			Type:                 string(a.Type),
			Status:               string(a.Status),
			TargetConversationID: a.TargetConversationID,
			Reasoning:            a.Reasoning,
			Confidence:           a.Confidence,
			Payload:              decodePayload(a.PayloadJSON),
			CreatedAt:            a.CreatedAt,
		})
	}
	for _, e := range events {
		view.Events = append(view.Events, EventView{
			ID:        e.ID,
			ActionID:  e.ActionID,
			EventType: e.EventType,
			Payload:   decodePayload(e.PayloadJSON),
			CreatedAt: e.CreatedAt,
		})
	}
	for _, d := range deliveries {
		view.Deliveries = append(view.Deliveries, DeliveryView{
			ID:             d.ID,
			ActionID:       d.ActionID,
			ConversationID: d.ConversationID,
			MessageID:      d.MessageID,
			CreatedAt:      d.CreatedAt,
		})
	}
	return view, nil
}

func decodePayload(raw string) map[string]interface{} {
	if raw == "" {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return map[string]interface{}{"raw": raw}
	}
	return m
}
