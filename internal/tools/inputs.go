// Package tools defines the fixed catalog of operations the reasoning
// provider may invoke and the harness that executes them. The catalog is a
// closed set of kinds, each with a strongly-typed input validated before
// execution; invalid input produces a structured failure result the provider
// can see and react to, never an engine fault.
package tools

import (
	"fmt"
	"time"

	"github.com/moshesimon/OpenWork-sub000/internal/store"
)

// Tool names. These are the only operations the provider can call.
const (
	NameListUsers           = "list_users"
	NameListChannels        = "list_channels"
	NameListMessages        = "list_messages"
	NameListTasks           = "list_tasks"
	NameListCalendarEvents  = "list_calendar_events"
	NameSearchMessages      = "search_messages"
	NameCreateTask          = "create_task"
	NameUpdateTask          = "update_task"
	NameCreateCalendarEvent = "create_calendar_event"
	NameUpdateCalendarEvent = "update_calendar_event"
	NameDeleteCalendarEvent = "delete_calendar_event"
	NameSendMessage         = "send_message"
	NameWriteAIChatMessage  = "write_ai_chat_message"
	NameCreateBriefing      = "create_briefing"
	NameCreateInformAction  = "create_inform_action"
)

// listMessagesInput selects a conversation's recent messages.
type listMessagesInput struct {
	ConversationID string
	Limit          int
}

func (in *listMessagesInput) validate() error {
	if in.ConversationID == "" {
		return fmt.Errorf("conversation_id is required")
	}
	return nil
}

type listCalendarEventsInput struct {
	From *time.Time
	To   *time.Time
}

type searchMessagesInput struct {
	Query string
	Limit int
}

func (in *searchMessagesInput) validate() error {
	if in.Query == "" {
		return fmt.Errorf("query is required")
	}
	return nil
}

type createTaskInput struct {
	Title       string
	Description string
	DueAt       *time.Time
}

func (in *createTaskInput) validate() error {
	if in.Title == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}

type updateTaskInput struct {
	TaskID      string
	Title       string
	Description string
	Status      string
	DueAt       *time.Time
}

func (in *updateTaskInput) validate() error {
	if in.TaskID == "" {
		return fmt.Errorf("task_id is required")
	}
	return nil
}

type createCalendarEventInput struct {
	Title       string
	Description string
	StartsAt    time.Time
	EndsAt      time.Time
}

func (in *createCalendarEventInput) validate() error {
	if in.Title == "" {
		return fmt.Errorf("title is required")
	}
	if in.StartsAt.IsZero() || in.EndsAt.IsZero() {
		return fmt.Errorf("starts_at and ends_at are required (RFC 3339)")
	}
	if !in.EndsAt.After(in.StartsAt) {
		return fmt.Errorf("ends_at must be after starts_at")
	}
	return nil
}

// calendarTargetInput identifies an existing event by id or by best-effort
// title/date hints.
type calendarTargetInput struct {
	EventID   string
	TitleHint string
	DateHint  *time.Time
}

func (in *calendarTargetInput) validate() error {
	if in.EventID == "" && in.TitleHint == "" {
		return fmt.Errorf("event_id or title_hint is required")
	}
	return nil
}

type updateCalendarEventInput struct {
	calendarTargetInput
	Title       string
	Description string
	StartsAt    *time.Time
	EndsAt      *time.Time
}

type sendMessageInput struct {
	ConversationID string
	Body           string
	Reasoning      string
	Confidence     float64
}

func (in *sendMessageInput) validate() error {
	if in.ConversationID == "" {
		return fmt.Errorf("conversation_id is required")
	}
	if in.Body == "" {
		return fmt.Errorf("body is required")
	}
	if in.Confidence < 0 || in.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0 and 1")
	}
	return nil
}

type writeAIChatMessageInput struct {
	Body       string
	Confidence float64
}

func (in *writeAIChatMessageInput) validate() error {
	if in.Body == "" {
		return fmt.Errorf("body is required")
	}
	if in.Confidence < 0 || in.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0 and 1")
	}
	return nil
}

type createBriefingInput struct {
	Summary           string
	Importance        store.Importance
	RecommendedAction string
}

func (in *createBriefingInput) validate() error {
	if in.Summary == "" {
		return fmt.Errorf("summary is required")
	}
	switch in.Importance {
	case store.ImportanceLow, store.ImportanceMedium, store.ImportanceHigh:
	default:
		return fmt.Errorf("importance must be LOW, MEDIUM, or HIGH")
	}
	return nil
}

type createInformActionInput struct {
	Summary    string
	Importance store.Importance
	Confidence float64
}

func (in *createInformActionInput) validate() error {
	if in.Summary == "" {
		return fmt.Errorf("summary is required")
	}
	switch in.Importance {
	case store.ImportanceLow, store.ImportanceMedium, store.ImportanceHigh:
	default:
		return fmt.Errorf("importance must be LOW, MEDIUM, or HIGH")
	}
	if in.Confidence < 0 || in.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0 and 1")
	}
	return nil
}

// Argument decode helpers. Arguments arrive as map[string]interface{} from
// the provider; each kind decodes exactly the fields it declares and rejects
// the rest through validate().

func argString(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func argInt(args map[string]interface{}, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func argFloat(args map[string]interface{}, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func argTime(args map[string]interface{}, key string) (*time.Time, error) {
	s := argString(args, key)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("%s must be RFC 3339: %w", key, err)
	}
	return &t, nil
}

func argImportance(args map[string]interface{}, key string, fallback store.Importance) store.Importance {
	if s := argString(args, key); s != "" {
		return store.Importance(s)
	}
	return fallback
}
