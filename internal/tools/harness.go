package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/moshesimon/OpenWork-sub000/internal/gate"
	"github.com/moshesimon/OpenWork-sub000/internal/llm"
	openworkotel "github.com/moshesimon/OpenWork-sub000/internal/otel"
	"github.com/moshesimon/OpenWork-sub000/internal/policy"
	"github.com/moshesimon/OpenWork-sub000/internal/store"
)

var tracer = openworkotel.Tracer("github.com/moshesimon/OpenWork-sub000/internal/tools")

// AssistantUserID is the pseudo-member the AI chat thread is shared with.
const AssistantUserID = "assistant"

// DefaultBriefingLookback is the window for the content-based briefing dedup
// check.
const DefaultBriefingLookback = 24 * time.Hour

// Event log entry types emitted by tool execution. The outcome events map to
// action kinds via ActionKindByEvent for the turn-completed histogram.
const (
	EventToolCall             = "tool_call"
	EventMessageSent          = "message_sent"
	EventTaskCreated          = "task_created"
	EventTaskUpdated          = "task_updated"
	EventCalendarEventCreated = "calendar_event_created"
	EventCalendarEventUpdated = "calendar_event_updated"
	EventCalendarEventDeleted = "calendar_event_deleted"
	EventChatNoteWritten      = "chat_note_written"
	EventBriefingCreated      = "briefing_created"
	EventInformCreated        = "inform_created"
	EventPolicySkip           = "policy_skip"
	EventDedupeSkip           = "dedupe_skip"
)

// ActionKindByEvent is the static event-type → action-kind mapping used to
// replay the event log into the per-turn action-mix histogram.
var ActionKindByEvent = map[string]store.ActionKind{
	EventMessageSent:          store.KindSendMessage,
	EventTaskCreated:          store.KindCreateTask,
	EventTaskUpdated:          store.KindUpdateTask,
	EventCalendarEventCreated: store.KindCreateCalendarEvent,
	EventCalendarEventUpdated: store.KindUpdateCalendarEvent,
	EventCalendarEventDeleted: store.KindDeleteCalendarEvent,
	EventChatNoteWritten:      store.KindAIChatNote,
	EventBriefingCreated:      store.KindCreateBriefing,
	EventInformCreated:        store.KindInformUser,
}

// SourceEvent identifies the inbound workspace event a system-event turn is
// processing; nil on user-command turns, where the dedup gate does not apply.
type SourceEvent struct {
	ConversationID string
	MessageID      string
	SenderID       string
}

// Result is the JSON-serializable outcome of one tool execution.
type Result struct {
	OK      bool                   `json:"ok"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// Harness executes tool calls for one turn. It consults the policy resolver
// and the action dedup gate before irreversible effects, appends event log
// entries, and tracks the per-turn counters (tool calls, monotonic max
// confidence, last tool message). Tool calls run sequentially; the harness
// is not reentrant.
type Harness struct {
	store  *store.Store
	policy *policy.Resolver
	dedup  *gate.ActionDedup
	task   *store.AgentTask
	source *SourceEvent

	briefingLookback time.Duration

	executed    int
	confidence  float64
	lastMessage string
}

// NewHarness binds a harness to the current turn's task. source is nil for
// user-command turns.
func NewHarness(s *store.Store, resolver *policy.Resolver, dedup *gate.ActionDedup, task *store.AgentTask, source *SourceEvent) *Harness {
	return &Harness{
		store:            s,
		policy:           resolver,
		dedup:            dedup,
		task:             task,
		source:           source,
		briefingLookback: DefaultBriefingLookback,
	}
}

// ExecutedCount reports how many tool calls have run this turn.
func (h *Harness) ExecutedCount() int { return h.executed }

// Confidence returns the monotonic max of confidences proposed by tools.
func (h *Harness) Confidence() float64 { return h.confidence }

// LastMessage returns the most recent human-readable tool message, used as a
// fallback reply when the provider returns empty final text.
func (h *Harness) LastMessage() string { return h.lastMessage }

// Execute implements llm.ToolExecutor. Validation failures come back inside
// the serialized Result; only engine faults (storage errors outside the
// claim protocol) return a Go error.
func (h *Harness) Execute(ctx context.Context, call llm.ToolCall) (string, error) {
	ctx, span := tracer.Start(ctx, "tools.execute",
		trace.WithAttributes(
			attribute.String("tool.name", call.Name),
			attribute.String("task_id", h.task.ID),
		))
	defer span.End()

	h.executed++
	h.appendEvent(ctx, h.store.DB(), "", EventToolCall, map[string]interface{}{
		"tool": call.Name,
		"seq":  h.executed,
	})

	res, err := h.dispatch(ctx, call)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if res.Message != "" {
		h.lastMessage = res.Message
	}

	log.Debug().
		Str("task_id", h.task.ID).
		Str("tool", call.Name).
		Bool("ok", res.OK).
		Msg("tool_executed")

	raw, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("serializing tool result: %w", err)
	}
	return string(raw), nil
}

func (h *Harness) dispatch(ctx context.Context, call llm.ToolCall) (*Result, error) {
	switch call.Name {
	case NameListUsers:
		return h.listUsers(ctx)
	case NameListChannels:
		return h.listChannels(ctx)
	case NameListMessages:
		return h.listMessages(ctx, call.Arguments)
	case NameListTasks:
		return h.listTasks(ctx, call.Arguments)
	case NameListCalendarEvents:
		return h.listCalendarEvents(ctx, call.Arguments)
	case NameSearchMessages:
		return h.searchMessages(ctx, call.Arguments)
	case NameCreateTask:
		return h.createTask(ctx, call.Arguments)
	case NameUpdateTask:
		return h.updateTask(ctx, call.Arguments)
	case NameCreateCalendarEvent:
		return h.createCalendarEvent(ctx, call.Arguments)
	case NameUpdateCalendarEvent:
		return h.updateCalendarEvent(ctx, call.Arguments)
	case NameDeleteCalendarEvent:
		return h.deleteCalendarEvent(ctx, call.Arguments)
	case NameSendMessage:
		return h.sendMessage(ctx, call.Arguments)
	case NameWriteAIChatMessage:
		return h.writeAIChatMessage(ctx, call.Arguments)
	case NameCreateBriefing:
		return h.createBriefing(ctx, call.Arguments)
	case NameCreateInformAction:
		return h.createInformAction(ctx, call.Arguments)
	}
	return failf("unknown tool %q", call.Name), nil
}

// bumpConfidence keeps the running confidence at the monotonic max of
// proposed values.
func (h *Harness) bumpConfidence(c float64) {
	if c > h.confidence {
		h.confidence = c
	}
}

// appendEvent writes an event log entry; append failures are logged, not
// fatal, except when writing inside a claim transaction where the caller
// handles the error.
func (h *Harness) appendEvent(ctx context.Context, exec store.DBTX, actionID, eventType string, payload map[string]interface{}) {
	if err := h.store.AppendEvent(ctx, exec, h.task.ID, actionID, eventType, payload); err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Msg("event_append_failed")
	}
}

func failf(format string, args ...interface{}) *Result {
	return &Result{OK: false, Message: fmt.Sprintf(format, args...)}
}

func okf(data map[string]interface{}, format string, args ...interface{}) *Result {
	return &Result{OK: true, Message: fmt.Sprintf(format, args...), Data: data}
}
