package store

import "time"

// TriggerSource identifies what started a turn.
type TriggerSource string

const (
	SourceUserCommand           TriggerSource = "USER_COMMAND"
	SourceInboundChannelMessage TriggerSource = "INBOUND_CHANNEL_MESSAGE"
	SourceInboundDMMessage      TriggerSource = "INBOUND_DM_MESSAGE"
	SourceBootstrapRefresh      TriggerSource = "BOOTSTRAP_REFRESH"
)

// SystemEventSources is the family of sources covered by the admission
// invariant: at most one non-terminal task per (user, trigger ref) across
// ALL of these, so a retry under a different source collapses onto the
// task that already handled the same logical event.
var SystemEventSources = []TriggerSource{
	SourceInboundChannelMessage,
	SourceInboundDMMessage,
	SourceBootstrapRefresh,
}

// IsSystemEvent reports whether the source belongs to the system-event family.
func (s TriggerSource) IsSystemEvent() bool {
	for _, src := range SystemEventSources {
		if s == src {
			return true
		}
	}
	return false
}

// TaskStatus is the agent task state machine.
type TaskStatus string

const (
	TaskPending       TaskStatus = "PENDING"
	TaskRunning       TaskStatus = "RUNNING"
	TaskCompleted     TaskStatus = "COMPLETED"
	TaskFailedTimeout TaskStatus = "FAILED_TIMEOUT"
	TaskFailedError   TaskStatus = "FAILED_ERROR"
)

// NonTerminalStatuses is the status set the admission pre-check scans for.
// COMPLETED is included deliberately: a completed turn for the same logical
// event means the event was already handled and must not be re-admitted.
var NonTerminalStatuses = []TaskStatus{TaskPending, TaskRunning, TaskCompleted}

// ActionStatus is the lifecycle of an attempted side effect.
type ActionStatus string

const (
	ActionPending  ActionStatus = "PENDING"
	ActionExecuted ActionStatus = "EXECUTED"
	ActionSkipped  ActionStatus = "SKIPPED"
	ActionFailed   ActionStatus = "FAILED"
)

// ActionKind names one kind of side effect for dedup and the action-mix
// histogram.
type ActionKind string

const (
	KindSendMessage         ActionKind = "SEND_MESSAGE"
	KindCreateTask          ActionKind = "CREATE_TASK"
	KindUpdateTask          ActionKind = "UPDATE_TASK"
	KindCreateCalendarEvent ActionKind = "CREATE_CALENDAR_EVENT"
	KindUpdateCalendarEvent ActionKind = "UPDATE_CALENDAR_EVENT"
	KindDeleteCalendarEvent ActionKind = "DELETE_CALENDAR_EVENT"
	KindInformUser          ActionKind = "INFORM_USER"
	KindCreateBriefing      ActionKind = "CREATE_BRIEFING"
	KindAIChatNote          ActionKind = "AI_CHAT_NOTE"
)

// Importance grades a briefing item.
type Importance string

const (
	ImportanceLow    Importance = "LOW"
	ImportanceMedium Importance = "MEDIUM"
	ImportanceHigh   Importance = "HIGH"
)

// User is a workspace member.
type User struct {
	ID          string
	Handle      string
	DisplayName string
	CreatedAt   time.Time
}

// Conversation is a channel or a DM thread.
type Conversation struct {
	ID          string
	Kind        string // "channel" or "dm"
	ChannelSlug string
	Title       string
	CreatedAt   time.Time
}

// Message is one workspace message.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Body           string
	IsAI           bool
	CreatedAt      time.Time
}

// WorkspaceTask is a user-facing to-do item (distinct from AgentTask).
type WorkspaceTask struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	Status      string
	DueAt       *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CalendarEvent is one calendar entry.
type CalendarEvent struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	StartsAt    time.Time
	EndsAt      time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AgentTask is one record per admitted turn. Created at admission, mutated
// only by the owning turn, never deleted.
type AgentTask struct {
	ID            string
	UserID        string
	TriggerSource TriggerSource
	TriggerRef    string
	InputText     string
	Status        TaskStatus
	Confidence    float64
	ErrorCode     string
	ErrorMessage  string
	StartedAt     time.Time
	CompletedAt   *time.Time
}

// AgentAction is one attempted side effect within a task.
type AgentAction struct {
	ID                   string
	TaskID               string
	Type                 ActionKind
	Status               ActionStatus
	TargetConversationID string
	TargetUserID         string
	Reasoning            string
	Confidence           float64
	PayloadJSON          string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// EventLogEntry is one append-only observability record.
type EventLogEntry struct {
	ID          string
	TaskID      string
	ActionID    string
	EventType   string
	PayloadJSON string
	CreatedAt   time.Time
}

// Delivery records an actually-sent outbound message.
type Delivery struct {
	ID             string
	ActionID       string
	ConversationID string
	MessageID      string
	CreatedAt      time.Time
}

// IdempotencyClaim is the turn-level uniqueness row; the winning writer's
// task id is what every losing concurrent caller converges on.
type IdempotencyClaim struct {
	ID         string
	UserID     string
	TriggerRef string
	TaskID     string
	CreatedAt  time.Time
}

// ActionDedupClaim is the action-level uniqueness row. OutputID stays empty
// until the effect in the same transaction completes; a persisted empty
// OutputID therefore marks a crash between claim and effect.
type ActionDedupClaim struct {
	ID                   string
	UserID               string
	SourceConversationID string
	SourceEventID        string
	ActionKind           ActionKind
	TaskID               string
	OutputID             string
	CreatedAt            time.Time
}

// BriefingItem is a user-facing notice (manual review, timeout, inform).
type BriefingItem struct {
	ID                   string
	UserID               string
	Importance           Importance
	Summary              string
	RecommendedAction    string
	SourceConversationID string
	SourceMessageID      string
	CreatedAt            time.Time
}

// Profile holds per-user defaults consulted by the policy resolver plus the
// staleness timestamp driving bootstrap refresh turns.
type Profile struct {
	UserID          string
	DefaultAutonomy string
	LastAnalysisAt  *time.Time
}

// PolicyRule is one scope-specific autonomy override.
type PolicyRule struct {
	ID         string
	UserID     string
	ScopeType  string // "action_type", "channel", "conversation", "global"
	ScopeValue string
	Autonomy   string
	Priority   int
	CreatedAt  time.Time
}
