package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/moshesimon/OpenWork-sub000/internal/gate"
	"github.com/moshesimon/OpenWork-sub000/internal/llm"
	openworkotel "github.com/moshesimon/OpenWork-sub000/internal/otel"
	"github.com/moshesimon/OpenWork-sub000/internal/policy"
	"github.com/moshesimon/OpenWork-sub000/internal/store"
	"github.com/moshesimon/OpenWork-sub000/internal/tools"
)

var tracer = openworkotel.Tracer("github.com/moshesimon/OpenWork-sub000/internal/turn")

// ErrCodeTurnFailed is persisted on tasks that fail for any reason other
// than the budget.
const ErrCodeTurnFailed = "TURN_FAILED"

// FailureReply is the generic surface for unrecoverable user-command
// failures.
const FailureReply = "Something went wrong while working on that."

const contextHistoryLimit = 10

// RunnerConfig configures a turn runner.
type RunnerConfig struct {
	Store      *store.Store
	Adapter    *llm.Adapter
	TurnBudget time.Duration
	// Clock is injectable for tests; defaults to time.Now.
	Clock func() time.Time
}

// Runner owns the turn state machine: admission, context assembly, the
// reasoning loop, terminal status transitions, and failure briefings. Turns
// are independent units of work; any number may run concurrently, and the
// two database-backed gates are the only cross-turn coordination.
type Runner struct {
	store     *store.Store
	admission *gate.Admission
	dedup     *gate.ActionDedup
	resolver  *policy.Resolver
	adapter   *llm.Adapter
	budget    time.Duration
	now       func() time.Time
}

// NewRunner builds a runner and its gates over the shared store.
func NewRunner(cfg RunnerConfig) *Runner {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Runner{
		store:     cfg.Store,
		admission: gate.NewAdmission(cfg.Store),
		dedup:     gate.NewActionDedup(cfg.Store),
		resolver:  policy.NewResolver(cfg.Store),
		adapter:   cfg.Adapter,
		budget:    cfg.TurnBudget,
		now:       now,
	}
}

// Outcome is what a turn reports back to its caller. Admitted is false when
// the trigger collapsed onto an already-existing task; Reply is only
// meaningful for user-command turns.
type Outcome struct {
	TaskID   string
	Status   store.TaskStatus
	Reply    string
	Admitted bool
}

// Run executes one turn end to end. System-event turns never return an
// error for reasoning failures; user-command turns re-propagate them after
// logging so the caller can report the failure.
func (r *Runner) Run(ctx context.Context, trig Trigger) (*Outcome, error) {
	ref := NormalizeTriggerRef(trig)

	ctx, span := tracer.Start(ctx, "turn.run",
		trace.WithAttributes(
			attribute.String("user_id", trig.UserID),
			attribute.String("trigger_source", string(trig.Source)),
			attribute.String("trigger_ref", ref),
		))
	defer span.End()

	budget := NewBudgetWithClock(r.budget, r.now)

	// Family-wide pre-check: a system event already handled (or being
	// handled) under this canonical ref by ANY system source collapses here,
	// before the claim is even attempted.
	if trig.Source.IsSystemEvent() {
		existing, err := r.store.FindNonTerminalTask(ctx, trig.UserID, ref)
		if err == nil {
			log.Debug().
				Str("task_id", existing.ID).
				Str("trigger_ref", ref).
				Msg("turn_collapsed_existing_task")
			return &Outcome{TaskID: existing.ID, Status: existing.Status}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("checking for existing turn: %w", err)
		}
	}

	adm, err := r.admission.Admit(ctx, trig.UserID, trig.Source, ref, trig.InputText)
	if err != nil {
		return nil, fmt.Errorf("admitting turn: %w", err)
	}
	if !adm.Claimed {
		existing, err := r.store.GetAgentTask(ctx, adm.TaskID)
		if err != nil {
			return nil, fmt.Errorf("reading winning task after admission race: %w", err)
		}
		log.Debug().
			Str("task_id", existing.ID).
			Str("trigger_ref", ref).
			Msg("turn_collapsed_admission_race")
		return &Outcome{TaskID: existing.ID, Status: existing.Status}, nil
	}

	task, err := r.store.GetAgentTask(ctx, adm.TaskID)
	if err != nil {
		return nil, fmt.Errorf("reading admitted task: %w", err)
	}

	// Best-effort regardless of outcome; tolerates read-only storage.
	defer r.store.BumpLastAnalysis(ctx, trig.UserID)

	sink := &taskEventSink{store: r.store, taskID: task.ID}
	sink.Append(ctx, "turn_started", map[string]interface{}{
		"trigger_source": string(trig.Source),
		"trigger_ref":    ref,
	})
	log.Info().
		Str("task_id", task.ID).
		Str("user_id", trig.UserID).
		Str("trigger_source", string(trig.Source)).
		Msg("turn_started")

	harness := tools.NewHarness(r.store, r.resolver, r.dedup, task, trig.Event)
	res, err := r.reason(ctx, budget, trig, harness, sink)
	if err != nil {
		return r.fail(ctx, budget, task, trig, harness, sink, err)
	}

	reply := res.Text
	if reply == "" {
		reply = harness.LastMessage()
	}
	confidence := harness.Confidence()
	if err := r.store.CompleteAgentTask(ctx, task.ID, store.TaskCompleted, confidence, "", ""); err != nil {
		return nil, fmt.Errorf("completing task: %w", err)
	}
	sink.Append(ctx, "turn_completed", map[string]interface{}{
		"provider":      res.Provider,
		"fallback_used": res.FallbackUsed,
		"steps":         res.Steps,
		"tool_calls":    harness.ExecutedCount(),
		"confidence":    confidence,
		"elapsed_ms":    budget.Elapsed().Milliseconds(),
		"action_mix":    r.actionMix(ctx, task.ID),
	})
	llm.RecordTurnMetrics(ctx, budget.Elapsed(), harness.ExecutedCount(), res.Provider, "completed")
	log.Info().
		Str("task_id", task.ID).
		Str("provider", res.Provider).
		Int("tool_calls", harness.ExecutedCount()).
		Dur("elapsed", budget.Elapsed()).
		Msg("turn_completed")

	return &Outcome{TaskID: task.ID, Status: store.TaskCompleted, Reply: reply, Admitted: true}, nil
}

// reason assembles the context snapshot and drives the provider adapter,
// with budget checkpoints before assembly and before the provider call. The
// budget is a soft ceiling: work in flight at a lapse finishes, and the
// overrun is caught at the next checkpoint.
func (r *Runner) reason(ctx context.Context, budget *Budget, trig Trigger, harness *tools.Harness, sink llm.EventSink) (*llm.TurnResult, error) {
	if err := budget.Check(); err != nil {
		return nil, err
	}
	snapshot, err := r.renderContext(ctx, trig.UserID)
	if err != nil {
		return nil, fmt.Errorf("assembling context snapshot: %w", err)
	}
	history, err := r.loadHistory(ctx, trig)
	if err != nil {
		return nil, fmt.Errorf("loading conversation history: %w", err)
	}
	if err := budget.Check(); err != nil {
		return nil, err
	}

	in := &llm.TurnInput{
		SystemPrompt: systemPrompt(trig),
		Context:      snapshot,
		History:      history,
		UserMessage:  trig.InputText,
		Tools:        tools.Catalog(trig.Source.IsSystemEvent()),
	}
	return r.adapter.RunTurn(ctx, in, harness, sink)
}

// fail drives the two failure transitions. Timeouts always resolve locally
// with the apology reply; other errors resolve locally for system-event
// turns (LOW briefing, no caller to notify) and re-propagate for
// user-command turns.
func (r *Runner) fail(ctx context.Context, budget *Budget, task *store.AgentTask, trig Trigger, harness *tools.Harness, sink *taskEventSink, cause error) (*Outcome, error) {
	confidence := harness.Confidence()

	if IsTimeout(cause) {
		if err := r.store.CompleteAgentTask(ctx, task.ID, store.TaskFailedTimeout, confidence, ErrCodeBudgetExceeded, cause.Error()); err != nil {
			return nil, fmt.Errorf("marking task timed out: %w", err)
		}
		sink.Append(ctx, "turn_timeout", map[string]interface{}{
			"elapsed_ms": budget.Elapsed().Milliseconds(),
		})
		r.failureBriefing(ctx, trig, store.ImportanceMedium,
			"A turn timed out before finishing: "+truncateInput(trig.InputText),
			"Retry the request.")
		llm.RecordTurnMetrics(ctx, budget.Elapsed(), harness.ExecutedCount(), "", "timeout")
		log.Warn().
			Str("task_id", task.ID).
			Dur("elapsed", budget.Elapsed()).
			Msg("turn_timeout")
		return &Outcome{TaskID: task.ID, Status: store.TaskFailedTimeout, Reply: Apology, Admitted: true}, nil
	}

	sink.Append(ctx, "task_failed", map[string]interface{}{
		"cause": cause.Error(),
	})
	if err := r.store.CompleteAgentTask(ctx, task.ID, store.TaskFailedError, confidence, ErrCodeTurnFailed, cause.Error()); err != nil {
		return nil, fmt.Errorf("marking task failed: %w", err)
	}
	llm.RecordTurnMetrics(ctx, budget.Elapsed(), harness.ExecutedCount(), "", "error")
	log.Error().
		Err(cause).
		Str("task_id", task.ID).
		Str("trigger_source", string(trig.Source)).
		Msg("turn_failed")

	if trig.Source.IsSystemEvent() {
		r.failureBriefing(ctx, trig, store.ImportanceLow,
			"The assistant could not complete a background turn: "+truncateInput(trig.InputText),
			"No action needed; it will be retried if the event recurs.")
		return &Outcome{TaskID: task.ID, Status: store.TaskFailedError, Admitted: true}, nil
	}
	return &Outcome{TaskID: task.ID, Status: store.TaskFailedError, Reply: FailureReply, Admitted: true},
		fmt.Errorf("running turn %s: %w", task.ID, cause)
}

// failureBriefing files the timeout/error briefing, deduplicated by source
// message and summary content so a retried failure does not stack notices.
func (r *Runner) failureBriefing(ctx context.Context, trig Trigger, importance store.Importance, summary, recommended string) {
	item := &store.BriefingItem{
		UserID:            trig.UserID,
		Importance:        importance,
		Summary:           summary,
		RecommendedAction: recommended,
	}
	if trig.Event != nil {
		item.SourceConversationID = trig.Event.ConversationID
		item.SourceMessageID = trig.Event.MessageID
	}
	if _, _, err := ensureBriefing(ctx, r.store, item, tools.DefaultBriefingLookback); err != nil {
		log.Warn().Err(err).Str("user_id", trig.UserID).Msg("failure_briefing_skipped")
	}
}

// actionMix replays the task's event log through the static event-type →
// action-kind table and counts executed effects per kind.
func (r *Runner) actionMix(ctx context.Context, taskID string) map[string]int {
	events, err := r.store.ListEvents(ctx, taskID)
	if err != nil {
		log.Warn().Err(err).Str("task_id", taskID).Msg("action_mix_unavailable")
		return nil
	}
	mix := make(map[string]int)
	for _, ev := range events {
		if kind, ok := tools.ActionKindByEvent[ev.EventType]; ok {
			mix[string(kind)]++
		}
	}
	return mix
}

// loadHistory turns the source conversation's recent messages into provider
// history, oldest first. User-command turns have no conversation and get an
// empty history.
func (r *Runner) loadHistory(ctx context.Context, trig Trigger) ([]llm.Message, error) {
	if trig.Event == nil || trig.Event.ConversationID == "" {
		return nil, nil
	}
	msgs, err := r.store.ListMessages(ctx, trig.Event.ConversationID, contextHistoryLimit)
	if err != nil {
		return nil, err
	}
	history := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		if trig.Event.MessageID != "" && m.ID == trig.Event.MessageID {
			continue // delivered separately as the user message
		}
		role := "user"
		if m.IsAI {
			role = "assistant"
		}
		history = append(history, llm.Message{Role: role, Content: m.Body})
	}
	return history, nil
}

func systemPrompt(trig Trigger) string {
	var b strings.Builder
	b.WriteString("You are the OpenWork workspace assistant. ")
	b.WriteString("Use the provided tools to read the workspace and to act; never invent workspace state. ")
	if trig.Source.IsSystemEvent() {
		b.WriteString("You are reacting to a workspace event on the user's behalf. ")
		b.WriteString("Prefer a single decisive outbound action; if nothing useful can be done, file a briefing instead of sending noise.")
	} else {
		b.WriteString("You are answering a direct request from the user. Reply concisely after any tool use.")
	}
	return b.String()
}

func truncateInput(s string) string {
	const max = 120
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

// taskEventSink binds event log appends to one task. Appends are
// best-effort observability writes and never fail the turn.
type taskEventSink struct {
	store  *store.Store
	taskID string
}

func (s *taskEventSink) Append(ctx context.Context, eventType string, payload map[string]interface{}) {
	if err := s.store.AppendEvent(ctx, s.store.DB(), s.taskID, "", eventType, payload); err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Msg("event_append_failed")
	}
}
