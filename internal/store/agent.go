package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CreateAgentTask inserts a turn record. exec may be a transaction so the
// admission gate can make task creation atomic with the idempotency claim.
func (s *Store) CreateAgentTask(ctx context.Context, exec DBTX, t *AgentTask) error {
	if t.ID == "" {
		t.ID = NewID("task")
	}
	if t.StartedAt.IsZero() {
		t.StartedAt = time.Now().UTC()
	}
	if t.Status == "" {
		t.Status = TaskRunning
	}
	_, err := exec.ExecContext(ctx, `
		INSERT INTO agent_tasks (id, user_id, trigger_source, trigger_ref, input_text, status, confidence, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, string(t.TriggerSource), t.TriggerRef, t.InputText, string(t.Status), t.Confidence, t.StartedAt)
	if err != nil {
		return fmt.Errorf("creating agent task: %w", err)
	}
	return nil
}

// GetAgentTask returns a turn record by id.
func (s *Store) GetAgentTask(ctx context.Context, id string) (*AgentTask, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, trigger_source, trigger_ref, input_text, status, confidence,
		       error_code, error_message, started_at, completed_at
		FROM agent_tasks WHERE id = ?`, id)
	return scanAgentTask(row)
}

// FindNonTerminalTask looks for an existing task for the same normalized
// trigger reference across the WHOLE system-event source family, in the
// statuses {PENDING, RUNNING, COMPLETED}. This is the pre-claim check that
// lets a retry arriving under a different source enum collapse onto the task
// that already handled the same logical event.
func (s *Store) FindNonTerminalTask(ctx context.Context, userID, triggerRef string) (*AgentTask, error) {
	srcPlaceholders := make([]string, len(SystemEventSources))
	args := []interface{}{userID, triggerRef}
	for i, src := range SystemEventSources {
		srcPlaceholders[i] = "?"
		args = append(args, string(src))
	}
	stPlaceholders := make([]string, len(NonTerminalStatuses))
	for i, st := range NonTerminalStatuses {
		stPlaceholders[i] = "?"
		args = append(args, string(st))
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, trigger_source, trigger_ref, input_text, status, confidence,
		       error_code, error_message, started_at, completed_at
		FROM agent_tasks
		WHERE user_id = ? AND trigger_ref = ?
		  AND trigger_source IN (%s) AND status IN (%s)
		ORDER BY started_at ASC LIMIT 1`,
		strings.Join(srcPlaceholders, ","), strings.Join(stPlaceholders, ","))

	t, err := scanAgentTask(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if strings.Contains(err.Error(), ErrNotFound.Error()) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// CompleteAgentTask moves a task to a terminal status. Terminal states are
// final; this is the only status mutation after creation.
func (s *Store) CompleteAgentTask(ctx context.Context, id string, status TaskStatus, confidence float64, errorCode, errorMessage string) error {
	ctx, span := tracer.Start(ctx, "store.task_complete",
		trace.WithAttributes(
			attribute.String("task_id", id),
			attribute.String("status", string(status)),
		))
	defer span.End()

	_, err := s.db.ExecContext(ctx, `
		UPDATE agent_tasks SET status = ?, confidence = ?, error_code = ?, error_message = ?, completed_at = ?
		WHERE id = ?`,
		string(status), confidence, errorCode, errorMessage, time.Now().UTC(), id)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("completing agent task: %w", err)
	}
	return nil
}

// InsertAction records an attempted side effect. exec may be a transaction.
func (s *Store) InsertAction(ctx context.Context, exec DBTX, a *AgentAction) error {
	if a.ID == "" {
		a.ID = NewID("act")
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = ActionPending
	}
	_, err := exec.ExecContext(ctx, `
		INSERT INTO agent_actions (id, task_id, type, status, target_conversation_id, target_user_id,
		                           reasoning, confidence, payload_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TaskID, string(a.Type), string(a.Status), a.TargetConversationID, a.TargetUserID,
		a.Reasoning, a.Confidence, a.PayloadJSON, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting action: %w", err)
	}
	return nil
}

// SetActionStatus moves an action to a terminal status.
func (s *Store) SetActionStatus(ctx context.Context, exec DBTX, actionID string, status ActionStatus) error {
	_, err := exec.ExecContext(ctx,
		`UPDATE agent_actions SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), actionID)
	if err != nil {
		return fmt.Errorf("updating action status: %w", err)
	}
	return nil
}

// ListActions returns a task's actions in creation order.
func (s *Store) ListActions(ctx context.Context, taskID string) ([]AgentAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, type, status, target_conversation_id, target_user_id,
		       reasoning, confidence, payload_json, created_at, updated_at
		FROM agent_actions WHERE task_id = ? ORDER BY created_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("querying actions: %w", err)
	}
	defer rows.Close()

	var out []AgentAction
	for rows.Next() {
		var a AgentAction
		var conv, user, reasoning, payload sql.NullString
		if err := rows.Scan(&a.ID, &a.TaskID, &a.Type, &a.Status, &conv, &user,
			&reasoning, &a.Confidence, &payload, &a.CreatedAt, &a.UpdatedAt); err != nil {
			continue
		}
		a.TargetConversationID = conv.String
		a.TargetUserID = user.String
		a.Reasoning = reasoning.String
		a.PayloadJSON = payload.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// AppendEvent writes one append-only event log entry. Payload is marshaled to
// JSON; marshal failures degrade to an empty payload rather than failing the
// append.
func (s *Store) AppendEvent(ctx context.Context, exec DBTX, taskID, actionID, eventType string, payload map[string]interface{}) error {
	var payloadJSON string
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			payloadJSON = string(b)
		}
	}
	_, err := exec.ExecContext(ctx, `
		INSERT INTO event_log (id, task_id, action_id, event_type, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		NewID("evt"), taskID, actionID, eventType, payloadJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("appending event: %w", err)
	}
	return nil
}

// ListEvents returns a task's event log in creation order.
func (s *Store) ListEvents(ctx context.Context, taskID string) ([]EventLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, action_id, event_type, payload_json, created_at
		FROM event_log WHERE task_id = ? ORDER BY created_at ASC, id ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("querying event log: %w", err)
	}
	defer rows.Close()

	var out []EventLogEntry
	for rows.Next() {
		var e EventLogEntry
		var actionID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TaskID, &actionID, &e.EventType, &payload, &e.CreatedAt); err != nil {
			continue
		}
		e.ActionID = actionID.String
		e.PayloadJSON = payload.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// InsertDelivery records a successfully sent outbound message. Always called
// inside the same transaction as the send so delivery and message are atomic.
func (s *Store) InsertDelivery(ctx context.Context, exec DBTX, d *Delivery) error {
	if d.ID == "" {
		d.ID = NewID("dlv")
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := exec.ExecContext(ctx, `
		INSERT INTO deliveries (id, action_id, conversation_id, message_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.ActionID, d.ConversationID, d.MessageID, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting delivery: %w", err)
	}
	return nil
}

// ListDeliveries returns deliveries for all actions of a task.
func (s *Store) ListDeliveries(ctx context.Context, taskID string) ([]Delivery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.action_id, d.conversation_id, d.message_id, d.created_at
		FROM deliveries d
		JOIN agent_actions a ON a.id = d.action_id
		WHERE a.task_id = ? ORDER BY d.created_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.ID, &d.ActionID, &d.ConversationID, &d.MessageID, &d.CreatedAt); err != nil {
			continue
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanAgentTask(row *sql.Row) (*AgentTask, error) {
	var t AgentTask
	var input, errCode, errMsg sql.NullString
	var completed sql.NullTime
	err := row.Scan(&t.ID, &t.UserID, &t.TriggerSource, &t.TriggerRef, &input, &t.Status,
		&t.Confidence, &errCode, &errMsg, &t.StartedAt, &completed)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("agent task: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent task: %w", err)
	}
	t.InputText = input.String
	t.ErrorCode = errCode.String
	t.ErrorMessage = errMsg.String
	if completed.Valid {
		t.CompletedAt = &completed.Time
	}
	return &t, nil
}
