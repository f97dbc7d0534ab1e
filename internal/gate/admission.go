// Package gate implements the two cross-process coordination primitives of
// the turn orchestrator: the turn-level idempotency admission gate and the
// action-level dedup gate. Both use the same optimistic strategy — insert a
// uniquely-keyed claim row, catch the conflict, re-read the winner — so
// correctness holds under arbitrary interleaving across processes, with no
// in-process locks.
package gate

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	openworkotel "github.com/moshesimon/OpenWork-sub000/internal/otel"
	"github.com/moshesimon/OpenWork-sub000/internal/store"
)

var tracer = openworkotel.Tracer("github.com/moshesimon/OpenWork-sub000/internal/gate")

// AdmissionResult reports whether the caller won the turn-level claim. When
// Claimed is false, TaskID is the winning writer's task id and the caller
// must not start a second turn.
type AdmissionResult struct {
	Claimed bool
	TaskID  string
}

// Admission is the idempotency admission gate: it claims exclusive ownership
// of a (user, trigger reference) pair so a system-event turn runs at most
// once regardless of retry count or concurrency.
type Admission struct {
	store *store.Store
}

// NewAdmission creates the admission gate over the workspace store.
func NewAdmission(s *store.Store) *Admission {
	return &Admission{store: s}
}

// Admit attempts to create the turn's task and bind the idempotency claim to
// it, in one transaction. Under N concurrent calls with the same trigger
// reference exactly one insert succeeds; every loser rolls its task back,
// re-reads the existing claim, and converges on the winner's task id.
func (g *Admission) Admit(ctx context.Context, userID string, source store.TriggerSource, triggerRef, inputText string) (*AdmissionResult, error) {
	ctx, span := tracer.Start(ctx, "gate.admit",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.String("trigger_source", string(source)),
			attribute.String("trigger_ref", triggerRef),
		))
	defer span.End()

	tx, err := g.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	task := &store.AgentTask{
		UserID:        userID,
		TriggerSource: source,
		TriggerRef:    triggerRef,
		InputText:     inputText,
		Status:        store.TaskRunning,
	}
	if err := g.store.CreateAgentTask(ctx, tx, task); err != nil {
		span.RecordError(err)
		return nil, err
	}

	claim := &store.IdempotencyClaim{
		UserID:     userID,
		TriggerRef: triggerRef,
		TaskID:     task.ID,
	}
	err = g.store.InsertIdempotencyClaim(ctx, tx, claim)
	if errors.Is(err, store.ErrDuplicateClaim) {
		// Lost the race. The rollback discards our task row; converge on the
		// winner's task id instead.
		_ = tx.Rollback()
		existing, readErr := g.store.GetIdempotencyClaim(ctx, userID, triggerRef)
		if readErr != nil {
			return nil, fmt.Errorf("re-reading claim after conflict: %w", readErr)
		}
		span.SetAttributes(attribute.Bool("gate.claimed", false))
		log.Debug().
			Str("user_id", userID).
			Str("trigger_ref", triggerRef).
			Str("existing_task_id", existing.TaskID).
			Msg("admission_claim_lost")
		return &AdmissionResult{Claimed: false, TaskID: existing.TaskID}, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing admission: %w", err)
	}
	span.SetAttributes(attribute.Bool("gate.claimed", true), attribute.String("task_id", task.ID))
	return &AdmissionResult{Claimed: true, TaskID: task.ID}, nil
}
