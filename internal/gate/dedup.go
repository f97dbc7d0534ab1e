package gate

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/moshesimon/OpenWork-sub000/internal/store"
)

// DedupResult reports the outcome of an action-level claim attempt. When
// Claimed is false, ExistingTaskID identifies the turn that won and
// ExistingOutputID the effect it produced. An empty ExistingOutputID on a
// lost claim means the winner crashed between claim and effect; callers
// treat that as already-claimed and skip.
type DedupResult struct {
	Claimed          bool
	ClaimID          string
	ExistingTaskID   string
	ExistingOutputID string
}

// ActionDedup claims exclusive ownership of one kind of side effect for one
// source event — far narrower than the turn-level gate, and independent of
// which turn or trigger reference is processing the event.
type ActionDedup struct {
	store *store.Store
}

// NewActionDedup creates the action dedup gate over the workspace store.
func NewActionDedup(s *store.Store) *ActionDedup {
	return &ActionDedup{store: s}
}

// Claim attempts the action-level claim inside the caller's transaction. The
// caller MUST perform the protected effect in the same transaction and call
// SetOutput before committing, so claim-success and effect-success are
// atomic. On losing the race the caller rolls back and reads the winner's
// output from the result.
func (g *ActionDedup) Claim(ctx context.Context, tx store.DBTX, userID, sourceConversationID, sourceEventID string, kind store.ActionKind, taskID string) (*DedupResult, error) {
	ctx, span := tracer.Start(ctx, "gate.dedup_claim",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.String("source_event_id", sourceEventID),
			attribute.String("action_kind", string(kind)),
		))
	defer span.End()

	claim := &store.ActionDedupClaim{
		UserID:               userID,
		SourceConversationID: sourceConversationID,
		SourceEventID:        sourceEventID,
		ActionKind:           kind,
		TaskID:               taskID,
	}
	err := g.store.InsertActionDedupClaim(ctx, tx, claim)
	if errors.Is(err, store.ErrDuplicateClaim) {
		existing, readErr := g.store.GetActionDedupClaim(ctx, userID, sourceConversationID, sourceEventID, kind)
		if readErr != nil {
			return nil, fmt.Errorf("re-reading dedup claim after conflict: %w", readErr)
		}
		span.SetAttributes(attribute.Bool("gate.claimed", false))
		return &DedupResult{
			Claimed:          false,
			ClaimID:          existing.ID,
			ExistingTaskID:   existing.TaskID,
			ExistingOutputID: existing.OutputID,
		}, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Bool("gate.claimed", true))
	return &DedupResult{Claimed: true, ClaimID: claim.ID}, nil
}

// SetOutput records the effect's output id on the claim, inside the same
// transaction as the effect.
func (g *ActionDedup) SetOutput(ctx context.Context, tx store.DBTX, claimID, outputID string) error {
	return g.store.SetClaimOutput(ctx, tx, claimID, outputID)
}
