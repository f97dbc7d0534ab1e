package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertIdempotencyClaim attempts the turn-level optimistic claim. A unique
// violation (detect with IsUniqueViolation) means a concurrent writer won;
// the caller re-reads with GetIdempotencyClaim and converges on its task id.
func (s *Store) InsertIdempotencyClaim(ctx context.Context, exec DBTX, c *IdempotencyClaim) error {
	if c.ID == "" {
		c.ID = NewID("idem")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := exec.ExecContext(ctx, `
		INSERT INTO idempotency_claims (id, user_id, trigger_ref, task_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.TriggerRef, c.TaskID, c.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("idempotency claim for %s: %w", c.TriggerRef, ErrDuplicateClaim)
		}
		return fmt.Errorf("inserting idempotency claim: %w", err)
	}
	return nil
}

// GetIdempotencyClaim returns the claim bound to (user, trigger ref).
func (s *Store) GetIdempotencyClaim(ctx context.Context, userID, triggerRef string) (*IdempotencyClaim, error) {
	var c IdempotencyClaim
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, trigger_ref, task_id, created_at
		FROM idempotency_claims WHERE user_id = ? AND trigger_ref = ?`,
		userID, triggerRef).
		Scan(&c.ID, &c.UserID, &c.TriggerRef, &c.TaskID, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("idempotency claim: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying idempotency claim: %w", err)
	}
	return &c, nil
}

// InsertActionDedupClaim attempts the action-level optimistic claim. Must run
// inside the same transaction as the effect it protects; the caller fills the
// output id with SetClaimOutput before committing.
func (s *Store) InsertActionDedupClaim(ctx context.Context, exec DBTX, c *ActionDedupClaim) error {
	if c.ID == "" {
		c.ID = NewID("claim")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := exec.ExecContext(ctx, `
		INSERT INTO action_dedup_claims (id, user_id, source_conversation_id, source_event_id, action_kind, task_id, output_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL, ?)`,
		c.ID, c.UserID, c.SourceConversationID, c.SourceEventID, string(c.ActionKind), c.TaskID, c.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("action dedup claim for event %s kind %s: %w",
				c.SourceEventID, c.ActionKind, ErrDuplicateClaim)
		}
		return fmt.Errorf("inserting action dedup claim: %w", err)
	}
	return nil
}

// GetActionDedupClaim returns the claim for the dedup tuple.
func (s *Store) GetActionDedupClaim(ctx context.Context, userID, sourceConversationID, sourceEventID string, kind ActionKind) (*ActionDedupClaim, error) {
	var c ActionDedupClaim
	var output sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, source_conversation_id, source_event_id, action_kind, task_id, output_id, created_at
		FROM action_dedup_claims
		WHERE user_id = ? AND source_conversation_id = ? AND source_event_id = ? AND action_kind = ?`,
		userID, sourceConversationID, sourceEventID, string(kind)).
		Scan(&c.ID, &c.UserID, &c.SourceConversationID, &c.SourceEventID, &c.ActionKind, &c.TaskID, &output, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("action dedup claim: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying action dedup claim: %w", err)
	}
	c.OutputID = output.String
	return &c, nil
}

// SetClaimOutput fills the claim's output id after the effect in the same
// transaction completed. A claim left with a NULL output marks a crash
// between claim and effect.
func (s *Store) SetClaimOutput(ctx context.Context, exec DBTX, claimID, outputID string) error {
	_, err := exec.ExecContext(ctx,
		`UPDATE action_dedup_claims SET output_id = ? WHERE id = ?`, outputID, claimID)
	if err != nil {
		return fmt.Errorf("setting claim output: %w", err)
	}
	return nil
}
