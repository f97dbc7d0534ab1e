package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// GetProfile returns the user's profile, or a default-AUTO profile when none
// has been written yet.
func (s *Store) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, default_autonomy, last_analysis_at FROM profiles WHERE user_id = ?`, userID).
		Scan(&p.UserID, &p.DefaultAutonomy, &last)
	if err == sql.ErrNoRows {
		return &Profile{UserID: userID, DefaultAutonomy: "AUTO"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}
	if last.Valid {
		p.LastAnalysisAt = &last.Time
	}
	return &p, nil
}

// UpsertProfile writes the user's default autonomy level. Idempotent.
func (s *Store) UpsertProfile(ctx context.Context, userID, defaultAutonomy string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, default_autonomy) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET default_autonomy = excluded.default_autonomy`,
		userID, defaultAutonomy)
	if err != nil {
		return fmt.Errorf("upserting profile: %w", err)
	}
	return nil
}

// BumpLastAnalysis updates the user's last-analysis timestamp. Best-effort:
// a read-only storage handle (e.g. mid-migration) is logged and swallowed so
// it never fails the turn. Idempotent upsert, so concurrent bumps are safe.
func (s *Store) BumpLastAnalysis(ctx context.Context, userID string) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, default_autonomy, last_analysis_at) VALUES (?, 'AUTO', ?)
		ON CONFLICT(user_id) DO UPDATE SET last_analysis_at = excluded.last_analysis_at`,
		userID, now)
	if err != nil {
		if IsReadOnly(err) {
			log.Warn().Str("user_id", userID).Msg("last_analysis_bump_skipped_readonly")
			return
		}
		log.Warn().Err(err).Str("user_id", userID).Msg("last_analysis_bump_failed")
	}
}

// ListPolicyRules returns the user's autonomy rules ordered by priority.
func (s *Store) ListPolicyRules(ctx context.Context, userID string) ([]PolicyRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, scope_type, scope_value, autonomy, priority, created_at
		FROM policy_rules WHERE user_id = ? ORDER BY priority ASC, created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying policy rules: %w", err)
	}
	defer rows.Close()

	var out []PolicyRule
	for rows.Next() {
		var r PolicyRule
		if err := rows.Scan(&r.ID, &r.UserID, &r.ScopeType, &r.ScopeValue, &r.Autonomy, &r.Priority, &r.CreatedAt); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertPolicyRule adds a scope-specific autonomy override.
func (s *Store) InsertPolicyRule(ctx context.Context, r *PolicyRule) error {
	if r.ID == "" {
		r.ID = NewID("rule")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO policy_rules (id, user_id, scope_type, scope_value, autonomy, priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.ScopeType, r.ScopeValue, r.Autonomy, r.Priority, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting policy rule: %w", err)
	}
	return nil
}

// DeletePolicyRule removes one rule.
func (s *Store) DeletePolicyRule(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM policy_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting policy rule: %w", err)
	}
	return nil
}

// ListRecentlyActiveUsers returns ids of users who sent or received a message
// since the cutoff. The bootstrap scheduler scans these for staleness.
func (s *Store) ListRecentlyActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT cm.user_id
		FROM messages m
		JOIN conversation_members cm ON cm.conversation_id = m.conversation_id
		WHERE m.created_at >= ?`, since)
	if err != nil {
		return nil, fmt.Errorf("querying active users: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
