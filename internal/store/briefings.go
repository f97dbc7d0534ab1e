package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// InsertBriefing writes a briefing item. exec may be a transaction when the
// write must be atomic with a dedup claim.
func (s *Store) InsertBriefing(ctx context.Context, exec DBTX, b *BriefingItem) error {
	if b.ID == "" {
		b.ID = NewID("brf")
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	_, err := exec.ExecContext(ctx, `
		INSERT INTO briefing_items (id, user_id, importance, summary, recommended_action,
		                            source_conversation_id, source_message_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, string(b.Importance), b.Summary, b.RecommendedAction,
		b.SourceConversationID, b.SourceMessageID, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting briefing: %w", err)
	}
	return nil
}

// ListBriefings returns the user's briefing feed, newest first.
func (s *Store) ListBriefings(ctx context.Context, userID string, limit int) ([]BriefingItem, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, importance, summary, recommended_action,
		       source_conversation_id, source_message_id, created_at
		FROM briefing_items WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying briefings: %w", err)
	}
	defer rows.Close()
	return scanBriefings(rows)
}

// FindDuplicateBriefing implements the content-based dedup check: a briefing
// for the same source message whose normalized summary matches within the
// lookback window means the new one would be a duplicate. This check is
// separate from (and coarser than) the action dedup gate — it also catches
// near-identical briefings produced under different action kinds or turns.
func (s *Store) FindDuplicateBriefing(ctx context.Context, userID, sourceMessageID, summary string, lookback time.Duration) (*BriefingItem, error) {
	if sourceMessageID == "" {
		return nil, ErrNotFound
	}
	cutoff := time.Now().UTC().Add(-lookback)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, importance, summary, recommended_action,
		       source_conversation_id, source_message_id, created_at
		FROM briefing_items
		WHERE user_id = ? AND source_message_id = ? AND created_at >= ?
		ORDER BY created_at DESC`,
		userID, sourceMessageID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying briefings for dedup: %w", err)
	}
	defer rows.Close()

	items, err := scanBriefings(rows)
	if err != nil {
		return nil, err
	}
	want := normalizeSummary(summary)
	for i := range items {
		if normalizeSummary(items[i].Summary) == want {
			return &items[i], nil
		}
	}
	return nil, ErrNotFound
}

// normalizeSummary lowercases and collapses whitespace so trivially restated
// summaries still count as duplicates.
func normalizeSummary(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func scanBriefings(rows *sql.Rows) ([]BriefingItem, error) {
	var out []BriefingItem
	for rows.Next() {
		var b BriefingItem
		var rec, conv, msg sql.NullString
		if err := rows.Scan(&b.ID, &b.UserID, &b.Importance, &b.Summary, &rec, &conv, &msg, &b.CreatedAt); err != nil {
			continue
		}
		b.RecommendedAction = rec.String
		b.SourceConversationID = conv.String
		b.SourceMessageID = msg.String
		out = append(out, b)
	}
	return out, rows.Err()
}
