package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// CreateCalendarEvent inserts a calendar entry.
func (s *Store) CreateCalendarEvent(ctx context.Context, e *CalendarEvent) error {
	if e.ID == "" {
		e.ID = NewID("cal")
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calendar_events (id, owner_id, title, description, starts_at, ends_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OwnerID, e.Title, e.Description, e.StartsAt, e.EndsAt, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating calendar event: %w", err)
	}
	return nil
}

// UpdateCalendarEvent applies non-zero fields to an existing event.
func (s *Store) UpdateCalendarEvent(ctx context.Context, id string, title, description string, startsAt, endsAt *time.Time) error {
	e, err := s.GetCalendarEvent(ctx, id)
	if err != nil {
		return err
	}
	if title != "" {
		e.Title = title
	}
	if description != "" {
		e.Description = description
	}
	if startsAt != nil {
		e.StartsAt = *startsAt
	}
	if endsAt != nil {
		e.EndsAt = *endsAt
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE calendar_events SET title = ?, description = ?, starts_at = ?, ends_at = ?, updated_at = ?
		WHERE id = ?`,
		e.Title, e.Description, e.StartsAt, e.EndsAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating calendar event: %w", err)
	}
	return nil
}

// DeleteCalendarEvent removes an event by id.
func (s *Store) DeleteCalendarEvent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM calendar_events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting calendar event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("calendar event %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetCalendarEvent returns an event by id.
func (s *Store) GetCalendarEvent(ctx context.Context, id string) (*CalendarEvent, error) {
	var e CalendarEvent
	var desc sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, description, starts_at, ends_at, created_at, updated_at
		FROM calendar_events WHERE id = ?`, id).
		Scan(&e.ID, &e.OwnerID, &e.Title, &desc, &e.StartsAt, &e.EndsAt, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("calendar event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying calendar event: %w", err)
	}
	e.Description = desc.String
	return &e, nil
}

// ListCalendarEvents returns the owner's events in [from, to), soonest first.
func (s *Store) ListCalendarEvents(ctx context.Context, ownerID string, from, to time.Time) ([]CalendarEvent, error) {
	query := `SELECT id, owner_id, title, description, starts_at, ends_at, created_at, updated_at
	          FROM calendar_events WHERE owner_id = ?`
	args := []interface{}{ownerID}
	if !from.IsZero() {
		query += ` AND starts_at >= ?`
		args = append(args, from)
	}
	if !to.IsZero() {
		query += ` AND starts_at < ?`
		args = append(args, to)
	}
	query += ` ORDER BY starts_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying calendar events: %w", err)
	}
	defer rows.Close()

	var out []CalendarEvent
	for rows.Next() {
		var e CalendarEvent
		var desc sql.NullString
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Title, &desc, &e.StartsAt, &e.EndsAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			continue
		}
		e.Description = desc.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// ResolveCalendarEvent finds an event by id when given, else best-effort by
// title substring plus date proximity (same day as the hint when provided).
// Update/delete tools use this so the provider can reference events loosely.
func (s *Store) ResolveCalendarEvent(ctx context.Context, ownerID, id, titleHint string, dateHint *time.Time) (*CalendarEvent, error) {
	if id != "" {
		return s.GetCalendarEvent(ctx, id)
	}
	if titleHint == "" {
		return nil, fmt.Errorf("calendar event resolution needs an id or title hint: %w", ErrNotFound)
	}

	var from, to time.Time
	if dateHint != nil {
		day := dateHint.UTC().Truncate(24 * time.Hour)
		from, to = day, day.Add(24*time.Hour)
	}
	events, err := s.ListCalendarEvents(ctx, ownerID, from, to)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(titleHint)
	for i := range events {
		if strings.Contains(strings.ToLower(events[i].Title), needle) {
			return &events[i], nil
		}
	}
	return nil, fmt.Errorf("no calendar event matching %q: %w", titleHint, ErrNotFound)
}
