package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateWorkspaceTask inserts a to-do item.
func (s *Store) CreateWorkspaceTask(ctx context.Context, t *WorkspaceTask) error {
	if t.ID == "" {
		t.ID = NewID("wtask")
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = "open"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspace_tasks (id, owner_id, title, description, status, due_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OwnerID, t.Title, t.Description, t.Status, t.DueAt, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating workspace task: %w", err)
	}
	return nil
}

// UpdateWorkspaceTask applies non-empty fields to an existing task.
func (s *Store) UpdateWorkspaceTask(ctx context.Context, id string, title, description, status string, dueAt *time.Time) error {
	t, err := s.GetWorkspaceTask(ctx, id)
	if err != nil {
		return err
	}
	if title != "" {
		t.Title = title
	}
	if description != "" {
		t.Description = description
	}
	if status != "" {
		t.Status = status
	}
	if dueAt != nil {
		t.DueAt = dueAt
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE workspace_tasks SET title = ?, description = ?, status = ?, due_at = ?, updated_at = ?
		WHERE id = ?`,
		t.Title, t.Description, t.Status, t.DueAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating workspace task: %w", err)
	}
	return nil
}

// GetWorkspaceTask returns a task by id.
func (s *Store) GetWorkspaceTask(ctx context.Context, id string) (*WorkspaceTask, error) {
	var t WorkspaceTask
	var desc sql.NullString
	var due sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, description, status, due_at, created_at, updated_at
		FROM workspace_tasks WHERE id = ?`, id).
		Scan(&t.ID, &t.OwnerID, &t.Title, &desc, &t.Status, &due, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("workspace task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying workspace task: %w", err)
	}
	t.Description = desc.String
	if due.Valid {
		t.DueAt = &due.Time
	}
	return &t, nil
}

// ListWorkspaceTasks returns the owner's tasks, most recent first.
func (s *Store) ListWorkspaceTasks(ctx context.Context, ownerID string, limit int) ([]WorkspaceTask, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, description, status, due_at, created_at, updated_at
		FROM workspace_tasks WHERE owner_id = ? ORDER BY created_at DESC LIMIT ?`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying workspace tasks: %w", err)
	}
	defer rows.Close()

	var out []WorkspaceTask
	for rows.Next() {
		var t WorkspaceTask
		var desc sql.NullString
		var due sql.NullTime
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Title, &desc, &t.Status, &due, &t.CreatedAt, &t.UpdatedAt); err != nil {
			continue
		}
		t.Description = desc.String
		if due.Valid {
			t.DueAt = &due.Time
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
