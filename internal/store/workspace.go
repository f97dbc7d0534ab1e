package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateUser inserts a workspace member.
func (s *Store) CreateUser(ctx context.Context, handle, displayName string) (*User, error) {
	u := &User{
		ID:          NewID("usr"),
		Handle:      handle,
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, handle, display_name, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Handle, u.DisplayName, u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

// GetUser returns a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, handle, display_name, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Handle, &u.DisplayName, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &u, nil
}

// ListUsers returns all workspace members.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, handle, display_name, created_at FROM users ORDER BY handle`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Handle, &u.DisplayName, &u.CreatedAt); err != nil {
			continue
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateConversation inserts a channel or DM conversation.
func (s *Store) CreateConversation(ctx context.Context, kind, channelSlug, title string, memberIDs []string) (*Conversation, error) {
	c := &Conversation{
		ID:          NewID("conv"),
		Kind:        kind,
		ChannelSlug: channelSlug,
		Title:       title,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, kind, channel_slug, title, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Kind, c.ChannelSlug, c.Title, c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	for _, uid := range memberIDs {
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO conversation_members (conversation_id, user_id) VALUES (?, ?)`,
			c.ID, uid); err != nil {
			return nil, fmt.Errorf("adding conversation member: %w", err)
		}
	}
	return c, nil
}

// GetConversation returns a conversation by id.
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	var slug, title sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, kind, channel_slug, title, created_at FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &c.Kind, &slug, &title, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	c.ChannelSlug = slug.String
	c.Title = title.String
	return &c, nil
}

// ListChannels returns channel conversations (not DMs).
func (s *Store) ListChannels(ctx context.Context) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, channel_slug, title, created_at FROM conversations WHERE kind = 'channel' ORDER BY channel_slug`)
	if err != nil {
		return nil, fmt.Errorf("querying channels: %w", err)
	}
	defer rows.Close()
	return scanConversations(rows)
}

// EnsureDMConversation finds the DM conversation shared by the two users,
// creating it when absent.
func (s *Store) EnsureDMConversation(ctx context.Context, userA, userB string) (*Conversation, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id FROM conversations c
		JOIN conversation_members ma ON ma.conversation_id = c.id AND ma.user_id = ?
		JOIN conversation_members mb ON mb.conversation_id = c.id AND mb.user_id = ?
		WHERE c.kind = 'dm' LIMIT 1`, userA, userB).Scan(&id)
	if err == nil {
		return s.GetConversation(ctx, id)
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("querying dm conversation: %w", err)
	}
	return s.CreateConversation(ctx, "dm", "", "", []string{userA, userB})
}

// InsertMessage appends a message. exec may be a transaction when the write
// must be atomic with a dedup claim.
func (s *Store) InsertMessage(ctx context.Context, exec DBTX, m *Message) error {
	if m.ID == "" {
		m.ID = NewID("msg")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := exec.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, body, is_ai, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.SenderID, m.Body, m.IsAI, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// ListMessages returns the most recent messages in a conversation, oldest first.
func (s *Store) ListMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, body, is_ai, created_at FROM (
			SELECT * FROM messages WHERE conversation_id = ? ORDER BY created_at DESC LIMIT ?
		) ORDER BY created_at ASC`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// LatestInboundMessage returns the most recent message across the user's
// conversations that was not authored by the user and is not AI-generated.
// Used by the bootstrap hook to synthesize a refresh trigger.
func (s *Store) LatestInboundMessage(ctx context.Context, userID string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT m.id, m.conversation_id, m.sender_id, m.body, m.is_ai, m.created_at
		FROM messages m
		JOIN conversation_members cm ON cm.conversation_id = m.conversation_id AND cm.user_id = ?
		WHERE m.sender_id != ? AND m.is_ai = 0
		ORDER BY m.created_at DESC LIMIT 1`, userID, userID)

	var m Message
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.IsAI, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest inbound message: %w", err)
	}
	return &m, nil
}

// SearchMessages performs a substring search over message bodies.
func (s *Store) SearchMessages(ctx context.Context, query string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, body, is_ai, created_at
		FROM messages WHERE body LIKE ? ORDER BY created_at DESC LIMIT ?`,
		"%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.IsAI, &m.CreatedAt); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanConversations(rows *sql.Rows) ([]Conversation, error) {
	var out []Conversation
	for rows.Next() {
		var c Conversation
		var slug, title sql.NullString
		if err := rows.Scan(&c.ID, &c.Kind, &slug, &title, &c.CreatedAt); err != nil {
			continue
		}
		c.ChannelSlug = slug.String
		c.Title = title.String
		out = append(out, c)
	}
	return out, rows.Err()
}
