// Package store persists all OpenWork workspace and orchestrator state in
// SQLite: workspace entities (users, conversations, messages, tasks, calendar
// events), the agent turn records (tasks, actions, event log, deliveries),
// the two uniqueness-claim tables used as optimistic cross-process locks, and
// per-user profiles with autonomy policy rules.
//
// Concurrency control is deliberately database-level: the claim tables carry
// UNIQUE indexes and callers use insert-catch-conflict-reread instead of any
// in-process mutex, because independent processes may race on the same
// trigger.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	openworkotel "github.com/moshesimon/OpenWork-sub000/internal/otel"
)

var tracer = openworkotel.Tracer("github.com/moshesimon/OpenWork-sub000/internal/store")

// Domain errors.
var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateClaim = errors.New("claim already exists")
	ErrReadOnly       = errors.New("storage is read-only")
)

// Store owns the SQLite handle for the whole workspace database.
type Store struct {
	db *sql.DB
}

// DBTX is satisfied by both *sql.DB and *sql.Tx so claim-plus-effect writes
// can run inside one transaction while everything else uses the plain handle.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	handle TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	channel_slug TEXT,
	title TEXT,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS conversation_members (
	conversation_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	PRIMARY KEY (conversation_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	sender_id TEXT NOT NULL,
	body TEXT NOT NULL,
	is_ai INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS workspace_tasks (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT,
	status TEXT NOT NULL,
	due_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS calendar_events (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT,
	starts_at TIMESTAMP NOT NULL,
	ends_at TIMESTAMP NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_calendar_owner ON calendar_events(owner_id, starts_at);

CREATE TABLE IF NOT EXISTS agent_tasks (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	trigger_source TEXT NOT NULL,
	trigger_ref TEXT NOT NULL,
	input_text TEXT,
	status TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 0,
	error_code TEXT,
	error_message TEXT,
	started_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_agent_tasks_user_ref ON agent_tasks(user_id, trigger_ref);

CREATE TABLE IF NOT EXISTS agent_actions (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	target_conversation_id TEXT,
	target_user_id TEXT,
	reasoning TEXT,
	confidence REAL NOT NULL DEFAULT 0,
	payload_json TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agent_actions_task ON agent_actions(task_id);

CREATE TABLE IF NOT EXISTS event_log (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	action_id TEXT,
	event_type TEXT NOT NULL,
	payload_json TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_event_log_task ON event_log(task_id, created_at);

CREATE TABLE IF NOT EXISTS deliveries (
	id TEXT PRIMARY KEY,
	action_id TEXT NOT NULL,
	conversation_id TEXT NOT NULL,
	message_id TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_deliveries_action ON deliveries(action_id);

CREATE TABLE IF NOT EXISTS idempotency_claims (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	trigger_ref TEXT NOT NULL,
	task_id TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	UNIQUE (user_id, trigger_ref)
);

CREATE TABLE IF NOT EXISTS action_dedup_claims (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	source_conversation_id TEXT NOT NULL,
	source_event_id TEXT NOT NULL,
	action_kind TEXT NOT NULL,
	task_id TEXT NOT NULL,
	output_id TEXT,
	created_at TIMESTAMP NOT NULL,
	UNIQUE (user_id, source_conversation_id, source_event_id, action_kind)
);

CREATE TABLE IF NOT EXISTS briefing_items (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	importance TEXT NOT NULL,
	summary TEXT NOT NULL,
	recommended_action TEXT,
	source_conversation_id TEXT,
	source_message_id TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_briefings_user ON briefing_items(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_briefings_source ON briefing_items(user_id, source_message_id);

CREATE TABLE IF NOT EXISTS profiles (
	user_id TEXT PRIMARY KEY,
	default_autonomy TEXT NOT NULL,
	last_analysis_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS policy_rules (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	scope_type TEXT NOT NULL,
	scope_value TEXT NOT NULL,
	autonomy TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_policy_rules_user ON policy_rules(user_id, scope_type, priority);
`

// Open opens (creating if necessary) the workspace database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening workspace database: %w", err)
	}

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("creating workspace schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for callers that run plain, non-transactional
// reads and writes.
func (s *Store) DB() DBTX {
	return s.db
}

// BeginTx starts a transaction for writes that must be atomic with a
// uniqueness claim (the action dedup gate's claim-then-effect pattern).
func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return tx, nil
}

// IsUniqueViolation reports whether err is a SQLite unique-constraint error.
// The gates rely on this to detect losing the optimistic-insert race.
func IsUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// IsReadOnly reports whether err indicates a read-only database handle
// (e.g. mid-migration). Only the best-effort last-analysis bump tolerates it.
func IsReadOnly(err error) bool {
	if errors.Is(err, ErrReadOnly) {
		return true
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrReadonly
	}
	// database/sql surfaces driver strings for some paths.
	return err != nil && strings.Contains(err.Error(), "readonly")
}

// NewID returns a prefixed short id, e.g. "task_3f2a9c1d4e5b".
func NewID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}
