// Package store persists workspaces, conversations and messages in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidRecord = errors.New("invalid record")
)

// Store handles history persistence
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) history.db under dataDir
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "history.db")
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Timestamps are stored as unix milliseconds so range queries compare numerically.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workspaces (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		path TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		title TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (workspace_id) REFERENCES workspaces(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_workspace ON conversations(workspace_id);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		thinking TEXT,
		thinking_duration INTEGER,
		timestamp INTEGER NOT NULL,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Backup writes a consistent copy of the database to dest, which must not
// exist yet.
func (s *Store) Backup(ctx context.Context, dest string) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("failed to back up history: %w", err)
	}
	return nil
}

// SaveWorkspace inserts or updates a workspace
func (s *Store) SaveWorkspace(ctx context.Context, w *Workspace) error {
	if w.Path == "" {
		return fmt.Errorf("%w: workspace path is required", ErrInvalidRecord)
	}
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	if w.Name == "" {
		w.Name = filepath.Base(w.Path)
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, name, path, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, path = excluded.path`,
		w.ID, w.Name, w.Path, w.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save workspace: %w", err)
	}
	return nil
}

// GetWorkspace retrieves a workspace by ID
func (s *Store) GetWorkspace(ctx context.Context, id string) (*Workspace, error) {
	var w Workspace
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, path, created_at FROM workspaces WHERE id = ?`, id,
	).Scan(&w.ID, &w.Name, &w.Path, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query workspace: %w", err)
	}
	w.CreatedAt = time.UnixMilli(created)
	return &w, nil
}

// ListWorkspaces returns all workspaces ordered by name
func (s *Store) ListWorkspaces(ctx context.Context) ([]*Workspace, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, path, created_at FROM workspaces ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Workspace
	for rows.Next() {
		var w Workspace
		var created int64
		if err := rows.Scan(&w.ID, &w.Name, &w.Path, &created); err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		w.CreatedAt = time.UnixMilli(created)
		out = append(out, &w)
	}
	return out, rows.Err()
}

// DeleteWorkspace removes a workspace and, by cascade, its conversations
func (s *Store) DeleteWorkspace(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workspaces WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// EnsureConversation creates the conversation if it does not exist yet and
// bumps its updated_at otherwise. An empty workspace id files it under the
// default workspace.
func (s *Store) EnsureConversation(ctx context.Context, c *Conversation) error {
	if c.ID == "" {
		return fmt.Errorf("%w: conversation id is required", ErrInvalidRecord)
	}
	if c.WorkspaceID == "" {
		c.WorkspaceID = DefaultWorkspaceID
	}
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if c.WorkspaceID == DefaultWorkspaceID {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO workspaces (id, name, path, created_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			DefaultWorkspaceID, "Default", "~", now.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("failed to create default workspace: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, workspace_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		c.ID, c.WorkspaceID, c.Title, c.CreatedAt.UnixMilli(), c.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return tx.Commit()
}

// GetConversation retrieves a conversation by ID
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	var created, updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, title, created_at, updated_at
		FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &c.WorkspaceID, &c.Title, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	c.CreatedAt = time.UnixMilli(created)
	c.UpdatedAt = time.UnixMilli(updated)
	return &c, nil
}

// ListConversations returns conversations most recently updated first. An
// empty workspaceID lists every workspace.
func (s *Store) ListConversations(ctx context.Context, workspaceID string) ([]*Conversation, error) {
	query := `SELECT id, workspace_id, title, created_at, updated_at FROM conversations`
	var args []interface{}
	if workspaceID != "" {
		query += ` WHERE workspace_id = ?`
		args = append(args, workspaceID)
	}
	query += ` ORDER BY updated_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Conversation
	for rows.Next() {
		var c Conversation
		var created, updated int64
		if err := rows.Scan(&c.ID, &c.WorkspaceID, &c.Title, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		c.CreatedAt = time.UnixMilli(created)
		c.UpdatedAt = time.UnixMilli(updated)
		out = append(out, &c)
	}
	return out, rows.Err()
}

// DeleteConversation removes a conversation and its messages
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteConversationsBefore removes conversations not updated since cutoff
func (s *Store) DeleteConversationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE updated_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete conversations: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SaveMessage appends a message and touches its conversation in one transaction
func (s *Store) SaveMessage(ctx context.Context, m *Message) error {
	if m.ConversationID == "" {
		return fmt.Errorf("%w: message conversation id is required", ErrInvalidRecord)
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var thinking sql.NullString
	if m.Thinking != "" {
		thinking = sql.NullString{String: m.Thinking, Valid: true}
	}
	var duration sql.NullInt64
	if m.ThinkingDuration != nil {
		duration = sql.NullInt64{Int64: *m.ThinkingDuration, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, thinking, thinking_duration, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.Role, m.Content, thinking, duration, m.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		m.Timestamp.UnixMilli(), m.ConversationID,
	)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// ListMessages returns a conversation's messages in order
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, thinking, thinking_duration, timestamp
		FROM messages WHERE conversation_id = ?
		ORDER BY timestamp, rowid`, conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Message
	for rows.Next() {
		var m Message
		var thinking sql.NullString
		var duration sql.NullInt64
		var ts int64
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &thinking, &duration, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Thinking = thinking.String
		if duration.Valid {
			d := duration.Int64
			m.ThinkingDuration = &d
		}
		m.Timestamp = time.UnixMilli(ts)
		out = append(out, &m)
	}
	return out, rows.Err()
}
