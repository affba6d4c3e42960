// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Preserves the in-memory semantics, including the shared identifier sequence

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS id_seq (
			id      INTEGER PRIMARY KEY CHECK (id = 1),
			next_id INTEGER NOT NULL
		);
		INSERT OR IGNORE INTO id_seq (id, next_id) VALUES (1, 1);

		CREATE TABLE IF NOT EXISTS conversations (
			id         INTEGER PRIMARY KEY,
			title      TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_updated
			ON conversations(updated_at);

		CREATE TABLE IF NOT EXISTS messages (
			id              INTEGER PRIMARY KEY,
			conversation_id INTEGER NOT NULL,
			content         TEXT NOT NULL,
			role            TEXT NOT NULL,
			message_type    TEXT NOT NULL DEFAULT 'text',
			metadata_json   TEXT,
			agent_used      TEXT,
			created_at      TEXT NOT NULL,

			CHECK (role IN ('user', 'assistant', 'system')),
			CHECK (message_type IN ('text', 'voice', 'image'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
			ON messages(conversation_id, created_at);

		CREATE TABLE IF NOT EXISTS agent_statuses (
			id            INTEGER PRIMARY KEY,
			agent_name    TEXT NOT NULL UNIQUE,
			status        TEXT NOT NULL,
			last_activity TEXT NOT NULL,
			metadata_json TEXT,
			seq           INTEGER NOT NULL,

			CHECK (status IN ('active', 'processing', 'standby', 'ready', 'error'))
		);

		CREATE TABLE IF NOT EXISTS documents (
			id            INTEGER PRIMARY KEY,
			title         TEXT NOT NULL,
			content       TEXT NOT NULL,
			file_path     TEXT,
			document_type TEXT NOT NULL,
			created_at    TEXT NOT NULL
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// allocID draws the next identifier from the shared sequence. Every entity
// family allocates from the same row, matching the in-memory counter.
func (s *SQLiteStore) allocID(ctx context.Context, tx *sql.Tx) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		"UPDATE id_seq SET next_id = next_id + 1 WHERE id = 1 RETURNING next_id - 1",
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("allocating id: %w", err)
	}
	return id, nil
}

// CreateConversation stores a new conversation with fresh timestamps.
func (s *SQLiteStore) CreateConversation(ctx context.Context, title string, now time.Time) (*Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := s.allocID(ctx, tx)
	if err != nil {
		return nil, err
	}

	ts := formatTime(now)
	_, err = tx.ExecContext(ctx,
		"INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)",
		id, title, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", id, "title", title)
	return &Conversation{ID: id, Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?", id)
	return scanConversation(row)
}

// ListConversations returns all conversations, most recently updated first.
func (s *SQLiteStore) ListConversations(ctx context.Context) ([]*Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, created_at, updated_at FROM conversations ORDER BY updated_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var result []*Conversation
	for rows.Next() {
		var c Conversation
		var createdAt, updatedAt string
		if err := rows.Scan(&c.ID, &c.Title, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		result = append(result, &c)
	}
	return result, rows.Err()
}

// UpdateConversation merges the patch and forces updated_at to now.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) UpdateConversation(ctx context.Context, id int64, patch ConversationPatch, now time.Time) (*Conversation, error) {
	existing, err := s.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		existing.Title = *patch.Title
	}
	existing.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		"UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?",
		existing.Title, formatTime(now), id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating conversation: %w", err)
	}
	return existing, nil
}

// DeleteConversation removes a conversation and its messages in one
// transaction, so no reader sees the cascade half-applied. No-op when the
// conversation is absent.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
		return fmt.Errorf("deleting conversation messages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing conversation delete: %w", err)
	}
	return nil
}

// CreateMessage stores a new message with created_at set to now.
func (s *SQLiteStore) CreateMessage(ctx context.Context, create CreateMessage, now time.Time) (*Message, error) {
	metadataJSON, err := marshalMetadata(create.Metadata)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := s.allocID(ctx, tx)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, content, role, message_type, metadata_json, agent_used, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, create.ConversationID, create.Content, create.Role, create.MessageType,
		metadataJSON, nullableString(create.AgentUsed), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing message: %w", err)
	}

	return &Message{
		ID:             id,
		ConversationID: create.ConversationID,
		Content:        create.Content,
		Role:           create.Role,
		MessageType:    create.MessageType,
		Metadata:       create.Metadata,
		AgentUsed:      create.AgentUsed,
		CreatedAt:      now,
	}, nil
}

// GetMessage retrieves a message by ID.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, content, role, message_type, metadata_json, agent_used, created_at
		 FROM messages WHERE id = ?`, id)

	msg, err := scanMessageRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return msg, err
}

// ListMessagesByConversation returns the conversation's messages in
// chronological order.
func (s *SQLiteStore) ListMessagesByConversation(ctx context.Context, conversationID int64) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, content, role, message_type, metadata_json, agent_used, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var result []*Message
	for rows.Next() {
		msg, err := scanMessageRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

// UpdateMessage merges the patch onto an existing message.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) UpdateMessage(ctx context.Context, id int64, patch MessagePatch) (*Message, error) {
	existing, err := s.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Content != nil {
		existing.Content = *patch.Content
	}
	if patch.Metadata != nil {
		existing.Metadata = patch.Metadata
	}
	if patch.AgentUsed != nil {
		existing.AgentUsed = patch.AgentUsed
	}

	metadataJSON, err := marshalMetadata(existing.Metadata)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		"UPDATE messages SET content = ?, metadata_json = ?, agent_used = ? WHERE id = ?",
		existing.Content, metadataJSON, nullableString(existing.AgentUsed), id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating message: %w", err)
	}
	return existing, nil
}

// DeleteMessage removes a message if present, no-op otherwise.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}
	return nil
}

// UpsertAgentStatus creates or merges a status record keyed by agent name.
func (s *SQLiteStore) UpsertAgentStatus(ctx context.Context, agentName string, patch AgentStatusPatch, now time.Time) (*AgentStatus, error) {
	existing, err := s.GetAgentStatusByName(ctx, agentName)
	if err == nil {
		return s.updateAgentStatus(ctx, existing, patch, now)
	}
	if err != ErrNotFound {
		return nil, err
	}

	a := &AgentStatus{AgentName: agentName, LastActivity: now}
	applyAgentPatch(a, patch)

	metadataJSON, err := marshalMetadata(a.Metadata)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	a.ID, err = s.allocID(ctx, tx)
	if err != nil {
		return nil, err
	}

	// seq preserves registration order for List
	_, err = tx.ExecContext(ctx,
		`INSERT INTO agent_statuses (id, agent_name, status, last_activity, metadata_json, seq)
		 VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM agent_statuses))`,
		a.ID, a.AgentName, a.Status, formatTime(now), metadataJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting agent status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing agent status: %w", err)
	}
	return a, nil
}

// GetAgentStatusByName retrieves a status record by agent name.
// Returns ErrNotFound if the agent is not registered.
func (s *SQLiteStore) GetAgentStatusByName(ctx context.Context, agentName string) (*AgentStatus, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, agent_name, status, last_activity, metadata_json
		 FROM agent_statuses WHERE agent_name = ?`, agentName)

	var a AgentStatus
	var lastActivity string
	var metadataJSON sql.NullString
	err := row.Scan(&a.ID, &a.AgentName, &a.Status, &lastActivity, &metadataJSON)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent status: %w", err)
	}

	if a.LastActivity, err = parseTime(lastActivity); err != nil {
		return nil, err
	}
	if a.Metadata, err = unmarshalMetadata(metadataJSON); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAgentStatuses returns all registered agents in registration order.
func (s *SQLiteStore) ListAgentStatuses(ctx context.Context) ([]*AgentStatus, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_name, status, last_activity, metadata_json
		 FROM agent_statuses ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying agent statuses: %w", err)
	}
	defer rows.Close()

	var result []*AgentStatus
	for rows.Next() {
		var a AgentStatus
		var lastActivity string
		var metadataJSON sql.NullString
		if err := rows.Scan(&a.ID, &a.AgentName, &a.Status, &lastActivity, &metadataJSON); err != nil {
			return nil, fmt.Errorf("scanning agent status: %w", err)
		}
		if a.LastActivity, err = parseTime(lastActivity); err != nil {
			return nil, err
		}
		if a.Metadata, err = unmarshalMetadata(metadataJSON); err != nil {
			return nil, err
		}
		result = append(result, &a)
	}
	return result, rows.Err()
}

// UpdateAgentStatusByName merges the patch onto an already-registered agent.
// Returns ErrNotFound if the name is unknown.
func (s *SQLiteStore) UpdateAgentStatusByName(ctx context.Context, agentName string, patch AgentStatusPatch, now time.Time) (*AgentStatus, error) {
	existing, err := s.GetAgentStatusByName(ctx, agentName)
	if err != nil {
		return nil, err
	}
	return s.updateAgentStatus(ctx, existing, patch, now)
}

func (s *SQLiteStore) updateAgentStatus(ctx context.Context, existing *AgentStatus, patch AgentStatusPatch, now time.Time) (*AgentStatus, error) {
	applyAgentPatch(existing, patch)
	existing.LastActivity = now

	metadataJSON, err := marshalMetadata(existing.Metadata)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		"UPDATE agent_statuses SET status = ?, last_activity = ?, metadata_json = ? WHERE agent_name = ?",
		existing.Status, formatTime(now), metadataJSON, existing.AgentName,
	)
	if err != nil {
		return nil, fmt.Errorf("updating agent status: %w", err)
	}
	return existing, nil
}

// CreateDocument stores a new indexed document.
func (s *SQLiteStore) CreateDocument(ctx context.Context, create CreateDocument, now time.Time) (*Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := s.allocID(ctx, tx)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, title, content, file_path, document_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, create.Title, create.Content, nullableString(create.FilePath),
		create.DocumentType, formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing document: %w", err)
	}

	return &Document{
		ID:           id,
		Title:        create.Title,
		Content:      create.Content,
		FilePath:     create.FilePath,
		DocumentType: create.DocumentType,
		CreatedAt:    now,
	}, nil
}

// GetDocument retrieves a document by ID.
// Returns ErrNotFound if the document doesn't exist.
func (s *SQLiteStore) GetDocument(ctx context.Context, id int64) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, title, content, file_path, document_type, created_at FROM documents WHERE id = ?", id)

	var d Document
	var filePath sql.NullString
	var createdAt string
	err := row.Scan(&d.ID, &d.Title, &d.Content, &filePath, &d.DocumentType, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying document: %w", err)
	}

	if filePath.Valid {
		d.FilePath = &filePath.String
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDocuments returns all documents sorted by ID ascending.
func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, content, file_path, document_type, created_at FROM documents ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var result []*Document
	for rows.Next() {
		var d Document
		var filePath sql.NullString
		var createdAt string
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &filePath, &d.DocumentType, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		if filePath.Valid {
			d.FilePath = &filePath.String
		}
		if d.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		result = append(result, &d)
	}
	return result, rows.Err()
}

// DeleteDocument removes a document if present, no-op otherwise.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// scanConversation scans a single conversation row.
func scanConversation(row *sql.Row) (*Conversation, error) {
	var c Conversation
	var createdAt, updatedAt string
	err := row.Scan(&c.ID, &c.Title, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// scanMessageRow scans a message from either a *sql.Row or *sql.Rows scan func.
func scanMessageRow(scan func(...any) error) (*Message, error) {
	var msg Message
	var metadataJSON, agentUsed sql.NullString
	var createdAt string

	err := scan(&msg.ID, &msg.ConversationID, &msg.Content, &msg.Role,
		&msg.MessageType, &metadataJSON, &agentUsed, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scanning message: %w", err)
	}

	if msg.Metadata, err = unmarshalMetadata(metadataJSON); err != nil {
		return nil, err
	}
	if agentUsed.Valid {
		msg.AgentUsed = &agentUsed.String
	}
	if msg.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &msg, nil
}

// timeLayout is fixed-width at nanosecond precision. The dedup window
// comparison depends on sub-second resolution surviving a round trip, and
// the ORDER BY clauses depend on the text sorting chronologically -
// RFC3339Nano trims trailing fractional zeros, which breaks both.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp: %w", err)
	}
	return t, nil
}

// nullableString renders an optional string as a SQL value, NULL when nil.
func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func marshalMetadata(meta map[string]any) (any, error) {
	if meta == nil {
		return nil, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}
	return string(data), nil
}

func unmarshalMetadata(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid {
		return nil, nil
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(raw.String), &meta); err != nil {
		return nil, fmt.Errorf("unmarshaling metadata: %w", err)
	}
	return meta, nil
}
