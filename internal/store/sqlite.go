// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/message/team persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
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

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
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

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
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
		CREATE TABLE IF NOT EXISTS conversations (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			agents TEXT NOT NULL,
			run_mode_locally INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_user
			ON conversations(user_id);

		CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			type TEXT NOT NULL,
			source TEXT NOT NULL,
			content TEXT NOT NULL,
			content_image TEXT,
			stop_reason TEXT,
			timestamp TEXT NOT NULL,
			FOREIGN KEY (session_id) REFERENCES conversations(session_id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_messages_session_seq
			ON messages(session_id, seq);

		CREATE TABLE IF NOT EXISTS teams (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			agents TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// SaveMessage appends a message to a conversation, creating the conversation
// row on first write. The message sequence column preserves arrival order even
// when wire timestamps race.
func (s *SQLiteStore) SaveMessage(ctx context.Context, params *SaveMessageParams) (*Conversation, error) {
	if params.Message == nil {
		return nil, fmt.Errorf("message is required")
	}

	agentsJSON, err := json.Marshal(params.Agents)
	if err != nil {
		return nil, fmt.Errorf("encoding agents: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (session_id, user_id, agents, run_mode_locally, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET updated_at = excluded.updated_at`,
		params.SessionID, params.UserID, string(agentsJSON), boolToInt(params.RunModeLocally), now, now)
	if err != nil {
		return nil, fmt.Errorf("upserting conversation: %w", err)
	}

	msg := params.Message
	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, user_id, type, source, content, content_image, stop_reason, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		params.ID, params.SessionID, params.UserID, msg.Type, msg.Source, msg.Content,
		msg.ContentImage, msg.StopReason, msg.Time)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return s.GetConversation(ctx, params.UserID, params.SessionID)
}

// GetConversation returns the full conversation snapshot with messages in
// arrival order, or ErrNotFound.
func (s *SQLiteStore) GetConversation(ctx context.Context, userID, sessionID string) (*Conversation, error) {
	var conv Conversation
	var agentsJSON string
	var runLocally int

	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, user_id, agents, run_mode_locally, created_at
		FROM conversations
		WHERE session_id = ? AND user_id = ?`,
		sessionID, userID).Scan(&conv.SessionID, &conv.UserID, &agentsJSON, &runLocally, &conv.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	if err := json.Unmarshal([]byte(agentsJSON), &conv.Agents); err != nil {
		return nil, fmt.Errorf("decoding agents: %w", err)
	}
	conv.RunModeLocally = runLocally != 0

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, user_id, type, source, content, content_image, stop_reason, timestamp
		FROM messages
		WHERE session_id = ?
		ORDER BY seq ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.SessionID, &msg.SessionUser, &msg.Type, &msg.Source,
			&msg.Content, &msg.ContentImage, &msg.StopReason, &msg.Time); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		conv.Messages = append(conv.Messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return &conv, nil
}

// ListConversations returns summaries for all conversations, newest first.
func (s *SQLiteStore) ListConversations(ctx context.Context) ([]*ConversationSummary, error) {
	return s.listConversations(ctx, "")
}

// ListConversationsForUser returns summaries for one user's conversations, newest first.
func (s *SQLiteStore) ListConversationsForUser(ctx context.Context, userID string) ([]*ConversationSummary, error) {
	return s.listConversations(ctx, userID)
}

func (s *SQLiteStore) listConversations(ctx context.Context, userID string) ([]*ConversationSummary, error) {
	query := `
		SELECT c.session_id, c.user_id, COUNT(m.seq), c.created_at, c.updated_at
		FROM conversations c
		LEFT JOIN messages m ON m.session_id = c.session_id`
	args := []any{}
	if userID != "" {
		query += ` WHERE c.user_id = ?`
		args = append(args, userID)
	}
	query += `
		GROUP BY c.session_id
		ORDER BY c.updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	summaries := []*ConversationSummary{}
	for rows.Next() {
		var sum ConversationSummary
		if err := rows.Scan(&sum.SessionID, &sum.UserID, &sum.MessageCount, &sum.CreatedAt, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation summary: %w", err)
		}
		summaries = append(summaries, &sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}
	return summaries, nil
}

// DeleteConversation removes a conversation and its messages in one
// transaction. Returns false when nothing matched; a session_id owned by a
// different user leaves both tables untouched.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, userID, sessionID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// The ownership check happens here; messages only go once the
	// conversation row is confirmed gone.
	res, err := tx.ExecContext(ctx,
		`DELETE FROM conversations WHERE session_id = ? AND user_id = ?`, sessionID, userID)
	if err != nil {
		return false, fmt.Errorf("deleting conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return false, fmt.Errorf("deleting messages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing transaction: %w", err)
	}
	return true, nil
}

// CreateTeam stores a new team. Returns ErrDuplicateTeam if the ID is taken.
func (s *SQLiteStore) CreateTeam(ctx context.Context, team *Team) error {
	agentsJSON, err := json.Marshal(team.Agents)
	if err != nil {
		return fmt.Errorf("encoding agents: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO teams (id, name, agents, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		team.ID, team.Name, string(agentsJSON), team.CreatedAt, team.UpdatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateTeam
		}
		return fmt.Errorf("inserting team: %w", err)
	}
	return nil
}

// GetTeam returns a team by ID, or ErrNotFound.
func (s *SQLiteStore) GetTeam(ctx context.Context, id string) (*Team, error) {
	var team Team
	var agentsJSON string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, agents, created_at, updated_at FROM teams WHERE id = ?`,
		id).Scan(&team.ID, &team.Name, &agentsJSON, &team.CreatedAt, &team.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying team: %w", err)
	}

	if err := json.Unmarshal([]byte(agentsJSON), &team.Agents); err != nil {
		return nil, fmt.Errorf("decoding agents: %w", err)
	}
	return &team, nil
}

// ListTeams returns all teams ordered by name.
func (s *SQLiteStore) ListTeams(ctx context.Context) ([]*Team, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, agents, created_at, updated_at FROM teams ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying teams: %w", err)
	}
	defer rows.Close()

	teams := []*Team{}
	for rows.Next() {
		var team Team
		var agentsJSON string
		if err := rows.Scan(&team.ID, &team.Name, &agentsJSON, &team.CreatedAt, &team.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning team: %w", err)
		}
		if err := json.Unmarshal([]byte(agentsJSON), &team.Agents); err != nil {
			return nil, fmt.Errorf("decoding agents: %w", err)
		}
		teams = append(teams, &team)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating teams: %w", err)
	}
	return teams, nil
}

// UpdateTeam replaces a team's name and roster. Returns ErrNotFound if absent.
func (s *SQLiteStore) UpdateTeam(ctx context.Context, team *Team) error {
	agentsJSON, err := json.Marshal(team.Agents)
	if err != nil {
		return fmt.Errorf("encoding agents: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE teams SET name = ?, agents = ?, updated_at = ? WHERE id = ?`,
		team.Name, string(agentsJSON), time.Now().UTC(), team.ID)
	if err != nil {
		return fmt.Errorf("updating team: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTeam removes a team by ID. Returns ErrNotFound if absent.
func (s *SQLiteStore) DeleteTeam(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM teams WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting team: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError reports whether the error is a SQLite UNIQUE
// constraint violation.
// SQLite returns "UNIQUE constraint failed" in the error message
func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "unique constraint"))
}
