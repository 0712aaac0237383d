package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/helpibot/helpi/internal/domain"
	"github.com/helpibot/helpi/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
	// Serializes conversation writes to prevent SQLITE_BUSY under
	// concurrent conversations.
	conversationMu sync.Mutex
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS conversations (
		conversation_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		username TEXT NOT NULL DEFAULT '',
		state INTEGER NOT NULL DEFAULT 0,
		last_question TEXT NOT NULL DEFAULT '',
		retries INTEGER NOT NULL DEFAULT 0,
		invalid_answers INTEGER NOT NULL DEFAULT 0,
		ticket_forced INTEGER NOT NULL DEFAULT 0,
		welcomed INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetConversation retrieves state for a conversation.
func (s *SQLiteStore) GetConversation(ctx context.Context, conversationID string) (*domain.ConversationState, error) {
	query := `
		SELECT conversation_id, user_id, username, state, last_question,
		       retries, invalid_answers, ticket_forced, welcomed, created_at, updated_at
		FROM conversations WHERE conversation_id = ?`

	row := s.db.QueryRowContext(ctx, query, conversationID)

	var state domain.ConversationState
	var dialogState int
	var createdAt, updatedAt int64

	err := row.Scan(
		&state.ConversationID, &state.UserID, &state.Username, &dialogState,
		&state.LastQuestion, &state.Retries, &state.InvalidAnswers,
		&state.TicketForced, &state.Welcomed, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation row: %w: %w", errdefs.ErrUnavailable, err)
	}

	state.State = domain.DialogState(dialogState)
	state.CreatedAt = time.Unix(createdAt, 0)
	state.UpdatedAt = time.Unix(updatedAt, 0)

	return &state, nil
}

// UpsertConversation creates or updates a conversation record.
func (s *SQLiteStore) UpsertConversation(ctx context.Context, state *domain.ConversationState) error {
	s.conversationMu.Lock()
	defer s.conversationMu.Unlock()

	query := `
	INSERT INTO conversations (
		conversation_id, user_id, username, state, last_question,
		retries, invalid_answers, ticket_forced, welcomed, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(conversation_id) DO UPDATE SET
		user_id = excluded.user_id,
		username = excluded.username,
		state = excluded.state,
		last_question = excluded.last_question,
		retries = excluded.retries,
		invalid_answers = excluded.invalid_answers,
		ticket_forced = excluded.ticket_forced,
		welcomed = excluded.welcomed,
		updated_at = excluded.updated_at`

	err := shared.RetryOnConflict(ctx, 3, 100*time.Millisecond, func() error {
		_, execErr := s.db.ExecContext(ctx, query,
			state.ConversationID, state.UserID, state.Username, int(state.State),
			state.LastQuestion, state.Retries, state.InvalidAnswers,
			state.TicketForced, state.Welcomed,
			state.CreatedAt.Unix(), time.Now().Unix(),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("upsert conversation: %w: %w", errdefs.ErrUnavailable, err)
	}
	return nil
}

// DeleteConversation removes a conversation record.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, conversationID string) error {
	s.conversationMu.Lock()
	defer s.conversationMu.Unlock()

	err := shared.RetryOnConflict(ctx, 3, 100*time.Millisecond, func() error {
		_, execErr := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE conversation_id = ?`, conversationID)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("delete conversation: %w: %w", errdefs.ErrUnavailable, err)
	}
	return nil
}

// CleanupStaleConversations removes conversations not updated within ttl.
func (s *SQLiteStore) CleanupStaleConversations(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()
	result, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE updated_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup stale conversations: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
