package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ChatSession represents an active chatbot exchange (e.g. awaiting
// plan-adjustment feedback). Sessions are local projections of the
// backend's chatbot state and expire after a TTL.
type ChatSession struct {
	ID          int64
	UserID      string
	SessionType string
	State       string
	ContextData string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// ChatContextData holds structured data stored in the context_data JSON field.
type ChatContextData struct {
	PlanID          string `json:"plan_id"`
	OriginalRequest string `json:"original_request"`
}

// ChatSessionStore provides access to chat session persistence operations.
type ChatSessionStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewChatSessionStore creates a store over the shared local database.
func NewChatSessionStore(db *sql.DB, ttl time.Duration) *ChatSessionStore {
	return &ChatSessionStore{db: db, ttl: ttl}
}

// Create creates a new session and returns its ID.
func (cs *ChatSessionStore) Create(ctx context.Context, userID, sessionType, state string, contextData ChatContextData) (int64, error) {
	jsonData, err := json.Marshal(contextData)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	result, err := cs.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (user_id, session_type, state, context_data, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID, sessionType, state, string(jsonData), now.Add(cs.ttl), now)
	if err != nil {
		return 0, fmt.Errorf("failed to create chat session: %w", err)
	}
	return result.LastInsertId()
}

// Active returns the most recent unexpired session for a user.
func (cs *ChatSessionStore) Active(ctx context.Context, userID string) (*ChatSession, error) {
	row := cs.db.QueryRowContext(ctx, `
		SELECT id, user_id, session_type, state, context_data, expires_at, created_at
		FROM chat_sessions
		WHERE user_id = ? AND expires_at > ?
		ORDER BY created_at DESC LIMIT 1`,
		userID, time.Now())

	var s ChatSession
	err := row.Scan(&s.ID, &s.UserID, &s.SessionType, &s.State, &s.ContextData, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chat session: %w", err)
	}
	return &s, nil
}

// UpdateState moves a session to a new state.
func (cs *ChatSessionStore) UpdateState(ctx context.Context, id int64, state string) error {
	if _, err := cs.db.ExecContext(ctx, `UPDATE chat_sessions SET state = ? WHERE id = ?`, state, id); err != nil {
		return fmt.Errorf("failed to update chat session %d: %w", id, err)
	}
	return nil
}

// Delete removes a session.
func (cs *ChatSessionStore) Delete(ctx context.Context, id int64) error {
	if _, err := cs.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete chat session %d: %w", id, err)
	}
	return nil
}

// PurgeExpired removes expired sessions and returns how many were dropped.
func (cs *ChatSessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := cs.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE expires_at <= ?`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge chat sessions: %w", err)
	}
	return result.RowsAffected()
}
