package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/livecast/backend/internal/database"
	"github.com/livecast/backend/internal/models"
)

type MessageRepository struct {
	db database.Querier
}

func NewMessageRepository(db database.Querier) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a chat message. An unknown stream yields ErrNotFound.
func (r *MessageRepository) Create(ctx context.Context, m *models.ChatMessage) error {
	query := `
		INSERT INTO messages (user_id, stream_id, content, hidden)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, m.UserID, m.StreamID, m.Content, m.Hidden).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", mapError(err))
	}
	return nil
}

// ListVisible returns non-hidden messages of a stream, newest first, with the
// sender profile attached when one exists.
func (r *MessageRepository) ListVisible(ctx context.Context, streamID uuid.UUID, before *time.Time, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := `
		SELECT m.id, m.user_id, m.stream_id, m.content, m.hidden, m.created_at,
		       p.username, p.avatar_url
		FROM messages m
		LEFT JOIN profiles p ON p.id = m.user_id
		WHERE m.stream_id = $1
		  AND m.hidden = FALSE
		  AND ($2::timestamptz IS NULL OR m.created_at < $2::timestamptz)
		ORDER BY m.created_at DESC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, streamID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	out := []models.ChatMessage{}
	for rows.Next() {
		var m models.ChatMessage
		var username sql.NullString
		var avatar *string
		if err := rows.Scan(&m.ID, &m.UserID, &m.StreamID, &m.Content, &m.Hidden, &m.CreatedAt, &username, &avatar); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if username.Valid {
			m.Profile = &models.ChatProfile{ID: m.UserID, Username: username.String, AvatarURL: avatar}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteByStream removes the whole chat history of a stream.
func (r *MessageRepository) DeleteByStream(ctx context.Context, streamID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE stream_id = $1`, streamID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear chat: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to clear chat: %w", err)
	}
	return n, nil
}
