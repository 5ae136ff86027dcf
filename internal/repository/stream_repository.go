package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/livecast/backend/internal/database"
	"github.com/livecast/backend/internal/models"
)

const streamColumns = `s.id, s.user_id, s.title, s.category, s.stream_key, s.ingest_url, s.playback_id,
        s.livepeer_stream_id, s.is_live, s.last_event_at, s.created_at`

type StreamRepository struct {
	db database.Querier
}

func NewStreamRepository(db database.Querier) *StreamRepository {
	return &StreamRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStream(row rowScanner) (*models.Stream, error) {
	s := &models.Stream{}
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.Title,
		&s.Category,
		&s.StreamKey,
		&s.IngestURL,
		&s.PlaybackID,
		&s.LivepeerStreamID,
		&s.IsLive,
		&s.LastEventAt,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *StreamRepository) Create(ctx context.Context, s *models.Stream) error {
	query := `
        INSERT INTO streams (user_id, title, category, stream_key, ingest_url, playback_id, livepeer_stream_id, is_live)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at
    `
	err := r.db.QueryRowContext(ctx, query,
		s.UserID,
		s.Title,
		s.Category,
		s.StreamKey,
		s.IngestURL,
		s.PlaybackID,
		s.LivepeerStreamID,
		s.IsLive,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

func (r *StreamRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Stream, error) {
	query := `SELECT ` + streamColumns + ` FROM streams s WHERE s.id = $1`
	s, err := scanStream(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get stream: %w", mapError(err))
	}
	return s, nil
}

// GetByPlaybackID returns the most recently created stream carrying the
// playback id. Old rows may share it after a replay.
func (r *StreamRepository) GetByPlaybackID(ctx context.Context, playbackID string) (*models.Stream, error) {
	query := `SELECT ` + streamColumns + ` FROM streams s WHERE s.playback_id = $1 ORDER BY s.created_at DESC LIMIT 1`
	s, err := scanStream(r.db.QueryRowContext(ctx, query, playbackID))
	if err != nil {
		return nil, fmt.Errorf("failed to get stream by playback id: %w", mapError(err))
	}
	return s, nil
}

func (r *StreamRepository) GetLatestByUser(ctx context.Context, userID uuid.UUID) (*models.Stream, error) {
	query := `SELECT ` + streamColumns + ` FROM streams s WHERE s.user_id = $1 ORDER BY s.created_at DESC LIMIT 1`
	s, err := scanStream(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get stream: %w", mapError(err))
	}
	return s, nil
}

func (r *StreamRepository) GetLatestByUsername(ctx context.Context, username string) (*models.Stream, error) {
	query := `
        SELECT ` + streamColumns + `
        FROM streams s
        JOIN profiles p ON p.id = s.user_id
        WHERE p.username = $1
        ORDER BY s.created_at DESC LIMIT 1
    `
	s, err := scanStream(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		return nil, fmt.Errorf("failed to get stream: %w", mapError(err))
	}
	return s, nil
}

// ListLive returns streams currently flagged live, newest first.
func (r *StreamRepository) ListLive(ctx context.Context, limit int) ([]models.Stream, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	query := `SELECT ` + streamColumns + ` FROM streams s WHERE s.is_live ORDER BY s.created_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get live streams: %w", err)
	}
	defer rows.Close()

	out := []models.Stream{}
	for rows.Next() {
		s, err := scanStream(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stream: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *StreamRepository) UpdateTitle(ctx context.Context, id uuid.UUID, title string) (*models.Stream, error) {
	query := `UPDATE streams s SET title = $2 WHERE s.id = $1 RETURNING ` + streamColumns
	s, err := scanStream(r.db.QueryRowContext(ctx, query, id, title))
	if err != nil {
		return nil, fmt.Errorf("failed to update stream title: %w", mapError(err))
	}
	return s, nil
}

// SetOffline is the owner's explicit stop. It stamps last_event_at so a
// delayed provider event from before the stop cannot flip the row back.
func (r *StreamRepository) SetOffline(ctx context.Context, id uuid.UUID) (*models.Stream, error) {
	query := `UPDATE streams s SET is_live = FALSE, last_event_at = NOW() WHERE s.id = $1 RETURNING ` + streamColumns
	s, err := scanStream(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to stop stream: %w", mapError(err))
	}
	return s, nil
}

// ApplyTransition sets is_live unless the row has already seen a newer event.
// A nil occurredAt always applies. Reports whether the row changed.
func (r *StreamRepository) ApplyTransition(ctx context.Context, id uuid.UUID, live bool, occurredAt *time.Time) (bool, error) {
	query := `
        UPDATE streams
        SET is_live = $2, last_event_at = COALESCE($3::timestamptz, last_event_at)
        WHERE id = $1
          AND ($3::timestamptz IS NULL OR last_event_at IS NULL OR last_event_at <= $3::timestamptz)
    `
	res, err := r.db.ExecContext(ctx, query, id, live, occurredAt)
	if err != nil {
		return false, fmt.Errorf("failed to update stream status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update stream status: %w", err)
	}
	return n > 0, nil
}
