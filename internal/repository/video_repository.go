package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/livecast/backend/internal/database"
	"github.com/livecast/backend/internal/models"
)

const videoColumns = `id, stream_id, user_id, playback_url, duration, created_at, updated_at`

type VideoRepository struct {
	db database.Querier
}

func NewVideoRepository(db database.Querier) *VideoRepository {
	return &VideoRepository{db: db}
}

func scanVideo(row rowScanner) (*models.Video, error) {
	v := &models.Video{}
	if err := row.Scan(&v.ID, &v.StreamID, &v.UserID, &v.PlaybackURL, &v.Duration, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	return v, nil
}

func (r *VideoRepository) GetByStream(ctx context.Context, streamID uuid.UUID) (*models.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos WHERE stream_id = $1`
	v, err := scanVideo(r.db.QueryRowContext(ctx, query, streamID))
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", mapError(err))
	}
	return v, nil
}

// Insert creates the VOD row. A row for the same stream yields ErrDuplicate.
func (r *VideoRepository) Insert(ctx context.Context, v *models.Video) error {
	query := `
		INSERT INTO videos (stream_id, user_id, playback_url, duration)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query, v.StreamID, v.UserID, v.PlaybackURL, v.Duration).
		Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create video: %w", mapError(err))
	}
	return nil
}

// InsertIfAbsent creates the VOD row only when the stream has none yet.
func (r *VideoRepository) InsertIfAbsent(ctx context.Context, v *models.Video) (bool, error) {
	query := `
		INSERT INTO videos (stream_id, user_id, playback_url, duration)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (stream_id) DO NOTHING
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query, v.StreamID, v.UserID, v.PlaybackURL, v.Duration).
		Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// conflict: RETURNING yields no row
			return false, nil
		}
		return false, fmt.Errorf("failed to create video: %w", mapError(err))
	}
	return true, nil
}

// UpdatePlayback refreshes the URL of the stream's VOD row. A nil duration
// keeps the stored one.
func (r *VideoRepository) UpdatePlayback(ctx context.Context, streamID uuid.UUID, playbackURL string, duration *float64) error {
	query := `
		UPDATE videos
		SET playback_url = $2, duration = COALESCE($3, duration), updated_at = NOW()
		WHERE stream_id = $1
	`
	res, err := r.db.ExecContext(ctx, query, streamID, playbackURL, duration)
	if err != nil {
		return fmt.Errorf("failed to update video: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update video: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("failed to update video: %w", ErrNotFound)
	}
	return nil
}

func (r *VideoRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Video, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := `SELECT ` + videoColumns + ` FROM videos WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer rows.Close()

	out := []models.Video{}
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}
