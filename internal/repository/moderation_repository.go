package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/livecast/backend/internal/database"
	"github.com/livecast/backend/internal/models"
)

type ModerationRepository struct {
	db database.Querier
}

func NewModerationRepository(db database.Querier) *ModerationRepository {
	return &ModerationRepository{db: db}
}

func (r *ModerationRepository) AddLog(ctx context.Context, log *models.ModerationLog) error {
	meta := sql.NullString{}
	if log.Metadata != nil {
		if b, err := json.Marshal(log.Metadata); err == nil {
			meta = sql.NullString{String: string(b), Valid: true}
		}
	}
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}

	query := `INSERT INTO moderation_logs (id, stream_id, message_id, action, target_user_id, reason, metadata, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,NOW()) RETURNING created_at`
	err := r.db.QueryRowContext(ctx, query, log.ID, log.StreamID, log.MessageID, log.Action, log.TargetUserID, log.Reason, meta).Scan(&log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert moderation log: %w", err)
	}
	return nil
}

func (r *ModerationRepository) ListByStream(ctx context.Context, streamID uuid.UUID, limit int) ([]models.ModerationLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT id, stream_id, message_id, action, target_user_id, reason, metadata, created_at FROM moderation_logs WHERE stream_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, streamID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query moderation logs: %w", err)
	}
	defer rows.Close()

	res := []models.ModerationLog{}
	for rows.Next() {
		var m models.ModerationLog
		var meta sql.NullString
		if err := rows.Scan(&m.ID, &m.StreamID, &m.MessageID, &m.Action, &m.TargetUserID, &m.Reason, &meta, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan moderation log: %w", err)
		}
		if meta.Valid {
			var mm map[string]any
			_ = json.Unmarshal([]byte(meta.String), &mm)
			m.Metadata = mm
		}
		res = append(res, m)
	}
	return res, rows.Err()
}
