package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/livecast/backend/internal/database"
	"github.com/livecast/backend/internal/models"
)

type ProfileRepository struct {
	db database.Querier
}

func NewProfileRepository(db database.Querier) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	query := `SELECT id, username, avatar_url, bio, created_at FROM profiles WHERE id = $1`
	p := &models.Profile{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Username, &p.AvatarURL, &p.Bio, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", mapError(err))
	}
	return p, nil
}

// Upsert creates or updates the caller's profile. A username taken by
// someone else yields ErrDuplicate.
func (r *ProfileRepository) Upsert(ctx context.Context, p *models.Profile) error {
	query := `
		INSERT INTO profiles (id, username, avatar_url, bio)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET username = EXCLUDED.username, avatar_url = EXCLUDED.avatar_url, bio = EXCLUDED.bio
		RETURNING created_at
	`
	if err := r.db.QueryRowContext(ctx, query, p.ID, p.Username, p.AvatarURL, p.Bio).Scan(&p.CreatedAt); err != nil {
		return fmt.Errorf("failed to save profile: %w", mapError(err))
	}
	return nil
}
