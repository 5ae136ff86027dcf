package models

import (
	"time"

	"github.com/google/uuid"
)

// Video is the single VOD recording row of a stream.
type Video struct {
	ID          uuid.UUID `json:"id" db:"id"`
	StreamID    uuid.UUID `json:"stream_id" db:"stream_id"`
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	PlaybackURL string    `json:"playback_url" db:"playback_url"`
	// Duration in seconds, nil until the provider reports it.
	Duration  *float64  `json:"duration" db:"duration"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
