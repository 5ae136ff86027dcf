package models

import (
	"time"

	"github.com/google/uuid"
)

// Moderation log actions
const (
	ModActionHidden   = "hidden"
	ModActionFailOpen = "fail_open"
)

// ModerationLog records a moderation gate decision worth auditing
type ModerationLog struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	StreamID     *uuid.UUID     `json:"stream_id,omitempty" db:"stream_id"`
	MessageID    *uuid.UUID     `json:"message_id,omitempty" db:"message_id"`
	Action       string         `json:"action" db:"action"`
	TargetUserID *uuid.UUID     `json:"target_user_id,omitempty" db:"target_user_id"`
	Reason       *string        `json:"reason,omitempty" db:"reason"`
	Metadata     map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}
