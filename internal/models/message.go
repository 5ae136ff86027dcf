package models

import (
	"time"

	"github.com/google/uuid"
)

const MaxMessageLength = 500

// ChatMessage is one chat line. Hidden rows are stored but never read back
// through the visible chat queries.
type ChatMessage struct {
	ID        uuid.UUID    `json:"id" db:"id"`
	UserID    uuid.UUID    `json:"user_id" db:"user_id"`
	StreamID  uuid.UUID    `json:"stream_id" db:"stream_id"`
	Content   string       `json:"content" db:"content"`
	Hidden    bool         `json:"hidden" db:"hidden"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	Profile   *ChatProfile `json:"profiles"`
}
