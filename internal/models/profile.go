package models

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)

// Profile is the public face of an auth user. Its id equals the token subject.
type Profile struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	AvatarURL *string   `json:"avatar_url" db:"avatar_url"`
	Bio       *string   `json:"bio,omitempty" db:"bio"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Validate checks basic profile fields
func (p *Profile) Validate() error {
	if p.Username == "" {
		return fmt.Errorf("username is required")
	}
	if !usernamePattern.MatchString(p.Username) {
		return fmt.Errorf("username must be 3-30 letters, digits or underscores")
	}
	if p.Bio != nil && len([]rune(*p.Bio)) > 500 {
		return fmt.Errorf("bio too long")
	}
	return nil
}

// ChatProfile is the subset attached to chat messages for display.
type ChatProfile struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	AvatarURL *string   `json:"avatar_url"`
}

type UpsertProfileRequest struct {
	Username  string  `json:"username" binding:"required"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	Bio       *string `json:"bio,omitempty"`
}
