package models

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const MaxTitleLength = 100

// Stream categories
const (
	CategoryGaming = "gaming"
	CategoryMusic  = "music"
	CategoryCoding = "coding"
)

var (
	ErrTitleRequired   = errors.New("title is required")
	ErrTitleTooLong    = errors.New("title too long")
	ErrInvalidCategory = errors.New("invalid category")
)

// Stream is one broadcast configuration. PlaybackID correlates provider
// webhooks back to the row.
type Stream struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	UserID           uuid.UUID  `json:"user_id" db:"user_id"`
	Title            string     `json:"title" db:"title"`
	Category         string     `json:"category" db:"category"`
	StreamKey        *string    `json:"stream_key,omitempty" db:"stream_key"`
	IngestURL        *string    `json:"ingest_url,omitempty" db:"ingest_url"`
	PlaybackID       *string    `json:"playback_id" db:"playback_id"`
	LivepeerStreamID *string    `json:"-" db:"livepeer_stream_id"`
	IsLive           bool       `json:"is_live" db:"is_live"`
	LastEventAt      *time.Time `json:"-" db:"last_event_at"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
}

// Public returns a copy without ingest credentials.
func (s *Stream) Public() *Stream {
	cp := *s
	cp.StreamKey = nil
	cp.IngestURL = nil
	return &cp
}

// HasPlaybackID reports whether the provider assigned a playback id.
func (s *Stream) HasPlaybackID() bool {
	return s.PlaybackID != nil && *s.PlaybackID != ""
}

// NormalizeTitle trims the title and enforces the length limit.
func NormalizeTitle(title string) (string, error) {
	t := strings.TrimSpace(title)
	if t == "" {
		return "", ErrTitleRequired
	}
	if utf8.RuneCountInString(t) > MaxTitleLength {
		return "", ErrTitleTooLong
	}
	return t, nil
}

// NormalizeCategory defaults an empty category to gaming.
func NormalizeCategory(category string) (string, error) {
	switch c := strings.ToLower(strings.TrimSpace(category)); c {
	case "":
		return CategoryGaming, nil
	case CategoryGaming, CategoryMusic, CategoryCoding:
		return c, nil
	default:
		return "", ErrInvalidCategory
	}
}
