package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/livecast/backend/internal/metrics"
	"github.com/livecast/backend/internal/models"
	"github.com/livecast/backend/internal/moderator"
	"github.com/rs/zerolog/log"
)

var (
	ErrContentRequired = errors.New("content is required")
	ErrContentTooLong  = errors.New("content too long")
)

// Moderator decides whether chat text may be shown.
type Moderator interface {
	Moderate(ctx context.Context, content string) moderator.Verdict
}

// MessageStore persists and reads chat rows.
type MessageStore interface {
	Create(ctx context.Context, m *models.ChatMessage) error
	ListVisible(ctx context.Context, streamID uuid.UUID, before *time.Time, limit int) ([]models.ChatMessage, error)
}

// ProfileStore resolves sender profiles.
type ProfileStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

// AuditLog records moderation decisions.
type AuditLog interface {
	AddLog(ctx context.Context, log *models.ModerationLog) error
}

// SendResult is what the sender gets back. A hidden message still looks sent.
type SendResult struct {
	Message   *models.ChatMessage `json:"message"`
	Moderated bool                `json:"moderated"`
	Reason    string              `json:"reason,omitempty"`
}

type Service struct {
	messages  MessageStore
	profiles  ProfileStore
	audit     AuditLog
	moderator Moderator
}

func NewService(messages MessageStore, profiles ProfileStore, audit AuditLog, mod Moderator) *Service {
	return &Service{messages: messages, profiles: profiles, audit: audit, moderator: mod}
}

// ValidateContent trims content and enforces the length limit in characters.
func ValidateContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", ErrContentRequired
	}
	if utf8.RuneCountInString(trimmed) > models.MaxMessageLength {
		return "", ErrContentTooLong
	}
	return trimmed, nil
}

// Send moderates and stores one chat message. Store errors are returned
// as is so callers can map repository sentinels.
func (s *Service) Send(ctx context.Context, userID, streamID uuid.UUID, content string) (*SendResult, error) {
	trimmed, err := ValidateContent(content)
	if err != nil {
		return nil, err
	}

	verdict := s.moderator.Moderate(ctx, trimmed)

	msg := &models.ChatMessage{
		UserID:   userID,
		StreamID: streamID,
		Content:  trimmed,
		Hidden:   !verdict.Appropriate,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	visibility := "visible"
	if msg.Hidden {
		visibility = "hidden"
	}
	metrics.ChatMessages.WithLabelValues(visibility).Inc()

	switch {
	case msg.Hidden:
		s.record(ctx, msg, models.ModActionHidden, verdict.Reason)
	case verdict.FailOpen:
		s.record(ctx, msg, models.ModActionFailOpen, "classifier unavailable")
	}

	if !msg.Hidden {
		s.attachProfile(ctx, msg)
	}

	return &SendResult{
		Message:   msg,
		Moderated: msg.Hidden,
		Reason:    verdict.Reason,
	}, nil
}

// History returns visible messages for a stream, newest first.
func (s *Service) History(ctx context.Context, streamID uuid.UUID, before *time.Time, limit int) ([]models.ChatMessage, error) {
	return s.messages.ListVisible(ctx, streamID, before, limit)
}

func (s *Service) attachProfile(ctx context.Context, msg *models.ChatMessage) {
	if s.profiles == nil {
		return
	}
	p, err := s.profiles.GetByID(ctx, msg.UserID)
	if err != nil {
		log.Debug().Err(err).Str("user_id", msg.UserID.String()).Msg("sender profile not resolved")
		return
	}
	msg.Profile = &models.ChatProfile{ID: p.ID, Username: p.Username, AvatarURL: p.AvatarURL}
}

func (s *Service) record(ctx context.Context, msg *models.ChatMessage, action, reason string) {
	if s.audit == nil {
		return
	}
	entry := &models.ModerationLog{
		StreamID:     &msg.StreamID,
		MessageID:    &msg.ID,
		Action:       action,
		TargetUserID: &msg.UserID,
	}
	if reason != "" {
		entry.Reason = &reason
	}
	if err := s.audit.AddLog(ctx, entry); err != nil {
		log.Warn().Err(err).Str("message_id", msg.ID.String()).Str("action", action).Msg("failed to write moderation log")
	}
}

