package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/livecast/backend/internal/models"
	"github.com/livecast/backend/internal/moderator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModerator struct {
	verdict moderator.Verdict
	seen    []string
}

func (f *fakeModerator) Moderate(_ context.Context, content string) moderator.Verdict {
	f.seen = append(f.seen, content)
	return f.verdict
}

type memMessages struct {
	rows      []models.ChatMessage
	createErr error
}

func (m *memMessages) Create(_ context.Context, msg *models.ChatMessage) error {
	if m.createErr != nil {
		return m.createErr
	}
	msg.ID = uuid.New()
	msg.CreatedAt = time.Now()
	m.rows = append(m.rows, *msg)
	return nil
}

func (m *memMessages) ListVisible(_ context.Context, streamID uuid.UUID, _ *time.Time, _ int) ([]models.ChatMessage, error) {
	out := []models.ChatMessage{}
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].StreamID == streamID && !m.rows[i].Hidden {
			out = append(out, m.rows[i])
		}
	}
	return out, nil
}

type stubProfiles struct {
	getFunc func(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	calls   int
}

func (s *stubProfiles) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	s.calls++
	return s.getFunc(ctx, id)
}

type memAudit struct {
	logs []models.ModerationLog
	err  error
}

func (a *memAudit) AddLog(_ context.Context, l *models.ModerationLog) error {
	if a.err != nil {
		return a.err
	}
	a.logs = append(a.logs, *l)
	return nil
}

func newProfiles() *stubProfiles {
	return &stubProfiles{getFunc: func(_ context.Context, id uuid.UUID) (*models.Profile, error) {
		return &models.Profile{ID: id, Username: "viewer_1"}, nil
	}}
}

func TestValidateContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr error
	}{
		{"trimmed", "  hello  ", "hello", nil},
		{"empty", "", "", ErrContentRequired},
		{"whitespace only", " \n\t ", "", ErrContentRequired},
		{"exactly 500", strings.Repeat("a", 500), strings.Repeat("a", 500), nil},
		{"501", strings.Repeat("a", 501), "", ErrContentTooLong},
		{"500 after trim", " " + strings.Repeat("a", 500) + " ", strings.Repeat("a", 500), nil},
		{"multibyte counted as characters", strings.Repeat("é", 500), strings.Repeat("é", 500), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateContent(tt.content)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSendAppropriate(t *testing.T) {
	msgs := &memMessages{}
	profiles := newProfiles()
	audit := &memAudit{}
	mod := &fakeModerator{verdict: moderator.Verdict{Appropriate: true}}
	svc := NewService(msgs, profiles, audit, mod)

	userID, streamID := uuid.New(), uuid.New()
	res, err := svc.Send(context.Background(), userID, streamID, "  gg  ")
	require.NoError(t, err)

	assert.False(t, res.Moderated)
	assert.Empty(t, res.Reason)
	assert.Equal(t, "gg", res.Message.Content)
	assert.False(t, res.Message.Hidden)
	require.NotNil(t, res.Message.Profile)
	assert.Equal(t, "viewer_1", res.Message.Profile.Username)
	assert.Equal(t, []string{"gg"}, mod.seen)
	assert.Empty(t, audit.logs)
}

func TestSendHiddenSkipsProfile(t *testing.T) {
	msgs := &memMessages{}
	profiles := newProfiles()
	audit := &memAudit{}
	mod := &fakeModerator{verdict: moderator.Verdict{Appropriate: false, Reason: "insult"}}
	svc := NewService(msgs, profiles, audit, mod)

	streamID := uuid.New()
	res, err := svc.Send(context.Background(), uuid.New(), streamID, "you are awful")
	require.NoError(t, err)

	assert.True(t, res.Moderated)
	assert.Equal(t, "insult", res.Reason)
	assert.True(t, res.Message.Hidden)
	assert.Nil(t, res.Message.Profile)
	assert.Zero(t, profiles.calls)

	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.ModActionHidden, audit.logs[0].Action)
	assert.Equal(t, res.Message.ID, *audit.logs[0].MessageID)

	visible, err := svc.History(context.Background(), streamID, nil, 50)
	require.NoError(t, err)
	assert.Empty(t, visible)
}

func TestSendFailOpen(t *testing.T) {
	msgs := &memMessages{}
	audit := &memAudit{}
	mod := &fakeModerator{verdict: moderator.Verdict{Appropriate: true, FailOpen: true}}
	svc := NewService(msgs, newProfiles(), audit, mod)

	res, err := svc.Send(context.Background(), uuid.New(), uuid.New(), "hello")
	require.NoError(t, err)

	assert.False(t, res.Moderated)
	assert.False(t, res.Message.Hidden)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.ModActionFailOpen, audit.logs[0].Action)
}

func TestSendRejectsBeforeModeration(t *testing.T) {
	msgs := &memMessages{}
	mod := &fakeModerator{verdict: moderator.Verdict{Appropriate: true}}
	svc := NewService(msgs, newProfiles(), &memAudit{}, mod)

	_, err := svc.Send(context.Background(), uuid.New(), uuid.New(), strings.Repeat("a", 501))
	assert.ErrorIs(t, err, ErrContentTooLong)
	assert.Empty(t, mod.seen)
	assert.Empty(t, msgs.rows)
}

func TestSendPersistenceError(t *testing.T) {
	storeErr := errors.New("connection reset")
	svc := NewService(&memMessages{createErr: storeErr}, newProfiles(), &memAudit{}, &fakeModerator{verdict: moderator.Verdict{Appropriate: true}})

	_, err := svc.Send(context.Background(), uuid.New(), uuid.New(), "hello")
	assert.ErrorIs(t, err, storeErr)
}

func TestSendToleratesAuxiliaryFailures(t *testing.T) {
	profiles := &stubProfiles{getFunc: func(context.Context, uuid.UUID) (*models.Profile, error) {
		return nil, errors.New("no profile")
	}}
	audit := &memAudit{err: errors.New("audit down")}

	svc := NewService(&memMessages{}, profiles, audit, &fakeModerator{verdict: moderator.Verdict{Appropriate: true, FailOpen: true}})
	res, err := svc.Send(context.Background(), uuid.New(), uuid.New(), "hello")
	require.NoError(t, err)
	assert.Nil(t, res.Message.Profile)
}
