package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/livecast/backend/internal/chat"
	"github.com/livecast/backend/internal/lifecycle"
	"github.com/livecast/backend/internal/livepeer"
	"github.com/livecast/backend/internal/models"
	"github.com/livecast/backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// asUser stands in for the auth middleware.
func asUser(id uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id != uuid.Nil {
			c.Set("user_id", id)
		}
		c.Next()
	}
}

func do(r http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// --- webhook ---

type recordingReconciler struct {
	events  []livepeer.Event
	outcome lifecycle.Outcome
	err     error
}

func (r *recordingReconciler) Handle(_ context.Context, evt livepeer.Event) (lifecycle.Outcome, error) {
	r.events = append(r.events, evt)
	return r.outcome, r.err
}

func webhookRouter(rec *recordingReconciler, secret string) *gin.Engine {
	r := gin.New()
	r.POST("/webhook", NewWebhookHandler(rec, secret).Receive)
	return r
}

func TestWebhookReceive(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		reconErr   error
		wantStatus int
		wantError  string
		wantCalls  int
	}{
		{"started", `{"event":"stream.started","stream":{"playbackId":"pb1"}}`, nil, http.StatusOK, "", 1},
		{"unknown event acknowledged", `{"event":"foo.bar"}`, nil, http.StatusOK, "", 1},
		{"side effect failure acknowledged", `{"type":"stream.idle","stream":{"playbackId":"pb1"}}`, errors.New("db down"), http.StatusOK, "", 1},
		{"missing event", `{"stream":{"playbackId":"pb1"}}`, nil, http.StatusBadRequest, "Invalid webhook payload: missing event", 0},
		{"not json", `not json`, nil, http.StatusBadRequest, "Invalid webhook payload", 0},
		{"json array", `[1,2]`, nil, http.StatusBadRequest, "Invalid webhook payload", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingReconciler{outcome: lifecycle.OutcomeApplied, err: tt.reconErr}
			w := do(webhookRouter(rec, ""), http.MethodPost, "/webhook", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decode(t, w)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, body["error"])
			} else {
				assert.Equal(t, true, body["received"])
			}
			assert.Len(t, rec.events, tt.wantCalls)
		})
	}
}

func TestWebhookSignature(t *testing.T) {
	body := `{"event":"stream.started","stream":{"playbackId":"pb1"}}`
	rec := &recordingReconciler{outcome: lifecycle.OutcomeApplied}
	r := webhookRouter(rec, "whsec")

	w := do(r, http.MethodPost, "/webhook", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/webhook", body, livepeer.SignatureHeader, livepeer.Sign("other", []byte(body), time.Now()))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/webhook", body, livepeer.SignatureHeader, livepeer.Sign("whsec", []byte(body), time.Now()))
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, rec.events, 1)
	assert.Equal(t, "pb1", rec.events[0].PlaybackID)
}

// --- chat ---

type stubChat struct {
	sendFunc func(ctx context.Context, userID, streamID uuid.UUID, content string) (*chat.SendResult, error)
	calls    int
}

func (s *stubChat) Send(ctx context.Context, userID, streamID uuid.UUID, content string) (*chat.SendResult, error) {
	s.calls++
	return s.sendFunc(ctx, userID, streamID, content)
}

func (s *stubChat) History(context.Context, uuid.UUID, *time.Time, int) ([]models.ChatMessage, error) {
	return []models.ChatMessage{}, nil
}

func echoChat() *stubChat {
	return &stubChat{sendFunc: func(_ context.Context, userID, streamID uuid.UUID, content string) (*chat.SendResult, error) {
		trimmed, err := chat.ValidateContent(content)
		if err != nil {
			return nil, err
		}
		return &chat.SendResult{Message: &models.ChatMessage{ID: uuid.New(), UserID: userID, StreamID: streamID, Content: trimmed}}, nil
	}}
}

func chatRouter(svc ChatSender, uid uuid.UUID) *gin.Engine {
	r := gin.New()
	h := NewChatHandler(svc)
	r.POST("/chat/send", asUser(uid), h.Send)
	r.POST("/moderate", asUser(uid), h.Send)
	return r
}

func TestChatSendValidation(t *testing.T) {
	sid := uuid.New().String()
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{"ok", `{"stream_id":"` + sid + `","content":"hello"}`, http.StatusOK, ""},
		{"missing content", `{"stream_id":"` + sid + `"}`, http.StatusBadRequest, "stream_id and content are required"},
		{"empty content", `{"stream_id":"` + sid + `","content":""}`, http.StatusBadRequest, "stream_id and content are required"},
		{"null stream", `{"stream_id":null,"content":"hi"}`, http.StatusBadRequest, "stream_id and content are required"},
		{"zero content", `{"stream_id":"` + sid + `","content":0}`, http.StatusBadRequest, "stream_id and content are required"},
		{"whitespace content", `{"stream_id":"` + sid + `","content":"   "}`, http.StatusBadRequest, "stream_id and content are required"},
		{"numeric content", `{"stream_id":"` + sid + `","content":42}`, http.StatusBadRequest, "Invalid request format"},
		{"object stream id", `{"stream_id":{"id":1},"content":"hi"}`, http.StatusBadRequest, "Invalid request format"},
		{"stream id not uuid", `{"stream_id":"abc","content":"hi"}`, http.StatusBadRequest, "Invalid request format"},
		{"body not object", `"hello"`, http.StatusBadRequest, "Invalid request format"},
		{"exactly 500", `{"stream_id":"` + sid + `","content":"` + strings.Repeat("a", 500) + `"}`, http.StatusOK, ""},
		{"501", `{"stream_id":"` + sid + `","content":"` + strings.Repeat("a", 501) + `"}`, http.StatusBadRequest, "Message too long (max 500 characters)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(chatRouter(echoChat(), uuid.New()), http.MethodPost, "/chat/send", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, decode(t, w)["error"])
			}
		})
	}
}

func TestChatSendUnauthenticatedBeforeValidation(t *testing.T) {
	svc := echoChat()
	w := do(chatRouter(svc, uuid.Nil), http.MethodPost, "/moderate", `{}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Unauthorized", decode(t, w)["error"])
	assert.Zero(t, svc.calls)
}

func TestChatSendResponses(t *testing.T) {
	sid := uuid.New()
	body := `{"stream_id":"` + sid.String() + `","content":"bad words"}`

	hidden := &stubChat{sendFunc: func(_ context.Context, userID, streamID uuid.UUID, content string) (*chat.SendResult, error) {
		return &chat.SendResult{
			Message:   &models.ChatMessage{ID: uuid.New(), UserID: userID, StreamID: streamID, Content: content, Hidden: true},
			Moderated: true,
			Reason:    "insult",
		}, nil
	}}
	w := do(chatRouter(hidden, uuid.New()), http.MethodPost, "/chat/send", body)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, true, out["moderated"])
	assert.Equal(t, "insult", out["reason"])
	msg, ok := out["message"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, msg, "profiles")
	assert.Nil(t, msg["profiles"])

	missing := &stubChat{sendFunc: func(context.Context, uuid.UUID, uuid.UUID, string) (*chat.SendResult, error) {
		return nil, repository.ErrNotFound
	}}
	w = do(chatRouter(missing, uuid.New()), http.MethodPost, "/chat/send", body)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Stream not found", decode(t, w)["error"])

	broken := &stubChat{sendFunc: func(context.Context, uuid.UUID, uuid.UUID, string) (*chat.SendResult, error) {
		return nil, errors.New("connection refused")
	}}
	w = do(chatRouter(broken, uuid.New()), http.MethodPost, "/chat/send", body)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to send message", decode(t, w)["error"])
}

// --- streams ---

type memStreams struct {
	rows       map[uuid.UUID]*models.Stream
	setOffErr  error
	createErr  error
	lastCreate *models.Stream
}

func (m *memStreams) Create(_ context.Context, s *models.Stream) error {
	if m.createErr != nil {
		return m.createErr
	}
	s.ID = uuid.New()
	m.rows[s.ID] = s
	m.lastCreate = s
	return nil
}

func (m *memStreams) GetByID(_ context.Context, id uuid.UUID) (*models.Stream, error) {
	s, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStreams) GetLatestByUser(_ context.Context, userID uuid.UUID) (*models.Stream, error) {
	for _, s := range m.rows {
		if s.UserID == userID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStreams) GetLatestByUsername(context.Context, string) (*models.Stream, error) {
	return nil, repository.ErrNotFound
}

func (m *memStreams) ListLive(context.Context, int) ([]models.Stream, error) {
	out := []models.Stream{}
	for _, s := range m.rows {
		if s.IsLive {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memStreams) UpdateTitle(_ context.Context, id uuid.UUID, title string) (*models.Stream, error) {
	m.rows[id].Title = title
	cp := *m.rows[id]
	return &cp, nil
}

func (m *memStreams) SetOffline(_ context.Context, id uuid.UUID) (*models.Stream, error) {
	if m.setOffErr != nil {
		return nil, m.setOffErr
	}
	m.rows[id].IsLive = false
	cp := *m.rows[id]
	return &cp, nil
}

type nopVideos struct{}

func (nopVideos) GetByStream(context.Context, uuid.UUID) (*models.Video, error) {
	return nil, repository.ErrNotFound
}

func (nopVideos) ListByUser(context.Context, uuid.UUID, int) ([]models.Video, error) {
	return []models.Video{}, nil
}

type nopModLogs struct{}

func (nopModLogs) ListByStream(context.Context, uuid.UUID, int) ([]models.ModerationLog, error) {
	return []models.ModerationLog{}, nil
}

type stubProvisioner struct {
	info *livepeer.StreamInfo
	err  error
}

func (p stubProvisioner) CreateStream(context.Context, string) (*livepeer.StreamInfo, error) {
	return p.info, p.err
}

type recordingCapturer struct {
	captured []*models.Stream
}

func (r *recordingCapturer) Capture(_ context.Context, s *models.Stream) {
	r.captured = append(r.captured, s)
}

func streamFixture(owner uuid.UUID, live bool) (*memStreams, *models.Stream) {
	key, pb := "sk_secret", "pb1"
	s := &models.Stream{ID: uuid.New(), UserID: owner, Title: "t", Category: models.CategoryGaming, StreamKey: &key, PlaybackID: &pb, IsLive: live}
	return &memStreams{rows: map[uuid.UUID]*models.Stream{s.ID: s}}, s
}

func streamRouter(h *StreamHandler, uid uuid.UUID) *gin.Engine {
	r := gin.New()
	r.GET("/streams/get", h.Get)
	r.GET("/streams/live", h.Live)
	r.PATCH("/streams/stop-stream", asUser(uid), h.Stop)
	r.PATCH("/api/v1/streams/update-title", asUser(uid), h.UpdateTitle)
	r.POST("/api/v1/streams", asUser(uid), h.Create)
	return r
}

func TestStopStream(t *testing.T) {
	owner := uuid.New()

	tests := []struct {
		name        string
		caller      uuid.UUID
		live        bool
		body        func(id uuid.UUID) string
		setOffErr   error
		wantStatus  int
		wantError   string
		wantCapture bool
	}{
		{"owner stops", owner, true, func(id uuid.UUID) string { return `{"streamId":"` + id.String() + `"}` }, nil, http.StatusOK, "", true},
		{"missing id", owner, true, func(uuid.UUID) string { return `{}` }, nil, http.StatusBadRequest, "streamId is required", false},
		{"bad id", owner, true, func(uuid.UUID) string { return `{"streamId":"nope"}` }, nil, http.StatusBadRequest, "Invalid request format", false},
		{"unknown", owner, true, func(uuid.UUID) string { return `{"streamId":"` + uuid.NewString() + `"}` }, nil, http.StatusNotFound, "Stream not found", false},
		{"not owner", uuid.New(), true, func(id uuid.UUID) string { return `{"streamId":"` + id.String() + `"}` }, nil, http.StatusForbidden, "Unauthorized: You can only stop your own streams", false},
		{"already offline", owner, false, func(id uuid.UUID) string { return `{"streamId":"` + id.String() + `"}` }, nil, http.StatusBadRequest, "Stream is already offline", false},
		{"store failure", owner, true, func(id uuid.UUID) string { return `{"streamId":"` + id.String() + `"}` }, errors.New("db"), http.StatusInternalServerError, "Failed to stop stream", false},
		{"unauthenticated", uuid.Nil, true, func(id uuid.UUID) string { return `{"streamId":"` + id.String() + `"}` }, nil, http.StatusUnauthorized, "Unauthorized", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, s := streamFixture(owner, tt.live)
			store.setOffErr = tt.setOffErr
			capt := &recordingCapturer{}
			h := NewStreamHandler(store, nopVideos{}, nopModLogs{}, stubProvisioner{}, capt, "rtmp://ingest")

			w := do(streamRouter(h, tt.caller), http.MethodPatch, "/streams/stop-stream", tt.body(s.ID))
			assert.Equal(t, tt.wantStatus, w.Code)
			out := decode(t, w)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, out["error"])
			} else {
				stream := out["stream"].(map[string]any)
				assert.Equal(t, false, stream["is_live"])
			}
			assert.Equal(t, tt.wantCapture, len(capt.captured) == 1)
		})
	}
}

func TestGetStreamHidesKey(t *testing.T) {
	owner := uuid.New()
	store, s := streamFixture(owner, true)
	h := NewStreamHandler(store, nopVideos{}, nopModLogs{}, stubProvisioner{}, &recordingCapturer{}, "")
	r := streamRouter(h, owner)

	w := do(r, http.MethodGet, "/streams/get?streamId="+s.ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "sk_secret")

	w = do(r, http.MethodGet, "/streams/live", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "sk_secret")
	assert.Len(t, decode(t, w)["streams"], 1)

	w = do(r, http.MethodGet, "/streams/get", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/streams/get?username=ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateStream(t *testing.T) {
	owner := uuid.New()
	store := &memStreams{rows: map[uuid.UUID]*models.Stream{}}
	prov := stubProvisioner{info: &livepeer.StreamInfo{ID: "lp1", StreamKey: "key1", PlaybackID: "pb1"}}
	h := NewStreamHandler(store, nopVideos{}, nopModLogs{}, prov, &recordingCapturer{}, "rtmp://ingest")
	r := streamRouter(h, owner)

	w := do(r, http.MethodPost, "/api/v1/streams", `{"title":"  My stream  ","category":"music"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, store.lastCreate)
	assert.Equal(t, "My stream", store.lastCreate.Title)
	assert.Equal(t, models.CategoryMusic, store.lastCreate.Category)
	assert.Equal(t, "pb1", *store.lastCreate.PlaybackID)
	assert.Equal(t, "rtmp://ingest", *store.lastCreate.IngestURL)
	assert.False(t, store.lastCreate.IsLive)

	w = do(r, http.MethodPost, "/api/v1/streams", `{"title":"`+strings.Repeat("x", 101)+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Title too long (max 100 characters)", decode(t, w)["error"])

	w = do(r, http.MethodPost, "/api/v1/streams", `{"title":"ok","category":"cooking"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	failing := NewStreamHandler(store, nopVideos{}, nopModLogs{}, stubProvisioner{err: errors.New("401")}, &recordingCapturer{}, "")
	w = do(streamRouter(failing, owner), http.MethodPost, "/api/v1/streams", `{"title":"ok"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestUpdateTitle(t *testing.T) {
	owner := uuid.New()
	store, s := streamFixture(owner, false)
	h := NewStreamHandler(store, nopVideos{}, nopModLogs{}, stubProvisioner{}, &recordingCapturer{}, "")

	w := do(streamRouter(h, owner), http.MethodPatch, "/api/v1/streams/update-title", `{"streamId":"`+s.ID.String()+`","title":" New "}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "New", store.rows[s.ID].Title)

	w = do(streamRouter(h, uuid.New()), http.MethodPatch, "/api/v1/streams/update-title", `{"streamId":"`+s.ID.String()+`","title":"x"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(streamRouter(h, owner), http.MethodPatch, "/api/v1/streams/update-title", `{"streamId":"`+s.ID.String()+`","title":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Title is required", decode(t, w)["error"])

	w = do(streamRouter(h, uuid.New()), http.MethodPatch, "/api/v1/streams/update-title", `{"streamId":"`+s.ID.String()+`","title":"`+strings.Repeat("a", models.MaxTitleLength+1)+`"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "New", store.rows[s.ID].Title)
}

// --- profiles ---

type memProfiles struct {
	rows map[uuid.UUID]*models.Profile
	err  error
}

func (m *memProfiles) GetByID(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	p, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (m *memProfiles) Upsert(_ context.Context, p *models.Profile) error {
	if m.err != nil {
		return m.err
	}
	m.rows[p.ID] = p
	return nil
}

func TestProfileUpsert(t *testing.T) {
	uid := uuid.New()
	store := &memProfiles{rows: map[uuid.UUID]*models.Profile{}}
	r := gin.New()
	h := NewProfileHandler(store)
	r.PUT("/api/v1/profile", asUser(uid), h.Upsert)
	r.GET("/api/v1/profile", asUser(uid), h.GetMe)

	w := do(r, http.MethodPut, "/api/v1/profile", `{"username":"streamer_1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "streamer_1", store.rows[uid].Username)

	w = do(r, http.MethodGet, "/api/v1/profile", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPut, "/api/v1/profile", `{"username":"a b"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	store.err = repository.ErrDuplicate
	w = do(r, http.MethodPut, "/api/v1/profile", `{"username":"taken"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

// --- health ---

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }

func TestHealthCheck(t *testing.T) {
	r := gin.New()
	r.GET("/health", NewHealthHandler(stubPinger{}, func() int { return 2 }).Check)
	w := do(r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])

	r = gin.New()
	r.GET("/health", NewHealthHandler(stubPinger{err: errors.New("dial tcp 10.0.0.5:5432: connection refused")}, func() int { return 0 }).Check)
	w = do(r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, map[string]any{"status": "degraded"}, decode(t, w))
	assert.NotContains(t, w.Body.String(), "10.0.0.5")
}
