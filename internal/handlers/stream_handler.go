package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/livecast/backend/internal/livepeer"
	"github.com/livecast/backend/internal/models"
	"github.com/livecast/backend/internal/repository"
	"github.com/rs/zerolog/log"
)

type StreamStore interface {
	Create(ctx context.Context, s *models.Stream) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Stream, error)
	GetLatestByUser(ctx context.Context, userID uuid.UUID) (*models.Stream, error)
	GetLatestByUsername(ctx context.Context, username string) (*models.Stream, error)
	ListLive(ctx context.Context, limit int) ([]models.Stream, error)
	UpdateTitle(ctx context.Context, id uuid.UUID, title string) (*models.Stream, error)
	SetOffline(ctx context.Context, id uuid.UUID) (*models.Stream, error)
}

type VideoReader interface {
	GetByStream(ctx context.Context, streamID uuid.UUID) (*models.Video, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Video, error)
}

type ModerationLogReader interface {
	ListByStream(ctx context.Context, streamID uuid.UUID, limit int) ([]models.ModerationLog, error)
}

// StreamProvisioner creates ingest endpoints at the video provider.
type StreamProvisioner interface {
	CreateStream(ctx context.Context, name string) (*livepeer.StreamInfo, error)
}

// VODCapturer runs after a successful stop and must not fail it.
type VODCapturer interface {
	Capture(ctx context.Context, stream *models.Stream)
}

type StreamHandler struct {
	streams     StreamStore
	videos      VideoReader
	modLogs     ModerationLogReader
	provisioner StreamProvisioner
	capturer    VODCapturer
	ingestURL   string
}

func NewStreamHandler(
	streams StreamStore,
	videos VideoReader,
	modLogs ModerationLogReader,
	provisioner StreamProvisioner,
	capturer VODCapturer,
	ingestURL string,
) *StreamHandler {
	return &StreamHandler{
		streams:     streams,
		videos:      videos,
		modLogs:     modLogs,
		provisioner: provisioner,
		capturer:    capturer,
		ingestURL:   ingestURL,
	}
}

type createStreamRequest struct {
	Title    string `json:"title"`
	Category string `json:"category"`
}

// Create provisions a recorded stream at the provider and stores it for the caller.
func (h *StreamHandler) Create(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req createStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request format")
		return
	}
	title, err := models.NormalizeTitle(req.Title)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, titleError(err))
		return
	}
	category, err := models.NormalizeCategory(req.Category)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid category")
		return
	}

	info, err := h.provisioner.CreateStream(c.Request.Context(), title)
	if err != nil {
		log.Error().Err(err).Str("user_id", uid.String()).Msg("failed to provision stream")
		ErrorResponse(c, http.StatusInternalServerError, "Failed to create stream")
		return
	}

	ingest := h.ingestURL
	stream := &models.Stream{
		UserID:           uid,
		Title:            title,
		Category:         category,
		StreamKey:        &info.StreamKey,
		IngestURL:        &ingest,
		PlaybackID:       &info.PlaybackID,
		LivepeerStreamID: &info.ID,
	}
	if err := h.streams.Create(c.Request.Context(), stream); err != nil {
		log.Error().Err(err).Str("livepeer_stream_id", info.ID).Msg("failed to store stream")
		ErrorResponse(c, http.StatusInternalServerError, "Failed to create stream")
		return
	}

	c.JSON(http.StatusOK, gin.H{"stream": stream})
}

// Get returns the latest stream for streamId, userId or username. Ingest
// credentials are never included.
func (h *StreamHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		stream *models.Stream
		err    error
	)
	switch {
	case c.Query("streamId") != "":
		id, perr := uuid.Parse(c.Query("streamId"))
		if perr != nil {
			ErrorResponse(c, http.StatusBadRequest, "Invalid request format")
			return
		}
		stream, err = h.streams.GetByID(ctx, id)
	case c.Query("userId") != "":
		id, perr := uuid.Parse(c.Query("userId"))
		if perr != nil {
			ErrorResponse(c, http.StatusBadRequest, "Invalid request format")
			return
		}
		stream, err = h.streams.GetLatestByUser(ctx, id)
	case c.Query("username") != "":
		stream, err = h.streams.GetLatestByUsername(ctx, c.Query("username"))
	default:
		ErrorResponse(c, http.StatusBadRequest, "streamId, userId or username is required")
		return
	}

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ErrorResponse(c, http.StatusNotFound, "Stream not found")
			return
		}
		log.Error().Err(err).Msg("failed to get stream")
		ErrorResponse(c, http.StatusInternalServerError, "Failed to get stream")
		return
	}
	c.JSON(http.StatusOK, gin.H{"stream": stream.Public()})
}

// Live lists streams that are currently live.
func (h *StreamHandler) Live(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	streams, err := h.streams.ListLive(c.Request.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list live streams")
		ErrorResponse(c, http.StatusInternalServerError, "Failed to get streams")
		return
	}
	out := make([]*models.Stream, 0, len(streams))
	for i := range streams {
		out = append(out, streams[i].Public())
	}
	c.JSON(http.StatusOK, gin.H{"streams": out})
}

// ownedStream resolves streamId from the body and checks the caller owns it.
// It writes the error response itself and returns nil on failure.
func (h *StreamHandler) ownedStream(c *gin.Context, body map[string]any, forbidden string) *models.Stream {
	uid, ok := userID(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "Unauthorized")
		return nil
	}
	if !present(body["streamId"]) {
		ErrorResponse(c, http.StatusBadRequest, "streamId is required")
		return nil
	}
	raw, ok := body["streamId"].(string)
	if !ok {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request format")
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request format")
		return nil
	}

	stream, err := h.streams.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ErrorResponse(c, http.StatusNotFound, "Stream not found")
			return nil
		}
		log.Error().Err(err).Str("stream_id", id.String()).Msg("failed to load stream")
		ErrorResponse(c, http.StatusInternalServerError, "Failed to get stream")
		return nil
	}
	if stream.UserID != uid {
		ErrorResponse(c, http.StatusForbidden, forbidden)
		return nil
	}
	return stream
}

// UpdateTitle renames a stream owned by the caller.
func (h *StreamHandler) UpdateTitle(c *gin.Context) {
	if _, ok := userID(c); !ok {
		ErrorResponse(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	body, err := readJSONObject(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	stream := h.ownedStream(c, body, "Unauthorized: You can only update your own streams")
	if stream == nil {
		return
	}

	rawTitle, isString := body["title"].(string)
	if body["title"] != nil && !isString {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request format")
		return
	}
	title, err := models.NormalizeTitle(rawTitle)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, titleError(err))
		return
	}

	updated, err := h.streams.UpdateTitle(c.Request.Context(), stream.ID, title)
	if err != nil {
		log.Error().Err(err).Str("stream_id", stream.ID.String()).Msg("failed to update title")
		ErrorResponse(c, http.StatusInternalServerError, "Failed to update stream")
		return
	}
	c.JSON(http.StatusOK, gin.H{"stream": updated})
}

// Stop takes a live stream offline on the owner's request and makes sure a
// VOD link exists.
func (h *StreamHandler) Stop(c *gin.Context) {
	if _, ok := userID(c); !ok {
		ErrorResponse(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	body, err := readJSONObject(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	stream := h.ownedStream(c, body, "Unauthorized: You can only stop your own streams")
	if stream == nil {
		return
	}
	if !stream.IsLive {
		ErrorResponse(c, http.StatusBadRequest, "Stream is already offline")
		return
	}

	updated, err := h.streams.SetOffline(c.Request.Context(), stream.ID)
	if err != nil {
		log.Error().Err(err).Str("stream_id", stream.ID.String()).Msg("failed to stop stream")
		ErrorResponse(c, http.StatusInternalServerError, "Failed to stop stream")
		return
	}

	h.capturer.Capture(c.Request.Context(), updated)

	c.JSON(http.StatusOK, gin.H{"stream": updated})
}

// VOD returns the recording row of a stream.
func (h *StreamHandler) VOD(c *gin.Context) {
	streamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid stream ID")
		return
	}
	video, err := h.videos.GetByStream(c.Request.Context(), streamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ErrorResponse(c, http.StatusNotFound, "Video not found")
			return
		}
		log.Error().Err(err).Str("stream_id", streamID.String()).Msg("failed to get video")
		ErrorResponse(c, http.StatusInternalServerError, "Failed to get video")
		return
	}
	c.JSON(http.StatusOK, gin.H{"video": video})
}

// Videos lists a user's recordings.
func (h *StreamHandler) Videos(c *gin.Context) {
	raw := c.Query("userId")
	if raw == "" {
		ErrorResponse(c, http.StatusBadRequest, "userId is required")
		return
	}
	uid, err := uuid.Parse(raw)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request format")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	videos, err := h.videos.ListByUser(c.Request.Context(), uid, limit)
	if err != nil {
		log.Error().Err(err).Str("user_id", uid.String()).Msg("failed to list videos")
		ErrorResponse(c, http.StatusInternalServerError, "Failed to get videos")
		return
	}
	c.JSON(http.StatusOK, gin.H{"videos": videos})
}

// ModerationLogs returns the moderation audit trail to the stream owner.
func (h *StreamHandler) ModerationLogs(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	streamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid stream ID")
		return
	}

	stream, err := h.streams.GetByID(c.Request.Context(), streamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ErrorResponse(c, http.StatusNotFound, "Stream not found")
			return
		}
		ErrorResponse(c, http.StatusInternalServerError, "Failed to get stream")
		return
	}
	if stream.UserID != uid {
		ErrorResponse(c, http.StatusForbidden, "Access denied")
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	logs, err := h.modLogs.ListByStream(c.Request.Context(), streamID, limit)
	if err != nil {
		log.Error().Err(err).Str("stream_id", streamID.String()).Msg("failed to list moderation logs")
		ErrorResponse(c, http.StatusInternalServerError, "Failed to get moderation logs")
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func titleError(err error) string {
	if errors.Is(err, models.ErrTitleTooLong) {
		return "Title too long (max 100 characters)"
	}
	return "Title is required"
}
