package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/livecast/backend/internal/chat"
	"github.com/livecast/backend/internal/models"
	"github.com/livecast/backend/internal/repository"
	"github.com/rs/zerolog/log"
)

// ChatSender is the chat ingestion pipeline.
type ChatSender interface {
	Send(ctx context.Context, userID, streamID uuid.UUID, content string) (*chat.SendResult, error)
	History(ctx context.Context, streamID uuid.UUID, before *time.Time, limit int) ([]models.ChatMessage, error)
}

type ChatHandler struct {
	chat ChatSender
}

func NewChatHandler(sender ChatSender) *ChatHandler {
	return &ChatHandler{chat: sender}
}

// Send handles POST /chat/send and POST /moderate.
func (h *ChatHandler) Send(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	body, err := readJSONObject(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	if !present(body["stream_id"]) || !present(body["content"]) {
		ErrorResponse(c, http.StatusBadRequest, "stream_id and content are required")
		return
	}
	rawStreamID, ok1 := body["stream_id"].(string)
	content, ok2 := body["content"].(string)
	if !ok1 || !ok2 {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request format")
		return
	}
	streamID, err := uuid.Parse(rawStreamID)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	res, err := h.chat.Send(c.Request.Context(), uid, streamID, content)
	switch {
	case err == nil:
	case errors.Is(err, chat.ErrContentRequired):
		ErrorResponse(c, http.StatusBadRequest, "stream_id and content are required")
		return
	case errors.Is(err, chat.ErrContentTooLong):
		ErrorResponse(c, http.StatusBadRequest, "Message too long (max 500 characters)")
		return
	case errors.Is(err, repository.ErrNotFound):
		ErrorResponse(c, http.StatusNotFound, "Stream not found")
		return
	default:
		log.Error().Err(err).Str("stream_id", streamID.String()).Msg("failed to send chat message")
		ErrorResponse(c, http.StatusInternalServerError, "Failed to send message")
		return
	}

	c.JSON(http.StatusOK, res)
}

// History returns visible chat for a stream, newest first.
func (h *ChatHandler) History(c *gin.Context) {
	streamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid stream ID")
		return
	}

	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			ErrorResponse(c, http.StatusBadRequest, "Invalid before timestamp")
			return
		}
		before = &t
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	messages, err := h.chat.History(c.Request.Context(), streamID, before, limit)
	if err != nil {
		log.Error().Err(err).Str("stream_id", streamID.String()).Msg("failed to load chat")
		ErrorResponse(c, http.StatusInternalServerError, "Failed to get messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}
