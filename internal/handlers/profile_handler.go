package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/livecast/backend/internal/models"
	"github.com/livecast/backend/internal/repository"
	"github.com/rs/zerolog/log"
)

type ProfileStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	Upsert(ctx context.Context, p *models.Profile) error
}

type ProfileHandler struct {
	profiles ProfileStore
}

func NewProfileHandler(profiles ProfileStore) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// GetMe returns the caller's profile
func (h *ProfileHandler) GetMe(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	h.respondProfile(c, uid)
}

// Get returns a public profile by id
func (h *ProfileHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid profile ID")
		return
	}
	h.respondProfile(c, id)
}

func (h *ProfileHandler) respondProfile(c *gin.Context, id uuid.UUID) {
	p, err := h.profiles.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ErrorResponse(c, http.StatusNotFound, "Profile not found")
			return
		}
		ErrorResponse(c, http.StatusInternalServerError, "Failed to get profile")
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": p})
}

// Upsert creates or updates the caller's profile
func (h *ProfileHandler) Upsert(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req models.UpsertProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	p := &models.Profile{
		ID:        uid,
		Username:  req.Username,
		AvatarURL: req.AvatarURL,
		Bio:       req.Bio,
	}
	if err := p.Validate(); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.profiles.Upsert(c.Request.Context(), p); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			ErrorResponse(c, http.StatusConflict, "Username already taken")
			return
		}
		log.Error().Err(err).Str("user_id", uid.String()).Msg("failed to save profile")
		ErrorResponse(c, http.StatusInternalServerError, "Failed to save profile")
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": p})
}
