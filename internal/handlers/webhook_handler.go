package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/livecast/backend/internal/lifecycle"
	"github.com/livecast/backend/internal/livepeer"
	"github.com/livecast/backend/internal/metrics"
	"github.com/rs/zerolog/log"
)

const (
	webhookProcessTimeout   = 15 * time.Second
	webhookSignatureMaxSkew = 5 * time.Minute
)

// EventReconciler applies provider lifecycle events.
type EventReconciler interface {
	Handle(ctx context.Context, evt livepeer.Event) (lifecycle.Outcome, error)
}

type WebhookHandler struct {
	reconciler EventReconciler
	secret     string
}

// NewWebhookHandler verifies signatures only when secret is set.
func NewWebhookHandler(reconciler EventReconciler, secret string) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, secret: secret}
}

// Receive acknowledges every well formed envelope with 200 so the provider
// does not redeliver on internal failures.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid webhook payload")
		return
	}

	if h.secret != "" {
		header := c.GetHeader(livepeer.SignatureHeader)
		if err := livepeer.VerifySignature(h.secret, header, body, time.Now(), webhookSignatureMaxSkew); err != nil {
			log.Warn().Str("remote", c.ClientIP()).Msg("webhook rejected: bad signature")
			metrics.WebhookEvents.WithLabelValues("unverified", "rejected").Inc()
			ErrorResponse(c, http.StatusUnauthorized, "Invalid signature")
			return
		}
	}

	evt, err := livepeer.ParseEvent(body)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("malformed", "rejected").Inc()
		if errors.Is(err, livepeer.ErrMissingEventType) {
			ErrorResponse(c, http.StatusBadRequest, "Invalid webhook payload: missing event")
			return
		}
		ErrorResponse(c, http.StatusBadRequest, "Invalid webhook payload")
		return
	}

	// Processing outlives a dropped provider connection.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), webhookProcessTimeout)
	defer cancel()

	outcome, err := h.reconciler.Handle(ctx, evt)
	if err != nil {
		log.Error().Err(err).
			Str("event", evt.Type).
			Str("event_id", evt.ID).
			Str("playback_id", evt.PlaybackID).
			Msg("webhook processing failed")
	} else {
		log.Debug().Str("event", evt.Type).Str("outcome", string(outcome)).Msg("webhook processed")
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
