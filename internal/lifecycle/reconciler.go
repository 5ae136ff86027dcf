// Package lifecycle keeps stream rows in step with the video provider's
// webhook events and captures VOD links when a broadcaster stops.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/livecast/backend/internal/livepeer"
	"github.com/livecast/backend/internal/metrics"
	"github.com/livecast/backend/internal/models"
	"github.com/livecast/backend/internal/observability"
	"github.com/livecast/backend/internal/repository"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// Outcome describes what Handle did with an event. It is also the metric label.
type Outcome string

const (
	OutcomeApplied       Outcome = "applied"
	OutcomeStale         Outcome = "stale"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeUnknownStream Outcome = "unknown_stream"
	OutcomeIgnored       Outcome = "ignored"
	OutcomeError         Outcome = "error"
)

type StreamStore interface {
	GetByPlaybackID(ctx context.Context, playbackID string) (*models.Stream, error)
	ApplyTransition(ctx context.Context, id uuid.UUID, live bool, occurredAt *time.Time) (bool, error)
}

type ChatStore interface {
	DeleteByStream(ctx context.Context, streamID uuid.UUID) (int64, error)
}

type VideoStore interface {
	GetByStream(ctx context.Context, streamID uuid.UUID) (*models.Video, error)
	Insert(ctx context.Context, v *models.Video) error
	UpdatePlayback(ctx context.Context, streamID uuid.UUID, playbackURL string, duration *float64) error
}

type EventLedger interface {
	Record(ctx context.Context, eventID, eventType string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// AdminStores bundles the stores opened with the administrative credential.
// Only the reconciler receives it.
type AdminStores struct {
	Streams  StreamStore
	Messages ChatStore
	Videos   VideoStore
	Events   EventLedger
}

type Reconciler struct {
	stores       AdminStores
	playbackBase string
}

func NewReconciler(stores AdminStores, playbackBase string) *Reconciler {
	return &Reconciler{stores: stores, playbackBase: playbackBase}
}

// Handle applies one provider event. The returned error is for logging only;
// the provider is always acknowledged.
func (r *Reconciler) Handle(ctx context.Context, evt livepeer.Event) (Outcome, error) {
	ctx, span := observability.StartSpan(ctx, "lifecycle.Handle",
		attribute.String("webhook.event", evt.Type),
		attribute.String("webhook.playback_id", evt.PlaybackID),
		attribute.String("webhook.variant", evt.Variant),
	)
	defer span.End()

	outcome, err := r.handle(ctx, evt)
	if err != nil {
		observability.RecordError(span, err)
	}
	span.SetAttributes(attribute.String("webhook.outcome", string(outcome)))
	metrics.WebhookEvents.WithLabelValues(eventLabel(evt.Type), string(outcome)).Inc()
	return outcome, err
}

func (r *Reconciler) handle(ctx context.Context, evt livepeer.Event) (Outcome, error) {
	switch evt.Type {
	case livepeer.EventStreamStarted, livepeer.EventStreamIdle, livepeer.EventStreamEnded, livepeer.EventRecordingReady:
	default:
		log.Info().Str("event", evt.Type).Msg("ignoring unhandled webhook event")
		return OutcomeIgnored, nil
	}

	if evt.PlaybackID == "" {
		log.Warn().Str("event", evt.Type).Msg("webhook event without playback id")
		return OutcomeIgnored, nil
	}

	if evt.ID != "" && r.stores.Events != nil {
		fresh, err := r.stores.Events.Record(ctx, evt.ID, evt.Type)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("event_id", evt.ID).Msg("webhook dedup unavailable, processing anyway")
		case !fresh:
			log.Info().Str("event_id", evt.ID).Str("event", evt.Type).Msg("duplicate webhook delivery")
			return OutcomeDuplicate, nil
		default:
			outcome, err := r.process(ctx, evt)
			if outcome == OutcomeError {
				r.forget(ctx, evt.ID)
			}
			return outcome, err
		}
	}
	return r.process(ctx, evt)
}

// forget releases the ledger entry of a failed delivery so the provider's
// retry is processed instead of being dropped as a duplicate.
func (r *Reconciler) forget(ctx context.Context, eventID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.stores.Events.Forget(ctx, eventID); err != nil {
		log.Error().Err(err).Str("event_id", eventID).Msg("failed to release webhook event, retries will be skipped")
	}
}

func (r *Reconciler) process(ctx context.Context, evt livepeer.Event) (Outcome, error) {
	stream, err := r.stores.Streams.GetByPlaybackID(ctx, evt.PlaybackID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Info().Str("event", evt.Type).Str("playback_id", evt.PlaybackID).Msg("no stream for playback id")
			return OutcomeUnknownStream, nil
		}
		return OutcomeError, err
	}

	switch evt.Type {
	case livepeer.EventStreamStarted:
		return r.started(ctx, stream, evt)
	case livepeer.EventRecordingReady:
		return r.recordingReady(ctx, stream, evt)
	default:
		return r.stopped(ctx, stream, evt)
	}
}

func (r *Reconciler) started(ctx context.Context, stream *models.Stream, evt livepeer.Event) (Outcome, error) {
	applied, err := r.stores.Streams.ApplyTransition(ctx, stream.ID, true, evt.OccurredAt)
	if err != nil {
		return OutcomeError, err
	}
	if !applied {
		log.Info().Str("stream_id", stream.ID.String()).Msg("stale stream.started ignored")
		return OutcomeStale, nil
	}

	deleted, err := r.stores.Messages.DeleteByStream(ctx, stream.ID)
	if err != nil {
		// is_live already flipped; the chat reset is secondary.
		log.Error().Err(err).Str("stream_id", stream.ID.String()).Msg("failed to reset chat on stream start")
		return OutcomeApplied, nil
	}
	log.Info().Str("stream_id", stream.ID.String()).Int64("messages_cleared", deleted).Msg("stream is live")
	return OutcomeApplied, nil
}

func (r *Reconciler) stopped(ctx context.Context, stream *models.Stream, evt livepeer.Event) (Outcome, error) {
	applied, err := r.stores.Streams.ApplyTransition(ctx, stream.ID, false, evt.OccurredAt)
	if err != nil {
		return OutcomeError, err
	}
	if !applied {
		log.Info().Str("stream_id", stream.ID.String()).Str("event", evt.Type).Msg("stale stop event ignored")
		return OutcomeStale, nil
	}
	log.Info().Str("stream_id", stream.ID.String()).Str("event", evt.Type).Msg("stream is offline")
	return OutcomeApplied, nil
}

func (r *Reconciler) recordingReady(ctx context.Context, stream *models.Stream, evt livepeer.Event) (Outcome, error) {
	url := evt.RecordingURL
	if url == "" {
		url = livepeer.RecordingURL(r.playbackBase, evt.PlaybackID)
	}

	_, err := r.stores.Videos.GetByStream(ctx, stream.ID)
	switch {
	case err == nil:
		if err := r.stores.Videos.UpdatePlayback(ctx, stream.ID, url, evt.SessionDuration); err != nil {
			return OutcomeError, err
		}
	case errors.Is(err, repository.ErrNotFound):
		v := &models.Video{
			StreamID:    stream.ID,
			UserID:      stream.UserID,
			PlaybackURL: url,
			Duration:    evt.SessionDuration,
		}
		if err := r.stores.Videos.Insert(ctx, v); err != nil {
			if !errors.Is(err, repository.ErrDuplicate) {
				return OutcomeError, err
			}
			// lost the insert race to the stop-stream fallback
			if err := r.stores.Videos.UpdatePlayback(ctx, stream.ID, url, evt.SessionDuration); err != nil {
				return OutcomeError, fmt.Errorf("update after duplicate insert: %w", err)
			}
		}
	default:
		return OutcomeError, err
	}

	log.Info().Str("stream_id", stream.ID.String()).Str("playback_url", url).Str("variant", evt.Variant).Msg("recording stored")
	return OutcomeApplied, nil
}

// eventLabel bounds the metric label set to known event types.
func eventLabel(eventType string) string {
	switch eventType {
	case livepeer.EventStreamStarted, livepeer.EventStreamIdle, livepeer.EventStreamEnded, livepeer.EventRecordingReady:
		return eventType
	}
	return "other"
}
