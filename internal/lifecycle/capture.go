package lifecycle

import (
	"context"

	"github.com/livecast/backend/internal/livepeer"
	"github.com/livecast/backend/internal/metrics"
	"github.com/livecast/backend/internal/models"
	"github.com/rs/zerolog/log"
)

type VideoInserter interface {
	InsertIfAbsent(ctx context.Context, v *models.Video) (bool, error)
}

// Capturer stores a constructed recording link when a broadcaster stops, so
// a VOD exists even if the recording.ready webhook is late or lost.
type Capturer struct {
	videos       VideoInserter
	playbackBase string
}

func NewCapturer(videos VideoInserter, playbackBase string) *Capturer {
	return &Capturer{videos: videos, playbackBase: playbackBase}
}

// Capture never fails the caller. Errors are logged and counted.
func (c *Capturer) Capture(ctx context.Context, stream *models.Stream) {
	if !stream.HasPlaybackID() {
		metrics.VODFallback.WithLabelValues("no_playback_id").Inc()
		return
	}

	v := &models.Video{
		StreamID:    stream.ID,
		UserID:      stream.UserID,
		PlaybackURL: livepeer.RecordingURL(c.playbackBase, *stream.PlaybackID),
	}
	created, err := c.videos.InsertIfAbsent(ctx, v)
	if err != nil {
		metrics.VODFallback.WithLabelValues("error").Inc()
		log.Error().Err(err).Str("stream_id", stream.ID.String()).Msg("vod fallback insert failed")
		return
	}
	if !created {
		metrics.VODFallback.WithLabelValues("exists").Inc()
		return
	}
	metrics.VODFallback.WithLabelValues("created").Inc()
	log.Info().Str("stream_id", stream.ID.String()).Str("playback_url", v.PlaybackURL).Msg("vod fallback created")
}
