package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/livecast/backend/internal/database"
	"github.com/livecast/backend/internal/models"
	"github.com/rs/zerolog/log"
)

// Publisher accepts change events for fan-out.
type Publisher interface {
	Publish(evt models.ChangeEvent)
}

// Listener forwards row change notifications from Postgres to a Publisher.
type Listener struct {
	dsn       string
	publisher Publisher
}

func NewListener(dsn string, publisher Publisher) *Listener {
	return &Listener{dsn: dsn, publisher: publisher}
}

// Run listens until ctx is cancelled. pq reconnects on its own; events
// emitted while disconnected are lost.
func (l *Listener) Run(ctx context.Context) error {
	listener := pq.NewListener(l.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn().Err(err).Int("event", int(ev)).Msg("realtime listener connection problem")
		}
	})
	defer listener.Close()

	if err := listener.Listen(database.NotifyChannel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", database.NotifyChannel, err)
	}
	log.Info().Str("channel", database.NotifyChannel).Msg("realtime listener started")

	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			// nil after a reconnect
			if n == nil {
				continue
			}
			evt, err := decodeNotification(n.Extra)
			if err != nil {
				log.Warn().Err(err).Msg("skipping undecodable row change")
				continue
			}
			l.publisher.Publish(evt)
		case <-ping.C:
			go func() {
				if err := listener.Ping(); err != nil {
					log.Debug().Err(err).Msg("realtime listener ping failed")
				}
			}()
		}
	}
}

func decodeNotification(payload string) (models.ChangeEvent, error) {
	var evt models.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		return evt, fmt.Errorf("decode row change: %w", err)
	}
	if evt.Table == "" || evt.Type == "" {
		return evt, fmt.Errorf("row change without table or type")
	}
	return evt, nil
}
