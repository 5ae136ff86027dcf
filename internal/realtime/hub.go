package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/livecast/backend/internal/metrics"
	"github.com/livecast/backend/internal/models"
	"github.com/rs/zerolog/log"
)

// Hub fans row change events out to subscribed websocket clients. Delivery
// is best effort: a client whose buffer is full is disconnected.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Change events waiting for dispatch
	events chan models.ChangeEvent

	register   chan *Client
	unregister chan *Client

	// closed when Run returns
	done chan struct{}

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		events:     make(chan models.ChangeEvent, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.quit)
				metrics.RealtimeConnections.Dec()
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			metrics.RealtimeConnections.Inc()
			log.Debug().Str("user_id", c.userID.String()).Msg("realtime client registered")

		case c := <-h.unregister:
			h.remove(c)

		case evt := <-h.events:
			h.dispatch(evt)
		}
	}
}

// Register adds a client. It reports false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish queues a change event without blocking the caller.
func (h *Hub) Publish(evt models.ChangeEvent) {
	select {
	case h.events <- evt:
	default:
		metrics.RealtimeDropped.Inc()
		log.Warn().Str("table", evt.Table).Str("type", evt.Type).Msg("realtime backlog full, change dropped")
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.quit)
		metrics.RealtimeConnections.Dec()
	}
}

func (h *Hub) dispatch(evt models.ChangeEvent) {
	var data []byte
	var slow []*Client

	h.mu.RLock()
	for c := range h.clients {
		if !c.wants(evt) {
			continue
		}
		if data == nil {
			var err error
			data, err = json.Marshal(models.WSMessage{Event: models.EventChange, Payload: evt})
			if err != nil {
				h.mu.RUnlock()
				log.Error().Err(err).Str("table", evt.Table).Msg("failed to encode change event")
				return
			}
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		metrics.RealtimeDropped.Inc()
		log.Warn().Str("user_id", c.userID.String()).Msg("realtime client too slow, disconnecting")
		h.remove(c)
	}
}
