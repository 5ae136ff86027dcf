package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/livecast/backend/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	maxSubscriptions = 20
)

// Client is one websocket connection. userID is uuid.Nil for anonymous viewers.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	quit        chan struct{}
	userID      uuid.UUID
	connectedAt time.Time
	limiter     *rate.Limiter

	mu   sync.RWMutex
	subs map[string]subscription
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 256),
		quit:        make(chan struct{}),
		userID:      userID,
		connectedAt: time.Now(),
		limiter:     rate.NewLimiter(rate.Limit(10), 20),
		subs:        make(map[string]subscription),
	}
}

func (c *Client) wants(evt models.ChangeEvent) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.subs {
		if s.matches(evt) {
			return true
		}
	}
	return false
}

// ReadPump handles subscription requests until the connection fails.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Msg("realtime read error")
			}
			return
		}
		if !c.limiter.Allow() {
			c.sendError("rate_limited", "Too many requests")
			continue
		}
		c.handleMessage(message)
	}
}

// WritePump writes queued events and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.quit:
			// The hub dropped this client
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	var wsMsg models.WSMessage
	if err := json.Unmarshal(data, &wsMsg); err != nil {
		c.sendError("bad_request", "Invalid message format")
		return
	}

	raw, _ := json.Marshal(wsMsg.Payload)
	var req models.WSSubscribePayload
	if err := json.Unmarshal(raw, &req); err != nil {
		c.sendError("bad_request", "Invalid subscription payload")
		return
	}

	switch wsMsg.Event {
	case models.EventSubscribe:
		c.subscribe(req)
	case models.EventUnsubscribe:
		c.unsubscribe(req)
	default:
		c.sendError("bad_request", "Unknown event type")
	}
}

func (c *Client) subscribe(req models.WSSubscribePayload) {
	s, err := parseSubscription(req)
	if err != nil {
		c.sendError("bad_request", err.Error())
		return
	}

	c.mu.Lock()
	if _, exists := c.subs[s.key()]; !exists && len(c.subs) >= maxSubscriptions {
		c.mu.Unlock()
		c.sendError("limit", "Too many subscriptions")
		return
	}
	c.subs[s.key()] = s
	c.mu.Unlock()

	c.sendJSON(models.WSMessage{Event: models.EventSubscribed, Payload: req})
}

func (c *Client) unsubscribe(req models.WSSubscribePayload) {
	s, err := parseSubscription(req)
	if err != nil {
		c.sendError("bad_request", err.Error())
		return
	}
	c.mu.Lock()
	delete(c.subs, s.key())
	c.mu.Unlock()
}

func (c *Client) sendError(code, message string) {
	c.sendJSON(models.WSMessage{
		Event:   models.EventError,
		Payload: models.WSErrorPayload{Message: message, Code: code},
	})
}

// sendJSON queues a reply, dropping it when the buffer is full.
func (c *Client) sendJSON(msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
