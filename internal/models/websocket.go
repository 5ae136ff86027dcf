package models

// Realtime websocket event types
const (
	EventSubscribe   = "subscribe"
	EventUnsubscribe = "unsubscribe"
	EventSubscribed  = "subscribed"
	EventChange      = "change"
	EventError       = "error"
)

// Row change operations as reported by the database trigger
const (
	ChangeInsert = "INSERT"
	ChangeUpdate = "UPDATE"
	ChangeDelete = "DELETE"
)

type WSMessage struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// WSSubscribePayload selects rows of one table. Filter uses the
// "column=eq.value" form; empty means every row.
type WSSubscribePayload struct {
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

type WSErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ChangeEvent is a row change notification.
type ChangeEvent struct {
	Type      string         `json:"type"`
	Table     string         `json:"table"`
	Record    map[string]any `json:"record,omitempty"`
	OldRecord map[string]any `json:"old_record,omitempty"`
}
