package livepeer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Lifecycle event types delivered by the provider.
const (
	EventStreamStarted  = "stream.started"
	EventStreamIdle     = "stream.idle"
	EventStreamEnded    = "stream.ended"
	EventRecordingReady = "recording.ready"
)

var (
	ErrMissingEventType = errors.New("missing event")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
)

// Event is the normalized form of every envelope shape the provider has sent.
type Event struct {
	ID              string
	Type            string
	PlaybackID      string
	RecordingURL    string
	SessionDuration *float64
	OccurredAt      *time.Time
	// Variant names the envelope shape the recording fields came from.
	Variant string
}

// flexString accepts a JSON string and treats every other JSON type as absent.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(strings.TrimSpace(s))
	}
	return nil
}

// flexNumber accepts a JSON number or numeric string.
type flexNumber struct {
	Value float64
	Set   bool
}

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexNumber{Value: n, Set: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*f = flexNumber{Value: n, Set: true}
		}
	}
	return nil
}

// flexTime accepts epoch milliseconds or an RFC 3339 string.
type flexTime struct {
	Time *time.Time
}

func (f *flexTime) UnmarshalJSON(b []byte) error {
	var ms float64
	if err := json.Unmarshal(b, &ms); err == nil && ms > 0 {
		t := time.UnixMilli(int64(ms)).UTC()
		f.Time = &t
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			t = t.UTC()
			f.Time = &t
		}
	}
	return nil
}

// flexObject decodes T when the value is a JSON object and treats anything
// else as absent.
type flexObject[T any] struct {
	V *T
}

func (f *flexObject[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	f.V = &v
	return nil
}

type streamObject struct {
	PlaybackID flexString `json:"playbackId"`
}

// sessionObject covers both a recording session and a payload that carries
// session fields directly.
type sessionObject struct {
	PlaybackID                 flexString               `json:"playbackId"`
	RecordingURL               flexString               `json:"recordingUrl"`
	Mp4URL                     flexString               `json:"mp4Url"`
	TranscodedSegmentsDuration flexNumber               `json:"transcodedSegmentsDuration"`
	SourceSegmentsDuration     flexNumber               `json:"sourceSegmentsDuration"`
	Stream                     flexObject[streamObject] `json:"stream"`
}

type payloadObject struct {
	sessionObject
	Session flexObject[sessionObject] `json:"session"`
}

type envelope struct {
	ID         flexString                `json:"id"`
	Event      flexString                `json:"event"`
	Type       flexString                `json:"type"`
	PlaybackID flexString                `json:"playbackId"`
	CreatedAt  flexTime                  `json:"createdAt"`
	Timestamp  flexTime                  `json:"timestamp"`
	Stream     flexObject[streamObject]  `json:"stream"`
	Session    flexObject[sessionObject] `json:"session"`
	Payload    flexObject[payloadObject] `json:"payload"`
}

// sessionShape is one place a recording session has been observed.
type sessionShape struct {
	name string
	pick func(*envelope) *sessionObject
}

var (
	shapePayloadSession = sessionShape{"payload.session", func(e *envelope) *sessionObject {
		if e.Payload.V == nil {
			return nil
		}
		return e.Payload.V.Session.V
	}}
	shapeSession = sessionShape{"session", func(e *envelope) *sessionObject { return e.Session.V }}
	shapePayload = sessionShape{"payload", func(e *envelope) *sessionObject {
		if e.Payload.V == nil {
			return nil
		}
		return &e.Payload.V.sessionObject
	}}
	shapeTopLevel = sessionShape{"top-level", func(e *envelope) *sessionObject {
		return &sessionObject{PlaybackID: e.PlaybackID, Stream: e.Stream}
	}}
)

// Probe orders per field, most authoritative first.
var (
	playbackOrder  = []sessionShape{shapeTopLevel, shapePayload, shapePayloadSession, shapeSession}
	recordingOrder = []sessionShape{shapePayload, shapePayloadSession, shapeSession}
	durationOrder  = []sessionShape{shapePayloadSession, shapeSession, shapePayload}
)

func probeString(env *envelope, order []sessionShape, field func(*sessionObject) flexString) (string, string) {
	for _, shape := range order {
		if s := shape.pick(env); s != nil {
			if v := field(s); v != "" {
				return string(v), shape.name
			}
		}
	}
	return "", ""
}

func probeNumber(env *envelope, order []sessionShape, field func(*sessionObject) flexNumber) *float64 {
	for _, shape := range order {
		if s := shape.pick(env); s != nil {
			if v := field(s); v.Set {
				return &v.Value
			}
		}
	}
	return nil
}

// ParseEvent decodes any known envelope shape into an Event. Only a body that
// is not a JSON object, or one without an event type, is an error.
func ParseEvent(body []byte) (Event, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Event{}, ErrInvalidPayload
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	evt := Event{
		ID:   string(env.ID),
		Type: string(env.Event),
	}
	if evt.Type == "" {
		evt.Type = string(env.Type)
	}
	if evt.Type == "" {
		return Event{}, ErrMissingEventType
	}

	evt.OccurredAt = env.CreatedAt.Time
	if evt.OccurredAt == nil {
		evt.OccurredAt = env.Timestamp.Time
	}

	var playbackShape string
	evt.PlaybackID, playbackShape = probeString(&env, playbackOrder, func(s *sessionObject) flexString {
		if s.Stream.V != nil && s.Stream.V.PlaybackID != "" {
			return s.Stream.V.PlaybackID
		}
		return s.PlaybackID
	})

	var recordingShape string
	evt.RecordingURL, recordingShape = probeString(&env, recordingOrder, func(s *sessionObject) flexString { return s.RecordingURL })
	if evt.RecordingURL == "" {
		evt.RecordingURL, recordingShape = probeString(&env, recordingOrder, func(s *sessionObject) flexString { return s.Mp4URL })
	}

	evt.SessionDuration = probeNumber(&env, durationOrder, func(s *sessionObject) flexNumber { return s.TranscodedSegmentsDuration })
	if evt.SessionDuration == nil {
		evt.SessionDuration = probeNumber(&env, durationOrder, func(s *sessionObject) flexNumber { return s.SourceSegmentsDuration })
	}

	evt.Variant = recordingShape
	if evt.Variant == "" {
		evt.Variant = playbackShape
	}

	return evt, nil
}

// RecordingURL builds the well-known HLS recording location for a playback id.
func RecordingURL(playbackBase, playbackID string) string {
	return strings.TrimRight(playbackBase, "/") + "/recordings/" + playbackID + "/index.m3u8"
}
