// Package event defines the chat event types exchanged over both transports
// and the JSON wire codec for the relay socket. Frames are validated at the
// transport boundary: anything that does not decode into one of the known
// kinds is rejected rather than patched up.
package event

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the three chat event types. The wire values are fixed
// by the browser clients already in the field.
type Kind string

const (
	KindMessage     Kind = "message"
	KindTypingStart Kind = "typing"
	KindTypingStop  Kind = "stopTyping"
)

// Ephemeral reports whether events of this kind are transit-only and must
// never be persisted.
func (k Kind) Ephemeral() bool {
	return k == KindTypingStart || k == KindTypingStop
}

// Event is the unit exchanged over either transport.
//
// ID is the sole de-duplication key; once assigned it never changes. Name and
// PhotoURL are snapshots of the sender's identity at send time, not stable
// user identifiers. SoftDeleted is local view state and is never serialized.
type Event struct {
	Kind        Kind
	ID          string
	Name        string
	PhotoURL    string
	Text        string
	Timestamp   time.Time
	SoftDeleted bool
}

// NewID returns a fresh event identifier.
func NewID() string {
	return uuid.NewString()
}

// NewMessage builds a message event with an ID and local timestamp assigned.
// The relay server normalizes the timestamp at persistence time.
func NewMessage(name, photoURL, text string) Event {
	return Event{
		Kind:      KindMessage,
		ID:        NewID(),
		Name:      name,
		PhotoURL:  photoURL,
		Text:      text,
		Timestamp: time.Now(),
	}
}

// NewTyping builds a typing-start or typing-stop event for the given sender.
func NewTyping(name, photoURL string, typing bool) Event {
	kind := KindTypingStop
	if typing {
		kind = KindTypingStart
	}
	return Event{Kind: kind, Name: name, PhotoURL: photoURL}
}

// frame is the JSON shape of a single relay socket frame. Timestamp is kept
// raw because senders emit either an RFC 3339 string or unix milliseconds.
type frame struct {
	Type      string          `json:"type,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	PhotoURL  string          `json:"photoUrl"`
	Text      string          `json:"text,omitempty"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// Parse decodes a raw socket frame into an Event. A missing "type" field is
// treated as "message" for legacy senders; any other unknown type, non-JSON
// input, or frame without a sender name is rejected.
func Parse(data []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Event{}, fmt.Errorf("event: failed to parse frame: %w", err)
	}

	kind := Kind(f.Type)
	if f.Type == "" {
		kind = KindMessage
	}
	switch kind {
	case KindMessage, KindTypingStart, KindTypingStop:
	default:
		return Event{}, fmt.Errorf("event: unknown type %q", f.Type)
	}

	if f.Name == "" {
		return Event{}, fmt.Errorf("event: missing sender name")
	}

	ev := Event{
		Kind:     kind,
		ID:       f.ID,
		Name:     f.Name,
		PhotoURL: f.PhotoURL,
		Text:     f.Text,
	}

	if len(f.Timestamp) > 0 {
		ts, err := parseTimestamp(f.Timestamp)
		if err != nil {
			return Event{}, err
		}
		ev.Timestamp = ts
	}

	return ev, nil
}

// Marshal encodes an Event as a relay socket frame. Ephemeral events carry no
// id or timestamp; message timestamps are emitted as RFC 3339 strings.
func (e Event) Marshal() ([]byte, error) {
	f := frame{
		Type:     string(e.Kind),
		Name:     e.Name,
		PhotoURL: e.PhotoURL,
	}
	if e.Kind == KindMessage {
		f.ID = e.ID
		f.Text = e.Text
		if !e.Timestamp.IsZero() {
			raw, err := json.Marshal(e.Timestamp.UTC().Format(time.RFC3339Nano))
			if err != nil {
				return nil, fmt.Errorf("event: failed to marshal timestamp: %w", err)
			}
			f.Timestamp = raw
		}
	}

	out, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("event: failed to marshal frame: %w", err)
	}
	return out, nil
}

// parseTimestamp accepts unix milliseconds (number) or RFC 3339 (string).
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("event: bad timestamp: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("event: bad timestamp %q: %w", s, err)
		}
		return ts, nil
	}

	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("event: bad timestamp %s: %w", raw, err)
	}
	return time.UnixMilli(ms), nil
}
