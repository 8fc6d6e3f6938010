package client

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/classpage/backend/internal/event"
)

const (
	messagesKey = "chat-messages"

	// DefaultCacheTail is how many of the newest messages are written to
	// durable storage after each list mutation.
	DefaultCacheTail = 20
	// fallbackCacheTail is the retry size after a quota failure.
	fallbackCacheTail = 5
)

// cachedMessage is the stored shape of one message.
type cachedMessage struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	PhotoURL  string    `json:"photoUrl"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageCache persists a bounded tail of the message list so a restarted
// client shows recent history immediately. It is best-effort caching, never
// the source of truth: every failure path leaves the in-memory list alone.
type MessageCache struct {
	store    Store
	tail     int
	fallback int
	log      zerolog.Logger
}

// NewMessageCache creates a cache with the default tail sizes.
func NewMessageCache(store Store, log zerolog.Logger) *MessageCache {
	return &MessageCache{
		store:    store,
		tail:     DefaultCacheTail,
		fallback: fallbackCacheTail,
		log:      log,
	}
}

// SaveTail writes the newest messages to durable storage. On a quota
// failure it clears previously stored chat data and retries with a much
// smaller tail; if that fails too the failure is logged and swallowed.
func (c *MessageCache) SaveTail(messages []event.Event) {
	if err := c.put(messages, c.tail); err == nil {
		return
	} else if !errors.Is(err, ErrQuotaExceeded) {
		c.log.Warn().Err(err).Msg("message cache write failed")
		return
	}

	if err := c.store.Delete(messagesKey); err != nil {
		c.log.Warn().Err(err).Msg("message cache clear failed")
		return
	}
	if err := c.put(messages, c.fallback); err != nil {
		c.log.Warn().Err(err).Msg("message cache retry failed")
	}
}

func (c *MessageCache) put(messages []event.Event, tail int) error {
	if len(messages) > tail {
		messages = messages[len(messages)-tail:]
	}

	cached := make([]cachedMessage, len(messages))
	for i, ev := range messages {
		cached[i] = cachedMessage{
			ID:        ev.ID,
			Name:      ev.Name,
			PhotoURL:  ev.PhotoURL,
			Text:      ev.Text,
			Timestamp: ev.Timestamp,
		}
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return err
	}
	return c.store.Put(messagesKey, string(data))
}

// Load returns the cached tail, oldest first. A missing or unreadable cache
// yields an empty list.
func (c *MessageCache) Load() []event.Event {
	raw, ok, err := c.store.Get(messagesKey)
	if err != nil || !ok {
		if err != nil {
			c.log.Warn().Err(err).Msg("message cache read failed")
		}
		return nil
	}

	var cached []cachedMessage
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		c.log.Warn().Err(err).Msg("message cache decode failed")
		return nil
	}

	events := make([]event.Event, len(cached))
	for i, m := range cached {
		events[i] = event.Event{
			Kind:      event.KindMessage,
			ID:        m.ID,
			Name:      m.Name,
			PhotoURL:  m.PhotoURL,
			Text:      m.Text,
			Timestamp: m.Timestamp,
		}
	}
	return events
}
