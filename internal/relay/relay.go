// Package relay implements the server half of the socket transport: a
// connection registry, per-connection pumps, and the persist-then-broadcast
// event routing between them.
package relay

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/classpage/backend/config"
	"github.com/classpage/backend/internal/event"
	"github.com/classpage/backend/internal/metrics"
	"github.com/classpage/backend/internal/models"
)

// MessageStore is the persistence surface the relay needs.
type MessageStore interface {
	Create(message *models.ChatMessage) error
	HasRecentMessage(name, text string, window time.Duration) (bool, error)
}

// WelcomeMarker is the fast duplicate check for welcome messages, backed by
// Redis in production. A nil marker falls back to scanning recent rows.
type WelcomeMarker interface {
	MarkWelcomeSent(text string, window time.Duration) (bool, error)
}

// HistoryInvalidator drops cached history responses after a new message is
// persisted. Nil when Redis is unavailable.
type HistoryInvalidator interface {
	InvalidateHistory() error
}

// Relay routes inbound events: ephemeral typing events are rebroadcast to
// every open connection including the sender and never persisted; message
// events are normalized, persisted first, then broadcast. A persistence
// failure is logged and counted but does not block the broadcast.
type Relay struct {
	registry *Registry
	store    MessageStore
	marker   WelcomeMarker
	history  HistoryInvalidator
	cfg      config.ChatConfig
	log      zerolog.Logger

	// pipeline serializes persist+broadcast for stored events. Read pumps
	// run one goroutine per connection; without this lock two concurrent
	// senders could persist in one order and broadcast in the other, and
	// clients would render a different order than a history reload shows.
	pipeline sync.Mutex

	now func() time.Time
}

// New creates a relay. marker and history may be nil.
func New(store MessageStore, marker WelcomeMarker, history HistoryInvalidator, cfg config.ChatConfig, log zerolog.Logger) *Relay {
	return &Relay{
		registry: NewRegistry(),
		store:    store,
		marker:   marker,
		history:  history,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// Attach registers a connection and sends the welcome message if one has not
// gone out recently.
func (r *Relay) Attach(c Conn) {
	r.registry.Add(c)
	metrics.ConnectionsOpen.Set(float64(r.registry.Len()))
	r.welcome()
}

// Detach removes a connection. No other cleanup is needed; the relay keeps
// no per-connection state beyond registry membership.
func (r *Relay) Detach(c Conn) {
	r.registry.Remove(c)
	metrics.ConnectionsOpen.Set(float64(r.registry.Len()))
}

// HandleInbound processes one raw frame from a connection. Malformed frames
// and frames claiming the reserved welcome sender are dropped and logged;
// they never reach the other connections.
func (r *Relay) HandleInbound(sender Conn, data []byte) {
	ev, err := event.Parse(data)
	if err != nil {
		metrics.FramesDropped.WithLabelValues("malformed").Inc()
		r.log.Warn().Err(err).Msg("dropping malformed frame")
		return
	}

	if ev.Name == r.cfg.WelcomeName {
		metrics.FramesDropped.WithLabelValues("malformed").Inc()
		r.log.Warn().Str("name", ev.Name).Msg("dropping frame claiming reserved sender")
		return
	}

	if ev.Kind.Ephemeral() {
		r.broadcast(ev)
		return
	}

	// Normalize: the server owns ids and timestamps for anything it stores.
	if ev.ID == "" {
		ev.ID = event.NewID()
	}
	ev.Timestamp = r.now()

	r.pipeline.Lock()
	defer r.pipeline.Unlock()
	r.persist(&ev)
	r.broadcast(ev)
}

// persist stores a message event and folds the server-assigned timestamp
// back into it. Failures are logged and counted; the caller broadcasts
// regardless, favoring availability over durability on failure.
func (r *Relay) persist(ev *event.Event) {
	m := &models.ChatMessage{
		ExternalID: ev.ID,
		Name:       ev.Name,
		PhotoURL:   ev.PhotoURL,
		Text:       ev.Text,
	}
	if err := r.store.Create(m); err != nil {
		metrics.PersistFailures.Inc()
		r.log.Error().Err(err).Str("id", ev.ID).Msg("failed to persist message, broadcasting anyway")
		return
	}
	ev.Timestamp = m.Timestamp

	if r.history != nil {
		if err := r.history.InvalidateHistory(); err != nil {
			r.log.Warn().Err(err).Msg("failed to invalidate history cache")
		}
	}
}

// broadcast fans an event out to every open connection, sender included. The
// sender's own client suppresses the echo by event id.
func (r *Relay) broadcast(ev event.Event) {
	data, err := ev.Marshal()
	if err != nil {
		r.log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}
	delivered := r.registry.Broadcast(data, nil)
	metrics.ConnectionsOpen.Set(float64(r.registry.Len()))
	metrics.EventsBroadcast.WithLabelValues(string(ev.Kind)).Add(float64(delivered))
}

// welcome sends the reserved-sender welcome message unless an identical one
// went out within the dedup window. The check is best effort; an occasional
// duplicate under racing connects is tolerated.
func (r *Relay) welcome() {
	if r.cfg.WelcomeText == "" {
		return
	}

	fresh, err := r.welcomeIsFresh()
	if err != nil {
		// Same availability-favored policy as persist failures: a broken
		// duplicate check costs at worst an extra welcome, not silence.
		r.log.Warn().Err(err).Msg("welcome dedup check failed, sending anyway")
		fresh = true
	}
	if !fresh {
		return
	}

	ev := event.Event{
		Kind:      event.KindMessage,
		ID:        event.NewID(),
		Name:      r.cfg.WelcomeName,
		Text:      r.cfg.WelcomeText,
		Timestamp: r.now(),
	}
	r.pipeline.Lock()
	defer r.pipeline.Unlock()
	r.persist(&ev)
	r.broadcast(ev)
	metrics.WelcomesSent.Inc()
}

func (r *Relay) welcomeIsFresh() (bool, error) {
	if r.marker != nil {
		return r.marker.MarkWelcomeSent(r.cfg.WelcomeText, r.cfg.WelcomeWindow)
	}
	seen, err := r.store.HasRecentMessage(r.cfg.WelcomeName, r.cfg.WelcomeText, r.cfg.WelcomeWindow)
	if err != nil {
		return false, err
	}
	return !seen, nil
}
