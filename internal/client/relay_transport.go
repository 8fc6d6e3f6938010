package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/classpage/backend/internal/event"
	"github.com/classpage/backend/internal/models"
)

// DefaultReconnectDelay is the fixed delay between reconnection attempts.
// There is deliberately no backoff or jitter.
const DefaultReconnectDelay = 3 * time.Second

// RelayConfig configures the relay transport's client half.
type RelayConfig struct {
	// URL is the websocket endpoint, e.g. ws://host:8080/ws/chat.
	URL string
	// HistoryURL is the HTTP side-channel used to seed history on startup,
	// e.g. http://host:8080/api/chat/messages.
	HistoryURL   string
	HistoryLimit int
	// ReconnectDelay overrides DefaultReconnectDelay when positive.
	ReconnectDelay time.Duration
	// Identity reports whether a sender identity is still set. Reconnection
	// stops once it returns false. Nil means always set.
	Identity func() bool
	// HTTPClient is used for the history request. Nil means
	// http.DefaultClient.
	HTTPClient *http.Client
}

// RelayTransport is the client half of the socket relay: one connection per
// session, seeded from the HTTP history side-channel, reconnecting forever
// on a fixed delay while an identity is set.
type RelayTransport struct {
	cfg RelayConfig
	log zerolog.Logger

	state   atomic.Int32
	updates chan Update
	done    chan struct{}

	mu        sync.Mutex
	conn      *websocket.Conn
	closeOnce sync.Once
}

// NewRelayTransport creates a relay transport. Call Connect to start it.
func NewRelayTransport(cfg RelayConfig, log zerolog.Logger) *RelayTransport {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &RelayTransport{
		cfg:     cfg,
		log:     log,
		updates: make(chan Update, 64),
		done:    make(chan struct{}),
	}
}

// Connect starts the connection loop in the background.
func (t *RelayTransport) Connect(ctx context.Context) error {
	go t.run(ctx)
	return nil
}

// Updates returns the delivery stream. The channel is closed when the
// transport stops.
func (t *RelayTransport) Updates() <-chan Update {
	return t.updates
}

// State reports the current connection state.
func (t *RelayTransport) State() State {
	return State(t.state.Load())
}

// Send transmits one event over the socket. It fails with ErrNotConnected
// while the connection is down; the event is never queued.
func (t *RelayTransport) Send(ev event.Event) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil || t.State() != Connected {
		return ErrNotConnected
	}

	data, err := ev.Marshal()
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return ErrNotConnected
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("client: send failed: %w", err)
	}
	return nil
}

// Close stops the transport.
func (t *RelayTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.mu.Lock()
		if t.conn != nil {
			t.conn.Close()
		}
		t.mu.Unlock()
	})
	return nil
}

func (t *RelayTransport) run(ctx context.Context) {
	defer close(t.updates)
	defer t.state.Store(int32(Disconnected))

	// History seeds the view once per session, before the socket stream.
	t.seedHistory(ctx)

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if !t.wait(ctx, t.cfg.ReconnectDelay) {
				return
			}
			if t.cfg.Identity != nil && !t.cfg.Identity() {
				// No sender identity anymore; stay disconnected.
				return
			}
		}

		t.state.Store(int32(Connecting))
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.cfg.URL, nil)
		if err != nil {
			t.state.Store(int32(Disconnected))
			t.log.Warn().Err(err).Msg("relay dial failed")
			if t.stopped(ctx) {
				return
			}
			continue
		}

		t.mu.Lock()
		t.conn = conn
		t.mu.Unlock()
		t.state.Store(int32(Connected))

		t.readLoop(ctx, conn)

		t.mu.Lock()
		t.conn = nil
		t.mu.Unlock()
		conn.Close()
		t.state.Store(int32(Disconnected))

		if t.stopped(ctx) {
			return
		}
	}
}

// readLoop parses inbound frames and delivers them until the socket errors.
// Malformed frames are dropped and logged; they never reach the timeline.
func (t *RelayTransport) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !t.stopped(ctx) {
				t.log.Warn().Err(err).Msg("relay connection lost")
			}
			return
		}

		ev, err := event.Parse(data)
		if err != nil {
			t.log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}

		select {
		case t.updates <- Update{Event: &ev}:
		case <-t.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// seedHistory fetches persisted history from the HTTP side-channel and
// delivers it as a snapshot. Failures are logged; the socket stream still
// starts with an empty view.
func (t *RelayTransport) seedHistory(ctx context.Context) {
	if t.cfg.HistoryURL == "" {
		return
	}

	url := fmt.Sprintf("%s?limit=%d", t.cfg.HistoryURL, t.cfg.HistoryLimit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.log.Warn().Err(err).Msg("history request build failed")
		return
	}

	resp, err := t.cfg.HTTPClient.Do(req)
	if err != nil {
		t.log.Warn().Err(err).Msg("history fetch failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.log.Warn().Int("status", resp.StatusCode).Msg("history fetch failed")
		return
	}

	var rows []models.ChatMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		t.log.Warn().Err(err).Msg("history decode failed")
		return
	}

	snapshot := make([]event.Event, 0, len(rows))
	for _, m := range rows {
		if m.IsDeleted {
			continue
		}
		snapshot = append(snapshot, event.Event{
			Kind:      event.KindMessage,
			ID:        m.ExternalID,
			Name:      m.Name,
			PhotoURL:  m.PhotoURL,
			Text:      m.Text,
			Timestamp: m.Timestamp,
		})
	}

	select {
	case t.updates <- Update{Snapshot: snapshot}:
	case <-t.done:
	case <-ctx.Done():
	}
}

// wait sleeps for d, returning false if the transport stopped meanwhile.
func (t *RelayTransport) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-t.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (t *RelayTransport) stopped(ctx context.Context) bool {
	select {
	case <-t.done:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
