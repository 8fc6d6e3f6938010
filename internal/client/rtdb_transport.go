package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/classpage/backend/internal/event"
)

// RTDBConfig configures the realtime-database fallback transport, an adapter
// over the Firebase Realtime Database REST protocol.
type RTDBConfig struct {
	// BaseURL is the database root, e.g. https://classpage.firebaseio.com.
	BaseURL string
	// Path is the collection messages are appended under. Default "messages".
	Path string
	// RetryDelay paces stream re-subscription. Invisible to callers; the
	// transport reports Connected throughout, matching the hosted SDK's
	// transparent reconnection.
	RetryDelay time.Duration
	// HTTPClient is used for writes and the event stream. Nil means
	// http.DefaultClient.
	HTTPClient *http.Client
}

// rtdbValue is the stored child shape: {name, photoUrl, text, timestamp}
// keyed by an auto-generated child id. Timestamp is server-assigned millis.
type rtdbValue struct {
	Name      string `json:"name"`
	PhotoURL  string `json:"photoUrl"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// RTDBTransport implements Transport over the hosted realtime database. The
// service pushes the full collection on every change; the adapter keeps a
// local mirror, sorts it by server timestamp, and hands the whole ordered
// list to the timeline's snapshot path. Typing indicators are not carried
// over this transport.
type RTDBTransport struct {
	cfg RTDBConfig
	log zerolog.Logger

	state   atomic.Int32
	updates chan Update
	done    chan struct{}

	mu        sync.Mutex
	nodes     map[string]rtdbValue
	closeOnce sync.Once
}

// NewRTDBTransport creates the fallback transport. Call Connect to start it.
func NewRTDBTransport(cfg RTDBConfig, log zerolog.Logger) *RTDBTransport {
	if cfg.Path == "" {
		cfg.Path = "messages"
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 3 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &RTDBTransport{
		cfg:     cfg,
		log:     log,
		updates: make(chan Update, 8),
		done:    make(chan struct{}),
		nodes:   make(map[string]rtdbValue),
	}
}

// Connect starts the subscription loop.
func (t *RTDBTransport) Connect(ctx context.Context) error {
	go t.run(ctx)
	return nil
}

// Updates returns the snapshot stream.
func (t *RTDBTransport) Updates() <-chan Update {
	return t.updates
}

// State reports Connected once subscribed; this transport exposes no
// meaningful disconnected state to the UI.
func (t *RTDBTransport) State() State {
	return State(t.state.Load())
}

// Send appends a message as a new child node. The timestamp is written as a
// server-value placeholder so ordering is authoritative even with skewed
// client clocks. Typing events are silently not supported here.
func (t *RTDBTransport) Send(ev event.Event) error {
	if ev.Kind != event.KindMessage {
		return nil
	}

	body, err := json.Marshal(map[string]interface{}{
		"name":      ev.Name,
		"photoUrl":  ev.PhotoURL,
		"text":      ev.Text,
		"timestamp": map[string]string{".sv": "timestamp"},
	})
	if err != nil {
		return err
	}

	resp, err := t.cfg.HTTPClient.Post(t.collectionURL(), "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("client: rtdb write failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("client: rtdb write failed: status %d", resp.StatusCode)
	}
	return nil
}

// Close stops the transport.
func (t *RTDBTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
	})
	return nil
}

func (t *RTDBTransport) collectionURL() string {
	return fmt.Sprintf("%s/%s.json", strings.TrimSuffix(t.cfg.BaseURL, "/"), t.cfg.Path)
}

func (t *RTDBTransport) run(ctx context.Context) {
	defer close(t.updates)
	defer t.state.Store(int32(Disconnected))

	for {
		if err := t.stream(ctx); err != nil && !t.stopped(ctx) {
			t.log.Warn().Err(err).Msg("rtdb stream interrupted, resubscribing")
		}
		if t.stopped(ctx) {
			return
		}

		timer := time.NewTimer(t.cfg.RetryDelay)
		select {
		case <-timer.C:
		case <-t.done:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// stream holds one SSE subscription open, applying put/patch events to the
// local mirror and emitting a sorted snapshot after each change.
func (t *RTDBTransport) stream(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.collectionURL(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream status %d", resp.StatusCode)
	}

	// Subscribed: from the UI's point of view this transport is connected
	// for good.
	t.state.Store(int32(Connected))

	reader := bufio.NewReader(resp.Body)
	for {
		ev, err := readSSE(reader)
		if err != nil {
			return err
		}

		changed, err := t.apply(ev)
		if err != nil {
			t.log.Warn().Err(err).Str("event", ev.name).Msg("dropping malformed stream event")
			continue
		}
		if !changed {
			continue
		}

		select {
		case t.updates <- Update{Snapshot: t.snapshot()}:
		case <-t.done:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// sseEvent is one server-sent event: an event name and its data payload.
type sseEvent struct {
	name string
	data string
}

// readSSE reads one event from the stream. Firebase sends "put", "patch",
// "keep-alive", "cancel" and "auth_revoked" events.
func readSSE(r *bufio.Reader) (sseEvent, error) {
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return ev, err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if ev.name != "" || ev.data != "" {
				return ev, nil
			}
		case strings.HasPrefix(line, "event:"):
			ev.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if ev.data != "" {
				ev.data += "\n"
			}
			ev.data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

// streamPayload is the data shape of put and patch events.
type streamPayload struct {
	Path string          `json:"path"`
	Data json.RawMessage `json:"data"`
}

// apply folds one stream event into the local mirror. It reports whether the
// mirror changed.
func (t *RTDBTransport) apply(ev sseEvent) (bool, error) {
	switch ev.name {
	case "put", "patch":
	case "keep-alive":
		return false, nil
	case "cancel", "auth_revoked":
		return false, fmt.Errorf("stream cancelled by server: %s", ev.name)
	default:
		return false, nil
	}

	var payload streamPayload
	if err := json.Unmarshal([]byte(ev.data), &payload); err != nil {
		return false, fmt.Errorf("bad stream payload: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if payload.Path == "/" {
		if ev.name == "put" {
			t.nodes = make(map[string]rtdbValue)
		}
		if string(payload.Data) == "null" {
			return true, nil
		}
		var children map[string]rtdbValue
		if err := json.Unmarshal(payload.Data, &children); err != nil {
			return false, fmt.Errorf("bad collection payload: %w", err)
		}
		for key, val := range children {
			t.nodes[key] = val
		}
		return true, nil
	}

	// Single-child update: path is "/<key>".
	key := strings.TrimPrefix(payload.Path, "/")
	if strings.Contains(key, "/") {
		// Partial child update; not produced for append-only collections.
		return false, fmt.Errorf("unsupported nested path %q", payload.Path)
	}

	if string(payload.Data) == "null" {
		delete(t.nodes, key)
		return true, nil
	}

	var val rtdbValue
	if err := json.Unmarshal(payload.Data, &val); err != nil {
		return false, fmt.Errorf("bad child payload: %w", err)
	}
	t.nodes[key] = val
	return true, nil
}

// snapshot renders the mirror as an ordered event list, sorted by the
// server-assigned timestamp with the child key as tiebreaker.
func (t *RTDBTransport) snapshot() []event.Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	type keyed struct {
		key string
		val rtdbValue
	}
	all := make([]keyed, 0, len(t.nodes))
	for key, val := range t.nodes {
		all = append(all, keyed{key, val})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].val.Timestamp != all[j].val.Timestamp {
			return all[i].val.Timestamp < all[j].val.Timestamp
		}
		return all[i].key < all[j].key
	})

	events := make([]event.Event, len(all))
	for i, item := range all {
		events[i] = event.Event{
			Kind:      event.KindMessage,
			ID:        item.key,
			Name:      item.val.Name,
			PhotoURL:  item.val.PhotoURL,
			Text:      item.val.Text,
			Timestamp: time.UnixMilli(item.val.Timestamp),
		}
	}
	return events
}

func (t *RTDBTransport) stopped(ctx context.Context) bool {
	select {
	case <-t.done:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
