package client

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/classpage/backend/internal/event"
	"github.com/classpage/backend/internal/models"
)

// connClosingListener tracks every accepted connection and closes them all
// when the listener closes. httptest.Server.Close stops tracking hijacked
// (websocket) connections, so without this the echo server would leave them
// open and "closing the server" would never disconnect the client.
type connClosingListener struct {
	net.Listener

	mu    sync.Mutex
	conns []net.Conn
}

func (l *connClosingListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err == nil {
		l.mu.Lock()
		l.conns = append(l.conns, c)
		l.mu.Unlock()
	}
	return c, err
}

func (l *connClosingListener) Close() error {
	err := l.Listener.Close()
	l.mu.Lock()
	for _, c := range l.conns {
		c.Close()
	}
	l.conns = nil
	l.mu.Unlock()
	return err
}

// echoChatServer serves the history side-channel and a websocket endpoint
// that echoes every frame back to its sender, like the relay does for a
// single connected client.
func echoChatServer(t *testing.T, history []models.ChatMessage) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat/messages", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(history)
	})
	mux.HandleFunc("/ws/chat", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	})

	srv := httptest.NewUnstartedServer(mux)
	srv.Listener = &connClosingListener{Listener: srv.Listener}
	srv.Start()
	return srv
}

func waitConnected(t *testing.T, tr Transport) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if tr.State() == Connected {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("transport never reached connected state")
}

func nextUpdate(t *testing.T, tr Transport) Update {
	t.Helper()
	select {
	case u := <-tr.Updates():
		return u
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for update")
		return Update{}
	}
}

func TestRelayTransportRoundTrip(t *testing.T) {
	history := []models.ChatMessage{
		{ExternalID: "old-1", Name: "Mia", Text: "earlier", Timestamp: time.UnixMilli(1)},
	}
	srv := echoChatServer(t, history)
	defer srv.Close()

	cfg := RelayConfig{
		URL:        "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat",
		HistoryURL: srv.URL + "/api/chat/messages",
	}
	tr := NewRelayTransport(cfg, zerolog.Nop())
	defer tr.Close()

	if err := tr.Send(event.NewMessage("Mia", "", "too early")); err != ErrNotConnected {
		t.Fatalf("send before connect = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := tr.Connect(ctx); err != nil {
		t.Fatalf("Connect error: %v", err)
	}

	// History arrives first, as a snapshot.
	u := nextUpdate(t, tr)
	if u.Snapshot == nil || len(u.Snapshot) != 1 || u.Snapshot[0].ID != "old-1" {
		t.Fatalf("first update = %+v, want seeded history snapshot", u)
	}

	waitConnected(t, tr)

	sent := event.NewMessage("Mia", "", "hello")
	if err := tr.Send(sent); err != nil {
		t.Fatalf("Send error: %v", err)
	}

	u = nextUpdate(t, tr)
	if u.Event == nil {
		t.Fatalf("expected event update, got %+v", u)
	}
	if u.Event.ID != sent.ID || u.Event.Text != "hello" || u.Event.Name != "Mia" {
		t.Fatalf("echoed event = %+v, want the sent message", u.Event)
	}
}

func TestRelayTransportTypingRoundTrip(t *testing.T) {
	srv := echoChatServer(t, nil)
	defer srv.Close()

	tr := NewRelayTransport(RelayConfig{
		URL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat",
	}, zerolog.Nop())
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr.Connect(ctx)
	waitConnected(t, tr)

	if err := tr.Send(event.NewTyping("Mia", "", true)); err != nil {
		t.Fatalf("Send error: %v", err)
	}

	u := nextUpdate(t, tr)
	if u.Event == nil || u.Event.Kind != event.KindTypingStart {
		t.Fatalf("update = %+v, want typing-start", u)
	}
}

func TestRelayTransportStopsReconnectingWithoutIdentity(t *testing.T) {
	srv := echoChatServer(t, nil)

	identity := false
	tr := NewRelayTransport(RelayConfig{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat",
		ReconnectDelay: 10 * time.Millisecond,
		Identity:       func() bool { return identity },
	}, zerolog.Nop())
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr.Connect(ctx)
	waitConnected(t, tr)

	// Kill the server; with no identity set, the transport must settle into
	// disconnected instead of retrying forever.
	srv.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if tr.State() == Disconnected {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if tr.State() != Disconnected {
		t.Fatalf("state = %v, want disconnected", tr.State())
	}

	// The updates channel closes once the loop gives up.
	select {
	case _, ok := <-tr.Updates():
		if ok {
			// Drain any residual frame; channel must close shortly after.
			select {
			case _, ok2 := <-tr.Updates():
				if ok2 {
					t.Fatalf("updates channel still delivering after shutdown")
				}
			case <-time.After(2 * time.Second):
				t.Fatalf("updates channel never closed")
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("updates channel never closed")
	}
}
