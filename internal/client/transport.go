// Package client implements the client half of the chat synchronization
// protocol: the transport abstraction with its two concrete implementations
// (socket relay and realtime-database fallback), the reconciliation layer
// that turns either transport's stream into the rendered message and typing
// lists, and the local profile and message-cache stores.
package client

import (
	"context"
	"errors"

	"github.com/classpage/backend/internal/event"
)

// ErrNotConnected is returned by Send while the transport is not connected.
// Sends are never queued; the caller keeps the composed text and retries
// manually once the transport reports Connected again.
var ErrNotConnected = errors.New("client: transport not connected")

// State is the connection state surfaced to the UI. The realtime-database
// transport reports Connected for its whole lifetime once subscribed; its
// SDK-style reconnection is invisible to callers.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Update is one delivery from a transport. Exactly one field is set: Event
// for the relay's discrete event stream, Snapshot for the realtime-database
// transport's full-list replacements (and the relay's initial history seed).
type Update struct {
	Event    *event.Event
	Snapshot []event.Event
}

// Transport is the uniform interface both transports implement. Calling code
// never distinguishes which one is active after selection.
type Transport interface {
	// Connect starts the transport. It returns once the background
	// machinery is running; connection progress is visible via State.
	Connect(ctx context.Context) error
	// Send delivers one event, or fails immediately with ErrNotConnected
	// (or a transport error). Failed sends are never retried internally.
	Send(ev event.Event) error
	// Updates streams deliveries until the transport is closed.
	Updates() <-chan Update
	// State reports the current connection state.
	State() State
	// Close tears the transport down and closes the Updates channel.
	Close() error
}
