package relay

import "sync"

// Conn is the narrow send surface the registry needs from a connection. Send
// must not block; it reports false when the connection cannot take the frame
// (its outbound buffer is full or it is closing).
type Conn interface {
	Send(data []byte) bool
}

// Registry tracks the set of open connections for one relay instance. It is
// constructed per server, never package-global, so it can be exercised in
// tests without a real websocket.
type Registry struct {
	mu    sync.Mutex
	conns map[Conn]struct{}
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[Conn]struct{})}
}

// Add registers a connection.
func (r *Registry) Add(c Conn) {
	r.mu.Lock()
	r.conns[c] = struct{}{}
	r.mu.Unlock()
}

// Remove unregisters a connection. Removing an unknown connection is a no-op.
func (r *Registry) Remove(c Conn) {
	r.mu.Lock()
	delete(r.conns, c)
	r.mu.Unlock()
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Broadcast sends data to every registered connection except those in
// exclude. Connections that cannot take the frame are dropped from the
// registry; the slow reader loses its connection, not the whole relay.
// Returns the number of connections the frame was delivered to.
func (r *Registry) Broadcast(data []byte, exclude map[Conn]struct{}) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	delivered := 0
	for c := range r.conns {
		if _, skip := exclude[c]; skip {
			continue
		}
		if c.Send(data) {
			delivered++
		} else {
			delete(r.conns, c)
		}
	}
	return delivered
}
