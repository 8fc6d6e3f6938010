package relay

import (
	"sync"
	"testing"
)

// fakeConn records frames sent to it. full simulates a backed-up connection.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	full   bool
}

func (f *fakeConn) Send(data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.frames = append(f.frames, data)
	return true
}

func (f *fakeConn) received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.frames))
	copy(out, f.frames)
	return out
}

func TestRegistryBroadcast(t *testing.T) {
	r := NewRegistry()
	a := &fakeConn{}
	b := &fakeConn{}
	r.Add(a)
	r.Add(b)

	if n := r.Broadcast([]byte("hi"), nil); n != 2 {
		t.Fatalf("delivered = %d, want 2", n)
	}
	if len(a.received()) != 1 || len(b.received()) != 1 {
		t.Fatalf("both connections should receive the frame")
	}
}

func TestRegistryBroadcastExclude(t *testing.T) {
	r := NewRegistry()
	a := &fakeConn{}
	b := &fakeConn{}
	r.Add(a)
	r.Add(b)

	n := r.Broadcast([]byte("hi"), map[Conn]struct{}{a: {}})
	if n != 1 {
		t.Fatalf("delivered = %d, want 1", n)
	}
	if len(a.received()) != 0 {
		t.Errorf("excluded connection received the frame")
	}
	if len(b.received()) != 1 {
		t.Errorf("non-excluded connection missed the frame")
	}
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	a := &fakeConn{}
	r.Add(a)
	r.Remove(a)
	// Removing twice must not panic.
	r.Remove(a)

	if n := r.Broadcast([]byte("hi"), nil); n != 0 {
		t.Fatalf("delivered = %d, want 0", n)
	}
	if r.Len() != 0 {
		t.Fatalf("len = %d, want 0", r.Len())
	}
}

func TestRegistryDropsBackedUpConnections(t *testing.T) {
	r := NewRegistry()
	slow := &fakeConn{full: true}
	ok := &fakeConn{}
	r.Add(slow)
	r.Add(ok)

	if n := r.Broadcast([]byte("hi"), nil); n != 1 {
		t.Fatalf("delivered = %d, want 1", n)
	}
	if r.Len() != 1 {
		t.Fatalf("backed-up connection should be dropped, len = %d", r.Len())
	}
}
