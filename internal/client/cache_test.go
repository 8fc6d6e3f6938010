package client

import (
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/classpage/backend/internal/event"
)

// memStore is an in-memory Store. capacity, when positive, bounds the value
// size to simulate a storage quota.
type memStore struct {
	mu       sync.Mutex
	data     map[string]string
	capacity int
	deletes  int
}

func (s *memStore) Put(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capacity > 0 && len(value) > s.capacity {
		return fmt.Errorf("%w: %d bytes", ErrQuotaExceeded, len(value))
	}
	s.data[key] = value
	return nil
}

func (s *memStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	s.deletes++
	return nil
}

func manyMessages(n int) []event.Event {
	out := make([]event.Event, n)
	for i := range out {
		out[i] = msg(fmt.Sprintf("id-%03d", i), "Mia", fmt.Sprintf("message %d", i), int64(i))
	}
	return out
}

func TestSaveTailBoundsStoredMessages(t *testing.T) {
	store := &memStore{data: map[string]string{}}
	cache := NewMessageCache(store, zerolog.Nop())

	cache.SaveTail(manyMessages(100))

	got := cache.Load()
	if len(got) != DefaultCacheTail {
		t.Fatalf("stored tail = %d, want %d", len(got), DefaultCacheTail)
	}
	// The newest messages survive, oldest first.
	if got[0].Text != "message 80" || got[len(got)-1].Text != "message 99" {
		t.Fatalf("tail range wrong: first %q last %q", got[0].Text, got[len(got)-1].Text)
	}
}

func TestSaveTailQuotaFallback(t *testing.T) {
	// Capacity fits 5 cached messages but not 20.
	store := &memStore{data: map[string]string{}, capacity: 800}
	cache := NewMessageCache(store, zerolog.Nop())

	cache.SaveTail(manyMessages(50))

	if store.deletes == 0 {
		t.Fatalf("quota failure must clear stored chat data before retrying")
	}
	got := cache.Load()
	if len(got) != 5 {
		t.Fatalf("fallback tail = %d, want 5", len(got))
	}
	if got[len(got)-1].Text != "message 49" {
		t.Fatalf("fallback tail must keep the newest messages, last = %q", got[len(got)-1].Text)
	}
}

func TestSaveTailSwallowsPersistentQuotaFailure(t *testing.T) {
	// Nothing fits; both attempts fail and the failure is swallowed.
	store := &memStore{data: map[string]string{}, capacity: 1}
	cache := NewMessageCache(store, zerolog.Nop())

	cache.SaveTail(manyMessages(50))

	if got := cache.Load(); len(got) != 0 {
		t.Fatalf("store should hold nothing, got %d", len(got))
	}
}

func TestLoadMissingCache(t *testing.T) {
	store := &memStore{data: map[string]string{}}
	cache := NewMessageCache(store, zerolog.Nop())

	if got := cache.Load(); len(got) != 0 {
		t.Fatalf("empty store should load nothing, got %d", len(got))
	}
}
