package client

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/classpage/backend/internal/event"
)

// DefaultTypingWindow is how long a typing indicator survives without a
// fresh typing-start.
const DefaultTypingWindow = 3 * time.Second

// TypingState is one remote sender currently typing.
type TypingState struct {
	Name       string
	PhotoURL   string
	LastSeenAt time.Time
}

// TimelineConfig configures a Timeline.
type TimelineConfig struct {
	// SelfName is the local display name; typing echoes from it are ignored.
	SelfName string
	// TypingWindow overrides DefaultTypingWindow when positive.
	TypingWindow time.Duration
	// Cache, when set, receives the message tail after every list mutation.
	Cache *MessageCache
}

// Timeline is the reconciliation layer: the single place where incoming
// updates from whichever transport become the rendered message and typing
// lists. It de-duplicates by event id, which also suppresses the sender's
// own echoed broadcast, so there is no separate optimistic-pending state.
type Timeline struct {
	cfg TimelineConfig
	log zerolog.Logger

	mu       sync.Mutex
	messages []event.Event
	ids      map[string]struct{}
	deleted  map[string]struct{}
	typing   map[string]*typingEntry
	onChange func()
}

type typingEntry struct {
	state TypingState
	timer *time.Timer
}

// NewTimeline creates an empty timeline. When cfg.Cache is set, previously
// cached messages seed the list.
func NewTimeline(cfg TimelineConfig, log zerolog.Logger) *Timeline {
	if cfg.TypingWindow <= 0 {
		cfg.TypingWindow = DefaultTypingWindow
	}

	t := &Timeline{
		cfg:     cfg,
		log:     log,
		ids:     make(map[string]struct{}),
		deleted: make(map[string]struct{}),
		typing:  make(map[string]*typingEntry),
	}

	if cfg.Cache != nil {
		for _, ev := range cfg.Cache.Load() {
			if _, dup := t.ids[ev.ID]; dup {
				continue
			}
			t.messages = append(t.messages, ev)
			t.ids[ev.ID] = struct{}{}
		}
	}

	return t
}

// SetOnChange registers a callback invoked after every visible change. Used
// by the UI to re-render; may be nil.
func (t *Timeline) SetOnChange(fn func()) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// Apply folds one transport update into the view.
func (t *Timeline) Apply(u Update) {
	switch {
	case u.Snapshot != nil:
		t.replaceAll(u.Snapshot)
	case u.Event != nil:
		switch u.Event.Kind {
		case event.KindMessage:
			t.append(*u.Event)
		case event.KindTypingStart, event.KindTypingStop:
			t.applyTyping(*u.Event)
		}
	}
}

// append adds a message unless its id is already present. Duplicate delivery
// (sender echo, transport replay) is discarded here and nowhere else.
func (t *Timeline) append(ev event.Event) {
	t.mu.Lock()
	if _, dup := t.ids[ev.ID]; dup {
		t.mu.Unlock()
		return
	}
	if _, gone := t.deleted[ev.ID]; gone {
		t.mu.Unlock()
		return
	}
	t.messages = append(t.messages, ev)
	t.ids[ev.ID] = struct{}{}
	t.afterMutation()
}

// replaceAll swaps the whole list, used by the snapshot-push transport and
// the relay's history seed. The snapshot is sorted by timestamp so ordering
// stays authoritative; locally soft-deleted ids stay hidden.
func (t *Timeline) replaceAll(snapshot []event.Event) {
	sorted := make([]event.Event, len(snapshot))
	copy(sorted, snapshot)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	t.mu.Lock()
	t.messages = t.messages[:0]
	t.ids = make(map[string]struct{}, len(sorted))
	for _, ev := range sorted {
		if _, gone := t.deleted[ev.ID]; gone {
			continue
		}
		if _, dup := t.ids[ev.ID]; dup {
			continue
		}
		t.messages = append(t.messages, ev)
		t.ids[ev.ID] = struct{}{}
	}
	t.afterMutation()
}

// SoftDelete hides a message from this client's own view. It is never
// transmitted; every other client keeps rendering the message.
func (t *Timeline) SoftDelete(id string) {
	t.mu.Lock()
	if _, ok := t.ids[id]; !ok {
		t.mu.Unlock()
		return
	}
	delete(t.ids, id)
	t.deleted[id] = struct{}{}

	kept := t.messages[:0]
	for _, ev := range t.messages {
		if ev.ID != id {
			kept = append(kept, ev)
		}
	}
	t.messages = kept
	t.afterMutation()
}

// Messages returns the rendered message list, oldest first.
func (t *Timeline) Messages() []event.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]event.Event, len(t.messages))
	copy(out, t.messages)
	return out
}

// applyTyping updates the typing registry. typing-start inserts or renews
// the sender's entry and its expiry timer; typing-stop removes it
// immediately and cancels the timer.
func (t *Timeline) applyTyping(ev event.Event) {
	if ev.Name == "" || ev.Name == t.cfg.SelfName {
		return
	}

	t.mu.Lock()
	entry, ok := t.typing[ev.Name]

	if ev.Kind == event.KindTypingStop {
		if !ok {
			t.mu.Unlock()
			return
		}
		entry.timer.Stop()
		delete(t.typing, ev.Name)
		t.notify()
		return
	}

	now := time.Now()
	if ok {
		entry.state.LastSeenAt = now
		entry.state.PhotoURL = ev.PhotoURL
		entry.timer.Reset(t.cfg.TypingWindow)
		t.mu.Unlock()
		return
	}

	name := ev.Name
	t.typing[name] = &typingEntry{
		state: TypingState{Name: name, PhotoURL: ev.PhotoURL, LastSeenAt: now},
		timer: time.AfterFunc(t.cfg.TypingWindow, func() {
			t.expireTyping(name)
		}),
	}
	t.notify()
}

// expireTyping removes a sender whose window elapsed with no fresh
// typing-start. The timer may fire concurrently with a renewal; the entry is
// only removed if it really is stale.
func (t *Timeline) expireTyping(name string) {
	t.mu.Lock()
	entry, ok := t.typing[name]
	if !ok || time.Since(entry.state.LastSeenAt) < t.cfg.TypingWindow {
		t.mu.Unlock()
		return
	}
	delete(t.typing, name)
	t.notify()
}

// Typing returns the senders currently typing, sorted by name.
func (t *Timeline) Typing() []TypingState {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]TypingState, 0, len(t.typing))
	for _, entry := range t.typing {
		out = append(out, entry.state)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// afterMutation persists the tail and notifies, then unlocks. Caller holds
// the lock.
func (t *Timeline) afterMutation() {
	if t.cfg.Cache != nil {
		tail := make([]event.Event, len(t.messages))
		copy(tail, t.messages)
		defer t.cfg.Cache.SaveTail(tail)
	}
	t.notify()
}

// notify invokes the change callback and unlocks. Caller holds the lock.
func (t *Timeline) notify() {
	fn := t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}
