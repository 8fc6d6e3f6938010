package event

import (
	"strings"
	"testing"
	"time"
)

func TestParseMessage(t *testing.T) {
	data := []byte(`{"type":"message","id":"abc","name":"Mia","photoUrl":"data:image/png;base64,xx","text":"hello","timestamp":1700000000000}`)

	ev, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if ev.Kind != KindMessage {
		t.Errorf("kind = %q, want message", ev.Kind)
	}
	if ev.ID != "abc" || ev.Name != "Mia" || ev.Text != "hello" {
		t.Errorf("unexpected fields: %+v", ev)
	}
	if got := ev.Timestamp.UnixMilli(); got != 1700000000000 {
		t.Errorf("timestamp millis = %d, want 1700000000000", got)
	}
}

func TestParseLegacyTypeDefaultsToMessage(t *testing.T) {
	ev, err := Parse([]byte(`{"name":"Mia","photoUrl":"","text":"hi"}`))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if ev.Kind != KindMessage {
		t.Errorf("kind = %q, want message", ev.Kind)
	}
}

func TestParseStringTimestamp(t *testing.T) {
	ev, err := Parse([]byte(`{"type":"message","name":"Mia","photoUrl":"","text":"hi","timestamp":"2024-02-01T10:00:00Z"}`))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	want := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	if !ev.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", ev.Timestamp, want)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", `{{{`},
		{"unknown type", `{"type":"presence","name":"Mia","photoUrl":""}`},
		{"missing name", `{"type":"message","photoUrl":"","text":"hi"}`},
		{"bad timestamp", `{"type":"message","name":"Mia","photoUrl":"","timestamp":"later"}`},
	}

	for _, tc := range cases {
		if _, err := Parse([]byte(tc.data)); err == nil {
			t.Errorf("%s: expected error, got none", tc.name)
		}
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	ev := NewMessage("Mia", "http://x/avatar.png", "hello")

	data, err := ev.Marshal()
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if got.ID != ev.ID || got.Text != ev.Text || got.Name != ev.Name {
		t.Errorf("round trip mismatch: %+v vs %+v", got, ev)
	}
}

func TestMarshalTypingOmitsMessageFields(t *testing.T) {
	ev := NewTyping("Mia", "", true)
	ev.ID = "should-not-appear"

	data, err := ev.Marshal()
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	s := string(data)
	if strings.Contains(s, "should-not-appear") || strings.Contains(s, "timestamp") {
		t.Errorf("typing frame carries message fields: %s", s)
	}
	if !strings.Contains(s, `"type":"typing"`) {
		t.Errorf("typing frame missing type: %s", s)
	}
}

func TestEphemeral(t *testing.T) {
	if KindMessage.Ephemeral() {
		t.Error("message must not be ephemeral")
	}
	if !KindTypingStart.Ephemeral() || !KindTypingStop.Ephemeral() {
		t.Error("typing kinds must be ephemeral")
	}
}
