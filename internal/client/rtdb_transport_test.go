package client

import (
	"bufio"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newTestRTDB() *RTDBTransport {
	return NewRTDBTransport(RTDBConfig{BaseURL: "https://classpage.firebaseio.com"}, zerolog.Nop())
}

func TestReadSSE(t *testing.T) {
	input := "event: put\ndata: {\"path\":\"/\",\"data\":null}\n\nevent: keep-alive\ndata: null\n\n"
	r := bufio.NewReader(strings.NewReader(input))

	ev, err := readSSE(r)
	if err != nil {
		t.Fatalf("readSSE error: %v", err)
	}
	if ev.name != "put" || ev.data != `{"path":"/","data":null}` {
		t.Fatalf("unexpected event: %+v", ev)
	}

	ev, err = readSSE(r)
	if err != nil {
		t.Fatalf("readSSE error: %v", err)
	}
	if ev.name != "keep-alive" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestApplyFullSnapshotSortedByServerTimestamp(t *testing.T) {
	tr := newTestRTDB()

	// Log written in timestamp order [3, 1, 2].
	changed, err := tr.apply(sseEvent{name: "put", data: `{"path":"/","data":{
		"-Na":{"name":"Mia","photoUrl":"","text":"third","timestamp":3},
		"-Nb":{"name":"Mia","photoUrl":"","text":"first","timestamp":1},
		"-Nc":{"name":"Noah","photoUrl":"","text":"second","timestamp":2}}}`})
	if err != nil {
		t.Fatalf("apply error: %v", err)
	}
	if !changed {
		t.Fatalf("full put must change the mirror")
	}

	got := texts(tr.snapshot())
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestApplyChildPutAndDelete(t *testing.T) {
	tr := newTestRTDB()

	if _, err := tr.apply(sseEvent{name: "put", data: `{"path":"/-Na","data":{"name":"Mia","photoUrl":"","text":"hi","timestamp":1}}`}); err != nil {
		t.Fatalf("child put error: %v", err)
	}
	if got := tr.snapshot(); len(got) != 1 || got[0].ID != "-Na" {
		t.Fatalf("snapshot = %+v, want one entry keyed -Na", got)
	}

	if _, err := tr.apply(sseEvent{name: "put", data: `{"path":"/-Na","data":null}`}); err != nil {
		t.Fatalf("child delete error: %v", err)
	}
	if got := tr.snapshot(); len(got) != 0 {
		t.Fatalf("snapshot after delete = %+v, want empty", got)
	}
}

func TestApplyKeepAliveNoChange(t *testing.T) {
	tr := newTestRTDB()
	changed, err := tr.apply(sseEvent{name: "keep-alive", data: "null"})
	if err != nil || changed {
		t.Fatalf("keep-alive: changed=%v err=%v, want no-op", changed, err)
	}
}

func TestApplyMalformedPayloadRejected(t *testing.T) {
	tr := newTestRTDB()
	if _, err := tr.apply(sseEvent{name: "put", data: `{{{`}); err == nil {
		t.Fatalf("malformed payload must be rejected")
	}
}

func TestApplyCancelStopsStream(t *testing.T) {
	tr := newTestRTDB()
	if _, err := tr.apply(sseEvent{name: "cancel", data: "null"}); err == nil {
		t.Fatalf("cancel must surface an error to trigger resubscription")
	}
}
