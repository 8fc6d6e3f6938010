package client

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestEnvironmentIsStatic(t *testing.T) {
	cases := []struct {
		name string
		env  Environment
		want bool
	}{
		{"local dev", Environment{Hostname: "localhost"}, false},
		{"own domain", Environment{Hostname: "chat.classpage.example"}, false},
		{"github pages", Environment{Hostname: "classpage.github.io"}, true},
		{"netlify", Environment{Hostname: "classpage.netlify.app"}, true},
		{"forced flag", Environment{Hostname: "localhost", StaticHost: true}, true},
		{"project pages prefix", Environment{Hostname: "example.com", PathPrefix: "/classpage"}, true},
		{"root prefix", Environment{Hostname: "example.com", PathPrefix: "/"}, false},
	}

	for _, tc := range cases {
		if got := tc.env.IsStatic(); got != tc.want {
			t.Errorf("%s: IsStatic() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSelectPicksTransportOnce(t *testing.T) {
	relayCfg := RelayConfig{URL: "ws://localhost:8080/ws/chat"}
	rtdbCfg := RTDBConfig{BaseURL: "https://classpage.firebaseio.com"}

	tr := Select(Environment{Hostname: "localhost"}, relayCfg, rtdbCfg, zerolog.Nop())
	if _, ok := tr.(*RelayTransport); !ok {
		t.Fatalf("server environment must select the relay transport, got %T", tr)
	}

	tr = Select(Environment{Hostname: "classpage.github.io"}, relayCfg, rtdbCfg, zerolog.Nop())
	if _, ok := tr.(*RTDBTransport); !ok {
		t.Fatalf("static environment must select the realtime-database transport, got %T", tr)
	}
}
