package client

import (
	"strings"

	"github.com/rs/zerolog"
)

// Environment describes the hosting environment the selector inspects. The
// decision is made once per session; a failing relay retries its own
// connection rather than falling back to the other transport.
type Environment struct {
	// Hostname of the page or deployment serving the client.
	Hostname string
	// PathPrefix is the URL path the site is served under, if any.
	PathPrefix string
	// StaticHost forces the realtime-database transport; set by static
	// deployments where no relay server process exists.
	StaticHost bool
}

// staticHostSuffixes are hosting domains that only serve static files, so no
// relay server can be running there.
var staticHostSuffixes = []string{
	".github.io",
	".pages.dev",
	".netlify.app",
}

// IsStatic reports whether the environment indicates static hosting.
func (e Environment) IsStatic() bool {
	if e.StaticHost {
		return true
	}
	host := strings.ToLower(e.Hostname)
	for _, suffix := range staticHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	// Project-pages deployments serve under a repo-name prefix.
	return e.PathPrefix != "" && e.PathPrefix != "/"
}

// Select chooses the transport for this session: the realtime-database
// fallback on static hosting, the socket relay everywhere else.
func Select(env Environment, relayCfg RelayConfig, rtdbCfg RTDBConfig, log zerolog.Logger) Transport {
	if env.IsStatic() {
		log.Info().Str("hostname", env.Hostname).Msg("static hosting detected, using realtime-database transport")
		return NewRTDBTransport(rtdbCfg, log)
	}
	log.Info().Str("url", relayCfg.URL).Msg("using relay transport")
	return NewRelayTransport(relayCfg, log)
}
