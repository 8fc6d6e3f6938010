package relay

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/classpage/backend/config"
)

// Handler upgrades HTTP requests on the chat websocket path. The path is
// dedicated to chat traffic so it cannot collide with dev-tooling
// live-reload sockets sharing the port.
type Handler struct {
	relay          *Relay
	cfg            config.ChatConfig
	allowedOrigins []string
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewHandler creates a websocket handler bound to the given relay. An empty
// allowedOrigins list accepts any origin; the chat has no accounts, so origin
// checking only guards against drive-by cross-site noise.
func NewHandler(relay *Relay, cfg config.ChatConfig, allowedOrigins []string, log zerolog.Logger) *Handler {
	h := &Handler{
		relay:          relay,
		cfg:            cfg,
		allowedOrigins: allowedOrigins,
		log:            log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// HandleWebSocket handles websocket upgrade requests.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to upgrade connection")
		return
	}

	limiter := rate.NewLimiter(rate.Limit(h.cfg.EventsPerSec), h.cfg.EventsBurst)
	client := NewClient(conn, h.relay, limiter, h.log.With().Str("remote", conn.RemoteAddr().String()).Logger())

	go client.WritePump()
	go client.ReadPump()

	h.relay.Attach(client)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	for _, pattern := range h.allowedOrigins {
		if matchOrigin(pattern, origin) {
			return true
		}
	}
	return false
}

// matchOrigin supports exact matches or wildcard patterns like *.example.com
func matchOrigin(pattern, origin string) bool {
	if pattern == origin {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		originHost := origin
		if u, err := url.Parse(origin); err == nil {
			originHost = u.Hostname()
		}
		return strings.HasSuffix(originHost, strings.TrimPrefix(pattern, "*."))
	}
	return false
}
