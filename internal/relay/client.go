package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/classpage/backend/internal/metrics"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer; avatars travel as data URIs
	maxMessageSize = 128 * 1024
)

// Client owns one websocket connection on the server side. It pumps inbound
// frames into the relay and outbound frames from its send buffer onto the
// socket.
type Client struct {
	conn    *websocket.Conn
	relay   *Relay
	limiter *rate.Limiter
	log     zerolog.Logger

	send      chan []byte
	closeOnce sync.Once
}

// NewClient wraps an upgraded websocket connection.
func NewClient(conn *websocket.Conn, relay *Relay, limiter *rate.Limiter, log zerolog.Logger) *Client {
	return &Client{
		conn:    conn,
		relay:   relay,
		limiter: limiter,
		log:     log,
		send:    make(chan []byte, 256),
	}
}

// Send queues a frame for delivery. It never blocks; false means the buffer
// is full and the registry should drop this connection.
func (c *Client) Send(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// ReadPump pumps frames from the websocket into the relay. It runs until the
// connection errors or closes, then detaches the client.
func (c *Client) ReadPump() {
	defer func() {
		c.relay.Detach(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		if !c.limiter.Allow() {
			metrics.FramesDropped.WithLabelValues("rate_limited").Inc()
			continue
		}

		c.relay.HandleInbound(c, data)
	}
}

// WritePump pumps frames from the send buffer onto the websocket and keeps
// the connection alive with periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}
