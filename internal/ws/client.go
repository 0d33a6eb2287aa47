package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	// Outbound event buffer per client.
	sendBuffer = 64
)

// InboundHandler consumes payloads arriving on an admitted channel.
// *chat.Router implements it.
type InboundHandler interface {
	HandleInbound(ctx context.Context, sender string, in Inbound)
}

// Client is one authenticated websocket channel. The identity is bound at
// admission and never changes for the channel's lifetime.
type Client struct {
	identity string
	conn     *websocket.Conn
	send     chan Event
	registry *Registry
	handler  InboundHandler
	logger   zerolog.Logger

	closeOnce sync.Once
}

// NewClient wraps an upgraded connection for the given identity.
func NewClient(identity string, conn *websocket.Conn, registry *Registry, handler InboundHandler, logger zerolog.Logger) *Client {
	return &Client{
		identity: identity,
		conn:     conn,
		send:     make(chan Event, sendBuffer),
		registry: registry,
		handler:  handler,
		logger:   logger.With().Str("user", identity).Logger(),
	}
}

// Enqueue hands an event to the write pump without blocking.
func (c *Client) Enqueue(ev Event) bool {
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// CloseReplaced closes the connection because a newer session for the same
// identity was admitted. The read pump unblocks and exits; its deferred
// Disconnect is a no-op since the registry already points elsewhere.
func (c *Client) CloseReplaced() {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(writeWait)
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session replaced")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = c.conn.Close()
	})
}

// ReadPump pumps inbound payloads from the websocket to the handler.
// It runs on the connection's serving goroutine and owns deregistration:
// whatever ends the channel, the identity is evicted exactly once.
func (c *Client) ReadPump() {
	defer func() {
		c.registry.Disconnect(c.identity, c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.ClosePolicyViolation) {
				c.logger.Warn().Err(err).Msg("websocket read error")
			}
			break
		}

		var in Inbound
		if err := json.Unmarshal(raw, &in); err != nil {
			// Malformed payload: report and keep the channel open.
			c.Enqueue(ErrorEvent(ErrKindMalformed, "payload must be JSON with to and message fields"))
			continue
		}

		c.handler.HandleInbound(context.Background(), c.identity, in)
	}
}

// WritePump pumps events from the send buffer to the websocket and keeps
// the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
