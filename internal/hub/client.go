package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nikhil/taskhub/internal/logger"
	"github.com/nikhil/taskhub/internal/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed when not configured
	maxMessageSize = 64 * 1024
)

// Client is one live connection. Its identity is fixed at construction.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	id       uint64
	identity models.Identity
	log      *logger.Logger

	// Buffered channel of outbound frames.
	send chan []byte
	// Typed inbound events, closed when the read side ends.
	inbound chan models.Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient builds a client for an authenticated connection. conn may be nil
// for in-process clients that only consume Outbound.
func (h *Hub) NewClient(conn *websocket.Conn, identity models.Identity) *Client {
	id := h.nextID.Add(1)
	return &Client{
		hub:      h,
		conn:     conn,
		id:       id,
		identity: identity,
		log:      h.log.WithUser(identity.UserID).WithFields(map[string]interface{}{"client_id": id}),
		send:     make(chan []byte, h.opts.SendBuffer),
		inbound:  make(chan models.Envelope, h.opts.InboundBuffer),
		done:     make(chan struct{}),
	}
}

// ID returns the process-unique connection id.
func (c *Client) ID() uint64 { return c.id }

// Identity returns the authenticated user of this connection.
func (c *Client) Identity() models.Identity { return c.identity }

// Inbound returns events read from the peer.
func (c *Client) Inbound() <-chan models.Envelope { return c.inbound }

// Outbound returns queued frames. Only WritePump or tests should read it.
func (c *Client) Outbound() <-chan []byte { return c.send }

// Done is closed once the client is unregistered.
func (c *Client) Done() <-chan struct{} { return c.done }

// Push queues an inbound event as if it had been read from the peer.
func (c *Client) Push(env models.Envelope) bool {
	select {
	case c.inbound <- env:
		return true
	case <-c.done:
		return false
	}
}

// CloseInbound ends the inbound stream of an in-process client.
func (c *Client) CloseInbound() {
	close(c.inbound)
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		close(c.send)
	})
}

// ReadPump pumps frames from the WebSocket connection to the inbound channel.
// Disconnect unregisters the client before the inbound channel closes.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
		close(c.inbound)
	}()

	c.conn.SetReadLimit(c.hub.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("connection closed unexpectedly", "error", err)
			}
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Type == "" {
			c.log.Debug("dropping malformed frame", "error", err)
			continue
		}

		select {
		case c.inbound <- env:
		case <-c.done:
			return
		}
	}
}

// WritePump pumps frames from the hub to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
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
