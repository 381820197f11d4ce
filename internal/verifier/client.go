package verifier

import (
	"context"
	"encoding/json"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
)

// Inbound receives parsed page messages. The worker implements it.
type Inbound interface {
	HandlePageMessage(msg Message)
}

// Client is a single connected page.
type Client struct {
	hub     *Hub
	conn    *ws.Conn
	inbound Inbound
	send    chan []byte
}

func NewClient(hub *Hub, conn *ws.Conn, inbound Inbound) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		inbound: inbound,
		send:    make(chan []byte, sendBufferSize),
	}
}

// Run registers the page, starts the write pump, and runs the read pump.
// It blocks until the connection is closed, then unregisters.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx)
	c.readPump(ctx)
}

// readPump parses incoming frames and forwards them to the worker. Frames
// that do not parse are dropped; the worker rejects invalid types itself.
func (c *Client) readPump(ctx context.Context) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.logger.Debug("unparseable page message", "error", err)
			continue
		}
		c.inbound.HandlePageMessage(msg)
	}
}

// writePump drains the send channel and writes messages to the WebSocket.
// It also sends periodic pings to detect stale connections.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				// Hub closed the channel; connection is done
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
