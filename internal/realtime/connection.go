// Package realtime carries the live delivery protocol: authenticated
// websocket connections, conversation rooms, and the per-connection event
// loop.
package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/studyverse/chat-platform/internal/model"
)

const (
	writeWait       = 10 * time.Second
	maxInboundBytes = 64 << 10
)

// Peer is a live connection the hub can deliver to. Connection implements
// it; tests substitute fakes.
type Peer interface {
	ID() string
	UserID() string
	Send(payload []byte) error
}

// Connection wraps a websocket and coordinates outbound writes via a
// buffered channel. Safe for concurrent use.
type Connection struct {
	id       string
	identity model.Identity

	ws           *websocket.Conn
	send         chan []byte
	once         sync.Once
	closed       chan struct{}
	pingInterval time.Duration
}

// NewConnection constructs a Connection for the authenticated identity.
func NewConnection(identity model.Identity, ws *websocket.Conn, pingInterval time.Duration) *Connection {
	return &Connection{
		id:           uuid.NewString(),
		identity:     identity,
		ws:           ws,
		send:         make(chan []byte, 128),
		closed:       make(chan struct{}),
		pingInterval: pingInterval,
	}
}

// ID returns the connection identifier.
func (c *Connection) ID() string { return c.id }

// UserID returns the external identifier of the bound identity.
func (c *Connection) UserID() string { return c.identity.ExternalID }

// Identity returns the identity resolved at handshake time.
func (c *Connection) Identity() model.Identity { return c.identity }

// Start launches the write loop. Must be called exactly once.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Send enqueues payload for delivery. If the client is slow and the buffer
// fills, the connection is closed to keep backpressure bounded.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	case c.send <- payload:
		return nil
	default:
		c.Close(websocket.CloseGoingAway, "send buffer full")
		return errors.New("connection buffer exceeded")
	}
}

// Close terminates the connection and stops the write loop.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.closed)
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

// ConfigureRead installs the read limit and the pong-driven liveness
// deadline. A client that misses pingInterval plus pongTimeout is dropped
// by the next read.
func (c *Connection) ConfigureRead(pongTimeout time.Duration) {
	deadline := c.pingInterval + pongTimeout
	c.ws.SetReadLimit(maxInboundBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(deadline))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(deadline))
	})
}

// ReadFrame blocks for the next inbound frame. Returns an error once the
// underlying socket closes or the read deadline lapses.
func (c *Connection) ReadFrame() (model.InboundFrame, error) {
	var frame model.InboundFrame
	err := c.ws.ReadJSON(&frame)
	return frame, err
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Connection) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}
