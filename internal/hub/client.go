package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/relay/internal/model"
	"go.uber.org/zap"
)

// Conn is the subset of *websocket.Conn the hub needs, narrowed so tests
// can supply an in-memory connection.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Sender handles send_message commands from observers. *relay.Engine
// implements it.
type Sender interface {
	Send(ctx context.Context, contactID, text string) (*model.Message, error)
}

// command is the inbound wire shape for observer commands.
type command struct {
	Type      string `json:"type"`
	ContactID string `json:"contactId"`
	Text      string `json:"text"`
	Token     string `json:"token"`
}

// Client is one observer connection. The read pump parses commands and
// the write pump drains the send queue; the hub closes the queue on
// unregister, which terminates the write pump.
type Client struct {
	conn   Conn
	send   chan []byte
	hub    *Hub
	sender Sender
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

// NewClient wraps a websocket connection. The caller still has to
// Register it and start both pumps.
func NewClient(conn Conn, h *Hub, sender Sender, logger *zap.Logger) *Client {
	return &Client{
		conn:   conn,
		send:   make(chan []byte, 64),
		hub:    h,
		sender: sender,
		logger: logger,
	}
}

// ReadPump consumes frames from the peer until the connection fails,
// then unregisters the client.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleCommand(ctx, data)
	}
}

// WritePump pushes queued frames to the peer until the hub closes the
// queue or a write fails.
func (c *Client) WritePump() {
	defer func() { _ = c.conn.Close() }()
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			c.logger.Debug("observer write failed", zap.Error(err))
			return
		}
	}
}

func (c *Client) handleCommand(ctx context.Context, data []byte) {
	var cmd command
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.sendError("invalid command")
		return
	}
	switch cmd.Type {
	case "send_message":
		if _, err := c.sender.Send(ctx, cmd.ContactID, cmd.Text); err != nil {
			c.logger.Warn("send command failed",
				zap.String("contact", cmd.ContactID),
				zap.Error(err))
			c.sendError("failed to send message")
		}
	case "auth":
		// Advisory only: the token gates nothing, the command is just
		// acknowledged in the log.
		c.logger.Debug("auth command received")
	default:
		c.sendError("unknown command type")
	}
}

// sendError delivers an error frame to this connection only.
func (c *Client) sendError(msg string) {
	data, err := json.Marshal(errorFrame{Type: "error", Message: msg})
	if err != nil {
		return
	}
	c.trySend(data)
}

// trySend queues a frame without blocking. It reports false when the
// queue is full or already closed. The hub may close the queue from its
// own goroutine while the read pump is still running, hence the lock.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend shuts the queue down exactly once, terminating the write
// pump.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
