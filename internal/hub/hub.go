// Package hub fans realtime events out to connected observers over
// websocket connections.
package hub

import (
	"context"
	"encoding/json"

	"github.com/matheus3301/relay/internal/bus"
	"github.com/matheus3301/relay/internal/model"
	"go.uber.org/zap"
)

// ContactLister supplies the snapshot sent to a newly joined observer.
// *store.DB implements it.
type ContactLister interface {
	ListContacts() ([]model.Contact, error)
}

// Wire frames. The message and error frames share the "message" key with
// different payload types, so they are separate shapes.
type messageFrame struct {
	Type    string         `json:"type"`
	Message model.Message  `json:"message"`
	Contact *model.Contact `json:"contact,omitempty"`
}

type contactsFrame struct {
	Type     string          `json:"type"`
	Contacts []model.Contact `json:"contacts"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Hub owns the set of live observer connections. All membership changes
// and fan-out happen on the Run goroutine; handlers only talk to it
// through channels.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	clients    map[*Client]bool
	contacts   ContactLister
	bus        *bus.Bus
	logger     *zap.Logger
}

// New creates a hub. Run must be started for it to do anything.
func New(contacts ContactLister, b *bus.Bus, logger *zap.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		contacts:   contacts,
		bus:        b,
		logger:     logger,
	}
}

// Register adds a connection to the live set and queues the contact
// snapshot for it. After the hub has stopped, the connection is simply
// shut down.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.closeSend()
	}
}

// Unregister removes a connection. Safe to call more than once per
// client, and after the hub has stopped.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
		c.closeSend()
	}
}

// Run drives the hub until ctx is cancelled. It subscribes to relay
// events on the bus and fans each one out to every live connection.
func (h *Hub) Run(ctx context.Context) {
	events, unsub := h.bus.Subscribe("relay.", 256)
	defer unsub()

	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			h.sendSnapshot(c)
			h.logger.Info("observer connected", zap.Int("observers", len(h.clients)))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.closeSend()
				h.logger.Info("observer disconnected", zap.Int("observers", len(h.clients)))
			}
		case evt := <-events:
			me, ok := evt.Payload.(model.MessageEvent)
			if !ok {
				continue
			}
			h.broadcast(me)
		case <-ctx.Done():
			close(h.done)
			for c := range h.clients {
				delete(h.clients, c)
				c.closeSend()
			}
			return
		}
	}
}

func (h *Hub) sendSnapshot(c *Client) {
	contacts, err := h.contacts.ListContacts()
	if err != nil {
		h.logger.Error("failed to load contact snapshot", zap.Error(err))
		return
	}
	data, err := json.Marshal(contactsFrame{Type: "contacts", Contacts: contacts})
	if err != nil {
		h.logger.Error("failed to encode contact snapshot", zap.Error(err))
		return
	}
	h.enqueue(c, data)
}

// broadcast serializes once and delivers best-effort to every live
// connection. A slow or closed connection is dropped; the rest still
// receive the event.
func (h *Hub) broadcast(me model.MessageEvent) {
	data, err := json.Marshal(messageFrame{Type: "message", Message: me.Message, Contact: me.Contact})
	if err != nil {
		h.logger.Error("failed to encode message event", zap.Error(err))
		return
	}
	for c := range h.clients {
		h.enqueue(c, data)
	}
}

func (h *Hub) enqueue(c *Client, data []byte) {
	if !c.trySend(data) {
		delete(h.clients, c)
		c.closeSend()
		h.logger.Warn("dropped slow observer")
	}
}
