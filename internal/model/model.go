package model

import "github.com/matheus3301/relay/internal/status"

// Direction tells whether a message came from the remote peer or was sent
// by an observer through this relay.
type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
)

// Message is the canonical, platform-agnostic representation of a single
// chat message. ID is the platform-assigned identifier once confirmed; an
// outbound message carries a provisional identifier until reconciliation.
type Message struct {
	ID        string        `json:"id"`
	ContactID string        `json:"contactId"`
	Text      string        `json:"text"`
	Direction Direction     `json:"direction"`
	Status    status.Status `json:"status"`
	Timestamp int64         `json:"timestamp"` // unix ms
}

// Contact is the remote conversational peer. Platform records which
// messaging platform the contact originated on; outbound sends are routed
// through it. LastMessage/LastMessageTime are a denormalized preview of
// the most recent accepted inbound message.
type Contact struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Platform        string `json:"platform"`
	LastMessage     string `json:"lastMessage"`
	LastMessageTime int64  `json:"lastMessageTime"` // unix ms
}

// MessageEvent is the bus payload for a message delta. Contact is the
// refreshed contact record when the delta changed it, nil otherwise.
type MessageEvent struct {
	Message Message
	Contact *Contact
}
