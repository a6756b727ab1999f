package status

import "slices"

// Status is the delivery lifecycle tag of a message. It is platform
// agnostic and not a guarantee of end-to-end delivery.
type Status string

const (
	// Sending marks an outbound message appended optimistically, before
	// the platform confirmed it.
	Sending Status = "sending"
	// Sent marks an outbound message confirmed by the platform.
	Sent Status = "sent"
	// Delivered marks a message that reached this relay (all inbound
	// messages enter here) or the remote peer's device.
	Delivered Status = "delivered"
	// Received marks a message the remote peer has read.
	Received Status = "received"
	// Failed marks an outbound message the platform rejected.
	Failed Status = "failed"
)

// validNext defines the allowed status transitions. Received and Failed
// are terminal.
var validNext = map[Status][]Status{
	Sending:   {Sent, Failed},
	Sent:      {Delivered, Received},
	Delivered: {Received},
}

// Valid reports whether s is a known status.
func Valid(s Status) bool {
	switch s {
	case Sending, Sent, Delivered, Received, Failed:
		return true
	}
	return false
}

// CanTransition reports whether a message may move from one status to
// another. Same-status updates are allowed (idempotent replays).
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	return slices.Contains(validNext[from], to)
}
