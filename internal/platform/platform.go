package platform

import (
	"github.com/matheus3301/relay/internal/model"
)

// Placeholder labels substituted for non-text content. A message is never
// dropped for lacking text.
const (
	PlaceholderImage    = "[Image]"
	PlaceholderVideo    = "[Video]"
	PlaceholderAudio    = "[Audio]"
	PlaceholderDocument = "[Document]"
	PlaceholderMedia    = "[Media]"
)

// Request is a fully built outbound platform API call. The relay core only
// produces these triples; actually issuing them is the graph client's job.
type Request struct {
	Method     string
	Endpoint   string
	Payload    any
	AuthHeader string
}

// Inbound is one normalized inbound item: the canonical message plus the
// contact delta extracted alongside it. Contact.Name may be empty when the
// platform carries no profile data.
type Inbound struct {
	Contact model.Contact
	Message model.Message
}

// Adapter translates between one platform's wire shapes and the canonical
// model. Implementations must be stateless and safe for concurrent use.
type Adapter interface {
	// Name returns the platform tag ("whatsapp", "instagram").
	Name() string

	// Identify reports whether raw looks like this platform's webhook
	// payload, judged by the top-level discriminator. Total: malformed
	// input yields false, never a panic.
	Identify(raw []byte) bool

	// ExtractInbound parses raw into zero or more inbound items. A
	// structurally mismatched payload is an error; a recognized payload
	// carrying no new messages (delivery statuses, echoes) is an empty
	// slice and no error.
	ExtractInbound(raw []byte) ([]Inbound, error)

	// BuildSendRequest builds the platform's send-text call.
	BuildSendRequest(contactID, text string) Request

	// BuildReadReceipt builds the platform's best-effort read receipt
	// call. Failures of the resulting request are never escalated.
	BuildReadReceipt(contactID, messageID string) Request

	// ParseSendResponse extracts the platform-confirmed message id from a
	// send response body.
	ParseSendResponse(body []byte) (string, error)
}

// Registry holds the configured adapters and classifies raw payloads.
type Registry struct {
	adapters []Adapter
}

// NewRegistry creates a registry over the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// Identify returns the adapter claiming raw, or false if no adapter
// recognizes it.
func (r *Registry) Identify(raw []byte) (Adapter, bool) {
	for _, a := range r.adapters {
		if a.Identify(raw) {
			return a, true
		}
	}
	return nil, false
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, bool) {
	for _, a := range r.adapters {
		if a.Name() == name {
			return a, true
		}
	}
	return nil, false
}
