package platform

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/matheus3301/relay/internal/model"
	"github.com/matheus3301/relay/internal/status"
)

const whatsappObject = "whatsapp_business_account"

// WhatsApp adapts WhatsApp Cloud API webhook and send shapes.
type WhatsApp struct {
	baseURL       string
	token         string
	phoneNumberID string
}

// NewWhatsApp creates the WhatsApp adapter. baseURL is the Graph API root
// without a trailing slash.
func NewWhatsApp(baseURL, token, phoneNumberID string) *WhatsApp {
	return &WhatsApp{baseURL: baseURL, token: token, phoneNumberID: phoneNumberID}
}

func (w *WhatsApp) Name() string { return "whatsapp" }

// Webhook payload shapes. Only the fields the relay reads are declared;
// unknown fields are ignored by encoding/json.
type waEnvelope struct {
	Object string    `json:"object"`
	Entry  []waEntry `json:"entry"`
}

type waEntry struct {
	Changes []waChange `json:"changes"`
}

type waChange struct {
	Value waValue `json:"value"`
}

type waValue struct {
	Contacts []waContact       `json:"contacts"`
	Messages []waMessage       `json:"messages"`
	Statuses []json.RawMessage `json:"statuses"`
}

type waContact struct {
	WaID    string    `json:"wa_id"`
	Profile waProfile `json:"profile"`
}

type waProfile struct {
	Name string `json:"name"`
}

type waMessage struct {
	From      string   `json:"from"`
	ID        string   `json:"id"`
	Timestamp string   `json:"timestamp"` // epoch seconds
	Type      string   `json:"type"`
	Text      *waText  `json:"text"`
	Image     *waMedia `json:"image"`
	Video     *waMedia `json:"video"`
	Audio     *waMedia `json:"audio"`
	Document  *waMedia `json:"document"`
}

type waText struct {
	Body string `json:"body"`
}

type waMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
}

func (w *WhatsApp) Identify(raw []byte) bool {
	var probe struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Object == whatsappObject
}

func (w *WhatsApp) ExtractInbound(raw []byte) ([]Inbound, error) {
	var env waEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode whatsapp payload: %w", err)
	}
	if env.Object != whatsappObject {
		return nil, fmt.Errorf("not a whatsapp payload: object %q", env.Object)
	}

	var items []Inbound
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			// Status-only deliveries carry no messages.
			for _, m := range change.Value.Messages {
				item, err := normalizeWAMessage(m, change.Value.Contacts)
				if err != nil {
					return nil, err
				}
				items = append(items, item)
			}
		}
	}
	return items, nil
}

func normalizeWAMessage(m waMessage, contacts []waContact) (Inbound, error) {
	if m.From == "" || m.ID == "" {
		return Inbound{}, fmt.Errorf("whatsapp message missing sender or id")
	}
	secs, err := strconv.ParseInt(m.Timestamp, 10, 64)
	if err != nil {
		return Inbound{}, fmt.Errorf("whatsapp message %s: parse timestamp %q: %w", m.ID, m.Timestamp, err)
	}

	name := ""
	for _, c := range contacts {
		if c.WaID == m.From {
			name = c.Profile.Name
			break
		}
	}

	return Inbound{
		Contact: model.Contact{
			ID:       m.From,
			Name:     name,
			Platform: "whatsapp",
		},
		Message: model.Message{
			ID:        m.ID,
			ContactID: m.From,
			Text:      waMessageText(m),
			Direction: model.Incoming,
			Status:    status.Delivered,
			Timestamp: secs * 1000,
		},
	}, nil
}

// waMessageText prefers the structured text body, then maps known media
// kinds to fixed placeholders, then falls back to the generic one.
func waMessageText(m waMessage) string {
	if m.Text != nil && m.Text.Body != "" {
		return m.Text.Body
	}
	switch {
	case m.Image != nil:
		return PlaceholderImage
	case m.Video != nil:
		return PlaceholderVideo
	case m.Audio != nil:
		return PlaceholderAudio
	case m.Document != nil:
		return PlaceholderDocument
	}
	return PlaceholderMedia
}

type waSendPayload struct {
	MessagingProduct string `json:"messaging_product"`
	RecipientType    string `json:"recipient_type"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             waText `json:"text"`
}

type waReadPayload struct {
	MessagingProduct string `json:"messaging_product"`
	Status           string `json:"status"`
	MessageID        string `json:"message_id"`
}

func (w *WhatsApp) BuildSendRequest(contactID, text string) Request {
	return Request{
		Method:   "POST",
		Endpoint: fmt.Sprintf("%s/%s/messages", w.baseURL, w.phoneNumberID),
		Payload: waSendPayload{
			MessagingProduct: "whatsapp",
			RecipientType:    "individual",
			To:               contactID,
			Type:             "text",
			Text:             waText{Body: text},
		},
		AuthHeader: "Bearer " + w.token,
	}
}

func (w *WhatsApp) BuildReadReceipt(_, messageID string) Request {
	return Request{
		Method:   "POST",
		Endpoint: fmt.Sprintf("%s/%s/messages", w.baseURL, w.phoneNumberID),
		Payload: waReadPayload{
			MessagingProduct: "whatsapp",
			Status:           "read",
			MessageID:        messageID,
		},
		AuthHeader: "Bearer " + w.token,
	}
}

func (w *WhatsApp) ParseSendResponse(body []byte) (string, error) {
	var resp struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode whatsapp send response: %w", err)
	}
	if len(resp.Messages) == 0 || resp.Messages[0].ID == "" {
		return "", fmt.Errorf("whatsapp send response has no message id")
	}
	return resp.Messages[0].ID, nil
}
