package platform

import (
	"encoding/json"
	"fmt"

	"github.com/matheus3301/relay/internal/model"
	"github.com/matheus3301/relay/internal/status"
)

const instagramObject = "instagram"

// Instagram adapts Instagram Messaging webhook and send shapes.
type Instagram struct {
	baseURL string
	token   string
}

// NewInstagram creates the Instagram adapter. baseURL is the Graph API
// root without a trailing slash.
func NewInstagram(baseURL, token string) *Instagram {
	return &Instagram{baseURL: baseURL, token: token}
}

func (i *Instagram) Name() string { return "instagram" }

type igEnvelope struct {
	Object string    `json:"object"`
	Entry  []igEntry `json:"entry"`
}

type igEntry struct {
	Messaging []igMessaging `json:"messaging"`
}

type igMessaging struct {
	Sender    igID       `json:"sender"`
	Recipient igID       `json:"recipient"`
	Timestamp int64      `json:"timestamp"` // epoch ms
	Message   *igMessage `json:"message"`
}

type igID struct {
	ID string `json:"id"`
}

type igMessage struct {
	MID         string         `json:"mid"`
	Text        string         `json:"text"`
	IsEcho      bool           `json:"is_echo"`
	Attachments []igAttachment `json:"attachments"`
}

type igAttachment struct {
	Type string `json:"type"`
}

func (i *Instagram) Identify(raw []byte) bool {
	var probe struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Object == instagramObject
}

func (i *Instagram) ExtractInbound(raw []byte) ([]Inbound, error) {
	var env igEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode instagram payload: %w", err)
	}
	if env.Object != instagramObject {
		return nil, fmt.Errorf("not an instagram payload: object %q", env.Object)
	}

	var items []Inbound
	for _, entry := range env.Entry {
		for _, ev := range entry.Messaging {
			// Reads, deliveries and our own echoes carry no new message.
			if ev.Message == nil || ev.Message.IsEcho {
				continue
			}
			item, err := normalizeIGEvent(ev)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	}
	return items, nil
}

func normalizeIGEvent(ev igMessaging) (Inbound, error) {
	if ev.Sender.ID == "" || ev.Message.MID == "" {
		return Inbound{}, fmt.Errorf("instagram event missing sender or mid")
	}
	if ev.Timestamp <= 0 {
		return Inbound{}, fmt.Errorf("instagram event %s: missing timestamp", ev.Message.MID)
	}

	return Inbound{
		Contact: model.Contact{
			ID:       ev.Sender.ID,
			Platform: "instagram",
		},
		Message: model.Message{
			ID:        ev.Message.MID,
			ContactID: ev.Sender.ID,
			Text:      igMessageText(ev.Message),
			Direction: model.Incoming,
			Status:    status.Delivered,
			Timestamp: ev.Timestamp,
		},
	}, nil
}

func igMessageText(m *igMessage) string {
	if m.Text != "" {
		return m.Text
	}
	if len(m.Attachments) > 0 {
		switch m.Attachments[0].Type {
		case "image":
			return PlaceholderImage
		case "video":
			return PlaceholderVideo
		case "audio":
			return PlaceholderAudio
		case "file":
			return PlaceholderDocument
		}
	}
	return PlaceholderMedia
}

type igSendPayload struct {
	Recipient igID          `json:"recipient"`
	Message   igSendMessage `json:"message"`
}

type igSendMessage struct {
	Text string `json:"text"`
}

type igSenderAction struct {
	Recipient    igID   `json:"recipient"`
	SenderAction string `json:"sender_action"`
}

func (i *Instagram) BuildSendRequest(contactID, text string) Request {
	return Request{
		Method:   "POST",
		Endpoint: i.baseURL + "/me/messages",
		Payload: igSendPayload{
			Recipient: igID{ID: contactID},
			Message:   igSendMessage{Text: text},
		},
		AuthHeader: "Bearer " + i.token,
	}
}

func (i *Instagram) BuildReadReceipt(contactID, _ string) Request {
	return Request{
		Method:   "POST",
		Endpoint: i.baseURL + "/me/messages",
		Payload: igSenderAction{
			Recipient:    igID{ID: contactID},
			SenderAction: "mark_seen",
		},
		AuthHeader: "Bearer " + i.token,
	}
}

func (i *Instagram) ParseSendResponse(body []byte) (string, error) {
	var resp struct {
		MessageID string `json:"message_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode instagram send response: %w", err)
	}
	if resp.MessageID == "" {
		return "", fmt.Errorf("instagram send response has no message id")
	}
	return resp.MessageID, nil
}
