// Package relay contains the engine that ties the platform adapters, the
// conversation store and the event bus together.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/relay/internal/bus"
	"github.com/matheus3301/relay/internal/model"
	"github.com/matheus3301/relay/internal/platform"
	"github.com/matheus3301/relay/internal/status"
	"github.com/matheus3301/relay/internal/store"
	"go.uber.org/zap"
)

// ErrUnknownPlatform is returned when no adapter claims an inbound payload.
var ErrUnknownPlatform = errors.New("relay: unrecognized platform payload")

// Caller issues platform API requests. *graph.Client implements it.
type Caller interface {
	Do(ctx context.Context, req platform.Request) ([]byte, error)
}

// Engine routes inbound webhook events into the store and out to
// observers, and drives the optimistic send flow for outbound messages.
type Engine struct {
	db              *store.DB
	bus             *bus.Bus
	registry        *platform.Registry
	caller          Caller
	verifyToken     string
	defaultPlatform string
	logger          *zap.Logger
}

// NewEngine creates the engine. defaultPlatform is used for outbound
// sends to contacts the store has never seen.
func NewEngine(db *store.DB, b *bus.Bus, reg *platform.Registry, caller Caller, verifyToken, defaultPlatform string, logger *zap.Logger) *Engine {
	return &Engine{
		db:              db,
		bus:             b,
		registry:        reg,
		caller:          caller,
		verifyToken:     verifyToken,
		defaultPlatform: defaultPlatform,
		logger:          logger,
	}
}

// VerifyToken reports whether token matches the configured webhook verify
// token. An unconfigured token rejects everything.
func (e *Engine) VerifyToken(token string) bool {
	return e.verifyToken != "" && token == e.verifyToken
}

// HandleInbound classifies raw by platform, extracts its messages and
// ingests them. A payload no adapter claims is ErrUnknownPlatform; an
// extraction failure is returned so the HTTP layer can log it (the
// webhook response is 200 either way, to suppress platform retries).
func (e *Engine) HandleInbound(ctx context.Context, raw []byte) error {
	ad, ok := e.registry.Identify(raw)
	if !ok {
		return ErrUnknownPlatform
	}

	items, err := ad.ExtractInbound(raw)
	if err != nil {
		return fmt.Errorf("extract inbound: %w", err)
	}

	for _, item := range items {
		if err := e.ingest(ad, item); err != nil {
			// One bad message must not block the rest of the batch.
			e.logger.Error("failed to ingest inbound message",
				zap.String("platform", ad.Name()),
				zap.String("msg_id", item.Message.ID),
				zap.Error(err))
		}
	}
	return nil
}

func (e *Engine) ingest(ad platform.Adapter, item platform.Inbound) error {
	contact := item.Contact
	if contact.Name == "" {
		contact.Name = defaultContactName(ad.Name(), contact.ID)
	}

	stored, err := e.db.UpsertContact(&contact)
	if err != nil {
		return fmt.Errorf("upsert contact: %w", err)
	}
	if err := e.db.AppendMessage(&item.Message); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	if err := e.db.TouchLastMessage(contact.ID, item.Message.Text, item.Message.Timestamp); err != nil {
		return fmt.Errorf("touch last message: %w", err)
	}
	stored.LastMessage = item.Message.Text
	stored.LastMessageTime = item.Message.Timestamp

	e.publish(item.Message, stored)

	// Best effort, off the inbound path. Errors stay inside the task.
	go e.sendReadReceipt(ad, contact.ID, item.Message.ID)

	e.logger.Info("inbound message ingested",
		zap.String("platform", ad.Name()),
		zap.String("contact_id", contact.ID),
		zap.String("msg_id", item.Message.ID))
	return nil
}

// Send runs the outbound flow: optimistic append and broadcast with a
// provisional id, platform call, then reconciliation to the confirmed id.
// On failure the stored message is marked failed and the error is
// returned to the caller; no broadcast is emitted for the failure.
func (e *Engine) Send(ctx context.Context, contactID, text string) (*model.Message, error) {
	if contactID == "" || text == "" {
		return nil, errors.New("relay: contact id and text are required")
	}

	contact, err := e.db.GetContact(contactID)
	if err != nil {
		return nil, fmt.Errorf("lookup contact: %w", err)
	}

	// Route by the contact's origin platform; an unseen contact gets the
	// configured default and is created with it.
	platformName := e.defaultPlatform
	if contact != nil && contact.Platform != "" {
		platformName = contact.Platform
	}
	ad, ok := e.registry.Get(platformName)
	if !ok {
		return nil, fmt.Errorf("no adapter for platform %q", platformName)
	}
	if contact == nil {
		contact, err = e.db.UpsertContact(&model.Contact{
			ID:       contactID,
			Name:     defaultContactName(platformName, contactID),
			Platform: platformName,
		})
		if err != nil {
			return nil, fmt.Errorf("create contact: %w", err)
		}
	}

	provisional := "pending-" + uuid.NewString()
	msg := model.Message{
		ID:        provisional,
		ContactID: contactID,
		Text:      text,
		Direction: model.Outgoing,
		Status:    status.Sending,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := e.db.AppendMessage(&msg); err != nil {
		return nil, fmt.Errorf("append outgoing message: %w", err)
	}
	// Optimistic echo: observers see the message before the platform
	// confirms it.
	e.publish(msg, contact)

	body, err := e.caller.Do(ctx, ad.BuildSendRequest(contactID, text))
	if err != nil {
		e.markFailed(msg)
		return nil, fmt.Errorf("send via %s: %w", platformName, err)
	}
	confirmedID, err := ad.ParseSendResponse(body)
	if err != nil {
		e.markFailed(msg)
		return nil, fmt.Errorf("send via %s: %w", platformName, err)
	}

	confirmed := msg
	confirmed.ID = confirmedID
	confirmed.Status = status.Sent
	if err := e.reconcile(msg, confirmed); err != nil {
		return nil, err
	}

	e.publish(confirmed, nil)
	e.logger.Info("message sent",
		zap.String("platform", platformName),
		zap.String("provisional_id", provisional),
		zap.String("confirmed_id", confirmedID))
	return &confirmed, nil
}

// reconcile swaps the provisional message for its confirmed counterpart,
// preserving its position in the history.
func (e *Engine) reconcile(prev, next model.Message) error {
	if !status.CanTransition(prev.Status, next.Status) {
		return fmt.Errorf("illegal status transition %s -> %s for %s", prev.Status, next.Status, prev.ID)
	}
	if err := e.db.ReplaceMessage(prev.ContactID, prev.ID, &next); err != nil {
		return fmt.Errorf("replace message %s: %w", prev.ID, err)
	}
	return nil
}

func (e *Engine) markFailed(msg model.Message) {
	failed := msg
	failed.Status = status.Failed
	if err := e.reconcile(msg, failed); err != nil {
		e.logger.Error("failed to mark message failed", zap.String("msg_id", msg.ID), zap.Error(err))
	}
}

func (e *Engine) publish(msg model.Message, contact *model.Contact) {
	e.bus.Publish(bus.Event{
		Kind:      "relay.message",
		Timestamp: time.Now(),
		Payload:   model.MessageEvent{Message: msg, Contact: contact},
	})
}

func (e *Engine) sendReadReceipt(ad platform.Adapter, contactID, messageID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := e.caller.Do(ctx, ad.BuildReadReceipt(contactID, messageID)); err != nil {
		e.logger.Warn("read receipt failed",
			zap.String("platform", ad.Name()),
			zap.String("msg_id", messageID),
			zap.Error(err))
	}
}

func defaultContactName(platformName, contactID string) string {
	label := platformName
	switch platformName {
	case "whatsapp":
		label = "WhatsApp"
	case "instagram":
		label = "Instagram"
	}
	return label + " " + contactID
}
