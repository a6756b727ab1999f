package server

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/matheus3301/relay/internal/hub"
)

// Response is the generic REST envelope.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

const maxWebhookBody = 1 << 20

// handleVerify answers the platform subscription handshake: echo the
// challenge when the token matches, 403 otherwise.
func (s *Server) handleVerify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && s.engine.VerifyToken(token) {
		c.String(http.StatusOK, challenge)
		return
	}
	s.logger.Warn("webhook verification rejected", zap.String("mode", mode))
	c.String(http.StatusForbidden, "Forbidden")
}

// handleWebhook ingests a platform delivery. The platform retries on
// non-2xx, so malformed payloads are logged and still acknowledged.
func (s *Server) handleWebhook(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		s.logger.Warn("failed to read webhook body", zap.Error(err))
		c.String(http.StatusOK, "EVENT_RECEIVED")
		return
	}

	if err := s.engine.HandleInbound(c.Request.Context(), raw); err != nil {
		s.logger.Warn("webhook ingest failed", zap.Error(err))
	}
	c.String(http.StatusOK, "EVENT_RECEIVED")
}

func (s *Server) handleContacts(c *gin.Context) {
	contacts, err := s.store.ListContacts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Message: "failed to list contacts",
		})
		return
	}
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    contacts,
	})
}

func (s *Server) handleMessages(c *gin.Context) {
	contactID := c.Param("contactID")

	// An unknown id is not an error: the history is empty and the
	// contact null, same as the store reports it.
	contact, err := s.store.GetContact(contactID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Message: "failed to load contact",
		})
		return
	}

	messages, err := s.store.ListMessages(contactID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Message: "failed to load messages",
		})
		return
	}
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"contact":  contact,
			"messages": messages,
		},
	})
}

// handleWS upgrades the connection and hands it to the hub. The pumps
// own the connection from here on.
func (s *Server) handleWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := hub.NewClient(conn, s.hub, s.engine, s.logger)
	s.hub.Register(client)
	go client.WritePump()
	// The request context dies when this handler returns; commands must
	// outlive it.
	go client.ReadPump(context.Background())
}
