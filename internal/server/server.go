// Package server exposes the HTTP surface: webhook ingest, a small REST
// API, and the websocket endpoint observers connect to.
package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/matheus3301/relay/internal/hub"
	"github.com/matheus3301/relay/internal/model"
	"github.com/matheus3301/relay/internal/relay"
	"go.uber.org/zap"
)

// Store is the read side the REST handlers need. *store.DB implements it.
type Store interface {
	ListContacts() ([]model.Contact, error)
	ListMessages(contactID string) ([]model.Message, error)
	GetContact(id string) (*model.Contact, error)
}

// Server wires the relay engine and hub behind a gin router.
type Server struct {
	engine   *relay.Engine
	store    Store
	hub      *hub.Hub
	router   *gin.Engine
	server   *http.Server
	upgrader websocket.Upgrader
	logger   *zap.Logger

	routesOnce sync.Once
}

// New builds the server for addr. Routes are registered on Start.
func New(engine *relay.Engine, st Store, h *hub.Hub, addr string, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	return &Server{
		engine: engine,
		store:  st,
		hub:    h,
		router: router,
		server: &http.Server{
			Addr:    addr,
			Handler: router,
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Observers are local dashboards; origin is not enforced.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (s *Server) registerRoutes(router *gin.Engine) {
	s.routesOnce.Do(func() {
		router.GET("/webhook", s.handleVerify)
		router.POST("/webhook", s.handleWebhook)
		router.GET("/ws", s.handleWS)

		api := router.Group("/api")
		{
			api.GET("/contacts", s.handleContacts)
			api.GET("/messages/:contactID", s.handleMessages)
		}
	})
}

// Start registers routes and serves until Stop or a listener error.
func (s *Server) Start() error {
	s.registerRoutes(s.router)

	s.logger.Info("http server listening", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Stop shuts the listener down, waiting for in-flight requests up to
// ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	s.registerRoutes(s.router)
	return s.router
}
