package gateway

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// Service is the client-facing gateway: REST handlers, the WebSocket hub and
// the event broadcaster.
type Service struct {
	connectionManager *ConnectionManager
	handler           *Handler
	wsHandler         *WebSocketHandler
	allowedOrigins    []string
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	AllowedOrigins   []string
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		AllowedOrigins:   []string{"*"},
	}
}

// NewHub creates the connection manager on its own so it can be handed to the
// engine as a publisher before the engine exists.
func NewHub(config Config) *ConnectionManager {
	return NewConnectionManager(config.ConnectionConfig)
}

// NewService creates a new gateway service over hub and engine
func NewService(config Config, hub *ConnectionManager, engine Engine) *Service {
	return &Service{
		connectionManager: hub,
		handler:           NewHandler(engine),
		wsHandler:         NewWebSocketHandler(hub, engine),
		allowedOrigins:    config.AllowedOrigins,
	}
}

// Start runs the broadcast loop until ctx is cancelled
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting auction gateway service")
	s.connectionManager.Start(ctx)
	log.Info().Msg("auction gateway service stopped")
}

// Router builds the full HTTP handler with logging and CORS
func (s *Service) Router() http.Handler {
	router := mux.NewRouter()
	s.handler.RegisterRoutes(router)
	s.wsHandler.RegisterRoutes(router)
	router.Use(loggingMiddleware)

	log.Info().Msg("auction gateway routes registered")
	return WithCORS(router, s.allowedOrigins)
}

// AddHealthCheck registers a dependency reported by /health
func (s *Service) AddHealthCheck(name string, check HealthCheck) {
	s.handler.AddHealthCheck(name, check)
}
