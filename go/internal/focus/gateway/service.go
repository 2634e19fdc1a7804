package gateway

import (
	"context"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/focushub/go/internal/presence"
	"github.com/rs/zerolog/log"
)

// Service is the room coordinator service that handles WebSocket connections
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
}

// Config holds configuration for the room coordinator
type Config struct {
	ConnectionConfig ConnectionConfig
	TimerPolicy      TimerPolicy
	Clock            clockwork.Clock
}

// DefaultConfig returns default configuration for the room coordinator
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		TimerPolicy:      DefaultTimerPolicy(),
	}
}

// NewService creates a new room coordinator. recorder may be nil when presence
// is not tracked.
func NewService(config Config, verifier TokenVerifier, recorder presence.Recorder) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig, config.TimerPolicy, config.Clock, recorder)

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager, verifier),
	}
}

// Start runs the coordinator until ctx is cancelled and its presence events
// are flushed
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting room coordinator")

	s.connectionManager.Start(ctx)

	log.Info().Msg("room coordinator stopped")
	return nil
}

// Done is closed once the coordinator has stopped and flushed presence events
func (s *Service) Done() <-chan struct{} {
	return s.connectionManager.Done()
}

// RegisterRoutes registers the WebSocket HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("room coordinator routes registered")
}

// GetStats returns statistics about the coordinator
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "room_coordinator"
	stats["status"] = "running"
	return stats
}
