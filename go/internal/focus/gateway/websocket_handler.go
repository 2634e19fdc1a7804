package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/mcdev12/focushub/go/internal/auth"
	"github.com/mcdev12/focushub/go/internal/focus/protocol"
	"github.com/rs/zerolog/log"
)

// TokenVerifier validates the bearer token presented on connect
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// WebSocketHandler handles WebSocket upgrade requests for room connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	verifier          TokenVerifier
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, verifier TokenVerifier) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		verifier:          verifier,
	}
}

// HandleRoomConnection authenticates and upgrades a connection to /ws/{roomId}.
// Credential failures are rejected before the upgrade.
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	roomID := protocol.NormalizeRoomID(r.PathValue("roomId"))
	if roomID == "" {
		http.Error(w, "room id is required", http.StatusBadRequest)
		return
	}

	identity, err := h.verifier.Verify(auth.BearerToken(r))
	if err != nil {
		log.Warn().
			Err(err).
			Str("room_id", roomID).
			Msg("rejecting room connection with invalid token")
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, identity, roomID); err != nil {
		// the upgrader has already replied to the client
		log.Error().
			Err(err).
			Str("room_id", roomID).
			Int64("user_id", identity.UserID).
			Msg("failed to upgrade WebSocket connection")
		return
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := h.connectionManager.GetConnectionStats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error().Err(err).Msg("failed to write connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
	mux.HandleFunc("GET /ws/{roomId}", h.HandleRoomConnection)
}
