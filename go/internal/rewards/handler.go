package rewards

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/mcdev12/focushub/go/internal/auth"
	"github.com/mcdev12/focushub/go/internal/models"
	"github.com/mcdev12/focushub/go/internal/presence"
	"github.com/mcdev12/focushub/go/internal/users"
	"github.com/rs/zerolog/log"
)

// Claimer is what the HTTP handler needs from the rewards App
type Claimer interface {
	Claim(ctx context.Context, userID int64, roomID string) (*ClaimResult, error)
}

type Handler struct {
	app    Claimer
	issuer *auth.Issuer
}

func NewHandler(app Claimer, issuer *auth.Issuer) *Handler {
	return &Handler{app: app, issuer: issuer}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("POST /user/{userId}/claim-reward", h.issuer.Middleware(http.HandlerFunc(h.HandleClaim)))
}

// HandleClaim serves POST /user/{userId}/claim-reward?room_id=. Denials are
// 403 with the breakdown JSON encoded as a string in detail.
func (h *Handler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	userID, err := strconv.ParseInt(r.PathValue("userId"), 10, 64)
	if err != nil {
		users.WriteDetail(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	if userID != identity.UserID {
		users.WriteDetail(w, http.StatusUnauthorized, "Token does not match user")
		return
	}
	roomID := r.URL.Query().Get("room_id")
	if roomID == "" {
		users.WriteDetail(w, http.StatusBadRequest, "room_id is required")
		return
	}

	result, err := h.app.Claim(r.Context(), userID, roomID)
	if err != nil {
		h.writeClaimError(w, err, userID, roomID)
		return
	}

	users.WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"flowers": result.Flowers,
	})
}

func (h *Handler) writeClaimError(w http.ResponseWriter, err error, userID int64, roomID string) {
	var denied *models.VerificationDeniedError
	switch {
	case errors.As(err, &denied):
		detail, mErr := json.Marshal(denied.Breakdown)
		if mErr != nil {
			users.WriteDetail(w, http.StatusForbidden, "Verification failed")
			return
		}
		users.WriteDetail(w, http.StatusForbidden, string(detail))
	case errors.Is(err, presence.ErrNoSession):
		users.WriteDetail(w, http.StatusConflict, "No focus session in this room")
	case errors.Is(err, ErrSessionInProgress):
		users.WriteDetail(w, http.StatusConflict, "Focus session still in progress")
	case errors.Is(err, ErrAlreadyClaimed):
		users.WriteDetail(w, http.StatusConflict, "Reward already claimed")
	default:
		log.Error().Err(err).Int64("user_id", userID).Str("room_id", roomID).Msg("claim failed")
		users.WriteDetail(w, http.StatusInternalServerError, "Verification failed")
	}
}
