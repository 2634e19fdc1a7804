package users

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/mcdev12/focushub/go/internal/auth"
	"github.com/rs/zerolog/log"
)

// HTTPHandler serves the form based account endpoints used by browser and
// terminal clients
type HTTPHandler struct {
	app    UsersApp
	issuer *auth.Issuer
}

func NewHTTPHandler(app UsersApp, issuer *auth.Issuer) *HTTPHandler {
	return &HTTPHandler{app: app, issuer: issuer}
}

func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /register", h.HandleRegister)
	mux.HandleFunc("POST /token", h.HandleLogin)
	mux.Handle("GET /users/me", h.issuer.Middleware(http.HandlerFunc(h.HandleMe)))
	mux.HandleFunc("GET /user/{userId}", h.HandleUserStats)
	mux.HandleFunc("GET /leaderboard", h.HandleLeaderboard)
}

func (h *HTTPHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	req := CreateUserRequest{
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
	}

	_, err := h.app.Register(r.Context(), req)
	switch {
	case errors.Is(err, ErrUsernameTaken):
		WriteDetail(w, http.StatusBadRequest, "Username already registered")
	case err != nil:
		log.Error().Err(err).Msg("register failed")
		WriteDetail(w, http.StatusBadRequest, err.Error())
	default:
		WriteJSON(w, http.StatusOK, map[string]string{"msg": "User created successfully"})
	}
}

func (h *HTTPHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	result, err := h.app.Login(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	if errors.Is(err, auth.ErrInvalidCredentials) {
		WriteDetail(w, http.StatusBadRequest, "Incorrect username or password")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("login failed")
		WriteDetail(w, http.StatusInternalServerError, "Login failed")
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	user, err := h.app.GetUser(r.Context(), id.UserID)
	if errors.Is(err, ErrUserNotFound) {
		WriteDetail(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("user_id", id.UserID).Msg("failed to load current user")
		WriteDetail(w, http.StatusInternalServerError, "Failed to load user")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"id":       user.ID,
		"username": user.Username,
		"flowers":  user.FlowersGrown,
	})
}

// HandleUserStats reports zero flowers for unknown users
func (h *HTTPHandler) HandleUserStats(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("userId"), 10, 64)
	if err != nil {
		WriteDetail(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	flowers := 0
	user, err := h.app.GetUser(r.Context(), id)
	switch {
	case err == nil:
		flowers = user.FlowersGrown
	case !errors.Is(err, ErrUserNotFound):
		log.Error().Err(err).Int64("user_id", id).Msg("failed to load user stats")
		WriteDetail(w, http.StatusInternalServerError, "Failed to load user")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"flowers": flowers})
}

func (h *HTTPHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.app.Leaderboard(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to load leaderboard")
		WriteDetail(w, http.StatusInternalServerError, "Failed to load leaderboard")
		return
	}
	WriteJSON(w, http.StatusOK, entries)
}

// WriteJSON writes v as the JSON response body
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// WriteDetail writes an error body of the form {"detail": message}
func WriteDetail(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"detail": message})
}
