package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mcdev12/focushub/go/internal/config"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(services *Services, health *HealthChecker, env ServerEnv, cfg config.Config) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	// Register services
	registerServices(mux, services)

	// Add health check endpoint
	setupHealthCheck(mux, services, health)

	// Wrap with CORS
	handler := c.Handler(mux)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:    fmt.Sprintf(":%s", env.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func registerServices(mux *http.ServeMux, services *Services) {
	// Account HTTP endpoints
	services.UsersHTTP.RegisterRoutes(mux)

	// Account Connect procedures
	services.Users.RegisterRoutes(mux)

	// Reward claims
	services.Rewards.RegisterRoutes(mux)

	// Room coordinator websocket routes
	if services.Coordinator != nil {
		services.Coordinator.RegisterRoutes(mux)
	}
}

func setupHealthCheck(mux *http.ServeMux, services *Services, health *HealthChecker) {
	mux.Handle("GET /health", health)

	mux.HandleFunc("GET /info", func(w http.ResponseWriter, r *http.Request) {
		info := map[string]any{"service": "focushub"}
		if services.Coordinator != nil {
			info["coordinator"] = services.Coordinator.GetStats()
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(info); err != nil {
			log.Error().Err(err).Msg("failed to write info response")
		}
	})
}
