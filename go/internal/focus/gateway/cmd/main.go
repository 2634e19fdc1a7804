package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/mcdev12/focushub/go/internal/auth"
	"github.com/mcdev12/focushub/go/internal/config"
	"github.com/mcdev12/focushub/go/internal/dbconfig"
	"github.com/mcdev12/focushub/go/internal/focus/gateway"
	"github.com/mcdev12/focushub/go/internal/presence"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if level, err := zerolog.ParseLevel(config.GetEnv("LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	// Get configuration
	port := config.GetEnv("GATEWAY_PORT", "8081")
	natsURL := config.GetEnv("NATS_URL", "nats://localhost:4222")
	transport := strings.ToLower(config.GetEnv("PRESENCE_TRANSPORT", "jetstream"))
	secret := config.GetEnv("JWT_SECRET", "")
	if secret == "" {
		log.Fatal().Msg("JWT_SECRET environment variable is required")
	}

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Presence recorder
	var recorder presence.Recorder
	switch transport {
	case "jetstream":
		publisherCfg := presence.DefaultJetStreamConfig()
		publisherCfg.URL = natsURL
		publisher, err := presence.NewJetStreamPublisher(publisherCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create presence publisher")
		}
		defer publisher.Close()
		recorder = publisher
	case "direct":
		dbCfg := dbconfig.NewConfigFromEnv()
		pool, err := pgxpool.New(ctx, dbCfg.PoolDSN())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pgx pool")
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ping database")
		}
		recorder = presence.NewApp(presence.NewPgStore(pool), nil)
	case "none":
		log.Warn().Msg("presence is not recorded; reward claims cannot be verified")
	default:
		log.Fatal().Str("transport", transport).Msg("unknown PRESENCE_TRANSPORT")
	}

	log.Info().
		Str("nats_url", natsURL).
		Str("presence_transport", transport).
		Str("port", port).
		Int("default_minutes", cfg.Timer.DefaultMinutes).
		Msg("starting room coordinator")

	// Create coordinator service
	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.TimerPolicy = cfg.Timer
	issuer := auth.NewIssuer(secret, auth.DefaultTokenTTL, nil)
	gatewayService := gateway.NewService(gatewayConfig, issuer, recorder)

	// Setup HTTP server
	mux := http.NewServeMux()
	gatewayService.RegisterRoutes(mux)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("GET /info", func(w http.ResponseWriter, r *http.Request) {
		stats := gatewayService.GetStats()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"service":"room-coordinator","connections":%d,"rooms":%d}`,
			stats["total_connections"], stats["active_rooms"])
	})

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", port),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("room coordinator failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()

	select {
	case <-gatewayService.Done():
	case <-shutdownCtx.Done():
		log.Warn().Msg("room coordinator did not stop in time, presence events may be lost")
	}

	log.Info().Msg("room coordinator shutdown complete")
}
