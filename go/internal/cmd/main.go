package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/focushub/go/internal/config"
	"github.com/mcdev12/focushub/go/internal/dbconfig"
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
	env := loadEnv()
	setupLogging(env.LogLevel)

	if env.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET environment variable is required")
	}

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	dbCfg := dbconfig.NewConfigFromEnv()
	database, err := setupDatabase(dbCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup database")
	}
	defer database.Close()

	pool, err := setupPool(ctx, dbCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup pgx pool")
	}
	defer pool.Close()

	services, err := setupServices(database, pool, env, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup services")
	}
	defer services.Close()

	services.Start(ctx)
	server := setupServer(services, NewHealthChecker(database, pool, services), env, cfg)

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("presence_transport", env.PresenceTransport).
			Bool("coordinator", services.Coordinator != nil).
			Msg("focushub server starting")
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

	log.Info().Msg("focushub server shutdown complete")
}
