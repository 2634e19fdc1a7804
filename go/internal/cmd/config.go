package main

import (
	"strings"

	"github.com/mcdev12/focushub/go/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	presenceDirect    = "direct"
	presenceJetStream = "jetstream"
)

// ServerEnv holds the settings read from the environment
type ServerEnv struct {
	Port              string
	LogLevel          string
	JWTSecret         string
	NATSURL           string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	PresenceTransport string
	EmbedCoordinator  bool
}

func loadEnv() ServerEnv {
	return ServerEnv{
		Port:              config.GetEnv("PORT", "8080"),
		LogLevel:          config.GetEnv("LOG_LEVEL", "info"),
		JWTSecret:         config.GetEnv("JWT_SECRET", ""),
		NATSURL:           config.GetEnv("NATS_URL", "nats://localhost:4222"),
		RedisAddr:         config.GetEnv("REDIS_ADDR", ""),
		RedisPassword:     config.GetEnv("REDIS_PASSWORD", ""),
		RedisDB:           config.GetEnvAsInt("REDIS_DB", 0),
		PresenceTransport: strings.ToLower(config.GetEnv("PRESENCE_TRANSPORT", presenceDirect)),
		EmbedCoordinator:  config.GetEnv("EMBED_COORDINATOR", "true") == "true",
	}
}

func setupLogging(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	if err != nil {
		log.Warn().Str("level", level).Msg("unknown LOG_LEVEL, using info")
	}
}
