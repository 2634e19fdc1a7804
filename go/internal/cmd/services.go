package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/focushub/go/internal/auth"
	"github.com/mcdev12/focushub/go/internal/config"
	"github.com/mcdev12/focushub/go/internal/focus/gateway"
	"github.com/mcdev12/focushub/go/internal/presence"
	"github.com/mcdev12/focushub/go/internal/rewards"
	"github.com/mcdev12/focushub/go/internal/users"
	usersdb "github.com/mcdev12/focushub/go/internal/users/db"
	"github.com/rs/zerolog/log"
)

const shutdownFlushTimeout = 10 * time.Second

type Services struct {
	Users     *users.Service
	UsersHTTP *users.HTTPHandler
	Rewards   *rewards.Handler
	Presence  *presence.App

	// optional
	Coordinator *gateway.Service
	Consumer    *presence.Consumer
	Cache       *users.RedisLeaderboardCache
}

func setupServices(database *sql.DB, pool *pgxpool.Pool, env ServerEnv, cfg config.Config) (*Services, error) {
	// Wire up dependency injection chain
	// Database layer → Repository layer → App layer → Service layer
	issuer := auth.NewIssuer(env.JWTSecret, auth.DefaultTokenTTL, nil)
	services := &Services{}

	// Leaderboard cache
	var cache users.LeaderboardCache
	if env.RedisAddr != "" {
		redisCache, err := users.NewRedisLeaderboardCache(users.RedisConfig{
			Address:  env.RedisAddr,
			Password: env.RedisPassword,
			DB:       env.RedisDB,
			TTL:      cfg.Leaderboard.CacheTTL,
		}, "focushub")
		if err != nil {
			return nil, err
		}
		services.Cache = redisCache
		cache = redisCache
	}

	// Users
	userQueries := usersdb.New(database)
	userRepo := users.NewRepository(userQueries)
	userApp := users.NewApp(userRepo, issuer, cache)
	services.Users = users.NewService(userApp)
	services.UsersHTTP = users.NewHTTPHandler(userApp, issuer)

	// Presence ledger
	presenceApp := presence.NewApp(presence.NewPgStore(pool), nil)
	services.Presence = presenceApp

	// Rewards
	rewardsRepo := rewards.NewRepository(database)
	rewardsApp := rewards.NewApp(presenceApp, rewardsRepo, userApp, cfg.Rewards, nil)
	services.Rewards = rewards.NewHandler(rewardsApp, issuer)

	switch env.PresenceTransport {
	case presenceDirect:
	case presenceJetStream:
		consumerCfg := presence.DefaultConsumerConfig()
		consumerCfg.URL = env.NATSURL
		consumer, err := presence.NewConsumer(presenceApp, consumerCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create presence consumer: %w", err)
		}
		services.Consumer = consumer
	default:
		return nil, fmt.Errorf("unknown PRESENCE_TRANSPORT %q", env.PresenceTransport)
	}

	// Room coordinator in the same process, writing presence straight to the ledger
	if env.EmbedCoordinator {
		gatewayCfg := gateway.DefaultConfig()
		gatewayCfg.TimerPolicy = cfg.Timer
		services.Coordinator = gateway.NewService(gatewayCfg, issuer, presenceApp)
	}

	return services, nil
}

// Start runs the background parts of the services until ctx is cancelled
func (s *Services) Start(ctx context.Context) {
	if s.Coordinator != nil {
		go func() {
			if err := s.Coordinator.Start(ctx); err != nil {
				log.Error().Err(err).Msg("room coordinator failed")
			}
		}()
	}
	if s.Consumer != nil {
		go func() {
			if err := s.Consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("presence consumer failed")
			}
		}()
	}
}

// Close waits for the embedded coordinator to flush its presence events, then
// releases the broker and cache connections. The ledger store must still be
// open when it is called.
func (s *Services) Close() {
	if s.Coordinator != nil {
		select {
		case <-s.Coordinator.Done():
		case <-time.After(shutdownFlushTimeout):
			log.Warn().Msg("room coordinator did not stop in time, presence events may be lost")
		}
	}
	if s.Consumer != nil {
		s.Consumer.Stop()
	}
	if s.Cache != nil {
		s.Cache.Close()
	}
}
