package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/focushub/go/internal/models"
	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisLeaderboardCache keeps the leaderboard as one JSON value in Redis
type RedisLeaderboardCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedisLeaderboardCache(cfg RedisConfig, prefix string) (*RedisLeaderboardCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisLeaderboardCache{
		client: client,
		key:    fmt.Sprintf("%s:leaderboard", prefix),
		ttl:    ttl,
	}, nil
}

func (c *RedisLeaderboardCache) Get(ctx context.Context) ([]models.LeaderboardEntry, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var entries []models.LeaderboardEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return entries, nil
}

func (c *RedisLeaderboardCache) Set(ctx context.Context, entries []models.LeaderboardEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}
	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

func (c *RedisLeaderboardCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

func (c *RedisLeaderboardCache) Close() error {
	return c.client.Close()
}

func (c *RedisLeaderboardCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
