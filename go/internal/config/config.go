// Package config loads the YAML policy file shared by the focushub commands.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/focushub/go/internal/focus/client"
	"github.com/mcdev12/focushub/go/internal/focus/gateway"
	"github.com/mcdev12/focushub/go/internal/rewards"
	"gopkg.in/yaml.v3"
)

const (
	PathEnv     = "FOCUSHUB_CONFIG"
	DefaultPath = "config.yaml"
)

type Config struct {
	Timer   gateway.TimerPolicy `yaml:"timer"`
	Rewards rewards.Policy      `yaml:"rewards"`

	Client struct {
		RejoinPolicy client.RejoinPolicy `yaml:"rejoin_policy"`
		ServerURL    string              `yaml:"server_url"`
	} `yaml:"client"`

	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`

	Leaderboard struct {
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"leaderboard"`
}

func Default() Config {
	var c Config
	c.Timer = gateway.DefaultTimerPolicy()
	c.Rewards = rewards.DefaultPolicy()
	c.Client.RejoinPolicy = client.RejoinResume
	c.Client.ServerURL = "http://localhost:8080"
	c.CORS.AllowedOrigins = []string{"*"}
	c.Leaderboard.CacheTTL = 30 * time.Second
	return c
}

// Path returns the config file location from FOCUSHUB_CONFIG
func Path() string {
	return GetEnv(PathEnv, DefaultPath)
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error.
func Load(path string) (Config, error) {
	c := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("failed to parse config: %w", err)
	}

	switch c.Client.RejoinPolicy {
	case client.RejoinResume, client.RejoinReselect:
	default:
		return c, fmt.Errorf("invalid client.rejoin_policy %q", c.Client.RejoinPolicy)
	}
	return c, nil
}

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func GetEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
