package models

import (
	"time"
)

// User represents an account in the system
type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	HashedPassword string    `json:"-"`
	FlowersGrown   int       `json:"flowers"`
	CreatedAt      time.Time `json:"created_at"`
}

// LeaderboardEntry is one row of the flowers leaderboard
type LeaderboardEntry struct {
	Username string `json:"username"`
	Flowers  int    `json:"flowers"`
}
