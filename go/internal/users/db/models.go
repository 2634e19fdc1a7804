package db

import (
	"time"
)

type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	HashedPassword string    `json:"hashed_password"`
	FlowersGrown   int32     `json:"flowers_grown"`
	CreatedAt      time.Time `json:"created_at"`
}
