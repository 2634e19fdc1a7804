package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type RewardClaim struct {
	ID        uuid.UUID             `json:"id"`
	UserID    int64                 `json:"user_id"`
	SessionID uuid.UUID             `json:"session_id"`
	RoomID    string                `json:"room_id"`
	Accepted  bool                  `json:"accepted"`
	Breakdown pqtype.NullRawMessage `json:"breakdown"`
	CreatedAt time.Time             `json:"created_at"`
}
