package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const createRewardClaim = `-- name: CreateRewardClaim :one
INSERT INTO reward_claims (id, user_id, session_id, room_id, accepted, breakdown)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id, session_id) WHERE accepted DO NOTHING
RETURNING id, user_id, session_id, room_id, accepted, breakdown, created_at
`

type CreateRewardClaimParams struct {
	ID        uuid.UUID             `json:"id"`
	UserID    int64                 `json:"user_id"`
	SessionID uuid.UUID             `json:"session_id"`
	RoomID    string                `json:"room_id"`
	Accepted  bool                  `json:"accepted"`
	Breakdown pqtype.NullRawMessage `json:"breakdown"`
}

// CreateRewardClaim returns sql.ErrNoRows when an accepted claim already
// exists for the user and session.
func (q *Queries) CreateRewardClaim(ctx context.Context, arg CreateRewardClaimParams) (RewardClaim, error) {
	row := q.db.QueryRowContext(ctx, createRewardClaim,
		arg.ID,
		arg.UserID,
		arg.SessionID,
		arg.RoomID,
		arg.Accepted,
		arg.Breakdown,
	)
	var i RewardClaim
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.SessionID,
		&i.RoomID,
		&i.Accepted,
		&i.Breakdown,
		&i.CreatedAt,
	)
	return i, err
}

const getAcceptedClaim = `-- name: GetAcceptedClaim :one
SELECT id, user_id, session_id, room_id, accepted, breakdown, created_at FROM reward_claims
WHERE user_id = $1 AND session_id = $2 AND accepted
`

type GetAcceptedClaimParams struct {
	UserID    int64     `json:"user_id"`
	SessionID uuid.UUID `json:"session_id"`
}

func (q *Queries) GetAcceptedClaim(ctx context.Context, arg GetAcceptedClaimParams) (RewardClaim, error) {
	row := q.db.QueryRowContext(ctx, getAcceptedClaim, arg.UserID, arg.SessionID)
	var i RewardClaim
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.SessionID,
		&i.RoomID,
		&i.Accepted,
		&i.Breakdown,
		&i.CreatedAt,
	)
	return i, err
}

const incrementUserFlowers = `-- name: IncrementUserFlowers :one
UPDATE users
SET flowers_grown = flowers_grown + 1
WHERE id = $1
RETURNING flowers_grown
`

func (q *Queries) IncrementUserFlowers(ctx context.Context, id int64) (int32, error) {
	row := q.db.QueryRowContext(ctx, incrementUserFlowers, id)
	var flowers_grown int32
	err := row.Scan(&flowers_grown)
	return flowers_grown, err
}
