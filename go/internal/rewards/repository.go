package rewards

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcdev12/focushub/go/internal/models"
	"github.com/mcdev12/focushub/go/internal/rewards/db"
	"github.com/mcdev12/focushub/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

// Querier defines what the repository needs from the database layer
type Querier interface {
	CreateRewardClaim(ctx context.Context, arg db.CreateRewardClaimParams) (db.RewardClaim, error)
	GetAcceptedClaim(ctx context.Context, arg db.GetAcceptedClaimParams) (db.RewardClaim, error)
	IncrementUserFlowers(ctx context.Context, id int64) (int32, error)
}

// Repository records claims in Postgres
type Repository struct {
	database *sql.DB
	queries  Querier
}

func NewRepository(database *sql.DB) *Repository {
	return &Repository{
		database: database,
		queries:  db.New(database),
	}
}

// HasAcceptedClaim reports whether the user was already rewarded for the session
func (r *Repository) HasAcceptedClaim(ctx context.Context, claim models.RewardClaim) (bool, error) {
	_, err := r.queries.GetAcceptedClaim(ctx, db.GetAcceptedClaimParams{
		UserID:    claim.UserID,
		SessionID: claim.SessionID,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get accepted claim: %w", err)
	}
	return true, nil
}

// RecordDenied stores a rejected claim with its breakdown
func (r *Repository) RecordDenied(ctx context.Context, claim models.RewardClaim) error {
	params, err := claimParams(claim)
	if err != nil {
		return err
	}
	if _, err := r.queries.CreateRewardClaim(ctx, params); err != nil {
		return fmt.Errorf("failed to record denied claim: %w", err)
	}
	return nil
}

// GrantReward stores an accepted claim and increments the user's flowers in
// one transaction. It returns the new flower total.
func (r *Repository) GrantReward(ctx context.Context, claim models.RewardClaim) (int, error) {
	params, err := claimParams(claim)
	if err != nil {
		return 0, err
	}

	var flowers int32
	err = sqlutil.Run(ctx, r.database, newTxQueries, func(q *db.Queries) error {
		if _, err := q.CreateRewardClaim(ctx, params); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrAlreadyClaimed
			}
			return fmt.Errorf("failed to record claim: %w", err)
		}
		flowers, err = q.IncrementUserFlowers(ctx, claim.UserID)
		if err != nil {
			return fmt.Errorf("failed to increment flowers: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(flowers), nil
}

func newTxQueries(tx *sql.Tx) *db.Queries {
	return db.New(tx)
}

func claimParams(claim models.RewardClaim) (db.CreateRewardClaimParams, error) {
	breakdown := pqtype.NullRawMessage{}
	if claim.Breakdown != nil {
		raw, err := json.Marshal(claim.Breakdown)
		if err != nil {
			return db.CreateRewardClaimParams{}, fmt.Errorf("failed to marshal breakdown: %w", err)
		}
		breakdown = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
	}
	return db.CreateRewardClaimParams{
		ID:        claim.ID,
		UserID:    claim.UserID,
		SessionID: claim.SessionID,
		RoomID:    claim.RoomID,
		Accepted:  claim.Accepted,
		Breakdown: breakdown,
	}, nil
}
