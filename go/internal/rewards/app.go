package rewards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/focushub/go/internal/focus/protocol"
	"github.com/mcdev12/focushub/go/internal/models"
	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyClaimed    = errors.New("reward already claimed for this session")
	ErrSessionInProgress = errors.New("focus session still in progress")
)

// PresenceReader is what verification needs from the presence ledger
type PresenceReader interface {
	LatestSession(ctx context.Context, roomID string) (*models.FocusSession, error)
	FocusedTime(ctx context.Context, userID int64, session models.FocusSession) (time.Duration, error)
}

// ClaimStore records claim outcomes
type ClaimStore interface {
	HasAcceptedClaim(ctx context.Context, claim models.RewardClaim) (bool, error)
	RecordDenied(ctx context.Context, claim models.RewardClaim) error
	GrantReward(ctx context.Context, claim models.RewardClaim) (int, error)
}

// FlowersNotifier is told when a user's flower total changes
type FlowersNotifier interface {
	FlowersChanged(ctx context.Context, userID int64)
}

// App verifies reward claims against server-tracked presence
type App struct {
	presence PresenceReader
	store    ClaimStore
	notifier FlowersNotifier
	policy   Policy
	clock    clockwork.Clock
}

// NewApp creates a rewards App. notifier may be nil.
func NewApp(presence PresenceReader, store ClaimStore, notifier FlowersNotifier, policy Policy, clock clockwork.Clock) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{
		presence: presence,
		store:    store,
		notifier: notifier,
		policy:   policy,
		clock:    clock,
	}
}

// ClaimResult is an accepted claim
type ClaimResult struct {
	Verification models.Verification
	Flowers      int
}

// Claim verifies the user's presence in the room's latest session. A rejected
// claim returns *models.VerificationDeniedError carrying the breakdown.
func (a *App) Claim(ctx context.Context, userID int64, roomID string) (*ClaimResult, error) {
	roomID = protocol.NormalizeRoomID(roomID)

	session, err := a.presence.LatestSession(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !session.Ended(a.clock.Now()) {
		return nil, ErrSessionInProgress
	}

	claim := models.RewardClaim{
		ID:        uuid.New(),
		UserID:    userID,
		SessionID: session.ID,
		RoomID:    roomID,
		CreatedAt: a.clock.Now(),
	}

	claimed, err := a.store.HasAcceptedClaim(ctx, claim)
	if err != nil {
		return nil, err
	}
	if claimed {
		return nil, ErrAlreadyClaimed
	}

	focused, err := a.presence.FocusedTime(ctx, userID, *session)
	if err != nil {
		return nil, fmt.Errorf("failed to compute focused time: %w", err)
	}

	verification := a.policy.Verify(session.DurationMinutes, focused)
	claim.Accepted = verification.Accepted
	claim.Breakdown = &verification.VerificationBreakdown

	logger := log.With().
		Int64("user_id", userID).
		Str("room_id", roomID).
		Str("session_id", session.ID.String()).
		Int("present", verification.Present).
		Int("required", verification.Required).
		Logger()

	if !verification.Accepted {
		if err := a.store.RecordDenied(ctx, claim); err != nil {
			logger.Error().Err(err).Msg("failed to record denied claim")
		}
		logger.Info().Msg("reward claim denied")
		return nil, &models.VerificationDeniedError{Breakdown: verification.VerificationBreakdown}
	}

	flowers, err := a.store.GrantReward(ctx, claim)
	if err != nil {
		return nil, err
	}
	if a.notifier != nil {
		a.notifier.FlowersChanged(ctx, userID)
	}

	logger.Info().Int("flowers", flowers).Msg("reward granted")
	return &ClaimResult{Verification: verification, Flowers: flowers}, nil
}
