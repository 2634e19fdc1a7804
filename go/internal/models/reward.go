package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// VerificationBreakdown is what the account service reports about a claim.
// Present and Required are minutes; Percentage is present/required in percent.
type VerificationBreakdown struct {
	Message    string `json:"message,omitempty"`
	Present    int    `json:"present"`
	Required   int    `json:"required"`
	Percentage int    `json:"percentage"`
}

// Verification is the outcome of recomputing a participant's presence
type Verification struct {
	VerificationBreakdown
	Accepted bool `json:"accepted"`
}

// RewardClaim is a recorded claim attempt
type RewardClaim struct {
	ID        uuid.UUID              `json:"id"`
	UserID    int64                  `json:"user_id"`
	SessionID uuid.UUID              `json:"session_id"`
	RoomID    string                 `json:"room_id"`
	Accepted  bool                   `json:"accepted"`
	Breakdown *VerificationBreakdown `json:"breakdown,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// VerificationDeniedError is returned when the account service rejects a claim.
// Malformed is set when the denial payload could not be parsed and the
// breakdown was zeroed.
type VerificationDeniedError struct {
	Breakdown VerificationBreakdown
	Malformed bool
}

func (e *VerificationDeniedError) Error() string {
	if e.Malformed {
		return "reward claim denied (unreadable breakdown)"
	}
	return fmt.Sprintf("reward claim denied: %d of %d minutes present (%d%%)",
		e.Breakdown.Present, e.Breakdown.Required, e.Breakdown.Percentage)
}
