package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/focushub/go/internal/focus/protocol"
	"github.com/mcdev12/focushub/go/internal/models"
	"github.com/rs/zerolog/log"
)

// SessionState is the client-local state of the room session
type SessionState string

const (
	StateIdle      SessionState = "idle"
	StateRunning   SessionState = "running"
	StateCompleted SessionState = "completed"
	StateFailed    SessionState = "failed"
	// StateClaimDenied is the failure substate entered when the account service
	// rejects a claim. It carries the verification breakdown until dismissed.
	StateClaimDenied SessionState = "claim_denied"
)

// RejoinPolicy decides what happens to the chosen duration after a rejoin
type RejoinPolicy string

const (
	// RejoinResume keeps the previously selected duration for the next start
	RejoinResume RejoinPolicy = "resume"
	// RejoinReselect forgets it, so the participant has to pick again
	RejoinReselect RejoinPolicy = "reselect"
)

var (
	// ErrInvalidTransition is returned when a local request is not allowed in the current state
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrNoDuration is returned by a start without minutes when there is no
	// previous selection to reuse
	ErrNoDuration = errors.New("pick a session duration")
)

// ActionSender transmits actions upstream. Implementations drop (and report)
// actions they cannot deliver rather than queueing them.
type ActionSender interface {
	Send(action protocol.Action) error
}

// Machine is the client-local session state machine. The coordinator is the
// source of truth for when a session runs; the machine only decides completion
// and failure locally. Not safe for concurrent use.
type Machine struct {
	state      SessionState
	sender     ActionSender
	reconciler *Reconciler
	policy     RejoinPolicy

	durationSeconds int
	selectedMinutes int
	failed          bool

	// deadline of the session that last completed. It survives the claim and
	// dismiss so a late SYNC_TIMER for that session is still recognised.
	completedDeadline time.Time
	denial            *models.VerificationBreakdown
}

// NewMachine creates a machine in the Idle state
func NewMachine(sender ActionSender, reconciler *Reconciler, policy RejoinPolicy) *Machine {
	if policy == "" {
		policy = RejoinResume
	}
	return &Machine{
		state:      StateIdle,
		sender:     sender,
		reconciler: reconciler,
		policy:     policy,
	}
}

func (m *Machine) State() SessionState { return m.state }

// TimeLeft is the derived countdown in seconds
func (m *Machine) TimeLeft() int { return m.reconciler.Remaining() }

// DurationSeconds is the nominal session length declared by the coordinator
func (m *Machine) DurationSeconds() int { return m.durationSeconds }

// SelectedMinutes is the duration last requested locally, 0 if none
func (m *Machine) SelectedMinutes() int { return m.selectedMinutes }

// Failed reports whether disengagement has been flagged for the current session
func (m *Machine) Failed() bool { return m.failed }

// Denial returns the verification breakdown while in StateClaimDenied
func (m *Machine) Denial() *models.VerificationBreakdown {
	if m.denial == nil {
		return nil
	}
	d := *m.denial
	return &d
}

// RequestStart asks the coordinator to start a room timer. The local state does
// not change; the session only runs once TIMER_STARTED comes back. A zero
// duration reuses the last selection, which the reselect policy clears on rejoin.
func (m *Machine) RequestStart(minutes int) error {
	if m.state != StateIdle {
		return fmt.Errorf("%w: start requested while %s", ErrInvalidTransition, m.state)
	}
	if minutes < 0 {
		return fmt.Errorf("%w: duration must be positive, got %d", ErrInvalidTransition, minutes)
	}
	if minutes == 0 {
		if m.selectedMinutes == 0 {
			return ErrNoDuration
		}
		minutes = m.selectedMinutes
	}
	m.selectedMinutes = minutes
	return m.sender.Send(protocol.StartTimer(minutes))
}

// ApplyTimer handles TIMER_STARTED and SYNC_TIMER. It reports whether the
// machine state or deadline changed.
func (m *Machine) ApplyTimer(p protocol.TimerPayload) bool {
	deadline := p.Deadline()

	switch m.state {
	case StateIdle:
		// a late confirmation of a session that already ended
		if deadline.Equal(m.completedDeadline) || !deadline.After(m.reconciler.clock.Now()) {
			return false
		}

	case StateRunning:
		// re-arm

	case StateCompleted, StateClaimDenied:
		if deadline.Equal(m.completedDeadline) {
			// the coordinator confirming a session we already finished
			return false
		}
		if deadline.Before(m.reconciler.clock.Now()) {
			return false
		}
		// a room mate started the next session
		m.completedDeadline = time.Time{}
		m.denial = nil

	case StateFailed:
		// only an explicit rejoin leaves Failed
		return false
	}

	if p.Duration > 0 {
		m.durationSeconds = p.DurationSeconds()
	}
	m.state = StateRunning
	if remaining := m.reconciler.Arm(deadline); remaining == 0 {
		m.complete()
	}
	return true
}

// Tick consumes one reconciler tick. It reports whether the session completed.
func (m *Machine) Tick() bool {
	if m.state != StateRunning {
		return false
	}
	if _, done := m.reconciler.Tick(); done {
		return m.complete()
	}
	return false
}

// complete is the single convergence point for both completion sources
func (m *Machine) complete() bool {
	if m.state != StateRunning || m.failed {
		return false
	}
	m.reconciler.Stop()
	m.completedDeadline, _ = m.reconciler.Deadline()
	m.state = StateCompleted
	return true
}

// Disengage is the strict-mode check run when the page loses visibility. It
// flags failure at most once per session and emits FAIL upstream.
func (m *Machine) Disengage() bool {
	if m.state != StateRunning || m.failed {
		return false
	}
	m.failed = true
	m.state = StateFailed
	m.reconciler.Stop()

	if err := m.sender.Send(protocol.Fail()); err != nil {
		log.Debug().Err(err).Msg("fail action not delivered")
	}
	return true
}

// Rejoin leaves Failed and tells the coordinator the participant is back
func (m *Machine) Rejoin() error {
	if m.state != StateFailed {
		return fmt.Errorf("%w: rejoin while %s", ErrInvalidTransition, m.state)
	}
	m.failed = false
	m.denial = nil
	m.reconciler.Reset()
	m.state = StateIdle

	if m.policy == RejoinReselect {
		m.selectedMinutes = 0
	}
	return m.sender.Send(protocol.Rejoin())
}

// ClaimAccepted returns a completed session to Idle
func (m *Machine) ClaimAccepted() error {
	if m.state != StateCompleted {
		return fmt.Errorf("%w: claim accepted while %s", ErrInvalidTransition, m.state)
	}
	m.reconciler.Reset()
	m.state = StateIdle
	return nil
}

// ClaimRejected enters StateClaimDenied carrying the breakdown verbatim
func (m *Machine) ClaimRejected(b models.VerificationBreakdown) error {
	if m.state != StateCompleted {
		return fmt.Errorf("%w: claim rejected while %s", ErrInvalidTransition, m.state)
	}
	m.denial = &b
	m.state = StateClaimDenied
	return nil
}

// Dismiss clears a claim denial
func (m *Machine) Dismiss() error {
	if m.state != StateClaimDenied {
		return fmt.Errorf("%w: dismiss while %s", ErrInvalidTransition, m.state)
	}
	m.denial = nil
	m.reconciler.Reset()
	m.state = StateIdle
	return nil
}

// Suspend cancels the countdown when the connection goes away
func (m *Machine) Suspend() {
	m.reconciler.Stop()
}
