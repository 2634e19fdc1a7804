package client

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/focushub/go/internal/focus/protocol"
	"github.com/mcdev12/focushub/go/internal/models"
)

type recordingSender struct {
	sent []protocol.Action
	err  error
}

func (s *recordingSender) Send(action protocol.Action) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, action)
	return nil
}

func (s *recordingSender) count(action protocol.ActionType) int {
	n := 0
	for _, a := range s.sent {
		if a.Action == action {
			n++
		}
	}
	return n
}

func newTestMachine(policy RejoinPolicy) (*Machine, *recordingSender, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	sender := &recordingSender{}
	return NewMachine(sender, NewReconciler(clock), policy), sender, clock
}

func timerIn(clock clockwork.Clock, d time.Duration, minutes int) protocol.TimerPayload {
	return protocol.TimerPayload{
		EndTime:  protocol.EpochSeconds(clock.Now().Add(d)),
		Duration: minutes,
	}
}

func TestMachineStartRequestStaysIdle(t *testing.T) {
	m, sender, _ := newTestMachine(RejoinResume)

	if err := m.RequestStart(0); !errors.Is(err, ErrNoDuration) {
		t.Fatalf("RequestStart(0) with no selection error = %v, want ErrNoDuration", err)
	}
	if err := m.RequestStart(25); err != nil {
		t.Fatalf("RequestStart() error = %v", err)
	}
	if m.State() != StateIdle {
		t.Fatalf("state = %s, want idle until the coordinator confirms", m.State())
	}
	if len(sender.sent) != 1 || sender.sent[0] != protocol.StartTimer(25) {
		t.Fatalf("sent = %+v, want one START_TIMER{25}", sender.sent)
	}
	if m.SelectedMinutes() != 25 {
		t.Fatalf("SelectedMinutes() = %d, want 25", m.SelectedMinutes())
	}
	if err := m.RequestStart(-5); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("RequestStart(-5) error = %v, want ErrInvalidTransition", err)
	}
}

func TestMachineRestartAfterRejoin(t *testing.T) {
	tests := []struct {
		policy   RejoinPolicy
		wantErr  error
		wantSent bool
	}{
		{policy: RejoinResume, wantSent: true},
		{policy: RejoinReselect, wantErr: ErrNoDuration},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			m, sender, clock := newTestMachine(tt.policy)
			if err := m.RequestStart(10); err != nil {
				t.Fatal(err)
			}
			m.ApplyTimer(timerIn(clock, 10*time.Minute, 10))
			m.Disengage()
			if err := m.Rejoin(); err != nil {
				t.Fatal(err)
			}
			sender.sent = nil

			err := m.RequestStart(0)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("RequestStart(0) error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantSent {
				if len(sender.sent) != 1 || sender.sent[0] != protocol.StartTimer(10) {
					t.Fatalf("sent = %+v, want START_TIMER{10}", sender.sent)
				}
			} else if len(sender.sent) != 0 {
				t.Fatalf("sent = %+v, want nothing", sender.sent)
			}

			// an explicit duration always works
			if err := m.RequestStart(15); err != nil {
				t.Fatalf("RequestStart(15) error = %v", err)
			}
			if m.SelectedMinutes() != 15 {
				t.Fatalf("SelectedMinutes() = %d, want 15", m.SelectedMinutes())
			}
		})
	}
}

func TestMachineRunsToCompletion(t *testing.T) {
	m, _, clock := newTestMachine(RejoinResume)

	if !m.ApplyTimer(timerIn(clock, 1500*time.Second, 25)) {
		t.Fatal("ApplyTimer() should change state")
	}
	if m.State() != StateRunning {
		t.Fatalf("state = %s, want running", m.State())
	}
	if m.DurationSeconds() != 1500 || m.TimeLeft() != 1500 {
		t.Fatalf("duration/time left = %d/%d, want 1500/1500", m.DurationSeconds(), m.TimeLeft())
	}

	completed := 0
	for i := 0; i < 1500; i++ {
		clock.Advance(time.Second)
		if m.Tick() {
			completed++
		}
		if i < 1499 && m.State() != StateRunning {
			t.Fatalf("tick %d: state = %s, want running", i, m.State())
		}
	}
	if completed != 1 || m.State() != StateCompleted {
		t.Fatalf("completed = %d, state = %s, want one completion", completed, m.State())
	}
	if m.TimeLeft() != 0 {
		t.Fatalf("TimeLeft() = %d, want 0", m.TimeLeft())
	}

	denial := models.VerificationBreakdown{Present: 20, Required: 25, Percentage: 80}
	if err := m.ClaimRejected(denial); err != nil {
		t.Fatalf("ClaimRejected() error = %v", err)
	}
	if m.State() != StateClaimDenied {
		t.Fatalf("state = %s, want claim_denied", m.State())
	}
	if got := m.Denial(); got == nil || *got != denial {
		t.Fatalf("Denial() = %+v, want %+v", got, denial)
	}

	if err := m.Dismiss(); err != nil {
		t.Fatalf("Dismiss() error = %v", err)
	}
	if m.State() != StateIdle || m.Denial() != nil {
		t.Fatalf("after dismiss state = %s denial = %+v", m.State(), m.Denial())
	}
}

func TestMachineCompletesAfterExactTicksAtAnyOffset(t *testing.T) {
	for i := int64(0); i < 50; i++ {
		start := time.Unix(1760000000, 2999949+i*19999991%int64(time.Second))
		clock := clockwork.NewFakeClockAt(start)
		m := NewMachine(&recordingSender{}, NewReconciler(clock), RejoinResume)

		m.ApplyTimer(timerIn(clock, 1500*time.Second, 25))
		if m.TimeLeft() != 1500 {
			t.Fatalf("start %v: TimeLeft() = %d, want 1500", start, m.TimeLeft())
		}
		for tick := 0; tick < 1500; tick++ {
			clock.Advance(time.Second)
			m.Tick()
		}
		if m.State() != StateCompleted || m.TimeLeft() != 0 {
			t.Fatalf("start %v: state = %s time left = %d after 1500 ticks, want completed/0",
				start, m.State(), m.TimeLeft())
		}
	}
}

func TestMachineCompletionSourcesConverge(t *testing.T) {
	m, _, clock := newTestMachine(RejoinResume)
	p := timerIn(clock, 2*time.Second, 1)
	m.ApplyTimer(p)

	clock.Advance(2 * time.Second)
	if !m.Tick() {
		t.Fatal("expected completion on the tick reaching zero")
	}

	// the coordinator re-sends the same session, e.g. after a focus regain
	if m.ApplyTimer(p) {
		t.Fatal("a SYNC_TIMER for the finished session must be a no-op")
	}
	if m.State() != StateCompleted {
		t.Fatalf("state = %s, want completed", m.State())
	}

	// a room mate starting the next session moves us back to running
	if !m.ApplyTimer(timerIn(clock, 5*time.Minute, 5)) {
		t.Fatal("a new deadline should re-arm")
	}
	if m.State() != StateRunning || m.TimeLeft() != 300 {
		t.Fatalf("state = %s time left = %d, want running/300", m.State(), m.TimeLeft())
	}
}

func TestMachineDisengageFlagsOnce(t *testing.T) {
	m, sender, clock := newTestMachine(RejoinResume)
	m.ApplyTimer(timerIn(clock, 60*time.Second, 1))

	flagged := 0
	for i := 0; i < 5; i++ {
		if m.Disengage() {
			flagged++
		}
	}

	if flagged != 1 {
		t.Fatalf("flagged %d times, want 1", flagged)
	}
	if got := sender.count(protocol.ActionFail); got != 1 {
		t.Fatalf("FAIL sent %d times, want 1", got)
	}
	if m.State() != StateFailed || !m.Failed() {
		t.Fatalf("state = %s failed = %v, want failed", m.State(), m.Failed())
	}
}

func TestMachineDisengageOutsideRunningIsNoop(t *testing.T) {
	m, sender, clock := newTestMachine(RejoinResume)

	if m.Disengage() {
		t.Fatal("Disengage() while idle should be a no-op")
	}

	m.ApplyTimer(timerIn(clock, time.Second, 1))
	clock.Advance(time.Second)
	m.Tick()
	if m.State() != StateCompleted {
		t.Fatalf("state = %s, want completed", m.State())
	}
	if m.Disengage() {
		t.Fatal("Disengage() while completed should be a no-op")
	}
	if len(sender.sent) != 0 {
		t.Fatalf("sent = %+v, want nothing", sender.sent)
	}
}

func TestMachineFailedOnlyLeavesViaRejoin(t *testing.T) {
	m, sender, clock := newTestMachine(RejoinResume)
	if err := m.RequestStart(10); err != nil {
		t.Fatal(err)
	}
	m.ApplyTimer(timerIn(clock, 10*time.Minute, 10))
	m.Disengage()

	// neither time passing nor coordinator events leave Failed
	clock.Advance(11 * time.Minute)
	m.Tick()
	m.ApplyTimer(timerIn(clock, 10*time.Minute, 10))
	if m.State() != StateFailed {
		t.Fatalf("state = %s, want failed", m.State())
	}
	if err := m.ClaimAccepted(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("ClaimAccepted() error = %v, want ErrInvalidTransition", err)
	}

	if err := m.Rejoin(); err != nil {
		t.Fatalf("Rejoin() error = %v", err)
	}
	if m.State() != StateIdle || m.Failed() {
		t.Fatalf("after rejoin state = %s failed = %v", m.State(), m.Failed())
	}
	if got := sender.count(protocol.ActionRejoin); got != 1 {
		t.Fatalf("REJOIN sent %d times, want 1", got)
	}
	if m.SelectedMinutes() != 10 {
		t.Fatalf("resume policy should keep the selection, got %d", m.SelectedMinutes())
	}
	if m.TimeLeft() != 0 {
		t.Fatalf("TimeLeft() = %d, stale countdown survived rejoin", m.TimeLeft())
	}

	if err := m.Rejoin(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second Rejoin() error = %v, want ErrInvalidTransition", err)
	}
}

func TestMachineRejoinReselect(t *testing.T) {
	m, _, clock := newTestMachine(RejoinReselect)
	_ = m.RequestStart(45)
	m.ApplyTimer(timerIn(clock, 45*time.Minute, 45))
	m.Disengage()

	if err := m.Rejoin(); err != nil {
		t.Fatal(err)
	}
	if m.SelectedMinutes() != 0 {
		t.Fatalf("reselect policy should clear the selection, got %d", m.SelectedMinutes())
	}
}

func TestMachineDroppedFailStillFlags(t *testing.T) {
	m, sender, clock := newTestMachine(RejoinResume)
	m.ApplyTimer(timerIn(clock, time.Minute, 1))
	sender.err = ErrNotConnected

	if !m.Disengage() {
		t.Fatal("Disengage() should flag even when FAIL cannot be delivered")
	}
	if m.State() != StateFailed {
		t.Fatalf("state = %s, want failed", m.State())
	}
}

func TestMachineIgnoresFinishedSessionAfterClaim(t *testing.T) {
	for _, settle := range []string{"accepted", "dismissed"} {
		t.Run(settle, func(t *testing.T) {
			m, _, clock := newTestMachine(RejoinResume)
			p := timerIn(clock, 2*time.Second, 1)
			m.ApplyTimer(p)
			clock.Advance(2 * time.Second)
			m.Tick()

			if settle == "accepted" {
				if err := m.ClaimAccepted(); err != nil {
					t.Fatal(err)
				}
			} else {
				if err := m.ClaimRejected(models.VerificationBreakdown{Present: 1, Required: 1}); err != nil {
					t.Fatal(err)
				}
				if err := m.Dismiss(); err != nil {
					t.Fatal(err)
				}
			}

			if m.ApplyTimer(p) {
				t.Fatal("a repeated timer for the finished session must be ignored")
			}
			clock.Advance(time.Minute)
			if m.ApplyTimer(timerIn(clock, -time.Second, 1)) {
				t.Fatal("an expired deadline must be ignored while idle")
			}
			if m.State() != StateIdle {
				t.Fatalf("state = %s, want idle", m.State())
			}

			if !m.ApplyTimer(timerIn(clock, time.Minute, 1)) || m.State() != StateRunning {
				t.Fatalf("a new session should run, state = %s", m.State())
			}
		})
	}
}

func TestMachineClaimAccepted(t *testing.T) {
	m, _, clock := newTestMachine(RejoinResume)
	m.ApplyTimer(timerIn(clock, time.Second, 1))
	clock.Advance(time.Second)
	m.Tick()

	if err := m.ClaimAccepted(); err != nil {
		t.Fatalf("ClaimAccepted() error = %v", err)
	}
	if m.State() != StateIdle {
		t.Fatalf("state = %s, want idle", m.State())
	}
	if err := m.Dismiss(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Dismiss() error = %v, want ErrInvalidTransition", err)
	}
}
