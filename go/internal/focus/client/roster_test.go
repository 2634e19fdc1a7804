package client

import (
	"reflect"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/focushub/go/internal/focus/protocol"
)

func newDispatchRoom() (*Room, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	r := NewRoom("deep-work", RoomConfig{Clock: clock}, NewTokenStore("t"), nil)
	return r, clock
}

func TestRosterFullReplace(t *testing.T) {
	r, _ := newDispatchRoom()

	first := []protocol.Participant{
		{UserID: 1, Username: "ana", Status: protocol.ParticipantFocusing},
		{UserID: 2, Username: "ben", Status: protocol.ParticipantFailed},
		{UserID: 3, Username: "cy", Status: protocol.ParticipantIdle},
	}
	second := []protocol.Participant{
		{UserID: 2, Username: "ben", Status: protocol.ParticipantFocusing},
	}

	r.dispatch(protocol.NewUserList(first))
	r.dispatch(protocol.NewUserList(second))

	if got := r.roster.Participants(); !reflect.DeepEqual(got, second) {
		t.Fatalf("roster = %+v, want exactly %+v", got, second)
	}

	r.dispatch(protocol.NewUserList(nil))
	if r.roster.Len() != 0 {
		t.Fatalf("roster len = %d, want 0", r.roster.Len())
	}
}

func TestRosterStatusDoesNotAffectOwnSession(t *testing.T) {
	r, clock := newDispatchRoom()
	r.dispatch(protocol.NewTimerStarted(clock.Now().Add(time.Minute), 1))

	r.dispatch(protocol.NewUserList([]protocol.Participant{
		{UserID: 2, Username: "ben", Status: protocol.ParticipantFailed},
	}))

	if r.machine.State() != StateRunning {
		t.Fatalf("state = %s, another participant's failure must not touch ours", r.machine.State())
	}
}

func TestRosterSnapshotIsCopied(t *testing.T) {
	var roster Roster
	users := []protocol.Participant{{Username: "ana", Status: protocol.ParticipantIdle}}
	roster.Replace(users)

	users[0].Username = "mutated"
	out := roster.Participants()
	out[0].Status = protocol.ParticipantFailed

	if got := roster.Participants()[0]; got.Username != "ana" || got.Status != protocol.ParticipantIdle {
		t.Fatalf("roster entry = %+v, snapshot was aliased", got)
	}
}

func TestChatPreservesArrivalOrder(t *testing.T) {
	r, clock := newDispatchRoom()

	events := []protocol.Event{
		protocol.NewChat("ana", "A", "09:00"),
		protocol.NewTimerStarted(clock.Now().Add(25*time.Minute), 25),
		protocol.NewChat("ben", "B", "09:00"),
		protocol.NewUserList([]protocol.Participant{{Username: "ana"}}),
		protocol.NewSyncTimer(clock.Now().Add(24*time.Minute), 25),
		protocol.NewChat("ana", "C", "09:01"),
		{Type: "PRESENCE_PING"},
	}
	for _, e := range events {
		r.dispatch(e)
	}

	var texts []string
	for _, m := range r.chat.Messages() {
		texts = append(texts, m.Text)
	}
	if want := []string{"A", "B", "C"}; !reflect.DeepEqual(texts, want) {
		t.Fatalf("chat = %v, want %v", texts, want)
	}
	if r.machine.State() != StateRunning {
		t.Fatalf("state = %s, want running", r.machine.State())
	}
	if r.machine.TimeLeft() != 24*60 {
		t.Fatalf("TimeLeft() = %d, want the re-synced deadline", r.machine.TimeLeft())
	}
}
