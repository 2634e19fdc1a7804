package client

import "github.com/mcdev12/focushub/go/internal/focus/protocol"

// Roster holds the latest USER_LIST snapshot. Every update is a full replace;
// nothing from an earlier snapshot survives.
type Roster struct {
	participants []protocol.Participant
}

// Replace swaps in a new snapshot
func (r *Roster) Replace(users []protocol.Participant) {
	next := make([]protocol.Participant, len(users))
	copy(next, users)
	r.participants = next
}

// Participants returns a copy of the current snapshot
func (r *Roster) Participants() []protocol.Participant {
	out := make([]protocol.Participant, len(r.participants))
	copy(out, r.participants)
	return out
}

func (r *Roster) Len() int { return len(r.participants) }

// Clear drops the snapshot, e.g. when leaving the room
func (r *Roster) Clear() {
	r.participants = nil
}
