package models

import (
	"time"

	"github.com/google/uuid"
)

// FocusSession is one run of a room timer as declared by the coordinator
type FocusSession struct {
	ID              uuid.UUID `json:"id"`
	RoomID          string    `json:"room_id"`
	StartedAt       time.Time `json:"started_at"`
	EndTime         time.Time `json:"end_time"`
	DurationMinutes int       `json:"duration_minutes"`
}

// Ended reports whether the session window has closed at now
func (s FocusSession) Ended(now time.Time) bool {
	return !now.Before(s.EndTime)
}

// FocusInterval is a stretch of time a participant was tracked as focusing in
// a room. EndedAt is nil while the interval is open.
type FocusInterval struct {
	UserID    int64      `json:"user_id"`
	RoomID    string     `json:"room_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Overlap returns how much of the interval falls inside [from, to]. Open
// intervals are treated as lasting until now.
func (i FocusInterval) Overlap(from, to, now time.Time) time.Duration {
	end := now
	if i.EndedAt != nil {
		end = *i.EndedAt
	}
	start := i.StartedAt
	if start.Before(from) {
		start = from
	}
	if end.After(to) {
		end = to
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}
