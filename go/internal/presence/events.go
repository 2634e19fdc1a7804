package presence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/focushub/go/internal/focus/protocol"
)

// EventType identifies a presence event emitted by the room coordinator
type EventType string

const (
	EventSessionStarted  EventType = "session_started"
	EventStatusChanged   EventType = "status_changed"
	EventParticipantLeft EventType = "participant_left"
)

// Event is a single presence fact. Which fields are set depends on Type.
type Event struct {
	ID     uuid.UUID `json:"id"`
	Type   EventType `json:"type"`
	RoomID string    `json:"room_id"`
	At     time.Time `json:"at"`

	// session_started
	SessionID       uuid.UUID `json:"session_id,omitempty"`
	EndTime         time.Time `json:"end_time,omitempty"`
	DurationMinutes int       `json:"duration,omitempty"`

	// status_changed, participant_left
	UserID   int64                      `json:"user_id,omitempty"`
	Username string                     `json:"username,omitempty"`
	Status   protocol.ParticipantStatus `json:"status,omitempty"`
}

// NewSessionStarted records a room timer being started
func NewSessionStarted(roomID string, sessionID uuid.UUID, startedAt, endTime time.Time, minutes int) Event {
	return Event{
		ID:              uuid.New(),
		Type:            EventSessionStarted,
		RoomID:          roomID,
		At:              startedAt,
		SessionID:       sessionID,
		EndTime:         endTime,
		DurationMinutes: minutes,
	}
}

// NewStatusChanged records a participant status assignment
func NewStatusChanged(roomID string, userID int64, username string, status protocol.ParticipantStatus, at time.Time) Event {
	return Event{
		ID:       uuid.New(),
		Type:     EventStatusChanged,
		RoomID:   roomID,
		At:       at,
		UserID:   userID,
		Username: username,
		Status:   status,
	}
}

// NewParticipantLeft records a participant's connection going away
func NewParticipantLeft(roomID string, userID int64, username string, at time.Time) Event {
	return Event{
		ID:       uuid.New(),
		Type:     EventParticipantLeft,
		RoomID:   roomID,
		At:       at,
		UserID:   userID,
		Username: username,
	}
}

// Recorder accepts presence events in emission order
type Recorder interface {
	Record(ctx context.Context, event Event) error
}
