package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// EventType is the discriminant of a coordinator -> client event
type EventType string

const (
	EventTypeTimerStarted EventType = "TIMER_STARTED"
	EventTypeSyncTimer    EventType = "SYNC_TIMER"
	EventTypeUserList     EventType = "USER_LIST"
	EventTypeChat         EventType = "CHAT"
)

var (
	// ErrUnknownEventType is returned for a well-formed event whose type is not recognised.
	ErrUnknownEventType = errors.New("unknown event type")
	// ErrMalformedEvent is returned when an event cannot be decoded.
	ErrMalformedEvent = errors.New("malformed event")
)

// ParticipantStatus is the coordinator-assigned status of a roster entry
type ParticipantStatus string

const (
	ParticipantIdle     ParticipantStatus = "idle"
	ParticipantFocusing ParticipantStatus = "focusing"
	ParticipantFailed   ParticipantStatus = "failed"
)

// Participant is one entry of a USER_LIST snapshot
type Participant struct {
	UserID   int64             `json:"user_id,omitempty"`
	Username string            `json:"username"`
	Status   ParticipantStatus `json:"status"`
}

// TimerPayload is carried by TIMER_STARTED and SYNC_TIMER
type TimerPayload struct {
	EndTime  float64 `json:"end_time"` // epoch seconds
	Duration int     `json:"duration"` // minutes
}

// Deadline converts the epoch-seconds end time into a time.Time. A float64
// epoch only carries sub-microsecond noise, so the result is rounded to the
// microsecond.
func (p TimerPayload) Deadline() time.Time {
	return time.UnixMicro(int64(math.Round(p.EndTime * 1e6)))
}

// DurationSeconds returns the nominal session length in seconds
func (p TimerPayload) DurationSeconds() int {
	return p.Duration * 60
}

// UserListPayload is a full roster snapshot
type UserListPayload struct {
	Users []Participant `json:"users"`
}

// ChatPayload is a single broadcast chat line
type ChatPayload struct {
	Username  string `json:"username"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Event is a decoded inbound event. Exactly one payload field is set, matching Type.
type Event struct {
	Type     EventType
	Timer    *TimerPayload
	UserList *UserListPayload
	Chat     *ChatPayload
}

// wireEvent is the flat JSON shape used on the socket
type wireEvent struct {
	Type      EventType     `json:"type"`
	EndTime   *float64      `json:"end_time,omitempty"`
	Duration  *int          `json:"duration,omitempty"`
	Users     []Participant `json:"users,omitempty"`
	Username  string        `json:"username,omitempty"`
	Text      string        `json:"text,omitempty"`
	Timestamp string        `json:"timestamp,omitempty"`
}

// ParseEvent decodes a raw inbound frame into a typed Event
func ParseEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch w.Type {
	case EventTypeTimerStarted, EventTypeSyncTimer:
		if w.EndTime == nil {
			return Event{}, fmt.Errorf("%w: %s without end_time", ErrMalformedEvent, w.Type)
		}
		p := &TimerPayload{EndTime: *w.EndTime}
		if w.Duration != nil {
			p.Duration = *w.Duration
		}
		return Event{Type: w.Type, Timer: p}, nil

	case EventTypeUserList:
		users := w.Users
		if users == nil {
			users = []Participant{}
		}
		return Event{Type: w.Type, UserList: &UserListPayload{Users: users}}, nil

	case EventTypeChat:
		return Event{Type: w.Type, Chat: &ChatPayload{
			Username:  w.Username,
			Text:      w.Text,
			Timestamp: w.Timestamp,
		}}, nil

	case "":
		return Event{}, fmt.Errorf("%w: missing type", ErrMalformedEvent)

	default:
		return Event{Type: w.Type}, fmt.Errorf("%w: %s", ErrUnknownEventType, w.Type)
	}
}

// MarshalJSON encodes the event in its flat wire shape
func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{Type: e.Type}
	switch {
	case e.Timer != nil:
		endTime, duration := e.Timer.EndTime, e.Timer.Duration
		w.EndTime = &endTime
		w.Duration = &duration
	case e.UserList != nil:
		w.Users = e.UserList.Users
		if w.Users == nil {
			w.Users = []Participant{}
		}
		// users must always be present, even when the room is empty
		return json.Marshal(struct {
			Type  EventType     `json:"type"`
			Users []Participant `json:"users"`
		}{w.Type, w.Users})
	case e.Chat != nil:
		w.Username = e.Chat.Username
		w.Text = e.Chat.Text
		w.Timestamp = e.Chat.Timestamp
	}
	return json.Marshal(w)
}

// NewTimerStarted builds a TIMER_STARTED event
func NewTimerStarted(endTime time.Time, durationMinutes int) Event {
	return Event{Type: EventTypeTimerStarted, Timer: &TimerPayload{
		EndTime:  EpochSeconds(endTime),
		Duration: durationMinutes,
	}}
}

// NewSyncTimer builds a SYNC_TIMER event
func NewSyncTimer(endTime time.Time, durationMinutes int) Event {
	return Event{Type: EventTypeSyncTimer, Timer: &TimerPayload{
		EndTime:  EpochSeconds(endTime),
		Duration: durationMinutes,
	}}
}

// NewUserList builds a USER_LIST snapshot event
func NewUserList(users []Participant) Event {
	return Event{Type: EventTypeUserList, UserList: &UserListPayload{Users: users}}
}

// NewChat builds a CHAT event
func NewChat(username, text, timestamp string) Event {
	return Event{Type: EventTypeChat, Chat: &ChatPayload{
		Username:  username,
		Text:      text,
		Timestamp: timestamp,
	}}
}

// EpochSeconds converts t to fractional seconds since the epoch
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
