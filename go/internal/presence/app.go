package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/focushub/go/internal/focus/protocol"
	"github.com/mcdev12/focushub/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ErrNoSession is returned when a room has never run a timer
var ErrNoSession = errors.New("no focus session for room")

// Store persists sessions and focus intervals
type Store interface {
	CreateSession(ctx context.Context, session models.FocusSession) error
	LatestSession(ctx context.Context, roomID string) (*models.FocusSession, error)
	// OpenInterval starts a focus interval unless one is already open
	OpenInterval(ctx context.Context, userID int64, roomID string, at time.Time) error
	// CloseInterval ends the open interval, if any
	CloseInterval(ctx context.Context, userID int64, roomID string, at time.Time) error
	// ListIntervals returns the user's intervals in the room that overlap [from, to]
	ListIntervals(ctx context.Context, userID int64, roomID string, from, to time.Time) ([]models.FocusInterval, error)
}

// App is the presence ledger. It turns coordinator events into sessions and
// focus intervals and answers how long a participant actually focused.
type App struct {
	store Store
	clock clockwork.Clock
}

func NewApp(store Store, clock clockwork.Clock) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{store: store, clock: clock}
}

// Record applies one presence event; it satisfies Recorder
func (a *App) Record(ctx context.Context, event Event) error {
	switch event.Type {
	case EventSessionStarted:
		session := models.FocusSession{
			ID:              event.SessionID,
			RoomID:          event.RoomID,
			StartedAt:       event.At,
			EndTime:         event.EndTime,
			DurationMinutes: event.DurationMinutes,
		}
		if err := a.store.CreateSession(ctx, session); err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}

	case EventStatusChanged:
		var err error
		if event.Status == protocol.ParticipantFocusing {
			err = a.store.OpenInterval(ctx, event.UserID, event.RoomID, event.At)
		} else {
			err = a.store.CloseInterval(ctx, event.UserID, event.RoomID, event.At)
		}
		if err != nil {
			return fmt.Errorf("failed to apply status %s: %w", event.Status, err)
		}

	case EventParticipantLeft:
		if err := a.store.CloseInterval(ctx, event.UserID, event.RoomID, event.At); err != nil {
			return fmt.Errorf("failed to close interval: %w", err)
		}

	default:
		log.Warn().Str("event_type", string(event.Type)).Msg("ignoring unknown presence event")
		return nil
	}

	log.Debug().
		Str("event_id", event.ID.String()).
		Str("event_type", string(event.Type)).
		Str("room_id", event.RoomID).
		Int64("user_id", event.UserID).
		Msg("presence event recorded")
	return nil
}

// LatestSession returns the most recent session of a room
func (a *App) LatestSession(ctx context.Context, roomID string) (*models.FocusSession, error) {
	return a.store.LatestSession(ctx, roomID)
}

// FocusedTime returns how long the user was tracked as focusing during the
// room's latest session window
func (a *App) FocusedTime(ctx context.Context, userID int64, session models.FocusSession) (time.Duration, error) {
	intervals, err := a.store.ListIntervals(ctx, userID, session.RoomID, session.StartedAt, session.EndTime)
	if err != nil {
		return 0, fmt.Errorf("failed to list intervals: %w", err)
	}

	now := a.clock.Now()
	var focused time.Duration
	for _, interval := range intervals {
		focused += interval.Overlap(session.StartedAt, session.EndTime, now)
	}
	return focused, nil
}
