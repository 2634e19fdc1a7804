package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/focushub/go/internal/focus/protocol"
	"github.com/mcdev12/focushub/go/internal/models"
	"github.com/rs/zerolog/log"
)

var (
	// ErrRoomClosed is returned for commands issued after the room loop stopped
	ErrRoomClosed = errors.New("room is closed")
	// ErrClaimInFlight is returned when a claim is already being verified
	ErrClaimInFlight = errors.New("claim already in flight")
	// ErrNoClaimGateway is returned by Claim when no account service is configured
	ErrNoClaimGateway = errors.New("no claim gateway configured")
)

// ClaimGateway is the account service as seen by a room. Claim returns the
// participant's new reward total, a *models.VerificationDeniedError on a
// structured rejection, or any other error for an opaque failure.
type ClaimGateway interface {
	Claim(ctx context.Context, userID int64, roomID string) (int, error)
}

// RoomConfig holds configuration for a room membership
type RoomConfig struct {
	Connection   ConnectionConfig
	RejoinPolicy RejoinPolicy
	UserID       int64
	Clock        clockwork.Clock
}

// View is an immutable snapshot of everything a presentation layer renders.
// Suspended is set when the session was running but the connection went
// away: State stays StateRunning and TimeLeft is frozen at its last value,
// so renderers should show the countdown as paused rather than live.
type View struct {
	RoomID          string
	Status          ConnectionStatus
	State           SessionState
	Suspended       bool
	TimeLeft        int
	DurationSeconds int
	SelectedMinutes int
	Roster          []protocol.Participant
	Chat            []protocol.ChatPayload
	Denial          *models.VerificationBreakdown
	Flowers         int
}

type command func(r *Room)

// Room owns one room membership. All state is mutated by the Run loop only;
// inbound events, status changes, reconciler ticks, and local commands are
// serialized through it.
type Room struct {
	id     string
	cfg    RoomConfig
	creds  CredentialSource
	claims ClaimGateway
	clock  clockwork.Clock

	conn       *Connection
	live       bool
	eventsDone bool
	status     ConnectionStatus
	generation int

	reconciler *Reconciler
	machine    *Machine
	roster     Roster
	chat       ChatLog
	flowers    int
	claiming   bool

	commands  chan command
	updates   chan View
	closeCh   chan struct{}
	closeOnce sync.Once
	stopped   chan struct{}
}

// NewRoom creates a room membership. Nothing is dialed until Run.
func NewRoom(roomID string, cfg RoomConfig, creds CredentialSource, claims ClaimGateway) *Room {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	r := &Room{
		id:       protocol.NormalizeRoomID(roomID),
		cfg:      cfg,
		creds:    creds,
		claims:   claims,
		clock:    cfg.Clock,
		status:   StatusConnecting,
		commands: make(chan command),
		updates:  make(chan View, 1),
		closeCh:  make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	r.reset()
	return r
}

func (r *Room) ID() string { return r.id }

// Updates delivers the latest View after every change. Only the most recent
// snapshot is retained if the consumer falls behind.
func (r *Room) Updates() <-chan View {
	return r.updates
}

// Done is closed once the loop has stopped
func (r *Room) Done() <-chan struct{} {
	return r.stopped
}

// Run joins the room and processes events until ctx is cancelled or Close is
// called. A failed initial connection leaves the loop running in the error
// status so the caller can reconnect explicitly.
func (r *Room) Run(ctx context.Context) error {
	defer close(r.stopped)
	defer r.leave()

	conn := r.join()
	go func() {
		if err := conn.Dial(ctx); err != nil {
			log.Warn().Err(err).Str("room_id", r.id).Msg("initial room connection failed")
		}
	}()
	r.publish()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-r.closeCh:
			return nil

		case event, ok := <-r.eventsChan():
			if !ok {
				r.eventsDone = true
				continue
			}
			r.dispatch(event)

		case status := <-r.statusChan():
			r.handleStatus(status)

		case <-r.reconciler.C():
			if r.machine.Tick() {
				log.Info().Str("room_id", r.id).Msg("focus session completed")
			}

		case cmd := <-r.commands:
			cmd(r)
		}
		r.publish()
	}
}

// Close stops the loop. Calling it more than once is a no-op.
func (r *Room) Close() {
	r.closeOnce.Do(func() {
		close(r.closeCh)
	})
}

func (r *Room) eventsChan() <-chan protocol.Event {
	if r.conn == nil || !r.live || r.eventsDone {
		return nil
	}
	return r.conn.Events()
}

func (r *Room) statusChan() <-chan ConnectionStatus {
	if r.conn == nil {
		return nil
	}
	return r.conn.StatusChanges()
}

// dispatch routes one inbound event by its discriminant
func (r *Room) dispatch(event protocol.Event) {
	switch event.Type {
	case protocol.EventTypeTimerStarted, protocol.EventTypeSyncTimer:
		if event.Timer == nil {
			log.Warn().Str("event_type", string(event.Type)).Msg("timer event without payload")
			return
		}
		if r.machine.ApplyTimer(*event.Timer) {
			log.Debug().
				Str("room_id", r.id).
				Str("event_type", string(event.Type)).
				Int("time_left", r.machine.TimeLeft()).
				Msg("timer armed")
		}

	case protocol.EventTypeUserList:
		if event.UserList == nil {
			r.roster.Replace(nil)
			return
		}
		r.roster.Replace(event.UserList.Users)

	case protocol.EventTypeChat:
		if event.Chat == nil {
			log.Warn().Msg("chat event without payload")
			return
		}
		r.chat.Append(*event.Chat)

	default:
		log.Debug().Str("event_type", string(event.Type)).Msg("ignoring unknown event type")
	}
}

func (r *Room) handleStatus(status ConnectionStatus) {
	r.status = status

	switch status {
	case StatusConnected:
		r.live = true

	case StatusDisconnected, StatusError:
		r.live = false
		r.machine.Suspend()
		log.Info().
			Str("room_id", r.id).
			Str("status", string(status)).
			Str("state", string(r.machine.State())).
			Msg("room connection ended")
	}
}

// Send implements ActionSender over the current connection
func (r *Room) Send(action protocol.Action) error {
	if r.conn == nil {
		return ErrNotConnected
	}
	return r.conn.Send(action)
}

// reset discards all in-memory room state. A fresh join always starts Idle.
func (r *Room) reset() {
	if r.reconciler != nil {
		r.reconciler.Reset()
	}
	r.generation++
	r.reconciler = NewReconciler(r.clock)
	r.machine = NewMachine(r, r.reconciler, r.cfg.RejoinPolicy)
	r.roster.Clear()
	r.chat = ChatLog{}
	r.claiming = false
}

// join replaces the connection with a fresh, undialed one and discards room
// state. The caller dials it off the loop; its status changes reach the loop
// through StatusChanges, and leave closes it if it is superseded mid-dial.
func (r *Room) join() *Connection {
	r.leave()
	r.reset()
	r.live = false
	r.eventsDone = false
	r.status = StatusConnecting

	r.conn = NewConnection(r.cfg.Connection, r.id, r.creds)
	return r.conn
}

func (r *Room) leave() {
	if r.reconciler != nil {
		r.reconciler.Stop()
	}
	if r.conn != nil {
		r.conn.Close()
	}
	r.live = false
}

func (r *Room) view() View {
	return View{
		RoomID:          r.id,
		Status:          r.status,
		State:           r.machine.State(),
		Suspended:       r.machine.State() == StateRunning && !r.live,
		TimeLeft:        r.machine.TimeLeft(),
		DurationSeconds: r.machine.DurationSeconds(),
		SelectedMinutes: r.machine.SelectedMinutes(),
		Roster:          r.roster.Participants(),
		Chat:            r.chat.Messages(),
		Denial:          r.machine.Denial(),
		Flowers:         r.flowers,
	}
}

func (r *Room) publish() {
	v := r.view()
	select {
	case <-r.updates:
	default:
	}
	r.updates <- v
}

// do runs fn on the loop and waits for its result
func (r *Room) do(fn func(r *Room) error) error {
	reply := make(chan error, 1)
	select {
	case r.commands <- func(r *Room) { reply <- fn(r) }:
	case <-r.stopped:
		return ErrRoomClosed
	}
	return <-reply
}

// Snapshot returns the current View
func (r *Room) Snapshot() (View, error) {
	var v View
	err := r.do(func(r *Room) error {
		v = r.view()
		return nil
	})
	return v, err
}

// Start requests a room timer of the given length in minutes
func (r *Room) Start(minutes int) error {
	return r.do(func(r *Room) error {
		return r.machine.RequestStart(minutes)
	})
}

// SetVisible reports a visibility change of the hosting surface. Losing
// visibility while running flags failure; it reports whether it did.
func (r *Room) SetVisible(visible bool) (bool, error) {
	var flagged bool
	err := r.do(func(r *Room) error {
		if !visible {
			flagged = r.machine.Disengage()
		}
		return nil
	})
	return flagged, err
}

// Rejoin leaves Failed. When the connection is gone it reopens one instead,
// which starts from a fresh Idle state. The dial runs on the caller's
// goroutine so the loop keeps serving commands during the handshake.
func (r *Room) Rejoin(ctx context.Context) error {
	var conn *Connection
	err := r.do(func(r *Room) error {
		if !r.live {
			conn = r.join()
			return nil
		}
		return r.machine.Rejoin()
	})
	if err != nil || conn == nil {
		return err
	}
	return conn.Dial(ctx)
}

// Reconnect drops the current connection and joins again from scratch
func (r *Room) Reconnect(ctx context.Context) error {
	var conn *Connection
	if err := r.do(func(r *Room) error {
		conn = r.join()
		return nil
	}); err != nil {
		return err
	}
	return conn.Dial(ctx)
}

// Chat sends a chat message to the room
func (r *Room) Chat(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("chat message is empty")
	}
	return r.do(func(r *Room) error {
		return r.Send(protocol.Chat(text))
	})
}

// Dismiss clears a claim denial
func (r *Room) Dismiss() error {
	return r.do(func(r *Room) error {
		return r.machine.Dismiss()
	})
}

// Claim asks the account service to verify the completed session. The call
// to the gateway runs on the caller's goroutine; the outcome is applied on the loop.
func (r *Room) Claim(ctx context.Context) (int, error) {
	if r.claims == nil {
		return 0, ErrNoClaimGateway
	}

	var generation int
	err := r.do(func(r *Room) error {
		if r.machine.State() != StateCompleted {
			return fmt.Errorf("%w: claim while %s", ErrInvalidTransition, r.machine.State())
		}
		if r.claiming {
			return ErrClaimInFlight
		}
		r.claiming = true
		generation = r.generation
		return nil
	})
	if err != nil {
		return 0, err
	}

	flowers, claimErr := r.claims.Claim(ctx, r.cfg.UserID, r.id)

	err = r.do(func(r *Room) error {
		if generation != r.generation {
			// the room was rejoined while the claim was in flight
			return nil
		}
		r.claiming = false

		var denied *models.VerificationDeniedError
		switch {
		case claimErr == nil:
			r.flowers = flowers
			return r.machine.ClaimAccepted()
		case errors.As(claimErr, &denied):
			return r.machine.ClaimRejected(denied.Breakdown)
		default:
			// opaque failure, the session stays Completed so the claim can be retried
			return nil
		}
	})
	if claimErr != nil {
		return 0, claimErr
	}
	return flowers, err
}
