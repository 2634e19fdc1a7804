package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/focushub/go/internal/focus/protocol"
	"github.com/mcdev12/focushub/go/internal/models"
)

// scriptedCoordinator is a minimal room endpoint: it accepts one token,
// records inbound actions and writes whatever the test pushes.
type scriptedCoordinator struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   []*websocket.Conn
	rooms   []string
	actions chan protocol.Action
	joined  chan *websocket.Conn
}

func newScriptedCoordinator(t *testing.T) *scriptedCoordinator {
	c := &scriptedCoordinator{
		t:       t,
		actions: make(chan protocol.Action, 32),
		joined:  make(chan *websocket.Conn, 4),
	}
	c.server = httptest.NewServer(http.HandlerFunc(c.serve))
	t.Cleanup(func() {
		c.mu.Lock()
		for _, conn := range c.conns {
			conn.Close()
		}
		c.mu.Unlock()
		c.server.Close()
	})
	return c
}

func (c *scriptedCoordinator) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("token") != "valid" {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.conns = append(c.conns, conn)
	c.rooms = append(c.rooms, strings.TrimPrefix(r.URL.Path, "/ws/"))
	c.mu.Unlock()
	c.joined <- conn

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			action, err := protocol.ParseAction(data)
			if err == nil {
				c.actions <- action
			}
		}
	}()
}

func (c *scriptedCoordinator) url() string {
	return "ws" + strings.TrimPrefix(c.server.URL, "http")
}

func (c *scriptedCoordinator) waitJoin() *websocket.Conn {
	c.t.Helper()
	select {
	case conn := <-c.joined:
		return conn
	case <-time.After(2 * time.Second):
		c.t.Fatal("timed out waiting for a room connection")
		return nil
	}
}

func push(t *testing.T, conn *websocket.Conn, event protocol.Event) {
	t.Helper()
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("push: %v", err)
	}
}

func waitView(t *testing.T, r *Room, what string, pred func(View) bool) View {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case v := <-r.Updates():
			if pred(v) {
				return v
			}
		case <-timeout:
			v, _ := r.Snapshot()
			t.Fatalf("timed out waiting for %s, last view %+v", what, v)
		}
	}
}

type fakeClaims struct {
	flowers int
	err     error
	calls   int
}

func (f *fakeClaims) Claim(ctx context.Context, userID int64, roomID string) (int, error) {
	f.calls++
	return f.flowers, f.err
}

func startRoom(t *testing.T, coord *scriptedCoordinator, creds CredentialSource, claims ClaimGateway) (*Room, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	cfg := RoomConfig{
		Connection:   DefaultConnectionConfig(),
		RejoinPolicy: RejoinResume,
		UserID:       7,
		Clock:        clock,
	}
	cfg.Connection.BaseURL = coord.url()

	room := NewRoom(" deep-work ", cfg, creds, claims)
	ctx, cancel := context.WithCancel(context.Background())
	go room.Run(ctx)
	t.Cleanup(func() {
		room.Close()
		cancel()
		<-room.Done()
	})
	return room, clock
}

func TestRoomStrictModeSendsFailOnce(t *testing.T) {
	coord := newScriptedCoordinator(t)
	room, clock := startRoom(t, coord, NewTokenStore("valid"), nil)

	conn := coord.waitJoin()
	waitView(t, room, "connected", func(v View) bool { return v.Status == StatusConnected })
	if coord.rooms[0] != "DEEP-WORK" {
		t.Fatalf("room id on the wire = %q, want DEEP-WORK", coord.rooms[0])
	}

	if err := room.Start(1); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := <-coord.actions; got != protocol.StartTimer(1) {
		t.Fatalf("first action = %+v, want START_TIMER{1}", got)
	}

	push(t, conn, protocol.NewTimerStarted(clock.Now().Add(60*time.Second), 1))
	waitView(t, room, "running", func(v View) bool { return v.State == StateRunning })

	for i := 0; i < 5; i++ {
		if _, err := room.SetVisible(i%2 == 1); err != nil {
			t.Fatal(err)
		}
	}
	v, _ := room.Snapshot()
	if v.State != StateFailed {
		t.Fatalf("state = %s, want failed", v.State)
	}

	_ = room.Chat("still here")
	fails := 0
	for {
		a := <-coord.actions
		if a.Action == protocol.ActionChat {
			break
		}
		if a.Action == protocol.ActionFail {
			fails++
		}
	}
	if fails != 1 {
		t.Fatalf("FAIL sent %d times, want 1", fails)
	}
}

func TestRoomDisconnectWhileRunning(t *testing.T) {
	coord := newScriptedCoordinator(t)
	room, clock := startRoom(t, coord, NewTokenStore("valid"), nil)

	conn := coord.waitJoin()
	push(t, conn, protocol.NewTimerStarted(clock.Now().Add(10*time.Minute), 10))
	push(t, conn, protocol.NewUserList([]protocol.Participant{{UserID: 7, Username: "ana", Status: protocol.ParticipantFocusing}}))
	live := waitView(t, room, "running with roster", func(v View) bool {
		return v.State == StateRunning && len(v.Roster) == 1
	})
	if live.Suspended {
		t.Fatal("a connected running session is not suspended")
	}

	conn.Close()
	gone := waitView(t, room, "disconnected", func(v View) bool { return v.Status == StatusDisconnected })
	if gone.State != StateRunning || !gone.Suspended || gone.TimeLeft != 600 {
		t.Fatalf("view = %+v, want a suspended running session frozen at 600s", gone)
	}

	var ticking bool
	_ = room.do(func(r *Room) error {
		ticking = r.reconciler.Running()
		return nil
	})
	if ticking {
		t.Fatal("reconciler should be cancelled on disconnect")
	}

	if err := room.Start(5); err != nil && !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Start() error = %v", err)
	}
	if err := room.Chat("anyone?"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Chat() error = %v, want ErrNotConnected", err)
	}

	if err := room.Rejoin(context.Background()); err != nil {
		t.Fatalf("Rejoin() error = %v", err)
	}
	coord.waitJoin()
	v := waitView(t, room, "reconnected", func(v View) bool { return v.Status == StatusConnected })
	if v.State != StateIdle || len(v.Roster) != 0 || len(v.Chat) != 0 {
		t.Fatalf("rejoined view = %+v, want fresh idle state", v)
	}
}

func TestRoomUnauthorizedInvalidatesCredential(t *testing.T) {
	coord := newScriptedCoordinator(t)
	creds := NewTokenStore("expired")
	room, _ := startRoom(t, coord, creds, nil)

	waitView(t, room, "error status", func(v View) bool { return v.Status == StatusError })
	if _, err := creds.Token(); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("Token() error = %v, want ErrNoCredential after rejection", err)
	}
	if err := room.Chat("hello"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Chat() error = %v, want ErrNotConnected", err)
	}

	creds.Set("valid")
	if err := room.Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect() error = %v", err)
	}
	waitView(t, room, "connected", func(v View) bool { return v.Status == StatusConnected })
}

func TestRoomClaimDenied(t *testing.T) {
	coord := newScriptedCoordinator(t)
	breakdown := models.VerificationBreakdown{Message: "not enough focus", Present: 20, Required: 25, Percentage: 80}
	claims := &fakeClaims{err: &models.VerificationDeniedError{Breakdown: breakdown}}
	room, clock := startRoom(t, coord, NewTokenStore("valid"), claims)

	if _, err := room.Claim(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Claim() before completion error = %v, want ErrInvalidTransition", err)
	}

	conn := coord.waitJoin()
	push(t, conn, protocol.NewTimerStarted(clock.Now().Add(1500*time.Second), 25))
	waitView(t, room, "running", func(v View) bool { return v.State == StateRunning })

	clock.Advance(1500 * time.Second)
	waitView(t, room, "completed", func(v View) bool { return v.State == StateCompleted && v.TimeLeft == 0 })

	_, err := room.Claim(context.Background())
	var denied *models.VerificationDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("Claim() error = %v, want VerificationDeniedError", err)
	}
	v, _ := room.Snapshot()
	if v.State != StateClaimDenied || v.Denial == nil || *v.Denial != breakdown {
		t.Fatalf("view = %+v, want claim_denied with %+v", v, breakdown)
	}

	if err := room.Dismiss(); err != nil {
		t.Fatal(err)
	}
	v, _ = room.Snapshot()
	if v.State != StateIdle {
		t.Fatalf("state = %s, want idle after dismiss", v.State)
	}
}

func TestRoomClaimAccepted(t *testing.T) {
	coord := newScriptedCoordinator(t)
	claims := &fakeClaims{flowers: 4}
	room, clock := startRoom(t, coord, NewTokenStore("valid"), claims)

	conn := coord.waitJoin()
	push(t, conn, protocol.NewSyncTimer(clock.Now().Add(2*time.Second), 1))
	waitView(t, room, "running", func(v View) bool { return v.State == StateRunning })
	clock.Advance(2 * time.Second)
	waitView(t, room, "completed", func(v View) bool { return v.State == StateCompleted })

	flowers, err := room.Claim(context.Background())
	if err != nil || flowers != 4 {
		t.Fatalf("Claim() = (%d, %v), want (4, nil)", flowers, err)
	}
	v, _ := room.Snapshot()
	if v.State != StateIdle || v.Flowers != 4 {
		t.Fatalf("view = %+v, want idle with 4 flowers", v)
	}
}

func TestRoomOpaqueClaimFailureKeepsCompleted(t *testing.T) {
	coord := newScriptedCoordinator(t)
	claims := &fakeClaims{err: errors.New("account service unavailable")}
	room, clock := startRoom(t, coord, NewTokenStore("valid"), claims)

	conn := coord.waitJoin()
	push(t, conn, protocol.NewTimerStarted(clock.Now().Add(time.Second), 1))
	waitView(t, room, "running", func(v View) bool { return v.State == StateRunning })
	clock.Advance(time.Second)
	waitView(t, room, "completed", func(v View) bool { return v.State == StateCompleted })

	if _, err := room.Claim(context.Background()); err == nil {
		t.Fatal("Claim() should surface the opaque failure")
	}
	v, _ := room.Snapshot()
	if v.State != StateCompleted {
		t.Fatalf("state = %s, want completed so the claim can be retried", v.State)
	}
}

func TestConnectionCloseIsIdempotent(t *testing.T) {
	coord := newScriptedCoordinator(t)
	cfg := DefaultConnectionConfig()
	cfg.BaseURL = coord.url()

	conn, err := Open(context.Background(), cfg, "room", NewTokenStore("valid"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	coord.waitJoin()

	if err := conn.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if conn.Status() != StatusDisconnected {
		t.Fatalf("status = %s, want disconnected", conn.Status())
	}
	if err := conn.Send(protocol.Fail()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Send() after close error = %v, want ErrNotConnected", err)
	}

	var seen []ConnectionStatus
	for len(seen) < 3 {
		seen = append(seen, <-conn.StatusChanges())
	}
	want := []ConnectionStatus{StatusConnecting, StatusConnected, StatusDisconnected}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("status sequence = %v, want %v", seen, want)
		}
	}
}

func TestRoomCommandsServedDuringDial(t *testing.T) {
	release := make(chan struct{})
	stalled := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// never answer the handshake until the test ends
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(stalled.Close)
	t.Cleanup(func() { close(release) })

	cfg := RoomConfig{Connection: DefaultConnectionConfig(), UserID: 7, Clock: clockwork.NewFakeClock()}
	cfg.Connection.BaseURL = stalled.URL
	room := NewRoom("slow", cfg, NewTokenStore("valid"), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go room.Run(ctx)
	t.Cleanup(func() {
		room.Close()
		cancel()
		<-room.Done()
	})

	dialCtx, cancelDial := context.WithCancel(context.Background())
	dialed := make(chan error, 1)
	go func() { dialed <- room.Reconnect(dialCtx) }()

	served := make(chan View, 1)
	go func() {
		_, _ = room.SetVisible(false)
		v, _ := room.Snapshot()
		served <- v
	}()
	select {
	case v := <-served:
		if v.Status != StatusConnecting {
			t.Fatalf("status = %s while the handshake is pending, want connecting", v.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("visibility change was blocked behind the handshake")
	}

	cancelDial()
	select {
	case err := <-dialed:
		if err == nil {
			t.Fatal("Reconnect() should fail once its dial is cancelled")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Reconnect() did not return after cancelling the dial")
	}
}
