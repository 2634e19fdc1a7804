package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/focushub/go/internal/auth"
	"github.com/mcdev12/focushub/go/internal/focus/protocol"
	"github.com/mcdev12/focushub/go/internal/presence"
	"github.com/rs/zerolog/log"
)

// ConnectionManager coordinates focus rooms. Every registration,
// unregistration and client action for all rooms is handled by the single
// Start loop, which is what keeps roster snapshots and chat order consistent.
type ConnectionManager struct {
	// Rooms by normalized id, mutated only by the Start loop
	rooms map[string]*roomState
	mu    sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	config   ConnectionConfig
	policy   TimerPolicy
	clock    clockwork.Clock
	recorder presence.Recorder

	inbox    chan inbound
	presence chan presence.Event
	done     chan struct{}
}

// Connection represents a WebSocket connection of one participant to one room
type Connection struct {
	ID       string
	UserID   int64
	Username string
	RoomID   string
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	// Connection metadata
	ConnectedAt time.Time

	// owned by the Start loop
	status protocol.ParticipantStatus
	closed bool
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

type inboundKind int

const (
	inboundRegister inboundKind = iota
	inboundUnregister
	inboundAction
)

// inbound is one message for the Start loop. Register, actions and
// unregister of a connection share this channel so they keep their order.
type inbound struct {
	kind   inboundKind
	conn   *Connection
	action protocol.Action
}

// roomState is the coordinator's view of one room
type roomState struct {
	id           string
	participants []*Connection // join order
	sessionID    uuid.UUID
	endTime      time.Time
	duration     int // minutes
}

func (r *roomState) active(now time.Time) bool {
	return !r.endTime.IsZero() && now.Before(r.endTime)
}

func (r *roomState) find(userID int64) (int, *Connection) {
	for i, c := range r.participants {
		if c.UserID == userID {
			return i, c
		}
	}
	return -1, nil
}

func (r *roomState) roster() []protocol.Participant {
	users := make([]protocol.Participant, 0, len(r.participants))
	for _, c := range r.participants {
		users = append(users, protocol.Participant{
			UserID:   c.UserID,
			Username: c.Username,
			Status:   c.status,
		})
	}
	return users
}

// NewConnectionManager creates a new room coordinator
func NewConnectionManager(config ConnectionConfig, policy TimerPolicy, clock clockwork.Clock, recorder presence.Recorder) *ConnectionManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = 256
	}
	return &ConnectionManager{
		rooms: make(map[string]*roomState),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:   config,
		policy:   policy.normalized(),
		clock:    clock,
		recorder: recorder,
		inbox:    make(chan inbound, 1000),
		presence: make(chan presence.Event, 1000),
		done:     make(chan struct{}),
	}
}

// Start runs the coordinator loop until ctx is cancelled. It returns once the
// rooms are closed and every queued presence event has been handed to the
// recorder; Done is closed at the same point.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	defer close(cm.done)

	recorded := make(chan struct{})
	if cm.recorder != nil {
		go cm.runRecorder(context.WithoutCancel(ctx), recorded)
	} else {
		close(recorded)
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.shutdown()
			// only the loop records, so nothing is sent after this
			close(cm.presence)
			<-recorded
			return
		case msg := <-cm.inbox:
			cm.handle(msg)
		}
	}
}

// Done is closed when Start has returned
func (cm *ConnectionManager) Done() <-chan struct{} {
	return cm.done
}

func (cm *ConnectionManager) handle(msg inbound) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	switch msg.kind {
	case inboundRegister:
		cm.registerConnection(msg.conn)
	case inboundUnregister:
		cm.unregisterConnection(msg.conn)
	case inboundAction:
		cm.handleAction(msg.conn, msg.action)
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and joins the room
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, identity auth.Identity, roomID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      identity.UserID,
		Username:    identity.Username,
		RoomID:      protocol.NormalizeRoomID(roomID),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBuffer),
		Manager:     cm,
		ConnectedAt: cm.clock.Now(),
	}

	if !cm.enqueue(inbound{kind: inboundRegister, conn: connection}) {
		conn.Close()
		return fmt.Errorf("connection manager is not running")
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Int64("user_id", identity.UserID).
		Str("room_id", connection.RoomID).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) enqueue(msg inbound) bool {
	select {
	case cm.inbox <- msg:
		return true
	case <-cm.done:
		return false
	}
}

// registerConnection joins a connection to its room; cm.mu must be held
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	now := cm.clock.Now()

	room, ok := cm.rooms[conn.RoomID]
	if !ok {
		room = &roomState{id: conn.RoomID}
		cm.rooms[conn.RoomID] = room
	}

	// one live connection per participant and room
	if i, previous := room.find(conn.UserID); previous != nil {
		room.participants = append(room.participants[:i], room.participants[i+1:]...)
		cm.closeConnection(previous)
		log.Info().
			Str("connection_id", previous.ID).
			Int64("user_id", previous.UserID).
			Str("room_id", room.id).
			Msg("replaced previous connection")
	}

	room.participants = append(room.participants, conn)
	if room.active(now) {
		cm.setStatus(room, conn, protocol.ParticipantFocusing, now)
	} else {
		cm.setStatus(room, conn, protocol.ParticipantIdle, now)
	}

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room_id", room.id).
		Int("total_connections", len(room.participants)).
		Msg("connection registered")

	cm.broadcastRoster(room)
	if room.active(now) {
		cm.sendTo(conn, protocol.NewSyncTimer(room.endTime, room.duration))
	}
}

// unregisterConnection removes a connection from its room; cm.mu must be held
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	room, ok := cm.rooms[conn.RoomID]
	if !ok {
		return
	}
	i, current := room.find(conn.UserID)
	if current != conn {
		// already replaced by a newer connection
		return
	}

	room.participants = append(room.participants[:i], room.participants[i+1:]...)
	cm.closeConnection(conn)
	cm.record(presence.NewParticipantLeft(room.id, conn.UserID, conn.Username, cm.clock.Now()))

	log.Info().
		Str("connection_id", conn.ID).
		Int64("user_id", conn.UserID).
		Str("room_id", room.id).
		Msg("connection unregistered")

	if len(room.participants) == 0 {
		delete(cm.rooms, room.id)
		return
	}
	cm.broadcastRoster(room)
}

func (cm *ConnectionManager) closeConnection(conn *Connection) {
	if conn.closed {
		return
	}
	conn.closed = true
	close(conn.Send)
}

// handleAction applies one client action; cm.mu must be held
func (cm *ConnectionManager) handleAction(conn *Connection, action protocol.Action) {
	room, ok := cm.rooms[conn.RoomID]
	if !ok {
		return
	}
	if _, current := room.find(conn.UserID); current != conn {
		return
	}
	now := cm.clock.Now()

	switch action.Action {
	case protocol.ActionStartTimer:
		if room.active(now) {
			log.Debug().Str("room_id", room.id).Msg("ignoring start while a timer is running")
			return
		}
		minutes := cm.policy.Clamp(action.Duration)
		room.sessionID = uuid.New()
		room.endTime = now.Add(time.Duration(minutes) * time.Minute)
		room.duration = minutes

		cm.record(presence.NewSessionStarted(room.id, room.sessionID, now, room.endTime, minutes))
		for _, c := range room.participants {
			cm.setStatus(room, c, protocol.ParticipantFocusing, now)
		}
		cm.broadcastRoster(room)
		cm.broadcast(room, protocol.NewTimerStarted(room.endTime, minutes))

		log.Info().
			Str("room_id", room.id).
			Int64("started_by", conn.UserID).
			Int("duration", minutes).
			Time("end_time", room.endTime).
			Msg("room timer started")

	case protocol.ActionFail:
		if cm.setStatus(room, conn, protocol.ParticipantFailed, now) {
			cm.broadcastRoster(room)
		}

	case protocol.ActionRejoin:
		status := protocol.ParticipantIdle
		if room.active(now) {
			status = protocol.ParticipantFocusing
		}
		cm.setStatus(room, conn, status, now)
		cm.broadcastRoster(room)
		if room.active(now) {
			cm.sendTo(conn, protocol.NewSyncTimer(room.endTime, room.duration))
		}

	case protocol.ActionChat:
		text := strings.TrimSpace(action.Message)
		if text == "" {
			return
		}
		cm.broadcast(room, protocol.NewChat(conn.Username, text, now.Format("15:04")))

	default:
		log.Warn().
			Str("connection_id", conn.ID).
			Str("action", string(action.Action)).
			Msg("ignoring unknown action")
	}
}

// setStatus assigns a participant status and records it. It reports whether the status changed.
func (cm *ConnectionManager) setStatus(room *roomState, conn *Connection, status protocol.ParticipantStatus, at time.Time) bool {
	if conn.status == status {
		return false
	}
	conn.status = status
	cm.record(presence.NewStatusChanged(room.id, conn.UserID, conn.Username, status, at))
	return true
}

func (cm *ConnectionManager) broadcastRoster(room *roomState) {
	cm.broadcast(room, protocol.NewUserList(room.roster()))
}

// broadcast delivers an event to every participant of a room
func (cm *ConnectionManager) broadcast(room *roomState, event protocol.Event) {
	eventData, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// snapshot, deliver may remove slow connections
	targets := append([]*Connection(nil), room.participants...)
	for _, conn := range targets {
		cm.deliver(conn, eventData)
	}

	log.Debug().
		Str("event_type", string(event.Type)).
		Str("room_id", room.id).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

func (cm *ConnectionManager) sendTo(conn *Connection, event protocol.Event) {
	eventData, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event")
		return
	}
	cm.deliver(conn, eventData)
}

func (cm *ConnectionManager) deliver(conn *Connection, data []byte) {
	if conn.closed {
		return
	}
	select {
	case conn.Send <- data:
	default:
		// Connection is slow/dead, close it; its read pump will unregister it
		log.Warn().
			Str("connection_id", conn.ID).
			Int64("user_id", conn.UserID).
			Msg("connection send buffer full, closing connection")
		cm.closeConnection(conn)
		conn.Conn.Close()
	}
}

func (cm *ConnectionManager) record(event presence.Event) {
	if cm.recorder == nil {
		return
	}
	select {
	case cm.presence <- event:
	default:
		log.Error().
			Str("room_id", event.RoomID).
			Str("event_type", string(event.Type)).
			Msg("presence queue full, dropping event")
	}
}

// runRecorder hands presence events to the recorder in emission order until
// the queue is closed and drained
func (cm *ConnectionManager) runRecorder(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for event := range cm.presence {
		if err := cm.recorder.Record(ctx, event); err != nil {
			log.Error().
				Err(err).
				Str("room_id", event.RoomID).
				Str("event_type", string(event.Type)).
				Msg("failed to record presence event")
		}
	}
	log.Info().Msg("presence queue drained")
}

func (cm *ConnectionManager) shutdown() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	now := cm.clock.Now()
	for id, room := range cm.rooms {
		for _, conn := range room.participants {
			cm.closeConnection(conn)
			cm.record(presence.NewParticipantLeft(room.id, conn.UserID, conn.Username, now))
		}
		delete(cm.rooms, id)
	}
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	now := cm.clock.Now()
	totalConnections := 0
	runningTimers := 0
	roomCounts := make(map[string]int)

	for roomID, room := range cm.rooms {
		count := len(room.participants)
		totalConnections += count
		roomCounts[roomID] = count
		if room.active(now) {
			runningTimers++
		}
	}

	return map[string]interface{}{
		"total_connections": totalConnections,
		"active_rooms":      len(cm.rooms),
		"running_timers":    runningTimers,
		"room_connections":  roomCounts,
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump forwards client actions to the coordinator loop
func (c *Connection) readPump() {
	defer func() {
		c.Manager.enqueue(inbound{kind: inboundUnregister, conn: c})
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))

		action, err := protocol.ParseAction(message)
		if err != nil {
			log.Warn().
				Err(err).
				Str("connection_id", c.ID).
				Int64("user_id", c.UserID).
				Msg("dropping malformed client action")
			continue
		}

		if !c.Manager.enqueue(inbound{kind: inboundAction, conn: c, action: action}) {
			return
		}
	}
}
