package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/focushub/go/internal/focus/protocol"
	"github.com/rs/zerolog/log"
)

// ConnectionStatus is the connectivity signal of a room connection
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusError        ConnectionStatus = "error"
)

// ErrNotConnected is returned for actions issued while the connection is not
// connected. Such actions are dropped, never queued.
var ErrNotConnected = errors.New("room connection is not connected")

// ConnectionError describes an establishment or transport failure
type ConnectionError struct {
	Op         string
	StatusCode int // handshake HTTP status, 0 if none
	Err        error
}

func (e *ConnectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("room connection %s failed (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("room connection %s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ConnectionConfig holds configuration for the client side of a room connection
type ConnectionConfig struct {
	BaseURL          string // e.g. ws://localhost:8080
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration // refreshed on every frame and ping
	MaxMessageSize   int64
	EventBuffer      int
}

// DefaultConnectionConfig returns default client connection configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		BaseURL:          "ws://localhost:8080",
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      90 * time.Second,
		MaxMessageSize:   64 * 1024,
		EventBuffer:      64,
	}
}

// Connection is one duplex channel scoped to (room, participant). It never
// reconnects on its own; a new Connection has to be opened explicitly.
type Connection struct {
	ID     string
	RoomID string

	cfg   ConnectionConfig
	creds CredentialSource
	conn  *websocket.Conn

	mu     sync.Mutex // guards status and writes
	status ConnectionStatus

	events    chan protocol.Event
	statuses  chan ConnectionStatus
	done      chan struct{}
	closeOnce sync.Once
}

// NewConnection prepares a connection in the connecting state without dialing
func NewConnection(cfg ConnectionConfig, roomID string, creds CredentialSource) *Connection {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	c := &Connection{
		ID:       uuid.New().String(),
		RoomID:   protocol.NormalizeRoomID(roomID),
		cfg:      cfg,
		creds:    creds,
		status:   StatusConnecting,
		events:   make(chan protocol.Event, cfg.EventBuffer),
		statuses: make(chan ConnectionStatus, 4), // at most three transitions ever happen
		done:     make(chan struct{}),
	}
	c.statuses <- StatusConnecting
	return c
}

// Open dials a room and returns its handle. The handle is returned even on
// failure so callers can observe the error status.
func Open(ctx context.Context, cfg ConnectionConfig, roomID string, creds CredentialSource) (*Connection, error) {
	c := NewConnection(cfg, roomID, creds)
	return c, c.Dial(ctx)
}

// Dial establishes the underlying websocket. A handshake rejected as
// unauthorized invalidates the stored credential.
func (c *Connection) Dial(ctx context.Context) error {
	if c.creds == nil {
		return c.fail(&ConnectionError{Op: "dial", Err: ErrNoCredential})
	}
	token, err := c.creds.Token()
	if err != nil {
		return c.fail(&ConnectionError{Op: "dial", Err: err})
	}

	target, err := c.endpoint(token)
	if err != nil {
		return c.fail(&ConnectionError{Op: "dial", Err: err})
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		cerr := &ConnectionError{Op: "dial", Err: err}
		if resp != nil {
			cerr.StatusCode = resp.StatusCode
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				c.creds.Invalidate()
			}
		}
		return c.fail(cerr)
	}

	c.mu.Lock()
	select {
	case <-c.done:
		// closed while dialing
		c.mu.Unlock()
		conn.Close()
		return &ConnectionError{Op: "dial", Err: ErrNotConnected}
	default:
	}
	c.conn = conn
	c.setStatusLocked(StatusConnected)
	c.mu.Unlock()

	go c.readPump()

	log.Info().
		Str("connection_id", c.ID).
		Str("room_id", c.RoomID).
		Msg("room connection established")
	return nil
}

func (c *Connection) endpoint(token string) (string, error) {
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	switch base.Scheme {
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	}
	base.Path = strings.TrimSuffix(base.Path, "/") + "/ws/" + url.PathEscape(c.RoomID)
	q := base.Query()
	q.Set("token", token)
	base.RawQuery = q.Encode()
	return base.String(), nil
}

func (c *Connection) fail(err error) error {
	c.mu.Lock()
	if c.status == StatusConnecting {
		c.setStatusLocked(StatusError)
	}
	c.mu.Unlock()

	log.Warn().
		Err(err).
		Str("connection_id", c.ID).
		Str("room_id", c.RoomID).
		Msg("room connection failed")
	return err
}

// Status returns the current connectivity status
func (c *Connection) Status() ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// StatusChanges delivers every status transition, starting with connecting
func (c *Connection) StatusChanges() <-chan ConnectionStatus {
	return c.statuses
}

// Events delivers decoded inbound events. It is closed when the connection ends.
func (c *Connection) Events() <-chan protocol.Event {
	return c.events
}

// Send transmits an action if, and only if, the connection is connected
func (c *Connection) Send(action protocol.Action) error {
	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to marshal action: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusConnected {
		log.Debug().
			Str("connection_id", c.ID).
			Str("action", string(action.Action)).
			Str("status", string(c.status)).
			Msg("dropping action while not connected")
		return ErrNotConnected
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &ConnectionError{Op: "write", Err: err}
	}
	return nil
}

// Close tears the connection down. Calling it more than once is a no-op.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		defer c.mu.Unlock()

		if c.conn == nil {
			if c.status == StatusConnecting {
				c.setStatusLocked(StatusDisconnected)
			}
			return
		}

		if c.status == StatusConnected {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "leaving room")
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			c.setStatusLocked(StatusDisconnected)
		}
		c.conn.Close()
	})
	return nil
}

// setStatusLocked records a transition; c.mu must be held
func (c *Connection) setStatusLocked(status ConnectionStatus) {
	if c.status == status {
		return
	}
	c.status = status
	select {
	case c.statuses <- status:
	default:
		log.Warn().Str("connection_id", c.ID).Str("status", string(status)).Msg("status signal buffer full")
	}
}

// readPump decodes inbound frames until the connection ends
func (c *Connection) readPump() {
	defer close(c.events)

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	c.conn.SetPingHandler(func(appData string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		err := c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.cfg.WriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().
						Err(err).
						Str("connection_id", c.ID).
						Msg("unexpected room connection close")
				}
			}
			c.mu.Lock()
			if c.status == StatusConnected {
				c.setStatusLocked(StatusDisconnected)
			}
			c.mu.Unlock()
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

		event, err := protocol.ParseEvent(message)
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownEventType) {
				log.Debug().Str("event_type", string(event.Type)).Msg("ignoring unknown event type")
			} else {
				log.Warn().Err(err).Str("connection_id", c.ID).Msg("dropping malformed event")
			}
			continue
		}

		select {
		case c.events <- event:
		case <-c.done:
			return
		}
	}
}
