package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mcdev12/focushub/go/internal/models"
)

// DBTX is the subset of *pgxpool.Pool used by PgStore
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgStore keeps the ledger in Postgres through pgx
type PgStore struct {
	db DBTX
}

func NewPgStore(db DBTX) *PgStore {
	return &PgStore{db: db}
}

const createSession = `
INSERT INTO focus_sessions (id, room_id, started_at, end_time, duration_minutes)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING
`

func (s *PgStore) CreateSession(ctx context.Context, session models.FocusSession) error {
	_, err := s.db.Exec(ctx, createSession,
		session.ID, session.RoomID, session.StartedAt, session.EndTime, session.DurationMinutes,
	)
	if err != nil {
		return fmt.Errorf("insert focus session: %w", err)
	}
	return nil
}

const latestSession = `
SELECT id, room_id, started_at, end_time, duration_minutes
FROM focus_sessions
WHERE room_id = $1
ORDER BY started_at DESC
LIMIT 1
`

func (s *PgStore) LatestSession(ctx context.Context, roomID string) (*models.FocusSession, error) {
	var session models.FocusSession
	err := s.db.QueryRow(ctx, latestSession, roomID).Scan(
		&session.ID,
		&session.RoomID,
		&session.StartedAt,
		&session.EndTime,
		&session.DurationMinutes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("select latest focus session: %w", err)
	}
	return &session, nil
}

// focus_intervals has a partial unique index on (user_id, room_id) WHERE ended_at IS NULL
const openInterval = `
INSERT INTO focus_intervals (user_id, room_id, started_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, room_id) WHERE ended_at IS NULL DO NOTHING
`

func (s *PgStore) OpenInterval(ctx context.Context, userID int64, roomID string, at time.Time) error {
	if _, err := s.db.Exec(ctx, openInterval, userID, roomID, at); err != nil {
		return fmt.Errorf("open focus interval: %w", err)
	}
	return nil
}

const closeInterval = `
UPDATE focus_intervals
SET ended_at = $3
WHERE user_id = $1 AND room_id = $2 AND ended_at IS NULL
`

func (s *PgStore) CloseInterval(ctx context.Context, userID int64, roomID string, at time.Time) error {
	if _, err := s.db.Exec(ctx, closeInterval, userID, roomID, at); err != nil {
		return fmt.Errorf("close focus interval: %w", err)
	}
	return nil
}

const listIntervals = `
SELECT user_id, room_id, started_at, ended_at
FROM focus_intervals
WHERE user_id = $1
  AND room_id = $2
  AND started_at < $4
  AND (ended_at IS NULL OR ended_at > $3)
ORDER BY started_at
`

func (s *PgStore) ListIntervals(ctx context.Context, userID int64, roomID string, from, to time.Time) ([]models.FocusInterval, error) {
	rows, err := s.db.Query(ctx, listIntervals, userID, roomID, from, to)
	if err != nil {
		return nil, fmt.Errorf("select focus intervals: %w", err)
	}
	defer rows.Close()

	var intervals []models.FocusInterval
	for rows.Next() {
		var interval models.FocusInterval
		if err := rows.Scan(&interval.UserID, &interval.RoomID, &interval.StartedAt, &interval.EndedAt); err != nil {
			return nil, fmt.Errorf("scan focus interval: %w", err)
		}
		intervals = append(intervals, interval)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate focus intervals: %w", err)
	}
	return intervals, nil
}
