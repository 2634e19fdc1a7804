package presence

import (
	"context"
	"sync"
	"time"

	"github.com/mcdev12/focushub/go/internal/models"
)

// MemoryStore keeps the ledger in process memory
type MemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string][]models.FocusSession
	intervals []models.FocusInterval
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]models.FocusSession)}
}

func (s *MemoryStore) CreateSession(ctx context.Context, session models.FocusSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions[session.RoomID] {
		if existing.ID == session.ID {
			return nil
		}
	}
	s.sessions[session.RoomID] = append(s.sessions[session.RoomID], session)
	return nil
}

func (s *MemoryStore) LatestSession(ctx context.Context, roomID string) (*models.FocusSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.FocusSession
	for i := range s.sessions[roomID] {
		session := s.sessions[roomID][i]
		if latest == nil || session.StartedAt.After(latest.StartedAt) {
			latest = &session
		}
	}
	if latest == nil {
		return nil, ErrNoSession
	}
	return latest, nil
}

func (s *MemoryStore) OpenInterval(ctx context.Context, userID int64, roomID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openIndex(userID, roomID) >= 0 {
		return nil
	}
	s.intervals = append(s.intervals, models.FocusInterval{UserID: userID, RoomID: roomID, StartedAt: at})
	return nil
}

func (s *MemoryStore) CloseInterval(ctx context.Context, userID int64, roomID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.openIndex(userID, roomID); i >= 0 {
		ended := at
		s.intervals[i].EndedAt = &ended
	}
	return nil
}

func (s *MemoryStore) ListIntervals(ctx context.Context, userID int64, roomID string, from, to time.Time) ([]models.FocusInterval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.FocusInterval
	for _, interval := range s.intervals {
		if interval.UserID != userID || interval.RoomID != roomID {
			continue
		}
		if !interval.StartedAt.Before(to) {
			continue
		}
		if interval.EndedAt != nil && !interval.EndedAt.After(from) {
			continue
		}
		out = append(out, interval)
	}
	return out, nil
}

// openIndex finds the open interval; s.mu must be held
func (s *MemoryStore) openIndex(userID int64, roomID string) int {
	for i, interval := range s.intervals {
		if interval.UserID == userID && interval.RoomID == roomID && interval.EndedAt == nil {
			return i
		}
	}
	return -1
}
