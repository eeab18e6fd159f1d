package session

import (
	"context"
	"sync"
	"time"

	"github.com/parish-tools/rosterbot/internal/models"
)

// MemoryStore keeps sessions in a map. Sessions are copied on the way in and
// out so handler mutations only land through Save.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[int64]*models.Session
	timeout  time.Duration
	now      func() time.Time
}

// NewMemoryStore builds an in-process session store.
func NewMemoryStore(timeout time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[int64]*models.Session),
		timeout:  timeout,
		now:      time.Now,
	}
}

// Get returns the session, replacing an expired one with a fresh idle
// session and extending the lease either way.
func (s *MemoryStore) Get(_ context.Context, userID int64) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stored, ok := s.sessions[userID]
	if !ok || stored.Expired(s.timeout, now) {
		fresh := models.NewSession(userID)
		fresh.LastAccess = now
		s.sessions[userID] = copySession(fresh)
		return fresh, nil
	}

	stored.LastAccess = now
	return copySession(stored), nil
}

// Save stores the session and refreshes its lease.
func (s *MemoryStore) Save(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session.LastAccess = s.now()
	s.sessions[session.UserID] = copySession(session)
	return nil
}

// Clear drops the session.
func (s *MemoryStore) Clear(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, userID)
	return nil
}

// SweepExpired removes sessions past the inactivity timeout.
func (s *MemoryStore) SweepExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for userID, stored := range s.sessions {
		if stored.Expired(s.timeout, now) {
			delete(s.sessions, userID)
			removed++
		}
	}
	return removed, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

func copySession(src *models.Session) *models.Session {
	dst := *src
	if src.People != nil {
		dst.People = append([]models.PersonRef(nil), src.People...)
	}
	if src.Draft != nil {
		dst.Draft = make(map[string]string, len(src.Draft))
		for k, v := range src.Draft {
			dst.Draft[k] = v
		}
	}
	if src.HomeroomGroups != nil {
		dst.HomeroomGroups = append([]string(nil), src.HomeroomGroups...)
	}
	return &dst
}
