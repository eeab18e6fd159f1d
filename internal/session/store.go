package session

import (
	"context"

	"github.com/parish-tools/rosterbot/internal/models"
)

// Store keeps per-chat conversation state. Get never fails on a missing or
// expired session; it hands back a fresh idle one, so callers always have
// something to dispatch on.
type Store interface {
	// Get returns the user's session, extending its inactivity lease.
	Get(ctx context.Context, userID int64) (*models.Session, error)
	// Save persists the session after a handler mutated it.
	Save(ctx context.Context, session *models.Session) error
	// Clear drops the session entirely.
	Clear(ctx context.Context, userID int64) error
	// SweepExpired removes sessions past the inactivity timeout and
	// reports how many were dropped.
	SweepExpired(ctx context.Context) (int, error)
	// Close releases driver resources.
	Close() error
}
