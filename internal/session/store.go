package session

import (
	"context"
	"time"
)

// Session represents an authenticated user session.
// It intentionally stores only identity pointers, not auth state.
type Session struct {
	SessionID         string    `json:"session_id"`
	UserID            string    `json:"user_id"`             // references users.id
	CreatedAt         time.Time `json:"created_at"`
	AbsoluteExpiresAt time.Time `json:"absolute_expires_at"` // hard cap, never extended
	ExpiresAt         time.Time `json:"expires_at"`          // sliding expiry
}

// Expired reports whether the session is no longer usable at now.
func (s Session) Expired(now time.Time) bool {
	if !s.AbsoluteExpiresAt.IsZero() && !now.Before(s.AbsoluteExpiresAt) {
		return true
	}
	return !now.Before(s.ExpiresAt)
}

// Extend slides the expiry forward by idle, bounded by the absolute expiry.
func (s Session) Extend(now time.Time, idle time.Duration) Session {
	next := now.Add(idle)
	if !s.AbsoluteExpiresAt.IsZero() && next.After(s.AbsoluteExpiresAt) {
		next = s.AbsoluteExpiresAt
	}
	s.ExpiresAt = next
	return s
}

// Store defines how sessions are stored and retrieved.
// Get returns (nil, nil) for unknown sessions.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Update(ctx context.Context, s Session) error
	Delete(ctx context.Context, sessionID string) error
}
