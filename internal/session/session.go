// Package session manages server-side session records bound to opaque
// bearer tokens. The token is a capability: generated from a secure random
// source, never derived from user-visible data, and used as the sole
// lookup key.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is the only session failure callers outside this
	// package and the audit log should ever distinguish.
	ErrNotFound = errors.New("session: not found")
	// ErrExpired is reported internally when a token resolves to a
	// record past its expiry. The adapter collapses it to not-found
	// before anything reaches an unauthenticated caller.
	ErrExpired = errors.New("session: expired")
)

// Session binds an opaque token to a user for a bounded lifetime.
type Session struct {
	Token      string
	UserID     uuid.UUID
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastSeenAt time.Time
}

// Expired reports whether the session is past its expiry at t.
func (s *Session) Expired(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// Store persists session records. Implementations must treat Delete of an
// absent token as a no-op.
type Store interface {
	Create(ctx context.Context, s *Session) error

	// Get returns the record for a token even if expired, so the
	// manager can distinguish expired from absent internally. Absent
	// tokens return ErrNotFound.
	Get(ctx context.Context, token string) (*Session, error)

	// Touch atomically extends an unexpired session's expiry and
	// refreshes last-seen, returning the updated record in a single
	// round trip. Absent or expired tokens return ErrNotFound.
	Touch(ctx context.Context, token string, expiresAt time.Time) (*Session, error)

	Delete(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID uuid.UUID) error

	// DeleteExpired removes expired records and reports how many.
	DeleteExpired(ctx context.Context) (int64, error)
}
