package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kraemahz/subseq-util/internal/logger"
)

// Renewal policies.
const (
	RenewalSliding = "sliding"
	RenewalFixed   = "fixed"
)

// Config controls session lifetimes.
type Config struct {
	TTL time.Duration
	// Renewal is RenewalSliding (default: expiry extends by TTL on
	// every validated request) or RenewalFixed (expiry set at creation
	// only).
	Renewal string
}

// Manager owns the session lifecycle: Created -> Active -> (Renewed ->
// Active)* -> Expired | Revoked.
type Manager struct {
	store Store
	cfg   Config
	now   func() time.Time
}

func NewManager(store Store, cfg Config) *Manager {
	if cfg.Renewal == "" {
		cfg.Renewal = RenewalSliding
	}
	return &Manager{store: store, cfg: cfg, now: time.Now}
}

// Create mints a fresh session for the user and returns it; the token is
// handed to the adapter layer to set as an opaque cookie or header value.
func (m *Manager) Create(ctx context.Context, userID uuid.UUID) (*Session, error) {
	token, err := GenerateToken()
	if err != nil {
		return nil, err
	}

	now := m.now()
	s := &Session{
		Token:      token,
		UserID:     userID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.cfg.TTL),
		LastSeenAt: now,
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate resolves a token to its session. Under the sliding policy the
// renewal is folded into the same store round trip. Expired sessions are
// swept and reported as ErrExpired; callers facing the outside world must
// collapse that to not-found.
func (m *Manager) Validate(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNotFound
	}

	if m.cfg.Renewal == RenewalSliding {
		s, err := m.store.Touch(ctx, token, m.now().Add(m.cfg.TTL))
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		// Cold path: distinguish expired from absent for the audit
		// log and sweep the stale record.
	}

	s, err := m.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if s.Expired(m.now()) {
		logger.Debug("expired session swept on validate", map[string]any{
			"user_id": s.UserID.String(),
		})
		_ = m.store.Delete(ctx, token)
		return nil, ErrExpired
	}
	return s, nil
}

// Renew extends the session's expiry by the configured TTL regardless of
// policy; explicit renewal is the fixed policy's only extension path.
func (m *Manager) Renew(ctx context.Context, token string) error {
	_, err := m.store.Touch(ctx, token, m.now().Add(m.cfg.TTL))
	return err
}

// Revoke destroys the session. Revoking an absent or already-revoked
// token is a no-op.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.store.Delete(ctx, token)
}

// RevokeAllForUser destroys every session the user holds. Used on
// credential change.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	return m.store.DeleteByUser(ctx, userID)
}

// SweepExpired removes expired records; the sweeper calls this
// periodically.
func (m *Manager) SweepExpired(ctx context.Context) (int64, error) {
	return m.store.DeleteExpired(ctx)
}
