package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	byUser   map[uuid.UUID]map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		byUser:   make(map[uuid.UUID]map[string]struct{}),
	}
}

func (m *MemoryStore) Create(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *s
	m.sessions[s.Token] = &c
	if m.byUser[s.UserID] == nil {
		m.byUser[s.UserID] = make(map[string]struct{})
	}
	m.byUser[s.UserID][s.Token] = struct{}{}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, token string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	c := *s
	return &c, nil
}

func (m *MemoryStore) Touch(ctx context.Context, token string, expiresAt time.Time) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok || s.Expired(time.Now()) {
		return nil, ErrNotFound
	}
	s.ExpiresAt = expiresAt
	s.LastSeenAt = time.Now()
	c := *s
	return &c, nil
}

func (m *MemoryStore) Delete(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleteLocked(token)
	return nil
}

func (m *MemoryStore) deleteLocked(token string) {
	s, ok := m.sessions[token]
	if !ok {
		return
	}
	delete(m.sessions, token)
	if set := m.byUser[s.UserID]; set != nil {
		delete(set, token)
		if len(set) == 0 {
			delete(m.byUser, s.UserID)
		}
	}
}

func (m *MemoryStore) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for token := range m.byUser[userID] {
		delete(m.sessions, token)
	}
	delete(m.byUser, userID)
	return nil
}

func (m *MemoryStore) DeleteExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var n int64
	for token, s := range m.sessions {
		if s.Expired(now) {
			m.deleteLocked(token)
			n++
		}
	}
	return n, nil
}

var _ Store = (*MemoryStore)(nil)
