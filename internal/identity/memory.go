package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and local development.
// A single mutex serialises writes, giving the same lose-deterministically
// behaviour the database enforces with unique constraints.
type MemoryStore struct {
	mu        sync.Mutex
	users     map[uuid.UUID]*User
	emails    map[string]uuid.UUID     // lower(email) -> user
	locals    map[string]*LocalAccount // lower(username) -> account
	federated map[string]uuid.UUID     // provider + "\x00" + subject -> user
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[uuid.UUID]*User),
		emails:    make(map[string]uuid.UUID),
		locals:    make(map[string]*LocalAccount),
		federated: make(map[string]uuid.UUID),
	}
}

func fedKey(provider, subject string) string {
	return provider + "\x00" + subject
}

func cloneUser(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

func (s *MemoryStore) CreateUser(ctx context.Context, email string, emailVerified bool) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createUserLocked(email, emailVerified)
}

func (s *MemoryStore) createUserLocked(email string, emailVerified bool) (*User, error) {
	key := strings.ToLower(email)
	if _, exists := s.emails[key]; exists {
		return nil, ErrDuplicateEmail
	}
	now := time.Now()
	u := &User{
		ID:            uuid.New(),
		Email:         email,
		EmailVerified: emailVerified,
		Status:        StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.users[u.ID] = u
	s.emails[key] = u.ID
	return cloneUser(u), nil
}

func (s *MemoryStore) FindUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneUser(s.users[id]), nil
}

func (s *MemoryStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.emails[strings.ToLower(email)]; ok {
		return cloneUser(s.users[id]), nil
	}
	return nil, nil
}

func (s *MemoryStore) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.locals[strings.ToLower(username)]; ok {
		return cloneUser(s.users[a.UserID]), nil
	}
	return nil, nil
}

func (s *MemoryStore) FindUserByFederatedIdentity(ctx context.Context, provider, subject string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.federated[fedKey(provider, subject)]; ok {
		return cloneUser(s.users[id]), nil
	}
	return nil, nil
}

func (s *MemoryStore) FindLocalAccount(ctx context.Context, username string) (*LocalAccount, *User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.locals[strings.ToLower(username)]
	if !ok {
		return nil, nil, nil
	}
	acc := *a
	return &acc, cloneUser(s.users[a.UserID]), nil
}

func (s *MemoryStore) LinkLocalAccount(ctx context.Context, userID uuid.UUID, username, passwordHash, hashVersion string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return ErrUnknownUser
	}
	key := strings.ToLower(username)
	if _, exists := s.locals[key]; exists {
		return ErrDuplicateUsername
	}
	now := time.Now()
	s.locals[key] = &LocalAccount{
		UserID:       userID,
		Username:     username,
		PasswordHash: passwordHash,
		HashVersion:  hashVersion,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return nil
}

func (s *MemoryStore) UpdateLocalPassword(ctx context.Context, userID uuid.UUID, username, passwordHash, hashVersion string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.locals[strings.ToLower(username)]
	if !ok || a.UserID != userID {
		return ErrUnknownUser
	}
	a.PasswordHash = passwordHash
	a.HashVersion = hashVersion
	a.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SetUserStatus(ctx context.Context, userID uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUnknownUser
	}
	u.Status = status
	u.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) LinkFederatedAccount(ctx context.Context, userID uuid.UUID, provider, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return ErrUnknownUser
	}
	key := fedKey(provider, subject)
	if _, exists := s.federated[key]; exists {
		return ErrDuplicateFederatedIdentity
	}
	s.federated[key] = userID
	return nil
}

func (s *MemoryStore) FindOrCreateFederatedUser(ctx context.Context, provider, subject, email string, emailVerified bool) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.federated[fedKey(provider, subject)]; ok {
		return cloneUser(s.users[id]), nil
	}

	var user *User
	if id, ok := s.emails[strings.ToLower(email)]; ok {
		user = s.users[id]
	} else {
		created, err := s.createUserLocked(email, emailVerified)
		if err != nil {
			return nil, ErrConflict
		}
		user = s.users[created.ID]
	}

	s.federated[fedKey(provider, subject)] = user.ID
	return cloneUser(user), nil
}

var _ Store = (*MemoryStore)(nil)
