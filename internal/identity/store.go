package identity

import (
	"context"

	"github.com/google/uuid"
)

// Store is the persistence contract for canonical users and their account
// links. Lookup methods return (nil, nil) when no record matches.
//
// Email and username comparisons are case-insensitive: implementations
// normalise at write and lookup time.
type Store interface {
	// CreateUser atomically creates a canonical user. The uniqueness
	// check and insert are one transactional unit; a losing concurrent
	// registration gets ErrDuplicateEmail.
	CreateUser(ctx context.Context, email string, emailVerified bool) (*User, error)

	FindUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByUsername(ctx context.Context, username string) (*User, error)
	FindUserByFederatedIdentity(ctx context.Context, provider, subject string) (*User, error)

	// FindLocalAccount returns the local account for a username along
	// with its owning user in a single lookup. A link row whose user is
	// missing is corruption and is reported as an error, not trusted.
	FindLocalAccount(ctx context.Context, username string) (*LocalAccount, *User, error)

	// LinkLocalAccount claims a username for a user. Fails with
	// ErrDuplicateUsername if anyone holds it, ErrUnknownUser if the
	// user does not exist.
	LinkLocalAccount(ctx context.Context, userID uuid.UUID, username, passwordHash, hashVersion string) error

	// UpdateLocalPassword replaces the stored credential hash.
	UpdateLocalPassword(ctx context.Context, userID uuid.UUID, username, passwordHash, hashVersion string) error

	LinkFederatedAccount(ctx context.Context, userID uuid.UUID, provider, subject string) error

	// SetUserStatus activates or disables a user. ErrUnknownUser if the
	// user does not exist.
	SetUserStatus(ctx context.Context, userID uuid.UUID, status string) error

	// FindOrCreateFederatedUser resolves a federated login to a
	// canonical user: an existing (provider, subject) link wins; else an
	// existing user with the asserted email gains the link; else a new
	// user plus link is created. The three-way branch runs in one
	// transaction, and a lost race is retried exactly once before
	// ErrConflict surfaces.
	FindOrCreateFederatedUser(ctx context.Context, provider, subject, email string, emailVerified bool) (*User, error)
}
