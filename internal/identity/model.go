// Package identity owns canonical user records and their linked local and
// federated account credentials. Both login methods resolve to one User;
// the store's find-or-create path is the single authority for merge
// decisions between the two namespaces.
package identity

import (
	"time"

	"github.com/google/uuid"
)

// User statuses. Only active users may authenticate.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// User is the canonical identity record all login methods resolve to.
type User struct {
	ID            uuid.UUID
	Email         string
	EmailVerified bool
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LocalAccount links a User to a locally-issued username/password
// credential. (user_id, username) is the primary key, so one User may hold
// several usernames; the username itself is globally unique.
type LocalAccount struct {
	UserID       uuid.UUID
	Username     string
	PasswordHash string
	HashVersion  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FederatedAccount links a User to an externally-asserted identity, keyed
// by (provider, subject).
type FederatedAccount struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Provider  string
	Subject   string
	CreatedAt time.Time
}
