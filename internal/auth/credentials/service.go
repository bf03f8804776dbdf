// Package credentials validates login credentials against the identity
// store and produces the canonical user on success.
package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kraemahz/subseq-util/internal/auth"
	"github.com/kraemahz/subseq-util/internal/identity"
	"github.com/kraemahz/subseq-util/internal/logger"
)

var (
	ErrInvalidCredentials = errors.New("credentials: invalid credentials")
	ErrUnverifiedEmail    = errors.New("credentials: email not verified by provider")
)

// SessionRevoker is the session-manager surface the verifier needs: a
// password change invalidates every session the user holds.
type SessionRevoker interface {
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error
}

type Service struct {
	store    identity.Store
	sessions SessionRevoker

	// dummyHash is compared against when the username is unknown so the
	// unknown-user and wrong-password paths cost the same.
	dummyHash string
}

func NewService(store identity.Store, sessions SessionRevoker) *Service {
	dummy, _, err := HashPassword(uuid.NewString())
	if err != nil {
		// bcrypt on a fixed-length random input cannot fail at a
		// supported cost; treat it as a programming error.
		panic(fmt.Sprintf("credentials: dummy hash: %v", err))
	}
	return &Service{store: store, sessions: sessions, dummyHash: dummy}
}

// Register creates a canonical user for the email (or reuses an existing
// one with no claim on the username) and links a local account to it.
func (s *Service) Register(ctx context.Context, email, username, password string) (*identity.User, error) {
	hash, version, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user, err = s.store.CreateUser(ctx, email, false)
		if errors.Is(err, identity.ErrDuplicateEmail) {
			// Lost a registration race; the winner's row serves.
			user, err = s.store.FindUserByEmail(ctx, email)
		}
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, identity.ErrConflict
		}
	}

	if err := s.store.LinkLocalAccount(ctx, user.ID, username, hash, version); err != nil {
		return nil, err
	}

	logger.Info("local account registered", map[string]any{
		"user_id":  user.ID.String(),
		"username": username,
	})
	return user, nil
}

// VerifyLocal validates a username/password pair. Unknown usernames and
// wrong passwords both return ErrInvalidCredentials, with a hash
// comparison performed in either case so the two are indistinguishable by
// timing as well as by result.
func (s *Service) VerifyLocal(ctx context.Context, username, password string) (*identity.User, error) {
	account, user, err := s.store.FindLocalAccount(ctx, username)
	if err != nil {
		return nil, err
	}

	if account == nil || user == nil {
		VerifyPassword(s.dummyHash, password)
		return nil, ErrInvalidCredentials
	}

	if err := VerifyPassword(account.PasswordHash, password); err != nil {
		logger.Debug("password mismatch", map[string]any{
			"user_id": user.ID.String(),
		})
		return nil, ErrInvalidCredentials
	}

	if user.Status != identity.StatusActive {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// Owner returns the user holding the named local account, or nil when no
// such account exists.
func (s *Service) Owner(ctx context.Context, username string) (*identity.User, error) {
	return s.store.FindUserByUsername(ctx, username)
}

// AcceptFederatedAssertion turns a validated identity assertion into a
// canonical user, merging into an existing account by email or creating a
// new one. An assertion whose email the provider has not verified must not
// silently link into an existing account.
func (s *Service) AcceptFederatedAssertion(ctx context.Context, assertion *auth.Assertion) (*identity.User, error) {
	if assertion == nil {
		return nil, errors.New("credentials: nil assertion")
	}
	if !assertion.EmailVerified {
		logger.Warn("rejected unverified federated email", map[string]any{
			"provider": assertion.Provider,
		})
		return nil, ErrUnverifiedEmail
	}

	user, err := s.store.FindOrCreateFederatedUser(
		ctx,
		assertion.Provider,
		assertion.Subject,
		assertion.Email,
		assertion.EmailVerified,
	)
	if err != nil {
		return nil, err
	}
	if user.Status != identity.StatusActive {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// ChangePassword re-verifies the current password, stores the new hash and
// revokes every session the user holds.
func (s *Service) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	user, err := s.VerifyLocal(ctx, username, oldPassword)
	if err != nil {
		return err
	}

	hash, version, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.UpdateLocalPassword(ctx, user.ID, username, hash, version); err != nil {
		return err
	}

	if err := s.sessions.RevokeAllForUser(ctx, user.ID); err != nil {
		return fmt.Errorf("credentials: revoke sessions after password change: %w", err)
	}

	logger.Info("password changed, sessions revoked", map[string]any{
		"user_id": user.ID.String(),
	})
	return nil
}
