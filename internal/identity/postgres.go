package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/kraemahz/subseq-util/internal/db"
	"github.com/kraemahz/subseq-util/internal/logger"
)

const userColumns = `id, email, email_verified, status, created_at, updated_at`

// PostgresStore is the canonical Store implementation. Every statement runs
// on a connection leased from the pool for the scope of one operation.
type PostgresStore struct {
	pool *db.Pool
}

func NewPostgresStore(pool *db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func scanUser(row *sql.Row) (*User, error) {
	u := &User{}
	err := row.Scan(&u.ID, &u.Email, &u.EmailVerified, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("identity: scan user: %w", err)
	}
	return u, nil
}

// uniqueViolation reports whether err is a violation of the named unique
// constraint or index.
func uniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505" && pqErr.Constraint == constraint
}

func foreignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

func (s *PostgresStore) CreateUser(ctx context.Context, email string, emailVerified bool) (*User, error) {
	var user *User
	err := s.pool.With(ctx, func(ctx context.Context, conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx, `
			INSERT INTO users (email, email_verified)
			VALUES ($1, $2)
			RETURNING `+userColumns,
			email, emailVerified,
		)
		var err error
		user, err = scanUser(row)
		return err
	})
	if uniqueViolation(err, "users_email_lower_unique") {
		return nil, ErrDuplicateEmail
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *PostgresStore) FindUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.findUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *PostgresStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.findUser(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
}

func (s *PostgresStore) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.findUser(ctx, `
		SELECT u.id, u.email, u.email_verified, u.status, u.created_at, u.updated_at
		FROM users u
		JOIN local_accounts a ON a.user_id = u.id
		WHERE LOWER(a.username) = LOWER($1)`,
		username,
	)
}

func (s *PostgresStore) FindUserByFederatedIdentity(ctx context.Context, provider, subject string) (*User, error) {
	return s.findUser(ctx, `
		SELECT u.id, u.email, u.email_verified, u.status, u.created_at, u.updated_at
		FROM users u
		JOIN federated_accounts f ON f.user_id = u.id
		WHERE f.provider = $1 AND f.subject = $2`,
		provider, subject,
	)
}

func (s *PostgresStore) findUser(ctx context.Context, query string, args ...any) (*User, error) {
	var user *User
	err := s.pool.With(ctx, func(ctx context.Context, conn *sql.Conn) error {
		var err error
		user, err = scanUser(conn.QueryRowContext(ctx, query, args...))
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *PostgresStore) FindLocalAccount(ctx context.Context, username string) (*LocalAccount, *User, error) {
	var (
		account *LocalAccount
		user    *User
	)
	err := s.pool.With(ctx, func(ctx context.Context, conn *sql.Conn) error {
		a := &LocalAccount{}
		u := &User{}
		err := conn.QueryRowContext(ctx, `
			SELECT a.user_id, a.username, a.password_hash, a.hash_version,
			       a.created_at, a.updated_at,
			       u.id, u.email, u.email_verified, u.status, u.created_at, u.updated_at
			FROM local_accounts a
			JOIN users u ON u.id = a.user_id
			WHERE LOWER(a.username) = LOWER($1)`,
			username,
		).Scan(
			&a.UserID, &a.Username, &a.PasswordHash, &a.HashVersion,
			&a.CreatedAt, &a.UpdatedAt,
			&u.ID, &u.Email, &u.EmailVerified, &u.Status, &u.CreatedAt, &u.UpdatedAt,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("identity: scan local account: %w", err)
		}
		account, user = a, u
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return account, user, nil
}

func (s *PostgresStore) LinkLocalAccount(ctx context.Context, userID uuid.UUID, username, passwordHash, hashVersion string) error {
	err := s.pool.With(ctx, func(ctx context.Context, conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO local_accounts (user_id, username, password_hash, hash_version)
			VALUES ($1, $2, $3, $4)`,
			userID, username, passwordHash, hashVersion,
		)
		return err
	})
	switch {
	case err == nil:
		return nil
	case uniqueViolation(err, "local_accounts_username_lower_unique"):
		return ErrDuplicateUsername
	case foreignKeyViolation(err):
		return ErrUnknownUser
	default:
		return fmt.Errorf("identity: link local account: %w", err)
	}
}

func (s *PostgresStore) UpdateLocalPassword(ctx context.Context, userID uuid.UUID, username, passwordHash, hashVersion string) error {
	return s.pool.With(ctx, func(ctx context.Context, conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, `
			UPDATE local_accounts
			SET password_hash = $3, hash_version = $4, updated_at = NOW()
			WHERE user_id = $1 AND LOWER(username) = LOWER($2)`,
			userID, username, passwordHash, hashVersion,
		)
		if err != nil {
			return fmt.Errorf("identity: update password: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("identity: update password: %w", err)
		}
		if n == 0 {
			return ErrUnknownUser
		}
		return nil
	})
}

func (s *PostgresStore) SetUserStatus(ctx context.Context, userID uuid.UUID, status string) error {
	return s.pool.With(ctx, func(ctx context.Context, conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, `
			UPDATE users SET status = $2, updated_at = NOW() WHERE id = $1`,
			userID, status,
		)
		if err != nil {
			return fmt.Errorf("identity: set user status: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("identity: set user status: %w", err)
		}
		if n == 0 {
			return ErrUnknownUser
		}
		return nil
	})
}

func (s *PostgresStore) LinkFederatedAccount(ctx context.Context, userID uuid.UUID, provider, subject string) error {
	err := s.pool.With(ctx, func(ctx context.Context, conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO federated_accounts (user_id, provider, subject)
			VALUES ($1, $2, $3)`,
			userID, provider, subject,
		)
		return err
	})
	switch {
	case err == nil:
		return nil
	case uniqueViolation(err, "federated_accounts_provider_subject_unique"):
		return ErrDuplicateFederatedIdentity
	case foreignKeyViolation(err):
		return ErrUnknownUser
	default:
		return fmt.Errorf("identity: link federated account: %w", err)
	}
}

func (s *PostgresStore) FindOrCreateFederatedUser(ctx context.Context, provider, subject, email string, emailVerified bool) (*User, error) {
	user, err := s.findOrCreateFederated(ctx, provider, subject, email, emailVerified)
	if errors.Is(err, ErrConflict) {
		// The concurrent winner has committed; one retry resolves to
		// its row.
		logger.Debug("federated find-or-create conflict, retrying", map[string]any{
			"provider": provider,
		})
		user, err = s.findOrCreateFederated(ctx, provider, subject, email, emailVerified)
	}
	return user, err
}

func (s *PostgresStore) findOrCreateFederated(ctx context.Context, provider, subject, email string, emailVerified bool) (*User, error) {
	var user *User
	err := s.pool.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		// Existing link wins.
		u, err := scanUser(tx.QueryRowContext(ctx, `
			SELECT u.id, u.email, u.email_verified, u.status, u.created_at, u.updated_at
			FROM users u
			JOIN federated_accounts f ON f.user_id = u.id
			WHERE f.provider = $1 AND f.subject = $2`,
			provider, subject,
		))
		if err != nil {
			return err
		}
		if u != nil {
			user = u
			return nil
		}

		// Existing user by email gains the link (merge federated login
		// into a previously local-only account).
		u, err = scanUser(tx.QueryRowContext(ctx, `
			SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`,
			email,
		))
		if err != nil {
			return err
		}
		if u == nil {
			u, err = scanUser(tx.QueryRowContext(ctx, `
				INSERT INTO users (email, email_verified)
				VALUES ($1, $2)
				RETURNING `+userColumns,
				email, emailVerified,
			))
			if uniqueViolation(err, "users_email_lower_unique") {
				return ErrConflict
			}
			if err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO federated_accounts (user_id, provider, subject)
			VALUES ($1, $2, $3)`,
			u.ID, provider, subject,
		); err != nil {
			if uniqueViolation(err, "federated_accounts_provider_subject_unique") {
				return ErrConflict
			}
			return fmt.Errorf("identity: link federated account: %w", err)
		}

		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

var _ Store = (*PostgresStore)(nil)
